package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jupiterclapton/atelier/internal/core/domain"
)

// Flag est hors transaction : le signalement survit au rollback de l'unité de travail.
func (s *PostgresStore) Flag(ctx context.Context, flag domain.RepairFlag) error {
	q := `
		INSERT INTO relationship_repairs (id, kind, subject_id, object_id, reason, flagged_at)
		VALUES (@id, @kind, @subject_id, @object_id, @reason, @flagged_at)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.Exec(ctx, q, pgx.NamedArgs{
		"id":         flag.ID,
		"kind":       string(flag.Edge.Kind),
		"subject_id": flag.Edge.SubjectID,
		"object_id":  flag.Edge.ObjectID,
		"reason":     flag.Reason,
		"flagged_at": flag.FlaggedAt,
	})
	if err != nil {
		return fmt.Errorf("db: flag repair: %w", err)
	}
	return nil
}

func (s *PostgresStore) Pending(ctx context.Context, limit int) ([]domain.RepairFlag, error) {
	q := `
		SELECT id, kind, subject_id, object_id, reason, flagged_at
		FROM relationship_repairs
		WHERE resolved_at IS NULL
		ORDER BY flagged_at
		LIMIT $1
	`
	rows, err := s.db.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("db: pending repairs: %w", err)
	}
	defer rows.Close()

	flags := []domain.RepairFlag{}
	for rows.Next() {
		var f domain.RepairFlag
		var kind string
		if err := rows.Scan(&f.ID, &kind, &f.Edge.SubjectID, &f.Edge.ObjectID, &f.Reason, &f.FlaggedAt); err != nil {
			return nil, err
		}
		f.Edge.Kind = domain.EdgeKind(kind)
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

func (s *PostgresStore) Resolve(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	q := `UPDATE relationship_repairs SET resolved_at = $2 WHERE id = ANY($1) AND resolved_at IS NULL`
	if _, err := s.db.Exec(ctx, q, ids, time.Now().UTC()); err != nil {
		return fmt.Errorf("db: resolve repairs: %w", err)
	}
	return nil
}
