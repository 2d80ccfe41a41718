package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/jupiterclapton/atelier/internal/core/ports"
)

const (
	DefaultRepairBatchSize = 500
	maxFlagsPerRun         = 10000
)

// RepairService rétablit la symétrie des arêtes à partir du côté sujet.
// Idempotent : un second passage ne modifie rien.
type RepairService struct {
	store     ports.ProfileStore
	journal   ports.RepairJournal
	metrics   ports.Metrics
	batchSize int
}

func NewRepairService(store ports.ProfileStore, journal ports.RepairJournal, metrics ports.Metrics, batchSize int) *RepairService {
	if batchSize <= 0 {
		batchSize = DefaultRepairBatchSize
	}
	return &RepairService{store: store, journal: journal, metrics: metrics, batchSize: batchSize}
}

// pairOutcome décrit ce que la réconciliation d'une paire a modifié.
type pairOutcome int

const (
	outcomeNone pairOutcome = iota
	outcomeRestored
	outcomeRemoved
	outcomeSelfEdgeRemoved
)

func (s *RepairService) RepairRelationships(ctx context.Context) (*domain.RepairReport, error) {
	var report domain.RepairReport

	// Les signalements posés pendant le passage seront traités au suivant.
	flags, err := s.journal.Pending(ctx, maxFlagsPerRun)
	if err != nil {
		return nil, fmt.Errorf("load pending flags: %w", err)
	}

	// 1. Conteneurs absents ou malformés
	for _, c := range []domain.Collection{domain.CollectionPersons, domain.CollectionArtists, domain.CollectionArtworks} {
		err := s.store.ScanIDs(ctx, c, s.batchSize, func(ids []string) error {
			for _, id := range ids {
				changed, err := s.normalizeDocument(ctx, domain.DocRef{Collection: c, ID: id})
				if err != nil {
					return err
				}
				if changed {
					report.DocumentsNormalized++
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("normalize %s: %w", c, err)
		}
	}

	// 2. Symétrie, type d'arête par type d'arête
	for _, kind := range domain.EdgeKinds {
		if err := s.repairKind(ctx, kind, &report); err != nil {
			return nil, fmt.Errorf("repair %s: %w", kind, err)
		}
	}

	// 3. Journal
	if len(flags) > 0 {
		ids := make([]string, 0, len(flags))
		for _, f := range flags {
			ids = append(ids, f.ID)
		}
		if err := s.journal.Resolve(ctx, ids); err != nil {
			return nil, fmt.Errorf("resolve flags: %w", err)
		}
		report.FlagsResolved = len(ids)
	}

	s.metrics.RepairCompleted(report)
	slog.InfoContext(ctx, "relationship repair completed",
		"documents_normalized", report.DocumentsNormalized,
		"edges_restored", report.EdgesRestored,
		"edges_removed", report.EdgesRemoved,
		"self_edges_removed", report.SelfEdgesRemoved,
		"flags_resolved", report.FlagsResolved,
	)
	return &report, nil
}

func (s *RepairService) normalizeDocument(ctx context.Context, ref domain.DocRef) (bool, error) {
	changed := false
	err := s.store.Mutate(ctx, func(ctx context.Context, m ports.Mutator) error {
		doc, err := lockDoc(ctx, m, ref)
		if errors.Is(err, domain.ErrNotFound) {
			return nil // supprimé entre le scan et le verrou
		}
		if err != nil {
			return err
		}
		if !doc.Normalize() {
			return nil
		}
		changed = true
		return m.ReplaceContainers(ctx, doc)
	})
	return changed, err
}

// repairKind parcourt les deux côtés : le sujet pour restaurer les miroirs manquants,
// l'objet pour retirer les entrées que le sujet ne porte pas.
func (s *RepairService) repairKind(ctx context.Context, kind domain.EdgeKind, report *domain.RepairReport) error {
	mirror, err := kind.Mirror()
	if err != nil {
		return err
	}

	err = s.store.ScanIDs(ctx, mirror.SubjectCollection, s.batchSize, func(ids []string) error {
		for _, subjectID := range ids {
			objects, err := s.readSet(ctx, mirror.SubjectSet(subjectID))
			if err != nil {
				return err
			}
			for _, objectID := range objects {
				if err := s.reconcile(ctx, kind, mirror, subjectID, objectID, report); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.store.ScanIDs(ctx, mirror.ObjectCollection, s.batchSize, func(ids []string) error {
		for _, objectID := range ids {
			subjects, err := s.readSet(ctx, mirror.ObjectSet(objectID))
			if err != nil {
				return err
			}
			for _, subjectID := range subjects {
				if err := s.reconcile(ctx, kind, mirror, subjectID, objectID, report); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// readSet lit un conteneur complet hors verrou (instantané, revérifié dans reconcile).
func (s *RepairService) readSet(ctx context.Context, ref domain.SetRef) ([]string, error) {
	var out []string
	for offset := 0; ; offset += s.batchSize {
		items, total, err := s.store.Members(ctx, ref, offset, s.batchSize)
		if errors.Is(err, domain.ErrNotFound) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if len(items) == 0 || offset+len(items) >= total {
			return out, nil
		}
	}
}

func (s *RepairService) reconcile(
	ctx context.Context,
	kind domain.EdgeKind,
	mirror domain.Mirror,
	subjectID, objectID string,
	report *domain.RepairReport,
) error {
	var outcome pairOutcome
	err := s.store.Mutate(ctx, func(ctx context.Context, m ports.Mutator) error {
		var err error
		outcome, err = reconcilePair(ctx, m, kind, mirror, subjectID, objectID)
		return err
	})
	if err != nil {
		return fmt.Errorf("reconcile %s->%s: %w", subjectID, objectID, err)
	}

	switch outcome {
	case outcomeRestored:
		report.EdgesRestored++
	case outcomeRemoved:
		report.EdgesRemoved++
	case outcomeSelfEdgeRemoved:
		report.SelfEdgesRemoved++
	}
	if outcome != outcomeNone {
		slog.DebugContext(ctx, "pair repaired", "kind", kind, "subject", subjectID, "object", objectID, "outcome", int(outcome))
	}
	return nil
}

// reconcilePair projette l'état du côté sujet sur le miroir pour une paire verrouillée.
func reconcilePair(
	ctx context.Context,
	m ports.Mutator,
	kind domain.EdgeKind,
	mirror domain.Mirror,
	subjectID, objectID string,
) (pairOutcome, error) {
	subjectRef := mirror.SubjectSet(subjectID)
	objectRef := mirror.ObjectSet(objectID)

	subject, object, err := lockPair(ctx, m, subjectRef.Doc, objectRef.Doc, true)
	if err != nil {
		return outcomeNone, err
	}

	// Références pendantes : on retire l'entrée du document qui existe encore.
	switch {
	case subject == nil && object == nil:
		return outcomeNone, nil
	case subject == nil:
		return removed(m.RemoveFromSet(ctx, objectRef, subjectID))
	case object == nil:
		return removed(m.RemoveFromSet(ctx, subjectRef, objectID))
	}

	if isSelfEdge(kind, subject, object) {
		a, err := m.RemoveFromSet(ctx, subjectRef, objectID)
		if err != nil {
			return outcomeNone, err
		}
		b, err := m.RemoveFromSet(ctx, objectRef, subjectID)
		if err != nil {
			return outcomeNone, err
		}
		if a || b {
			return outcomeSelfEdgeRemoved, nil
		}
		return outcomeNone, nil
	}

	subjectSet, err := members(subject, mirror.SubjectField)
	if err != nil {
		return outcomeNone, err
	}
	objectSet, err := members(object, mirror.ObjectField)
	if err != nil {
		return outcomeNone, err
	}

	held, mirrored := subjectSet.Contains(objectID), objectSet.Contains(subjectID)
	switch {
	case held && !mirrored:
		changed, err := m.AddToSet(ctx, objectRef, subjectID)
		if err != nil || !changed {
			return outcomeNone, err
		}
		return outcomeRestored, nil
	case !held && mirrored:
		return removed(m.RemoveFromSet(ctx, objectRef, subjectID))
	}
	return outcomeNone, nil
}

func removed(changed bool, err error) (pairOutcome, error) {
	if err != nil || !changed {
		return outcomeNone, err
	}
	return outcomeRemoved, nil
}
