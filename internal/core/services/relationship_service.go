package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/jupiterclapton/atelier/internal/core/ports"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// MirrorPolicy règle les tentatives d'écriture du miroir avant de signaler la paire.
type MirrorPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultMirrorPolicy = MirrorPolicy{
	MaxTries:        3,
	InitialInterval: 20 * time.Millisecond,
	MaxInterval:     200 * time.Millisecond,
}

// RelationshipService implémente ports.RelationshipService.
type RelationshipService struct {
	store     ports.ProfileStore
	journal   ports.RepairJournal
	publisher ports.EventPublisher
	graph     ports.GraphIndex // optionnel (nil = lecture directe du store)
	metrics   ports.Metrics
	policy    MirrorPolicy
	now       func() time.Time
}

func NewRelationshipService(
	store ports.ProfileStore,
	journal ports.RepairJournal,
	pub ports.EventPublisher,
	graph ports.GraphIndex,
	metrics ports.Metrics,
	policy MirrorPolicy,
) *RelationshipService {
	if policy.MaxTries == 0 {
		policy = DefaultMirrorPolicy
	}
	return &RelationshipService{
		store:     store,
		journal:   journal,
		publisher: pub,
		graph:     graph,
		metrics:   metrics,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// partialWriteError : le côté sujet est écrit, le miroir a échoué après toutes les tentatives.
type partialWriteError struct {
	edge domain.Edge
	err  error
}

func (e *partialWriteError) Error() string {
	return fmt.Sprintf("mirror write failed for %s: %v", e.edge, e.err)
}

func (e *partialWriteError) Unwrap() error { return e.err }

func (s *RelationshipService) ToggleEdge(ctx context.Context, cmd ports.ToggleEdgeCmd) (*domain.EdgeResult, error) {
	// 1. Fail fast
	if cmd.ActorID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if cmd.SubjectID == "" || cmd.ObjectID == "" {
		return nil, fmt.Errorf("%w: ids cannot be empty", domain.ErrInvalidArgument)
	}
	mirror, err := cmd.Kind.Mirror()
	if err != nil {
		return nil, err
	}

	edge := domain.Edge{Kind: cmd.Kind, SubjectID: cmd.SubjectID, ObjectID: cmd.ObjectID}
	subjectRef := mirror.SubjectSet(cmd.SubjectID)
	objectRef := mirror.ObjectSet(cmd.ObjectID)

	var (
		result domain.EdgeResult
		at     time.Time
	)
	err = s.store.Mutate(ctx, func(ctx context.Context, m ports.Mutator) error {
		// 2. Verrouillage des deux documents (ordre déterministe)
		subject, object, err := lockPair(ctx, m, subjectRef.Doc, objectRef.Doc, false)
		if err != nil {
			return err
		}
		// Horodaté sous verrou : l'ordre des `at` suit l'ordre des commits sur la paire.
		at = s.now()
		if err := authorize(cmd, subject); err != nil {
			return err
		}
		if isSelfEdge(cmd.Kind, subject, object) {
			return domain.ErrSelfEdge
		}

		// 3. L'état courant est lu côté sujet (il fait foi)
		current, err := members(subject, mirror.SubjectField)
		if err != nil {
			return err
		}
		present := !current.Contains(cmd.ObjectID)

		// 4. Côté sujet d'abord, puis le miroir avec retry
		if _, err := applyMembership(ctx, m, subjectRef, cmd.ObjectID, present); err != nil {
			return fmt.Errorf("write %s: %w", subjectRef, err)
		}
		if err := s.writeMirror(ctx, m, objectRef, cmd.SubjectID, present); err != nil {
			return &partialWriteError{edge: edge, err: err}
		}

		// 5. Compteurs projetés depuis les cardinalités, dans la même unité de travail
		result.IsPresent = present
		if result.SubjectCount, err = m.Cardinality(ctx, subjectRef); err != nil {
			return err
		}
		result.ObjectCount, err = m.Cardinality(ctx, objectRef)
		return err
	})

	var pw *partialWriteError
	if errors.As(err, &pw) {
		s.flagPartialWrite(ctx, pw)
		return nil, fmt.Errorf("toggle %s: %w: %v", edge, domain.ErrPartialWrite, pw.err)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.EdgeToggled(cmd.Kind, result.IsPresent)

	// 6. Publication (best effort, la donnée est déjà sauvée)
	evt := domain.EdgeToggled{Edge: edge, Present: result.IsPresent, At: at}
	if err := s.publisher.PublishEdgeToggled(ctx, evt); err != nil {
		slog.WarnContext(ctx, "failed to publish edge toggled", "edge", edge.String(), "error", err)
	}

	return &result, nil
}

// authorize : pour person_*, l'acteur est le sujet ; pour artist_artist, l'acteur possède l'artiste sujet.
func authorize(cmd ports.ToggleEdgeCmd, subject domain.Document) error {
	if cmd.Kind == domain.EdgeArtistArtist {
		artist, ok := subject.(*domain.Artist)
		if !ok || artist.OwnerID != cmd.ActorID {
			return domain.ErrUnauthorized
		}
		return nil
	}
	if cmd.ActorID != cmd.SubjectID {
		return domain.ErrUnauthorized
	}
	return nil
}

// isSelfEdge : suivre soi-même, ou suivre l'artiste que l'on possède.
func isSelfEdge(kind domain.EdgeKind, subject, object domain.Document) bool {
	if kind == domain.EdgePersonArtist {
		artist, ok := object.(*domain.Artist)
		return ok && artist.OwnerID == subject.Ref().ID
	}
	return subject.Ref() == object.Ref()
}

func (s *RelationshipService) writeMirror(ctx context.Context, m ports.Mutator, ref domain.SetRef, member string, present bool) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.policy.InitialInterval
	b.MaxInterval = s.policy.MaxInterval

	_, err := backoff.Retry(ctx, func() (bool, error) {
		changed, err := applyMembership(ctx, m, ref, member, present)
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidArgument) {
			return false, backoff.Permanent(err)
		}
		return changed, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.policy.MaxTries))
	return err
}

// flagPartialWrite signale la paire pour la réparation. Aucune de ces étapes ne doit masquer l'erreur d'origine.
func (s *RelationshipService) flagPartialWrite(ctx context.Context, pw *partialWriteError) {
	s.metrics.PartialWrite(pw.edge.Kind)

	flag := domain.RepairFlag{
		ID:        uuid.NewString(),
		Edge:      pw.edge,
		Reason:    pw.err.Error(),
		FlaggedAt: s.now(),
	}
	slog.ErrorContext(ctx, "partial write, pair flagged for repair", "edge", pw.edge.String(), "flag_id", flag.ID, "error", pw.err)

	// Contexte détaché : la requête peut déjà être annulée, le signalement doit partir quand même.
	bg := context.WithoutCancel(ctx)
	if err := s.journal.Flag(bg, flag); err != nil {
		slog.ErrorContext(ctx, "failed to journal repair flag", "flag_id", flag.ID, "error", err)
	}
	if err := s.publisher.PublishRepairFlagged(bg, flag); err != nil {
		slog.WarnContext(ctx, "failed to publish repair flag", "flag_id", flag.ID, "error", err)
	}
}

func (s *RelationshipService) ListMembers(ctx context.Context, q ports.ListMembersQuery) (*domain.Page, error) {
	if q.Doc.ID == "" {
		return nil, fmt.Errorf("%w: id cannot be empty", domain.ErrInvalidArgument)
	}
	if !domain.HasField(q.Doc.Collection, q.Field) {
		return nil, fmt.Errorf("%w: %s has no field %q", domain.ErrInvalidArgument, q.Doc.Collection, q.Field)
	}

	offset, err := decodeCursor(q.Cursor)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	items, total, err := s.store.Members(ctx, domain.SetRef{Doc: q.Doc, Field: q.Field}, offset, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []string{}
	}

	page := &domain.Page{Items: items, Total: total}
	if next := offset + len(items); len(items) > 0 && next < total {
		page.NextCursor = encodeCursor(next)
	}
	return page, nil
}

// Le curseur est un offset opaque dans l'ordre d'insertion du conteneur.
func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid page token", domain.ErrInvalidArgument)
	}
	offset, err := strconv.Atoi(string(raw))
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: invalid page token", domain.ErrInvalidArgument)
	}
	return offset, nil
}

// CheckRelation lit la projection Neo4j si elle est branchée, sinon les documents (côté sujet).
func (s *RelationshipService) CheckRelation(ctx context.Context, actorID, targetID string) (*domain.RelationStatus, error) {
	if actorID == "" || targetID == "" {
		return nil, fmt.Errorf("%w: ids cannot be empty", domain.ErrInvalidArgument)
	}

	if s.graph != nil {
		status, err := s.graph.RelationStatus(ctx, actorID, targetID)
		if err == nil {
			return status, nil
		}
		slog.WarnContext(ctx, "graph index unavailable, falling back to store", "error", err)
	}

	actor, err := s.store.GetPerson(ctx, actorID)
	if err != nil {
		return nil, err
	}
	target, err := s.store.GetPerson(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return &domain.RelationStatus{
		IsFollowing:  actor.Following.Contains(targetID),
		IsFollowedBy: target.Following.Contains(actorID),
	}, nil
}
