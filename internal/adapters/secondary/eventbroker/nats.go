package eventbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	StreamName     = "ENGAGEMENT"
	SubjectPattern = "engagement.>"

	SubjectEdgeToggled     = "engagement.edge.toggled"
	SubjectLikeToggled     = "engagement.like.toggled"
	SubjectRatingUpserted  = "engagement.rating.upserted"
	SubjectCommentAppended = "engagement.comment.appended"
	SubjectRepairFlagged   = "engagement.repair.flagged"
)

type NatsBroker struct {
	js      jetstream.JetStream
	breaker *gobreaker.CircuitBreaker[*jetstream.PubAck]
}

// NewNatsBroker s'assure que le Stream existe (idempotent) et arme le circuit breaker.
// Breaker ouvert : les publications échouent immédiatement au lieu de bloquer les requêtes.
func NewNatsBroker(ctx context.Context, js jetstream.JetStream) (*NatsBroker, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPattern},
		Storage:  jetstream.FileStorage,
		Replicas: 1, // Mettre 3 en cluster
	})
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[*jetstream.PubAck](gobreaker.Settings{
		Name:        "nats-publisher",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &NatsBroker{js: js, breaker: breaker}, nil
}

func (n *NatsBroker) PublishEdgeToggled(ctx context.Context, e domain.EdgeToggled) error {
	return n.publish(ctx, SubjectEdgeToggled, NewEdgeToggledEvent(e))
}

func (n *NatsBroker) PublishLikeToggled(ctx context.Context, e domain.LikeToggled) error {
	return n.publish(ctx, SubjectLikeToggled, LikeToggledEvent{
		ArtworkID: e.ArtworkID,
		RaterID:   e.RaterID,
		Liked:     e.Liked,
		Count:     e.Count,
		At:        e.At,
	})
}

func (n *NatsBroker) PublishRatingUpserted(ctx context.Context, e domain.RatingUpserted) error {
	return n.publish(ctx, SubjectRatingUpserted, RatingUpsertedEvent{
		Collection: string(e.Target.Collection),
		TargetID:   e.Target.ID,
		RaterID:    e.RaterID,
		Value:      e.Value,
		Average:    e.Average,
		At:         e.At,
	})
}

func (n *NatsBroker) PublishCommentAppended(ctx context.Context, e domain.CommentAppended) error {
	return n.publish(ctx, SubjectCommentAppended, CommentAppendedEvent{
		ArtworkID: e.ArtworkID,
		CommentID: e.Comment.ID,
		AuthorID:  e.Comment.AuthorID,
		Text:      e.Comment.Text,
		CreatedAt: e.Comment.CreatedAt,
	})
}

func (n *NatsBroker) PublishRepairFlagged(ctx context.Context, f domain.RepairFlag) error {
	return n.publish(ctx, SubjectRepairFlagged, RepairFlaggedEvent{
		ID:        f.ID,
		Kind:      string(f.Edge.Kind),
		SubjectID: f.Edge.SubjectID,
		ObjectID:  f.Edge.ObjectID,
		Reason:    f.Reason,
		FlaggedAt: f.FlaggedAt,
	})
}

func (n *NatsBroker) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  nats.Header{},
	}
	// Injection du trace context dans les headers NATS
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	ack, err := n.breaker.Execute(func() (*jetstream.PubAck, error) {
		return n.js.PublishMsg(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}

	slog.DebugContext(ctx, "event published", "subject", subject, "seq", ack.Sequence)
	return nil
}
