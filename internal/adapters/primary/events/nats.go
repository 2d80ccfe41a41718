package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jupiterclapton/atelier/internal/adapters/secondary/eventbroker"
	"github.com/jupiterclapton/atelier/internal/core/ports"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const ConsumerName = "graph-projection"

// errPoison : message illisible, le rejouer ne servira à rien.
var errPoison = errors.New("poison message")

// EdgeProjector applique les événements engagement.edge.toggled sur la projection graphe.
type EdgeProjector struct {
	graph   ports.GraphIndex
	timeout time.Duration
}

func NewEdgeProjector(graph ports.GraphIndex) *EdgeProjector {
	return &EdgeProjector{graph: graph, timeout: 10 * time.Second}
}

// Start crée (ou met à jour) le consumer durable et commence la consommation.
// L'appelant arrête la consommation avec Stop() sur le ConsumeContext retourné.
func (p *EdgeProjector) Start(ctx context.Context, js jetstream.JetStream) (jetstream.ConsumeContext, error) {
	cons, err := js.CreateOrUpdateConsumer(ctx, eventbroker.StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: eventbroker.SubjectEdgeToggled,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    10,
		BackOff:       []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	return cons.Consume(func(msg jetstream.Msg) {
		err := p.Handle(context.Background(), msg.Headers(), msg.Data())
		switch {
		case err == nil:
			_ = msg.Ack()
		case errors.Is(err, errPoison):
			_ = msg.Term()
		default:
			_ = msg.Nak()
		}
	})
}

// Handle traite un message : extraction du contexte de trace, décodage, ApplyEdge.
func (p *EdgeProjector) Handle(ctx context.Context, header nats.Header, data []byte) error {
	// 1. Le lien avec la requête HTTP qui a produit l'événement
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))

	ctx, span := otel.Tracer("atelier-graph-projection").Start(ctx, "process_edge_toggled",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var event eventbroker.EdgeToggledEvent
	if err := json.Unmarshal(data, &event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid payload")
		slog.ErrorContext(ctx, "❌ Invalid edge event format", "error", err)
		return fmt.Errorf("%w: %v", errPoison, err)
	}

	e := event.ToDomain()
	if _, err := e.Kind.Mirror(); err != nil || e.SubjectID == "" || e.ObjectID == "" {
		slog.ErrorContext(ctx, "❌ Invalid edge event", "edge", e.Edge.String())
		return fmt.Errorf("%w: invalid edge %s", errPoison, e.Edge)
	}
	span.SetAttributes(
		attribute.String("edge.kind", string(e.Kind)),
		attribute.Bool("edge.present", e.Present),
	)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.graph.ApplyEdge(ctx, e); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply edge failed")
		slog.WarnContext(ctx, "graph projection failed, message will be redelivered", "edge", e.Edge.String(), "error", err)
		return err
	}

	slog.DebugContext(ctx, "edge projected", "edge", e.Edge.String(), "present", e.Present)
	return nil
}
