package services

import (
	"testing"
	"time"

	"github.com/jupiterclapton/atelier/internal/adapters/secondary/eventbroker"
	"github.com/jupiterclapton/atelier/internal/adapters/secondary/repository"
	"github.com/jupiterclapton/atelier/internal/adapters/secondary/telemetry"
	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
)

type fixture struct {
	store     *repository.MemoryStore
	publisher *eventbroker.Recorder
	metrics   *telemetry.Metrics
	rel       *RelationshipService
	eng       *EngagementService
	repair    *RepairService
}

// newFixture : p1, p2, p3 ; a1 possédé par p2, a2 possédé par p3 ; w1 oeuvre de a1.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := repository.NewMemoryStore()
	for _, id := range []string{"p1", "p2", "p3"} {
		store.PutPerson(domain.NewPerson(id))
	}
	store.PutArtist(domain.NewArtist("a1", "p2"))
	store.PutArtist(domain.NewArtist("a2", "p3"))
	store.PutArtwork(domain.NewArtwork("w1", "a1"))

	pub := eventbroker.NewRecorder()
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	policy := MirrorPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

	return &fixture{
		store:     store,
		publisher: pub,
		metrics:   metrics,
		rel:       NewRelationshipService(store, store, pub, nil, metrics, policy),
		eng:       NewEngagementService(store, pub, metrics),
		repair:    NewRepairService(store, store, metrics, 2),
	}
}
