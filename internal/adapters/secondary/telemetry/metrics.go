package telemetry

import (
	"strconv"

	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implémente ports.Metrics avec Prometheus.
// Un Registerer par instance : les tests utilisent prometheus.NewRegistry().
type Metrics struct {
	edgeToggles   *prometheus.CounterVec
	likeToggles   *prometheus.CounterVec
	partialWrites *prometheus.CounterVec
	repairRuns    prometheus.Counter
	repairChanges *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		edgeToggles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "engagement_edge_toggles_total",
			Help: "Follow edges toggled, by kind and resulting state",
		}, []string{"kind", "present"}),
		likeToggles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "engagement_like_toggles_total",
			Help: "Artwork likes toggled, by resulting state",
		}, []string{"liked"}),
		partialWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "engagement_partial_writes_total",
			Help: "Mirror writes that failed after all retries and were flagged for repair",
		}, []string{"kind"}),
		repairRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "engagement_repair_runs_total",
			Help: "Completed relationship repair runs",
		}),
		repairChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "engagement_repair_changes_total",
			Help: "Changes applied by the relationship repair, by type",
		}, []string{"type"}),
	}
}

func (m *Metrics) EdgeToggled(kind domain.EdgeKind, present bool) {
	m.edgeToggles.WithLabelValues(string(kind), strconv.FormatBool(present)).Inc()
}

func (m *Metrics) LikeToggled(liked bool) {
	m.likeToggles.WithLabelValues(strconv.FormatBool(liked)).Inc()
}

func (m *Metrics) PartialWrite(kind domain.EdgeKind) {
	m.partialWrites.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) RepairCompleted(r domain.RepairReport) {
	m.repairRuns.Inc()
	m.repairChanges.WithLabelValues("documents_normalized").Add(float64(r.DocumentsNormalized))
	m.repairChanges.WithLabelValues("edges_restored").Add(float64(r.EdgesRestored))
	m.repairChanges.WithLabelValues("edges_removed").Add(float64(r.EdgesRemoved))
	m.repairChanges.WithLabelValues("self_edges_removed").Add(float64(r.SelfEdgesRemoved))
	m.repairChanges.WithLabelValues("flags_resolved").Add(float64(r.FlagsResolved))
}
