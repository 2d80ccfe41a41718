package rest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/jupiterclapton/atelier/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options regroupe les dépendances transverses du routeur. Les champs nil désactivent la fonctionnalité.
type Options struct {
	Tokens             ports.TokenValidator
	Idempotency        ports.IdempotencyStore
	Gatherer           prometheus.Gatherer
	RateLimitPerMinute int
	CORSOrigins        []string
}

type Server struct {
	relationships ports.RelationshipService
	engagement    ports.EngagementService
	repairs       ports.RepairService
	opts          Options
	validate      *validator.Validate
}

func NewServer(rel ports.RelationshipService, eng ports.EngagementService, repairs ports.RepairService, opts Options) *Server {
	return &Server{
		relationships: rel,
		engagement:    eng,
		repairs:       repairs,
		opts:          opts,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Handler construit la chaîne complète : OTEL (racine) -> CORS -> chi.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(Authenticate(s.opts.Tokens))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	// Lectures publiques
	r.Get("/artists/{artistId}/{list}", s.listArtistMembers)
	r.Get("/users/{userId}/{list}", s.listPersonMembers)

	// Routes authentifiées
	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/users/{userId}/relation", s.relation)

		r.Group(func(r chi.Router) {
			if s.opts.RateLimitPerMinute > 0 {
				r.Use(httprate.LimitByIP(s.opts.RateLimitPerMinute, time.Minute))
			}
			r.Use(Idempotency(s.opts.Idempotency))

			r.Post("/artists/{artistId}/follow", s.followArtist)
			r.Post("/artists/{artistId}/rate", s.rateArtist)
			r.Post("/users/{userId}/follow", s.followPerson)
			r.Post("/artworks/{artworkId}/like", s.toggleLike)
			r.Post("/artworks/{artworkId}/rate", s.rateArtwork)
			r.Post("/artworks/{artworkId}/comment", s.appendComment)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Post("/admin/repair", s.repair)
	})

	var h http.Handler = r

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	h = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", IdempotencyHeader, "traceparent", "baggage"},
		ExposedHeaders: []string{ReplayedHeader},
	}).Handler(h)

	return otelhttp.NewHandler(h, "atelier-http", otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
		return fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path)
	}))
}
