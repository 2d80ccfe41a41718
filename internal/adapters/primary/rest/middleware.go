package rest

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jupiterclapton/atelier/internal/core/ports"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"
	IdempotencyTTL    = 24 * time.Hour
	// Le marqueur "en cours" expire vite : un crash ne bloque pas la clé au-delà d'une requête.
	IdempotencyPendingTTL = time.Minute
)

// Clé privée pour le contexte (évite les collisions)
type contextKey struct{ name string }

var principalCtxKey = &contextKey{"principal"}

// Authenticate décode le header Authorization. Sans header, la requête continue
// anonymement (routes publiques) ; un token présent mais invalide est refusé.
func Authenticate(validator ports.TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || validator == nil {
				writeProblem(w, http.StatusUnauthorized, "unauthenticated", "invalid token format")
				return
			}

			principal, err := validator.Validate(tokenStr)
			if err != nil {
				slog.DebugContext(r.Context(), "token rejected", "error", err)
				writeProblem(w, http.StatusUnauthorized, "unauthenticated", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), principalCtxKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext renvoie l'appelant authentifié, nil si anonyme.
func PrincipalFromContext(ctx context.Context) *ports.Principal {
	p, _ := ctx.Value(principalCtxKey).(*ports.Principal)
	return p
}

func callerID(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.UserID
	}
	return ""
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFromContext(r.Context()) == nil {
			writeProblem(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromContext(r.Context())
		if p == nil {
			writeProblem(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
			return
		}
		if !p.IsAdmin() {
			writeProblem(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// captureWriter garde une copie du statut et du corps pour l'idempotence.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// Idempotency rejoue la première réponse (< 500) d'un POST portant la même clé
// pour le même appelant et la même route. Un doublon concurrent reçoit 409.
func Idempotency(store ports.IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idemKey := r.Header.Get(IdempotencyHeader)
			if idemKey == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := idempotencyKey(r, idemKey)

			ok, err := store.Reserve(ctx, key, IdempotencyPendingTTL)
			if err != nil {
				// Sans le store, un toggle rejoué s'appliquerait deux fois : on refuse.
				slog.ErrorContext(ctx, "idempotency store unavailable", "error", err)
				writeProblem(w, http.StatusServiceUnavailable, "unavailable", "idempotency store unavailable")
				return
			}

			if !ok {
				stored, err := store.Load(ctx, key)
				if err != nil {
					slog.ErrorContext(ctx, "idempotency load failed", "error", err)
					writeProblem(w, http.StatusServiceUnavailable, "unavailable", "idempotency store unavailable")
					return
				}
				if stored == nil {
					writeProblem(w, http.StatusConflict, "in_flight", "a request with this idempotency key is in progress")
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			cw := &captureWriter{ResponseWriter: w}
			next.ServeHTTP(cw, r)

			// La requête a pu être annulée par le client : l'écriture du résultat ne doit pas l'être.
			bg := context.WithoutCancel(ctx)
			if cw.status == 0 || cw.status >= http.StatusInternalServerError {
				if err := store.Release(bg, key); err != nil {
					slog.WarnContext(ctx, "idempotency release failed", "error", err)
				}
				return
			}
			resp := ports.StoredResponse{Status: cw.status, Body: cw.body.Bytes()}
			if err := store.Save(bg, key, resp, IdempotencyTTL); err != nil {
				slog.WarnContext(ctx, "idempotency save failed", "error", err)
			}
		})
	}
}

// idempotencyKey inclut la query : ?asArtist change la cible de l'opération.
func idempotencyKey(r *http.Request, clientKey string) string {
	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	return callerID(r.Context()) + ":" + r.Method + ":" + target + ":" + clientKey
}
