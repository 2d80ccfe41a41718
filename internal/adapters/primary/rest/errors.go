package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jupiterclapton/atelier/internal/core/domain"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Mapping erreurs domaine -> HTTP. L'ordre compte : ErrPartialWrite est vérifié avant le reste.
var errorMap = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrPartialWrite, http.StatusInternalServerError, "partial_write"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrSelfEdge, http.StatusConflict, "self_edge"},
	{domain.ErrInvalidRatingValue, http.StatusBadRequest, "invalid_rating"},
	{domain.ErrEmptyComment, http.StatusBadRequest, "empty_comment"},
	{domain.ErrCommentTooLong, http.StatusBadRequest, "comment_too_long"},
	{domain.ErrInvalidEdgeKind, http.StatusBadRequest, "invalid_edge_kind"},
	{domain.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{domain.ErrUnauthorized, http.StatusForbidden, "forbidden"},
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMap {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
			}
			writeJSON(w, m.status, errorBody{Error: m.code, Message: err.Error()})
			return
		}
	}

	// Le détail des erreurs d'infrastructure reste dans les logs.
	slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal server error"})
}

func writeProblem(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
