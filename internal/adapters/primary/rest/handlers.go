package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/jupiterclapton/atelier/internal/core/ports"
)

const maxBodyBytes = 64 << 10

// --- REQUÊTES ---

type rateRequest struct {
	Value *int `json:"value" validate:"required"`
}

type commentRequest struct {
	Text string `json:"text"`
}

// --- RÉPONSES ---

type edgeResponse struct {
	IsFollowing    bool `json:"isFollowing"`
	FollowersCount int  `json:"followersCount"`
	FollowingCount int  `json:"followingCount"`
}

type likeResponse struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likesCount"`
}

type ratingResponse struct {
	RaterID string    `json:"raterId"`
	Value   int       `json:"value"`
	RatedAt time.Time `json:"ratedAt"`
}

type ratingSummaryResponse struct {
	Count   int              `json:"count"`
	Ratings []ratingResponse `json:"ratings"`
	Average float64          `json:"average"`
}

type commentResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type artworkResponse struct {
	ID            string            `json:"id"`
	ArtistID      string            `json:"artistId"`
	LikesCount    int               `json:"likesCount"`
	RatingsCount  int               `json:"ratingsCount"`
	AverageRating float64           `json:"averageRating"`
	Comments      []commentResponse `json:"comments"`
}

type pageResponse struct {
	Items      []string `json:"items"`
	NextCursor string   `json:"nextCursor,omitempty"`
	Total      int      `json:"total"`
}

type relationResponse struct {
	IsFollowing  bool `json:"isFollowing"`
	IsFollowedBy bool `json:"isFollowedBy"`
}

type repairResponse struct {
	DocumentsNormalized int `json:"documentsNormalized"`
	EdgesRestored       int `json:"edgesRestored"`
	EdgesRemoved        int `json:"edgesRemoved"`
	SelfEdgesRemoved    int `json:"selfEdgesRemoved"`
	FlagsResolved       int `json:"flagsResolved"`
}

// Conteneurs exposés en lecture, par segment d'URL.
var (
	artistLists = map[string]domain.SetField{
		"followers":           domain.FieldFollowers,
		"following":           domain.FieldFollowing,
		"followed-by-artists": domain.FieldFollowedByArtists,
	}
	personLists = map[string]domain.SetField{
		"followers":         domain.FieldFollowers,
		"following":         domain.FieldFollowing,
		"following-artists": domain.FieldFollowingArtists,
	}
)

// --- RELATIONS ---

// followArtist : person -> artist, ou artist -> artist avec ?asArtist={id}.
func (s *Server) followArtist(w http.ResponseWriter, r *http.Request) {
	artistID := chi.URLParam(r, "artistId")
	cmd := ports.ToggleEdgeCmd{
		ActorID:   callerID(r.Context()),
		SubjectID: callerID(r.Context()),
		ObjectID:  artistID,
		Kind:      domain.EdgePersonArtist,
	}
	if asArtist := r.URL.Query().Get("asArtist"); asArtist != "" {
		cmd.SubjectID = asArtist
		cmd.Kind = domain.EdgeArtistArtist
	}
	s.toggleEdge(w, r, cmd)
}

func (s *Server) followPerson(w http.ResponseWriter, r *http.Request) {
	s.toggleEdge(w, r, ports.ToggleEdgeCmd{
		ActorID:   callerID(r.Context()),
		SubjectID: callerID(r.Context()),
		ObjectID:  chi.URLParam(r, "userId"),
		Kind:      domain.EdgePersonPerson,
	})
}

func (s *Server) toggleEdge(w http.ResponseWriter, r *http.Request, cmd ports.ToggleEdgeCmd) {
	if err := s.validateIDs(cmd.SubjectID, cmd.ObjectID); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.relationships.ToggleEdge(r.Context(), cmd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, edgeResponse{
		IsFollowing:    res.IsPresent,
		FollowersCount: res.ObjectCount,
		FollowingCount: res.SubjectCount,
	})
}

func (s *Server) listArtistMembers(w http.ResponseWriter, r *http.Request) {
	s.listMembers(w, r, domain.CollectionArtists, chi.URLParam(r, "artistId"), artistLists)
}

func (s *Server) listPersonMembers(w http.ResponseWriter, r *http.Request) {
	s.listMembers(w, r, domain.CollectionPersons, chi.URLParam(r, "userId"), personLists)
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request, c domain.Collection, id string, fields map[string]domain.SetField) {
	field, ok := fields[chi.URLParam(r, "list")]
	if !ok {
		writeProblem(w, http.StatusNotFound, "not_found", "unknown list")
		return
	}
	if err := s.validateIDs(id); err != nil {
		s.writeError(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeProblem(w, http.StatusBadRequest, "invalid_argument", "limit must be a positive integer")
			return
		}
		limit = n
	}

	page, err := s.relationships.ListMembers(r.Context(), ports.ListMembersQuery{
		Doc:    domain.DocRef{Collection: c, ID: id},
		Field:  field,
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items := page.Items
	if items == nil {
		items = []string{}
	}
	writeJSON(w, http.StatusOK, pageResponse{Items: items, NextCursor: page.NextCursor, Total: page.Total})
}

func (s *Server) relation(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "userId")
	if err := s.validateIDs(targetID); err != nil {
		s.writeError(w, r, err)
		return
	}

	status, err := s.relationships.CheckRelation(r.Context(), callerID(r.Context()), targetID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, relationResponse{IsFollowing: status.IsFollowing, IsFollowedBy: status.IsFollowedBy})
}

// --- ENGAGEMENT ---

func (s *Server) toggleLike(w http.ResponseWriter, r *http.Request) {
	artworkID := chi.URLParam(r, "artworkId")
	if err := s.validateIDs(artworkID); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.engagement.ToggleLike(r.Context(), callerID(r.Context()), artworkID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, likeResponse{Liked: res.Liked, LikesCount: res.LikesCount})
}

func (s *Server) rateArtwork(w http.ResponseWriter, r *http.Request) {
	s.rate(w, r, chi.URLParam(r, "artworkId"), s.engagement.UpsertRating)
}

func (s *Server) rateArtist(w http.ResponseWriter, r *http.Request) {
	s.rate(w, r, chi.URLParam(r, "artistId"), s.engagement.RateArtist)
}

type rateFunc func(ctx context.Context, raterID, targetID string, value int) (*domain.RatingSummary, error)

func (s *Server) rate(w http.ResponseWriter, r *http.Request, targetID string, fn rateFunc) {
	if err := s.validateIDs(targetID); err != nil {
		s.writeError(w, r, err)
		return
	}

	var req rateRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	summary, err := fn(r.Context(), callerID(r.Context()), targetID, *req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRatingSummaryResponse(summary))
}

func (s *Server) appendComment(w http.ResponseWriter, r *http.Request) {
	artworkID := chi.URLParam(r, "artworkId")
	if err := s.validateIDs(artworkID); err != nil {
		s.writeError(w, r, err)
		return
	}

	var req commentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	artwork, err := s.engagement.AppendComment(r.Context(), callerID(r.Context()), artworkID, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toArtworkResponse(artwork))
}

// --- ADMIN ---

func (s *Server) repair(w http.ResponseWriter, r *http.Request) {
	report, err := s.repairs.RepairRelationships(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repairResponse{
		DocumentsNormalized: report.DocumentsNormalized,
		EdgesRestored:       report.EdgesRestored,
		EdgesRemoved:        report.EdgesRemoved,
		SelfEdgesRemoved:    report.SelfEdgesRemoved,
		FlagsResolved:       report.FlagsResolved,
	})
}

// --- HELPERS ---

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", domain.ErrInvalidArgument)
		}
		return fmt.Errorf("%w: malformed JSON: %v", domain.ErrInvalidArgument, err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

// validateIDs filtre les identifiants de chemin avant d'atteindre le store.
func (s *Server) validateIDs(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			continue // le service renvoie la bonne erreur (401 ou 400)
		}
		if err := s.validate.Var(id, "printascii,max=128"); err != nil {
			return fmt.Errorf("%w: invalid id %q", domain.ErrInvalidArgument, id)
		}
	}
	return nil
}

func toRatingSummaryResponse(s *domain.RatingSummary) ratingSummaryResponse {
	out := ratingSummaryResponse{Count: s.Count, Average: s.Average, Ratings: make([]ratingResponse, 0, len(s.Ratings))}
	for _, v := range s.Ratings {
		out.Ratings = append(out.Ratings, ratingResponse{RaterID: v.RaterID, Value: v.Value, RatedAt: v.RatedAt})
	}
	return out
}

func toArtworkResponse(a *domain.Artwork) artworkResponse {
	out := artworkResponse{
		ID:            a.ID,
		ArtistID:      a.ArtistID,
		LikesCount:    a.Likes.Len(),
		RatingsCount:  len(a.Ratings),
		AverageRating: a.Ratings.Average(),
		Comments:      make([]commentResponse, 0, len(a.Comments)),
	}
	for _, c := range a.Comments {
		out.Comments = append(out.Comments, commentResponse{ID: c.ID, AuthorID: c.AuthorID, Text: c.Text, CreatedAt: c.CreatedAt})
	}
	return out
}
