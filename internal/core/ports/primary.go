package ports

import (
	"context"

	"github.com/jupiterclapton/atelier/internal/core/domain"
)

// --- INPUTS (Command Pattern) ---

// ToggleEdgeCmd : ActorID est l'appelant authentifié, SubjectID le document qui suit.
// Pour les arêtes person_*, ActorID == SubjectID ; pour artist_artist l'acteur possède l'artiste sujet.
type ToggleEdgeCmd struct {
	ActorID   string
	SubjectID string
	ObjectID  string
	Kind      domain.EdgeKind
}

type ListMembersQuery struct {
	Doc    domain.DocRef
	Field  domain.SetField
	Cursor string
	Limit  int
}

// --- PORTS PRIMAIRES (Driving) ---

// RelationshipService est le Relationship Graph Manager.
type RelationshipService interface {
	ToggleEdge(ctx context.Context, cmd ToggleEdgeCmd) (*domain.EdgeResult, error)
	ListMembers(ctx context.Context, q ListMembersQuery) (*domain.Page, error)
	CheckRelation(ctx context.Context, actorID, targetID string) (*domain.RelationStatus, error)
}

// EngagementService est l'Engagement Ledger.
type EngagementService interface {
	ToggleLike(ctx context.Context, raterID, artworkID string) (*domain.LikeResult, error)
	UpsertRating(ctx context.Context, raterID, artworkID string, value int) (*domain.RatingSummary, error)
	RateArtist(ctx context.Context, raterID, artistID string, value int) (*domain.RatingSummary, error)
	AppendComment(ctx context.Context, authorID, artworkID, text string) (*domain.Artwork, error)
}

// RepairService est le filet de sécurité (batch idempotent).
type RepairService interface {
	RepairRelationships(ctx context.Context) (*domain.RepairReport, error)
}
