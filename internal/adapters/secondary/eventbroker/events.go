package eventbroker

import (
	"time"

	"github.com/jupiterclapton/atelier/internal/core/domain"
)

// Payloads publiés sur le stream ENGAGEMENT (contrat avec les consommateurs).

type EdgeToggledEvent struct {
	Kind      string    `json:"kind"`
	SubjectID string    `json:"subject_id"`
	ObjectID  string    `json:"object_id"`
	Present   bool      `json:"present"`
	At        time.Time `json:"at"`
}

func NewEdgeToggledEvent(e domain.EdgeToggled) EdgeToggledEvent {
	return EdgeToggledEvent{
		Kind:      string(e.Kind),
		SubjectID: e.SubjectID,
		ObjectID:  e.ObjectID,
		Present:   e.Present,
		At:        e.At,
	}
}

func (e EdgeToggledEvent) ToDomain() domain.EdgeToggled {
	return domain.EdgeToggled{
		Edge:    domain.Edge{Kind: domain.EdgeKind(e.Kind), SubjectID: e.SubjectID, ObjectID: e.ObjectID},
		Present: e.Present,
		At:      e.At,
	}
}

type LikeToggledEvent struct {
	ArtworkID string    `json:"artwork_id"`
	RaterID   string    `json:"rater_id"`
	Liked     bool      `json:"liked"`
	Count     int       `json:"count"`
	At        time.Time `json:"at"`
}

type RatingUpsertedEvent struct {
	Collection string    `json:"collection"`
	TargetID   string    `json:"target_id"`
	RaterID    string    `json:"rater_id"`
	Value      int       `json:"value"`
	Average    float64   `json:"average"`
	At         time.Time `json:"at"`
}

type CommentAppendedEvent struct {
	ArtworkID string    `json:"artwork_id"`
	CommentID string    `json:"comment_id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type RepairFlaggedEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	SubjectID string    `json:"subject_id"`
	ObjectID  string    `json:"object_id"`
	Reason    string    `json:"reason"`
	FlaggedAt time.Time `json:"flagged_at"`
}
