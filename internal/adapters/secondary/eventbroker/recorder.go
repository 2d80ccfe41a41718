package eventbroker

import (
	"context"
	"sync"

	"github.com/jupiterclapton/atelier/internal/core/domain"
)

// Recorder garde les événements en mémoire : mode local sans NATS, et assertions de tests.
type Recorder struct {
	mu       sync.Mutex
	Edges    []domain.EdgeToggled
	Likes    []domain.LikeToggled
	Ratings  []domain.RatingUpserted
	Comments []domain.CommentAppended
	Flags    []domain.RepairFlag

	// Err, si non nil, est renvoyée par chaque publication (broker indisponible).
	Err error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) PublishEdgeToggled(_ context.Context, e domain.EdgeToggled) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Edges = append(r.Edges, e)
	return nil
}

func (r *Recorder) PublishLikeToggled(_ context.Context, e domain.LikeToggled) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Likes = append(r.Likes, e)
	return nil
}

func (r *Recorder) PublishRatingUpserted(_ context.Context, e domain.RatingUpserted) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Ratings = append(r.Ratings, e)
	return nil
}

func (r *Recorder) PublishCommentAppended(_ context.Context, e domain.CommentAppended) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Comments = append(r.Comments, e)
	return nil
}

func (r *Recorder) PublishRepairFlagged(_ context.Context, f domain.RepairFlag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Flags = append(r.Flags, f)
	return nil
}

// EdgeEvents renvoie une copie (lecture concurrente sûre).
func (r *Recorder) EdgeEvents() []domain.EdgeToggled {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.EdgeToggled(nil), r.Edges...)
}

func (r *Recorder) FlagEvents() []domain.RepairFlag {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RepairFlag(nil), r.Flags...)
}
