package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/jupiterclapton/atelier/internal/core/ports"
)

// EngagementService implémente ports.EngagementService (likes, notes, commentaires).
type EngagementService struct {
	store     ports.ProfileStore
	publisher ports.EventPublisher
	metrics   ports.Metrics
	now       func() time.Time
}

func NewEngagementService(store ports.ProfileStore, pub ports.EventPublisher, metrics ports.Metrics) *EngagementService {
	return &EngagementService{
		store:     store,
		publisher: pub,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// requirePerson vérifie que l'auteur de l'engagement existe, hors unité de travail.
func (s *EngagementService) requirePerson(ctx context.Context, personID string) error {
	if personID == "" {
		return domain.ErrUnauthenticated
	}
	if _, err := s.store.GetPerson(ctx, personID); err != nil {
		return fmt.Errorf("person %s: %w", personID, err)
	}
	return nil
}

func (s *EngagementService) ToggleLike(ctx context.Context, raterID, artworkID string) (*domain.LikeResult, error) {
	if artworkID == "" {
		return nil, fmt.Errorf("%w: artwork id cannot be empty", domain.ErrInvalidArgument)
	}
	if err := s.requirePerson(ctx, raterID); err != nil {
		return nil, err
	}

	var (
		result domain.LikeResult
		at     time.Time
	)
	err := s.store.Mutate(ctx, func(ctx context.Context, m ports.Mutator) error {
		artwork, err := m.LockArtwork(ctx, artworkID)
		if err != nil {
			return err
		}
		at = s.now()
		ref := domain.SetRef{Doc: artwork.Ref(), Field: domain.FieldLikes}

		liked := !artwork.Likes.Contains(raterID)
		if _, err := applyMembership(ctx, m, ref, raterID, liked); err != nil {
			return err
		}

		result.Liked = liked
		result.LikesCount, err = m.Cardinality(ctx, ref)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.LikeToggled(result.Liked)

	evt := domain.LikeToggled{ArtworkID: artworkID, RaterID: raterID, Liked: result.Liked, Count: result.LikesCount, At: at}
	if err := s.publisher.PublishLikeToggled(ctx, evt); err != nil {
		slog.WarnContext(ctx, "failed to publish like toggled", "artwork_id", artworkID, "error", err)
	}
	return &result, nil
}

func (s *EngagementService) UpsertRating(ctx context.Context, raterID, artworkID string, value int) (*domain.RatingSummary, error) {
	if err := domain.ValidateRating(value); err != nil {
		return nil, err
	}
	if artworkID == "" {
		return nil, fmt.Errorf("%w: artwork id cannot be empty", domain.ErrInvalidArgument)
	}
	if err := s.requirePerson(ctx, raterID); err != nil {
		return nil, err
	}

	return s.rate(ctx, domain.DocRef{Collection: domain.CollectionArtworks, ID: artworkID}, raterID, value,
		func(ctx context.Context, m ports.Mutator) (domain.Ratings, error) {
			artwork, err := m.LockArtwork(ctx, artworkID)
			if err != nil {
				return nil, err
			}
			return artwork.Ratings, nil
		})
}

// RateArtist : même mécanique que pour une oeuvre ; le propriétaire ne peut pas noter son propre artiste.
func (s *EngagementService) RateArtist(ctx context.Context, raterID, artistID string, value int) (*domain.RatingSummary, error) {
	if err := domain.ValidateRating(value); err != nil {
		return nil, err
	}
	if artistID == "" {
		return nil, fmt.Errorf("%w: artist id cannot be empty", domain.ErrInvalidArgument)
	}
	if err := s.requirePerson(ctx, raterID); err != nil {
		return nil, err
	}

	return s.rate(ctx, domain.DocRef{Collection: domain.CollectionArtists, ID: artistID}, raterID, value,
		func(ctx context.Context, m ports.Mutator) (domain.Ratings, error) {
			artist, err := m.LockArtist(ctx, artistID)
			if err != nil {
				return nil, err
			}
			if artist.OwnerID == raterID {
				return nil, domain.ErrSelfEdge
			}
			return artist.Ratings, nil
		})
}

// rate applique le find-or-append sur la liste verrouillée puis la réécrit.
func (s *EngagementService) rate(
	ctx context.Context,
	target domain.DocRef,
	raterID string,
	value int,
	load func(ctx context.Context, m ports.Mutator) (domain.Ratings, error),
) (*domain.RatingSummary, error) {
	var (
		summary domain.RatingSummary
		now     time.Time
	)
	err := s.store.Mutate(ctx, func(ctx context.Context, m ports.Mutator) error {
		ratings, err := load(ctx, m)
		if err != nil {
			return err
		}
		now = s.now()
		ratings.Upsert(domain.Rating{RaterID: raterID, Value: value, RatedAt: now})
		if err := m.PutRatings(ctx, target, ratings); err != nil {
			return err
		}
		summary = ratings.Summary()
		return nil
	})
	if err != nil {
		return nil, err
	}

	evt := domain.RatingUpserted{Target: target, RaterID: raterID, Value: value, Average: summary.Average, At: now}
	if err := s.publisher.PublishRatingUpserted(ctx, evt); err != nil {
		slog.WarnContext(ctx, "failed to publish rating upserted", "target", target.String(), "error", err)
	}
	return &summary, nil
}

func (s *EngagementService) AppendComment(ctx context.Context, authorID, artworkID, text string) (*domain.Artwork, error) {
	if err := domain.ValidateCommentText(text); err != nil {
		return nil, err
	}
	if artworkID == "" {
		return nil, fmt.Errorf("%w: artwork id cannot be empty", domain.ErrInvalidArgument)
	}
	if err := s.requirePerson(ctx, authorID); err != nil {
		return nil, err
	}

	comment := domain.Comment{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Text:      strings.TrimSpace(text),
		CreatedAt: s.now(),
	}

	var artwork *domain.Artwork
	err := s.store.Mutate(ctx, func(ctx context.Context, m ports.Mutator) error {
		w, err := m.LockArtwork(ctx, artworkID)
		if err != nil {
			return err
		}
		if err := m.AppendComment(ctx, artworkID, comment); err != nil {
			return err
		}
		w.Comments = append(w.Comments, comment)
		artwork = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.publisher.PublishCommentAppended(ctx, domain.CommentAppended{ArtworkID: artworkID, Comment: comment}); err != nil {
		slog.WarnContext(ctx, "failed to publish comment appended", "artwork_id", artworkID, "error", err)
	}
	return artwork, nil
}
