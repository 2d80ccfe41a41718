package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleLike_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.eng.ToggleLike(ctx, "p1", "w1")
	require.NoError(t, err)
	assert.Equal(t, domain.LikeResult{Liked: true, LikesCount: 1}, *res)

	res, err = f.eng.ToggleLike(ctx, "p1", "w1")
	require.NoError(t, err)
	assert.Equal(t, domain.LikeResult{Liked: false, LikesCount: 0}, *res)

	assert.Len(t, f.publisher.Likes, 2)
}

func TestToggleLike_DoubleClickNeverDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.eng.ToggleLike(ctx, "p1", "w1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w1, err := f.store.GetArtwork(ctx, "w1")
	require.NoError(t, err)
	normalized, changed := w1.Likes.Normalized()
	assert.False(t, changed, "likes must never hold a duplicate")
	assert.LessOrEqual(t, normalized.Len(), 1)
}

func TestToggleLike_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.eng.ToggleLike(ctx, "p1", "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.eng.ToggleLike(ctx, "ghost", "w1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.eng.ToggleLike(ctx, "", "w1")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestUpsertRating_ReplacesPreviousValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.eng.UpsertRating(ctx, "p1", "w1", 4)
	require.NoError(t, err)
	summary, err := f.eng.UpsertRating(ctx, "p1", "w1", 2)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Count)
	assert.Equal(t, 2.0, summary.Average)

	w1, _ := f.store.GetArtwork(ctx, "w1")
	require.Len(t, w1.Ratings, 1)
	assert.Equal(t, 2, w1.Ratings[0].Value)
}

func TestUpsertRating_AverageAcrossRaters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for rater, v := range map[string]int{"p1": 5, "p2": 4, "p3": 4} {
		_, err := f.eng.UpsertRating(ctx, rater, "w1", v)
		require.NoError(t, err)
	}

	w1, _ := f.store.GetArtwork(ctx, "w1")
	assert.Equal(t, 4.3, w1.Ratings.Average())
}

func TestUpsertRating_RejectsOutOfRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, v := range []int{0, 6} {
		_, err := f.eng.UpsertRating(ctx, "p1", "w1", v)
		assert.ErrorIs(t, err, domain.ErrInvalidRatingValue)
	}

	w1, _ := f.store.GetArtwork(ctx, "w1")
	assert.Empty(t, w1.Ratings)
}

func TestRateArtist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	summary, err := f.eng.RateArtist(ctx, "p1", "a1", 5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, summary.Average)

	_, err = f.eng.RateArtist(ctx, "p2", "a1", 5)
	assert.ErrorIs(t, err, domain.ErrSelfEdge)

	a1, _ := f.store.GetArtist(ctx, "a1")
	assert.Len(t, a1.Ratings, 1)
	require.Len(t, f.publisher.Ratings, 1)
	assert.Equal(t, domain.CollectionArtists, f.publisher.Ratings[0].Target.Collection)
}

func TestAppendComment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	w, err := f.eng.AppendComment(ctx, "p1", "w1", "  lovely palette ")
	require.NoError(t, err)
	require.Len(t, w.Comments, 1)
	c := w.Comments[0]
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "p1", c.AuthorID)
	assert.Equal(t, "lovely palette", c.Text)
	assert.False(t, c.CreatedAt.IsZero())

	w, err = f.eng.AppendComment(ctx, "p2", "w1", "thanks")
	require.NoError(t, err)
	require.Len(t, w.Comments, 2)
	assert.Equal(t, "p2", w.Comments[1].AuthorID)
	assert.Len(t, f.publisher.Comments, 2)

	full := strings.Repeat("x", domain.MaxCommentLength)
	w, err = f.eng.AppendComment(ctx, "p3", "w1", " "+full+" ")
	require.NoError(t, err)
	assert.Equal(t, full, w.Comments[2].Text)
}

func TestAppendComment_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.eng.AppendComment(ctx, "p1", "w1", "   ")
	assert.ErrorIs(t, err, domain.ErrEmptyComment)

	_, err = f.eng.AppendComment(ctx, "p1", "w1", strings.Repeat("x", domain.MaxCommentLength+1))
	assert.ErrorIs(t, err, domain.ErrCommentTooLong)

	_, err = f.eng.AppendComment(ctx, "p1", "ghost", "hello")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	w1, _ := f.store.GetArtwork(ctx, "w1")
	assert.Empty(t, w1.Comments)
}
