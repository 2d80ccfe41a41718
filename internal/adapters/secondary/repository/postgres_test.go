package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/jupiterclapton/atelier/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPostgresStore : tests d'intégration, lancés seulement si TEST_DATABASE_URL est défini.
func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := NewPostgresStore(pool)
	require.NoError(t, s.EnsureSchema(ctx))
	return s
}

// Ids uniques par test : la base n'est pas vidée entre deux exécutions.
func uid(prefix string) string { return prefix + "-" + uuid.NewString()[:8] }

func TestPostgresStore_SetOperations(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	artist := uid("a")
	// Document "legacy" : conteneurs NULL
	require.NoError(t, s.SaveArtist(ctx, &domain.Artist{ID: artist, OwnerID: uid("owner")}))

	err := s.Mutate(ctx, func(ctx context.Context, m ports.Mutator) error {
		changed, err := m.AddToSet(ctx, followersOf(artist), "p1")
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = m.AddToSet(ctx, followersOf(artist), "p1")
		require.NoError(t, err)
		assert.False(t, changed, "add-if-absent")

		_, err = m.AddToSet(ctx, followersOf(artist), "p2")
		require.NoError(t, err)

		n, err := m.Cardinality(ctx, followersOf(artist))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		return nil
	})
	require.NoError(t, err)

	items, total, err := s.Members(ctx, followersOf(artist), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, items)
	assert.Equal(t, 2, total)

	err = s.Mutate(ctx, func(ctx context.Context, m ports.Mutator) error {
		_, err := m.AddToSet(ctx, followersOf(uid("ghost")), "p1")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresStore_MutateRollsBack(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	artist := uid("a")
	require.NoError(t, s.SaveArtist(ctx, domain.NewArtist(artist, uid("owner"))))

	boom := errors.New("boom")
	err := s.Mutate(ctx, func(ctx context.Context, m ports.Mutator) error {
		_, err := m.LockArtist(ctx, artist)
		require.NoError(t, err)
		_, err = m.AddToSet(ctx, followersOf(artist), "p1")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	a, err := s.GetArtist(ctx, artist)
	require.NoError(t, err)
	assert.Empty(t, a.Followers, "the whole unit of work is rolled back")
}

func TestPostgresStore_RatingsAndComments(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	artwork := uid("w")
	require.NoError(t, s.SaveArtwork(ctx, domain.NewArtwork(artwork, uid("a"))))

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	err := s.Mutate(ctx, func(ctx context.Context, m ports.Mutator) error {
		ref := domain.DocRef{Collection: domain.CollectionArtworks, ID: artwork}
		if err := m.PutRatings(ctx, ref, domain.Ratings{{RaterID: "p1", Value: 4, RatedAt: at}}); err != nil {
			return err
		}
		for _, text := range []string{"bravo", "bravo"} {
			if err := m.AppendComment(ctx, artwork, domain.Comment{ID: uuid.NewString(), AuthorID: "p1", Text: text, CreatedAt: at}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	w, err := s.GetArtwork(ctx, artwork)
	require.NoError(t, err)
	require.Len(t, w.Ratings, 1)
	assert.Equal(t, 4, w.Ratings[0].Value)
	require.Len(t, w.Comments, 2, "identical submissions are distinct entries")
	assert.NotEqual(t, w.Comments[0].ID, w.Comments[1].ID)
}

func TestPostgresStore_Journal(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()

	flag := domain.RepairFlag{
		ID:        uuid.NewString(),
		Edge:      domain.Edge{Kind: domain.EdgePersonArtist, SubjectID: uid("p"), ObjectID: uid("a")},
		Reason:    "mirror write failed",
		FlaggedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Flag(ctx, flag))

	pending, err := s.Pending(ctx, 10000)
	require.NoError(t, err)
	assert.True(t, containsFlag(pending, flag.ID))

	require.NoError(t, s.Resolve(ctx, []string{flag.ID}))
	pending, err = s.Pending(ctx, 10000)
	require.NoError(t, err)
	assert.False(t, containsFlag(pending, flag.ID))
}

func containsFlag(flags []domain.RepairFlag, id string) bool {
	for _, f := range flags {
		if f.ID == id {
			return true
		}
	}
	return false
}

func TestDecodeJSONContainers(t *testing.T) {
	tests := []struct {
		name         string
		raw          []byte
		wantAbsent   bool
		wantElements int
	}{
		{"sql null", nil, true, 0},
		{"json null", []byte(`null`), true, 0},
		{"object", []byte(`{}`), true, 0},
		{"scalar", []byte(`"x"`), true, 0},
		{"empty array", []byte(`[]`), false, 0},
		{"null elements skipped", []byte(` [null, {"raterId":"p1","value":3}]`), false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ratings, err := unmarshalRatings(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAbsent, ratings == nil)
			assert.Len(t, ratings, tt.wantElements)

			comments, err := unmarshalComments(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAbsent, comments == nil)
			assert.Len(t, comments, tt.wantElements)
		})
	}
}
