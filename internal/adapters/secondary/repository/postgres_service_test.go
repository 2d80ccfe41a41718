package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jupiterclapton/atelier/internal/adapters/secondary/eventbroker"
	"github.com/jupiterclapton/atelier/internal/adapters/secondary/telemetry"
	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/jupiterclapton/atelier/internal/core/ports"
	"github.com/jupiterclapton/atelier/internal/core/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Services branchés sur Postgres : mêmes scénarios que sur le store mémoire, avec de vraies
// transactions. Lancés seulement si TEST_DATABASE_URL est défini.

// faultyStore fait échouer côté SQL (division par zéro, dans le savepoint) les ajouts sur les artistes.
// failures < 0 : toujours.
type faultyStore struct {
	*PostgresStore
	failures atomic.Int32
}

func (s *faultyStore) Mutate(ctx context.Context, fn func(ctx context.Context, m ports.Mutator) error) error {
	return s.PostgresStore.Mutate(ctx, func(ctx context.Context, m ports.Mutator) error {
		return fn(ctx, &faultyMutator{pgMutator: m.(*pgMutator), store: s})
	})
}

type faultyMutator struct {
	*pgMutator
	store *faultyStore
}

func (m *faultyMutator) AddToSet(ctx context.Context, ref domain.SetRef, member string) (bool, error) {
	if ref.Doc.Collection == domain.CollectionArtists && m.store.fail() {
		return m.setExec(ctx, ref, "artists", `SELECT $1::text, $2::text, 1/0`, member)
	}
	return m.pgMutator.AddToSet(ctx, ref, member)
}

func (s *faultyStore) fail() bool {
	for {
		n := s.failures.Load()
		if n == 0 {
			return false
		}
		if n < 0 || s.failures.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

type pgServices struct {
	store  *faultyStore
	rel    *services.RelationshipService
	repair *services.RepairService
	pub    *eventbroker.Recorder
}

func newPostgresServices(t *testing.T) *pgServices {
	t.Helper()
	store := &faultyStore{PostgresStore: newPostgresStore(t)}
	pub := eventbroker.NewRecorder()
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	policy := services.MirrorPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

	return &pgServices{
		store:  store,
		rel:    services.NewRelationshipService(store, store, pub, nil, metrics, policy),
		repair: services.NewRepairService(store, store, metrics, 50),
		pub:    pub,
	}
}

// seedPair crée une personne et un artiste (possédé par un tiers) aux ids uniques.
func seedPair(t *testing.T, s *PostgresStore) (string, string) {
	t.Helper()
	ctx := context.Background()
	person, artist := uid("p"), uid("a")
	require.NoError(t, s.SavePerson(ctx, domain.NewPerson(person)))
	require.NoError(t, s.SaveArtist(ctx, domain.NewArtist(artist, uid("owner"))))
	return person, artist
}

func followArtist(person, artist string) ports.ToggleEdgeCmd {
	return ports.ToggleEdgeCmd{ActorID: person, SubjectID: person, ObjectID: artist, Kind: domain.EdgePersonArtist}
}

func TestPostgresServices_ConcurrentTogglesSerialise(t *testing.T) {
	svc := newPostgresServices(t)
	ctx := context.Background()
	person, artist := seedPair(t, svc.store.PostgresStore)

	const n = 11
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.rel.ToggleEdge(ctx, followArtist(person, artist))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Nombre impair de toggles : l'arête est présente, une seule fois de chaque côté.
	p, err := svc.store.GetPerson(ctx, person)
	require.NoError(t, err)
	a, err := svc.store.GetArtist(ctx, artist)
	require.NoError(t, err)
	assert.Equal(t, domain.Set{artist}, p.FollowingArtists)
	assert.Equal(t, domain.Set{person}, a.Followers)
	assert.Len(t, svc.pub.EdgeEvents(), n)
}

func TestPostgresServices_MirrorRetryInsideTransaction(t *testing.T) {
	svc := newPostgresServices(t)
	ctx := context.Background()
	person, artist := seedPair(t, svc.store.PostgresStore)

	// Deux échecs SQL sur le miroir : la transaction reste utilisable, la 3e tentative passe.
	svc.store.failures.Store(2)

	res, err := svc.rel.ToggleEdge(ctx, followArtist(person, artist))
	require.NoError(t, err)
	assert.True(t, res.IsPresent)
	assert.Equal(t, 1, res.ObjectCount)
	assert.Equal(t, 1, res.SubjectCount)

	a, err := svc.store.GetArtist(ctx, artist)
	require.NoError(t, err)
	assert.Equal(t, domain.Set{person}, a.Followers)
	assert.Empty(t, svc.pub.FlagEvents())
}

func TestPostgresServices_PermanentMirrorFailureRollsBackAndFlags(t *testing.T) {
	svc := newPostgresServices(t)
	ctx := context.Background()
	person, artist := seedPair(t, svc.store.PostgresStore)

	svc.store.failures.Store(-1)
	_, err := svc.rel.ToggleEdge(ctx, followArtist(person, artist))
	require.ErrorIs(t, err, domain.ErrPartialWrite)

	// Transactionnel : le côté sujet est annulé avec le reste.
	p, err := svc.store.GetPerson(ctx, person)
	require.NoError(t, err)
	a, err := svc.store.GetArtist(ctx, artist)
	require.NoError(t, err)
	assert.Empty(t, p.FollowingArtists)
	assert.Empty(t, a.Followers)

	// Le signalement est écrit hors transaction : il survit au rollback.
	want := domain.Edge{Kind: domain.EdgePersonArtist, SubjectID: person, ObjectID: artist}
	pending, err := svc.store.Pending(ctx, 10000)
	require.NoError(t, err)
	assert.True(t, containsEdge(pending, want))
	assert.Len(t, svc.pub.FlagEvents(), 1)
	assert.Empty(t, svc.pub.EdgeEvents())

	svc.store.failures.Store(0)
	report, err := svc.repair.RepairRelationships(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.FlagsResolved, 1)

	pending, err = svc.store.Pending(ctx, 10000)
	require.NoError(t, err)
	assert.False(t, containsEdge(pending, want))
}

// Miroir manquant et conteneurs JSONB malformés sur des lignes "legacy" : la réparation
// ne s'interrompt pas et réécrit chaque document.
func TestPostgresServices_RepairRestoresSymmetryAndMalformedContainers(t *testing.T) {
	svc := newPostgresServices(t)
	ctx := context.Background()
	db := svc.store.db
	person, artist := seedPair(t, svc.store.PostgresStore)

	broken := uid("a")
	require.NoError(t, svc.store.SaveArtist(ctx, domain.NewArtist(broken, uid("owner"))))
	artwork := uid("w")
	require.NoError(t, svc.store.SaveArtwork(ctx, domain.NewArtwork(artwork, artist)))

	_, err := db.Exec(ctx, `UPDATE persons SET following_artists = ARRAY[$2] WHERE id = $1`, person, artist)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `UPDATE artists SET ratings = '{}'::jsonb WHERE id = $1`, broken)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `UPDATE artworks SET comments = 'null'::jsonb, ratings = '"x"'::jsonb WHERE id = $1`, artwork)
	require.NoError(t, err)

	report, err := svc.repair.RepairRelationships(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.EdgesRestored, 1)
	assert.GreaterOrEqual(t, report.DocumentsNormalized, 2)

	a, err := svc.store.GetArtist(ctx, artist)
	require.NoError(t, err)
	assert.Equal(t, domain.Set{person}, a.Followers)

	var ratingsType, commentsType string
	require.NoError(t, db.QueryRow(ctx, `SELECT jsonb_typeof(ratings) FROM artists WHERE id = $1`, broken).Scan(&ratingsType))
	assert.Equal(t, "array", ratingsType)
	require.NoError(t, db.QueryRow(ctx, `SELECT jsonb_typeof(comments) FROM artworks WHERE id = $1`, artwork).Scan(&commentsType))
	assert.Equal(t, "array", commentsType)
}

func TestPostgresServices_AppendCommentOnMalformedColumn(t *testing.T) {
	svc := newPostgresServices(t)
	ctx := context.Background()

	artwork := uid("w")
	require.NoError(t, svc.store.SaveArtwork(ctx, domain.NewArtwork(artwork, uid("a"))))
	_, err := svc.store.db.Exec(ctx, `UPDATE artworks SET comments = '{}'::jsonb WHERE id = $1`, artwork)
	require.NoError(t, err)

	comment := domain.Comment{ID: uid("c"), AuthorID: "p1", Text: "bravo", CreatedAt: time.Now().UTC()}
	require.NoError(t, svc.store.Mutate(ctx, func(ctx context.Context, m ports.Mutator) error {
		return m.AppendComment(ctx, artwork, comment)
	}))

	w, err := svc.store.GetArtwork(ctx, artwork)
	require.NoError(t, err)
	require.Len(t, w.Comments, 1)
	assert.Equal(t, comment.ID, w.Comments[0].ID)
}

func containsEdge(flags []domain.RepairFlag, e domain.Edge) bool {
	for _, f := range flags {
		if f.Edge == e {
			return true
		}
	}
	return false
}
