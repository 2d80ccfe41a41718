package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/jupiterclapton/atelier/internal/core/ports"
)

// DTO internes pour mapper le JSONB sans polluer le domaine avec des tags JSON
type ratingDTO struct {
	RaterID string    `json:"raterId"`
	Value   int       `json:"value"`
	RatedAt time.Time `json:"ratedAt"`
}

type commentDTO struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// querier est satisfait par *pgxpool.Pool et pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore attend un pool déjà configuré (tracer otelpgx posé dans main).
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

const (
	selectPerson  = `SELECT id, following_artists, followers, following FROM persons WHERE id = $1`
	selectArtist  = `SELECT id, owner_id, followers, following, followed_by_artists, artworks, ratings FROM artists WHERE id = $1`
	selectArtwork = `SELECT id, artist_id, likes, comments, ratings FROM artworks WHERE id = $1`
)

func (s *PostgresStore) GetPerson(ctx context.Context, id string) (*domain.Person, error) {
	return getPerson(ctx, s.db, selectPerson, id)
}

func (s *PostgresStore) GetArtist(ctx context.Context, id string) (*domain.Artist, error) {
	return getArtist(ctx, s.db, selectArtist, id)
}

func (s *PostgresStore) GetArtwork(ctx context.Context, id string) (*domain.Artwork, error) {
	return getArtwork(ctx, s.db, selectArtwork, id)
}

// Members découpe le tableau côté SQL (indices 1-based) et renvoie sa cardinalité.
func (s *PostgresStore) Members(ctx context.Context, ref domain.SetRef, offset, limit int) ([]string, int, error) {
	table, col, err := column(ref)
	if err != nil {
		return nil, 0, err
	}
	q := fmt.Sprintf(
		`SELECT COALESCE(%[2]s[$2:$3], '{}'::text[]), COALESCE(cardinality(%[2]s), 0) FROM %[1]s WHERE id = $1`,
		table, col,
	)

	var items []string
	var total int
	err = s.db.QueryRow(ctx, q, ref.Doc.ID, offset+1, offset+limit).Scan(&items, &total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, domain.ErrNotFound
		}
		return nil, 0, fmt.Errorf("db: members %s: %w", ref, err)
	}
	return items, total, nil
}

// ScanIDs : pagination keyset sur l'id, aucune connexion n'est tenue pendant yield.
func (s *PostgresStore) ScanIDs(ctx context.Context, c domain.Collection, batchSize int, yield func([]string) error) error {
	table, err := tableName(c)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`SELECT id FROM %s WHERE id > $1 ORDER BY id LIMIT $2`, table)

	last := ""
	for {
		rows, err := s.db.Query(ctx, q, last, batchSize)
		if err != nil {
			return fmt.Errorf("db: scan %s: %w", c, err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("db: scan %s: %w", c, err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := yield(ids); err != nil {
			return err
		}
		if len(ids) < batchSize {
			return nil
		}
		last = ids[len(ids)-1]
	}
}

// Mutate exécute fn dans une transaction : commit si fn réussit, rollback sinon.
func (s *PostgresStore) Mutate(ctx context.Context, fn func(ctx context.Context, m ports.Mutator) error) error {
	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, &pgMutator{tx: tx})
	})
}

// --- MUTATOR (transactionnel) ---

type pgMutator struct {
	tx pgx.Tx
}

func (m *pgMutator) LockPerson(ctx context.Context, id string) (*domain.Person, error) {
	return getPerson(ctx, m.tx, selectPerson+" FOR UPDATE", id)
}

func (m *pgMutator) LockArtist(ctx context.Context, id string) (*domain.Artist, error) {
	return getArtist(ctx, m.tx, selectArtist+" FOR UPDATE", id)
}

func (m *pgMutator) LockArtwork(ctx context.Context, id string) (*domain.Artwork, error) {
	return getArtwork(ctx, m.tx, selectArtwork+" FOR UPDATE", id)
}

// AddToSet : add-if-absent atomique, dans un savepoint pour que l'appelant puisse réessayer.
func (m *pgMutator) AddToSet(ctx context.Context, ref domain.SetRef, member string) (bool, error) {
	table, col, err := column(ref)
	if err != nil {
		return false, err
	}
	q := fmt.Sprintf(
		`UPDATE %[1]s SET %[2]s = array_append(COALESCE(%[2]s, '{}'::text[]), $2)
		 WHERE id = $1 AND NOT ($2 = ANY(COALESCE(%[2]s, '{}'::text[])))`,
		table, col,
	)
	return m.setExec(ctx, ref, table, q, member)
}

func (m *pgMutator) RemoveFromSet(ctx context.Context, ref domain.SetRef, member string) (bool, error) {
	table, col, err := column(ref)
	if err != nil {
		return false, err
	}
	q := fmt.Sprintf(
		`UPDATE %[1]s SET %[2]s = array_remove(%[2]s, $2) WHERE id = $1 AND $2 = ANY(%[2]s)`,
		table, col,
	)
	return m.setExec(ctx, ref, table, q, member)
}

func (m *pgMutator) setExec(ctx context.Context, ref domain.SetRef, table, q, member string) (bool, error) {
	var tag pgconn.CommandTag
	err := pgx.BeginFunc(ctx, m.tx, func(sp pgx.Tx) error {
		var err error
		tag, err = sp.Exec(ctx, q, ref.Doc.ID, member)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("db: write %s: %w", ref, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// 0 ligne : déjà dans l'état voulu, ou document absent.
	var exists bool
	q = fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := m.tx.QueryRow(ctx, q, ref.Doc.ID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db: write %s: %w", ref, err)
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func (m *pgMutator) Cardinality(ctx context.Context, ref domain.SetRef) (int, error) {
	table, col, err := column(ref)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf(`SELECT COALESCE(cardinality(%s), 0) FROM %s WHERE id = $1`, col, table)

	var n int
	if err := m.tx.QueryRow(ctx, q, ref.Doc.ID).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("db: cardinality %s: %w", ref, err)
	}
	return n, nil
}

func (m *pgMutator) PutRatings(ctx context.Context, doc domain.DocRef, ratings domain.Ratings) error {
	if doc.Collection != domain.CollectionArtists && doc.Collection != domain.CollectionArtworks {
		return fmt.Errorf("%w: %s cannot be rated", domain.ErrInvalidArgument, doc.Collection)
	}
	payload, err := marshalRatings(ratings)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET ratings = $2 WHERE id = $1`, doc.Collection)
	return execOne(ctx, m.tx, q, doc.ID, payload)
}

// AppendComment concatène côté SQL : aucun commentaire concurrent n'est écrasé.
func (m *pgMutator) AppendComment(ctx context.Context, artworkID string, c domain.Comment) error {
	payload, err := json.Marshal([]commentDTO{toCommentDTO(c)})
	if err != nil {
		return fmt.Errorf("failed to marshal comment: %w", err)
	}
	q := `UPDATE artworks
	      SET comments = CASE WHEN jsonb_typeof(comments) = 'array' THEN comments ELSE '[]'::jsonb END || $2::jsonb
	      WHERE id = $1`
	return execOne(ctx, m.tx, q, artworkID, payload)
}

func (m *pgMutator) ReplaceContainers(ctx context.Context, doc domain.Document) error {
	switch d := doc.(type) {
	case *domain.Person:
		q := `UPDATE persons SET following_artists = @following_artists, followers = @followers, following = @following WHERE id = @id`
		return execOne(ctx, m.tx, q, pgx.NamedArgs{
			"id":                d.ID,
			"following_artists": []string(d.FollowingArtists),
			"followers":         []string(d.Followers),
			"following":         []string(d.Following),
		})
	case *domain.Artist:
		ratings, err := marshalRatings(d.Ratings)
		if err != nil {
			return err
		}
		q := `UPDATE artists SET followers = @followers, following = @following, followed_by_artists = @followed_by_artists,
			artworks = @artworks, ratings = @ratings WHERE id = @id`
		return execOne(ctx, m.tx, q, pgx.NamedArgs{
			"id":                  d.ID,
			"followers":           []string(d.Followers),
			"following":           []string(d.Following),
			"followed_by_artists": []string(d.FollowedByArtists),
			"artworks":            []string(d.Artworks),
			"ratings":             ratings,
		})
	case *domain.Artwork:
		ratings, err := marshalRatings(d.Ratings)
		if err != nil {
			return err
		}
		comments := make([]commentDTO, len(d.Comments))
		for i, c := range d.Comments {
			comments[i] = toCommentDTO(c)
		}
		commentsJSON, err := json.Marshal(comments)
		if err != nil {
			return fmt.Errorf("failed to marshal comments: %w", err)
		}
		q := `UPDATE artworks SET likes = @likes, comments = @comments, ratings = @ratings WHERE id = @id`
		return execOne(ctx, m.tx, q, pgx.NamedArgs{
			"id":       d.ID,
			"likes":    []string(d.Likes),
			"comments": commentsJSON,
			"ratings":  ratings,
		})
	}
	return fmt.Errorf("%w: unsupported document %s", domain.ErrInvalidArgument, doc.Ref())
}

// --- SEED (outillage local / tests d'intégration) ---

func (s *PostgresStore) SavePerson(ctx context.Context, p *domain.Person) error {
	q := `INSERT INTO persons (id, following_artists, followers, following) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.db.Exec(ctx, q, p.ID, []string(p.FollowingArtists), []string(p.Followers), []string(p.Following))
	return err
}

func (s *PostgresStore) SaveArtist(ctx context.Context, a *domain.Artist) error {
	ratings, err := marshalRatings(a.Ratings)
	if err != nil {
		return err
	}
	q := `INSERT INTO artists (id, owner_id, followers, following, followed_by_artists, artworks, ratings)
		VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`
	_, err = s.db.Exec(ctx, q, a.ID, a.OwnerID, []string(a.Followers), []string(a.Following),
		[]string(a.FollowedByArtists), []string(a.Artworks), ratings)
	return err
}

func (s *PostgresStore) SaveArtwork(ctx context.Context, w *domain.Artwork) error {
	q := `INSERT INTO artworks (id, artist_id, likes) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`
	_, err := s.db.Exec(ctx, q, w.ID, w.ArtistID, []string(w.Likes))
	return err
}

// --- HELPERS ---

func tableName(c domain.Collection) (string, error) {
	switch c {
	case domain.CollectionPersons, domain.CollectionArtists, domain.CollectionArtworks:
		return string(c), nil
	}
	return "", fmt.Errorf("%w: unknown collection %q", domain.ErrInvalidArgument, c)
}

// column valide la paire table/colonne contre la whitelist du domaine avant interpolation SQL.
func column(ref domain.SetRef) (string, string, error) {
	table, err := tableName(ref.Doc.Collection)
	if err != nil {
		return "", "", err
	}
	if !domain.HasField(ref.Doc.Collection, ref.Field) {
		return "", "", fmt.Errorf("%w: %s has no field %q", domain.ErrInvalidArgument, ref.Doc.Collection, ref.Field)
	}
	return table, pgx.Identifier{string(ref.Field)}.Sanitize(), nil
}

func execOne(ctx context.Context, db querier, q string, args ...any) error {
	tag, err := db.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("db: exec: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func getPerson(ctx context.Context, db querier, q, id string) (*domain.Person, error) {
	var p domain.Person
	var followingArtists, followers, following []string
	if err := db.QueryRow(ctx, q, id).Scan(&p.ID, &followingArtists, &followers, &following); err != nil {
		return nil, notFound(err, "person")
	}
	p.FollowingArtists, p.Followers, p.Following = followingArtists, followers, following
	return &p, nil
}

func getArtist(ctx context.Context, db querier, q, id string) (*domain.Artist, error) {
	var a domain.Artist
	var followers, following, followedBy, artworks []string
	var ratingsJSON []byte
	err := db.QueryRow(ctx, q, id).Scan(&a.ID, &a.OwnerID, &followers, &following, &followedBy, &artworks, &ratingsJSON)
	if err != nil {
		return nil, notFound(err, "artist")
	}
	a.Followers, a.Following, a.FollowedByArtists, a.Artworks = followers, following, followedBy, artworks
	if a.Ratings, err = unmarshalRatings(ratingsJSON); err != nil {
		return nil, err
	}
	return &a, nil
}

func getArtwork(ctx context.Context, db querier, q, id string) (*domain.Artwork, error) {
	var w domain.Artwork
	var likes []string
	var commentsJSON, ratingsJSON []byte
	err := db.QueryRow(ctx, q, id).Scan(&w.ID, &w.ArtistID, &likes, &commentsJSON, &ratingsJSON)
	if err != nil {
		return nil, notFound(err, "artwork")
	}
	w.Likes = likes
	if w.Ratings, err = unmarshalRatings(ratingsJSON); err != nil {
		return nil, err
	}
	if w.Comments, err = unmarshalComments(commentsJSON); err != nil {
		return nil, fmt.Errorf("db: decode comments of %s: %w", id, err)
	}
	return &w, nil
}

// notFound traduit l'erreur technique en erreur du domaine
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("db: get %s: %w", what, err)
}

func toCommentDTO(c domain.Comment) commentDTO {
	return commentDTO{ID: c.ID, AuthorID: c.AuthorID, Text: c.Text, CreatedAt: c.CreatedAt}
}

func marshalRatings(r domain.Ratings) ([]byte, error) {
	dtos := make([]ratingDTO, len(r))
	for i, v := range r {
		dtos[i] = ratingDTO{RaterID: v.RaterID, Value: v.Value, RatedAt: v.RatedAt}
	}
	b, err := json.Marshal(dtos)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ratings: %w", err)
	}
	return b, nil
}

// isJSONArray : NULL, `null`, `{}` ou un scalaire ne sont pas des conteneurs.
func isJSONArray(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// unmarshalRatings : une valeur qui n'est pas un tableau est lue comme un conteneur
// absent (nil), que la normalisation réécrit. Les éléments null sont ignorés.
func unmarshalRatings(data []byte) (domain.Ratings, error) {
	if !isJSONArray(data) {
		return nil, nil
	}
	var dtos []*ratingDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, fmt.Errorf("db: decode ratings: %w", err)
	}
	out := make(domain.Ratings, 0, len(dtos))
	for _, d := range dtos {
		if d == nil {
			continue
		}
		out = append(out, domain.Rating{RaterID: d.RaterID, Value: d.Value, RatedAt: d.RatedAt})
	}
	return out, nil
}

func unmarshalComments(data []byte) ([]domain.Comment, error) {
	if !isJSONArray(data) {
		return nil, nil
	}
	var dtos []*commentDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, err
	}
	out := make([]domain.Comment, 0, len(dtos))
	for _, d := range dtos {
		if d == nil {
			continue
		}
		out = append(out, domain.Comment{ID: d.ID, AuthorID: d.AuthorID, Text: d.Text, CreatedAt: d.CreatedAt})
	}
	return out, nil
}
