package ports

import (
	"context"
	"time"

	"github.com/jupiterclapton/atelier/internal/core/domain"
)

// --- PERSISTANCE (Profile Store) ---

// ProfileStore est le port Driven vers les documents Person / Artist / Artwork.
// Les lectures hors Mutate renvoient des copies ; un conteneur absent est un Set nil.
type ProfileStore interface {
	GetPerson(ctx context.Context, id string) (*domain.Person, error)
	GetArtist(ctx context.Context, id string) (*domain.Artist, error)
	GetArtwork(ctx context.Context, id string) (*domain.Artwork, error)

	// Members renvoie une page d'un conteneur et sa cardinalité totale.
	Members(ctx context.Context, ref domain.SetRef, offset, limit int) ([]string, int, error)

	// ScanIDs parcourt tous les ids d'une collection par paquets via le callback 'yield'.
	ScanIDs(ctx context.Context, c domain.Collection, batchSize int, yield func([]string) error) error

	// Mutate exécute fn dans une unité de travail. Postgres : une transaction (rollback si fn échoue).
	// Mémoire : sérialisée, atomicité par document uniquement.
	Mutate(ctx context.Context, fn func(ctx context.Context, m Mutator) error) error
}

// Mutator est la seule voie d'écriture des conteneurs.
type Mutator interface {
	// Lock* lisent le document en le verrouillant jusqu'à la fin de l'unité de travail.
	LockPerson(ctx context.Context, id string) (*domain.Person, error)
	LockArtist(ctx context.Context, id string) (*domain.Artist, error)
	LockArtwork(ctx context.Context, id string) (*domain.Artwork, error)

	// AddToSet / RemoveFromSet sont atomiques par document (add-if-absent / remove-if-present).
	// changed indique si le conteneur a été modifié.
	AddToSet(ctx context.Context, ref domain.SetRef, member string) (changed bool, err error)
	RemoveFromSet(ctx context.Context, ref domain.SetRef, member string) (changed bool, err error)
	Cardinality(ctx context.Context, ref domain.SetRef) (int, error)

	PutRatings(ctx context.Context, doc domain.DocRef, ratings domain.Ratings) error
	AppendComment(ctx context.Context, artworkID string, c domain.Comment) error

	// ReplaceContainers réécrit tous les conteneurs d'un document normalisé (réparation uniquement).
	ReplaceContainers(ctx context.Context, doc domain.Document) error
}

// RepairJournal conserve les paires signalées après un échec d'écriture du miroir.
type RepairJournal interface {
	Flag(ctx context.Context, flag domain.RepairFlag) error
	Pending(ctx context.Context, limit int) ([]domain.RepairFlag, error)
	Resolve(ctx context.Context, ids []string) error
}

// --- MESSAGERIE (BROKER) ---

// EventPublisher notifie les autres services (projection graphe, notifications).
type EventPublisher interface {
	PublishEdgeToggled(ctx context.Context, e domain.EdgeToggled) error
	PublishLikeToggled(ctx context.Context, e domain.LikeToggled) error
	PublishRatingUpserted(ctx context.Context, e domain.RatingUpserted) error
	PublishCommentAppended(ctx context.Context, e domain.CommentAppended) error
	PublishRepairFlagged(ctx context.Context, f domain.RepairFlag) error
}

// --- PROJECTION GRAPHE ---

// GraphIndex est la projection Neo4j des arêtes (cohérence éventuelle).
type GraphIndex interface {
	EnsureSchema(ctx context.Context) error
	ApplyEdge(ctx context.Context, e domain.EdgeToggled) error
	RelationStatus(ctx context.Context, actorID, targetID string) (*domain.RelationStatus, error)
}

// --- SÉCURITÉ ---

// Principal est l'appelant authentifié extrait du bearer token.
type Principal struct {
	UserID string
	Role   string
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

const RoleAdmin = "admin"

type TokenValidator interface {
	Validate(token string) (*Principal, error)
}

// --- IDEMPOTENCE ---

// StoredResponse est la réponse rejouée pour une clé d'idempotence déjà vue.
type StoredResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

type IdempotencyStore interface {
	// Reserve pose un marqueur "en cours". ok=false si la clé existe déjà (en cours ou terminée).
	Reserve(ctx context.Context, key string, ttl time.Duration) (ok bool, err error)
	// Load renvoie la réponse enregistrée, nil si la requête est encore en cours.
	Load(ctx context.Context, key string) (*StoredResponse, error)
	Save(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// --- MÉTRIQUES ---

type Metrics interface {
	EdgeToggled(kind domain.EdgeKind, present bool)
	LikeToggled(liked bool)
	PartialWrite(kind domain.EdgeKind)
	RepairCompleted(report domain.RepairReport)
}
