package domain

import (
	"fmt"
	"time"
)

// EdgeKind est le type d'arête dirigée "suit".
type EdgeKind string

const (
	EdgePersonArtist EdgeKind = "person_artist"
	EdgePersonPerson EdgeKind = "person_person"
	EdgeArtistArtist EdgeKind = "artist_artist"
)

var EdgeKinds = []EdgeKind{EdgePersonArtist, EdgePersonPerson, EdgeArtistArtist}

// Mirror décrit les deux emplacements qui stockent une même arête.
// Le côté sujet fait foi : il est écrit en premier et la réparation le projette sur l'objet.
type Mirror struct {
	SubjectCollection Collection
	SubjectField      SetField
	ObjectCollection  Collection
	ObjectField       SetField
}

func (k EdgeKind) Mirror() (Mirror, error) {
	switch k {
	case EdgePersonArtist:
		return Mirror{CollectionPersons, FieldFollowingArtists, CollectionArtists, FieldFollowers}, nil
	case EdgePersonPerson:
		return Mirror{CollectionPersons, FieldFollowing, CollectionPersons, FieldFollowers}, nil
	case EdgeArtistArtist:
		return Mirror{CollectionArtists, FieldFollowing, CollectionArtists, FieldFollowedByArtists}, nil
	}
	return Mirror{}, fmt.Errorf("%w: %q", ErrInvalidEdgeKind, string(k))
}

func (m Mirror) SubjectSet(subjectID string) SetRef {
	return SetRef{Doc: DocRef{Collection: m.SubjectCollection, ID: subjectID}, Field: m.SubjectField}
}

func (m Mirror) ObjectSet(objectID string) SetRef {
	return SetRef{Doc: DocRef{Collection: m.ObjectCollection, ID: objectID}, Field: m.ObjectField}
}

// Edge est une arête concrète (sujet -> objet).
type Edge struct {
	Kind      EdgeKind
	SubjectID string
	ObjectID  string
}

func (e Edge) String() string { return fmt.Sprintf("%s:%s->%s", e.Kind, e.SubjectID, e.ObjectID) }

// EdgeResult : état de l'arête après le toggle et cardinalités lues dans la même unité de travail.
type EdgeResult struct {
	IsPresent    bool
	SubjectCount int // taille du conteneur sujet (ex: followingArtists)
	ObjectCount  int // taille du miroir (ex: followers de l'artiste)
}

// RelationStatus est utilisé pour l'UI (CheckRelation)
type RelationStatus struct {
	IsFollowing  bool
	IsFollowedBy bool
}

// Page de membres d'un conteneur.
type Page struct {
	Items      []string
	NextCursor string
	Total      int
}

// --- EVENTS ---

type EdgeToggled struct {
	Edge
	Present bool
	At      time.Time
}

type LikeToggled struct {
	ArtworkID string
	RaterID   string
	Liked     bool
	Count     int
	At        time.Time
}

type RatingUpserted struct {
	Target  DocRef
	RaterID string
	Value   int
	Average float64
	At      time.Time
}

type CommentAppended struct {
	ArtworkID string
	Comment   Comment
}

// --- RÉPARATION ---

// RepairFlag signale une paire potentiellement divergente (échec d'écriture du miroir).
type RepairFlag struct {
	ID        string
	Edge      Edge
	Reason    string
	FlaggedAt time.Time
}

type RepairReport struct {
	DocumentsNormalized int
	EdgesRestored       int
	EdgesRemoved        int
	SelfEdgesRemoved    int
	FlagsResolved       int
}

func (r RepairReport) Changed() bool {
	return r.DocumentsNormalized+r.EdgesRestored+r.EdgesRemoved+r.SelfEdgesRemoved > 0
}
