package domain

import "fmt"

// Collection identifie le type de document dans le Profile Store.
type Collection string

const (
	CollectionPersons  Collection = "persons"
	CollectionArtists  Collection = "artists"
	CollectionArtworks Collection = "artworks"
)

// SetField nomme un conteneur de relation/engagement d'un document.
// Les valeurs correspondent aux noms de colonnes Postgres.
type SetField string

const (
	FieldFollowingArtists  SetField = "following_artists"
	FieldFollowers         SetField = "followers"
	FieldFollowing         SetField = "following"
	FieldFollowedByArtists SetField = "followed_by_artists"
	FieldArtworks          SetField = "artworks"
	FieldLikes             SetField = "likes"
)

// Fields liste les conteneurs ensemblistes portés par chaque collection.
var Fields = map[Collection][]SetField{
	CollectionPersons:  {FieldFollowingArtists, FieldFollowers, FieldFollowing},
	CollectionArtists:  {FieldFollowers, FieldFollowing, FieldFollowedByArtists, FieldArtworks},
	CollectionArtworks: {FieldLikes},
}

// HasField vérifie qu'un champ appartient bien à la collection (whitelist SQL).
func HasField(c Collection, f SetField) bool {
	for _, v := range Fields[c] {
		if v == f {
			return true
		}
	}
	return false
}

// DocRef désigne un document.
type DocRef struct {
	Collection Collection
	ID         string
}

func (d DocRef) String() string { return fmt.Sprintf("%s/%s", d.Collection, d.ID) }

// SetRef désigne un conteneur précis d'un document.
type SetRef struct {
	Doc   DocRef
	Field SetField
}

func (r SetRef) String() string { return fmt.Sprintf("%s.%s", r.Doc, r.Field) }

// Document est implémenté par Person, Artist et Artwork.
type Document interface {
	Ref() DocRef
	Set(f SetField) (*Set, error)
	// Normalize remplace les conteneurs absents ou malformés. Retourne true si modifié.
	Normalize() bool
}

// --- PERSON ---

type Person struct {
	ID               string
	FollowingArtists Set
	Followers        Set
	Following        Set
}

func NewPerson(id string) *Person {
	return &Person{
		ID:               id,
		FollowingArtists: Set{},
		Followers:        Set{},
		Following:        Set{},
	}
}

func (p *Person) Ref() DocRef { return DocRef{Collection: CollectionPersons, ID: p.ID} }

func (p *Person) Set(f SetField) (*Set, error) {
	switch f {
	case FieldFollowingArtists:
		return &p.FollowingArtists, nil
	case FieldFollowers:
		return &p.Followers, nil
	case FieldFollowing:
		return &p.Following, nil
	}
	return nil, fmt.Errorf("%w: %s has no field %q", ErrInvalidArgument, CollectionPersons, f)
}

func (p *Person) Normalize() bool {
	return normalizeSets(p, Fields[CollectionPersons])
}

// --- ARTIST ---

type Artist struct {
	ID                string
	OwnerID           string // Person propriétaire (1:1, immuable)
	Followers         Set    // Persons
	Following         Set    // Artists
	FollowedByArtists Set    // Artists (miroir de Following)
	Artworks          Set
	Ratings           Ratings
}

func NewArtist(id, ownerID string) *Artist {
	return &Artist{
		ID:                id,
		OwnerID:           ownerID,
		Followers:         Set{},
		Following:         Set{},
		FollowedByArtists: Set{},
		Artworks:          Set{},
		Ratings:           Ratings{},
	}
}

func (a *Artist) Ref() DocRef { return DocRef{Collection: CollectionArtists, ID: a.ID} }

func (a *Artist) Set(f SetField) (*Set, error) {
	switch f {
	case FieldFollowers:
		return &a.Followers, nil
	case FieldFollowing:
		return &a.Following, nil
	case FieldFollowedByArtists:
		return &a.FollowedByArtists, nil
	case FieldArtworks:
		return &a.Artworks, nil
	}
	return nil, fmt.Errorf("%w: %s has no field %q", ErrInvalidArgument, CollectionArtists, f)
}

func (a *Artist) Normalize() bool {
	changed := normalizeSets(a, Fields[CollectionArtists])
	if r, ok := a.Ratings.Normalized(); ok {
		a.Ratings = r
		changed = true
	}
	return changed
}

// --- ARTWORK ---

type Artwork struct {
	ID       string
	ArtistID string
	Likes    Set
	Comments []Comment
	Ratings  Ratings
}

func NewArtwork(id, artistID string) *Artwork {
	return &Artwork{
		ID:       id,
		ArtistID: artistID,
		Likes:    Set{},
		Comments: []Comment{},
		Ratings:  Ratings{},
	}
}

func (w *Artwork) Ref() DocRef { return DocRef{Collection: CollectionArtworks, ID: w.ID} }

func (w *Artwork) Set(f SetField) (*Set, error) {
	if f == FieldLikes {
		return &w.Likes, nil
	}
	return nil, fmt.Errorf("%w: %s has no field %q", ErrInvalidArgument, CollectionArtworks, f)
}

func (w *Artwork) Normalize() bool {
	changed := normalizeSets(w, Fields[CollectionArtworks])
	if w.Comments == nil {
		w.Comments = []Comment{}
		changed = true
	}
	if r, ok := w.Ratings.Normalized(); ok {
		w.Ratings = r
		changed = true
	}
	return changed
}

func normalizeSets(d Document, fields []SetField) bool {
	changed := false
	for _, f := range fields {
		s, err := d.Set(f)
		if err != nil {
			continue
		}
		if n, ok := s.Normalized(); ok {
			*s = n
			changed = true
		}
	}
	return changed
}
