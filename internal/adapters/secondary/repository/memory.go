package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/jupiterclapton/atelier/internal/core/ports"
)

// Fault permet d'injecter une erreur avant une écriture de conteneur (tests, chaos en local).
// op vaut "add" ou "remove".
type Fault func(op string, ref domain.SetRef, member string) error

// MemoryStore est un Profile Store en mémoire qui se comporte comme une base documentaire :
// chaque écriture est atomique sur son document, mais il n'y a pas de rollback multi-documents.
type MemoryStore struct {
	mu       sync.RWMutex
	persons  map[string]*domain.Person
	artists  map[string]*domain.Artist
	artworks map[string]*domain.Artwork
	fault    Fault

	jmu   sync.Mutex
	flags []journalEntry
}

type journalEntry struct {
	flag     domain.RepairFlag
	resolved bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		persons:  make(map[string]*domain.Person),
		artists:  make(map[string]*domain.Artist),
		artworks: make(map[string]*domain.Artwork),
	}
}

// SetFault installe (ou retire avec nil) une injection d'erreur.
func (s *MemoryStore) SetFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// --- SEED (tel quel : les conteneurs nil simulent des documents hérités) ---

func (s *MemoryStore) PutPerson(p *domain.Person) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persons[p.ID] = clonePerson(p)
}

func (s *MemoryStore) PutArtist(a *domain.Artist) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artists[a.ID] = cloneArtist(a)
}

func (s *MemoryStore) PutArtwork(w *domain.Artwork) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artworks[w.ID] = cloneArtwork(w)
}

// --- LECTURES ---

func (s *MemoryStore) GetPerson(_ context.Context, id string) (*domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.persons[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePerson(p), nil
}

func (s *MemoryStore) GetArtist(_ context.Context, id string) (*domain.Artist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artists[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneArtist(a), nil
}

func (s *MemoryStore) GetArtwork(_ context.Context, id string) (*domain.Artwork, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.artworks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneArtwork(w), nil
}

func (s *MemoryStore) Members(_ context.Context, ref domain.SetRef, offset, limit int) ([]string, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, err := s.set(ref)
	if err != nil {
		return nil, 0, err
	}
	return set.Page(offset, limit), set.Len(), nil
}

func (s *MemoryStore) ScanIDs(ctx context.Context, c domain.Collection, batchSize int, yield func([]string) error) error {
	s.mu.RLock()
	var ids []string
	switch c {
	case domain.CollectionPersons:
		ids = keys(s.persons)
	case domain.CollectionArtists:
		ids = keys(s.artists)
	case domain.CollectionArtworks:
		ids = keys(s.artworks)
	default:
		s.mu.RUnlock()
		return fmt.Errorf("%w: unknown collection %q", domain.ErrInvalidArgument, c)
	}
	s.mu.RUnlock()

	if batchSize <= 0 {
		batchSize = len(ids)
	}
	// Le verrou est relâché : yield peut ouvrir des unités de travail.
	for start := 0; start < len(ids); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(ids))
		if err := yield(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// --- ÉCRITURES ---

// Mutate sérialise les unités de travail (verrou exclusif pendant fn).
func (s *MemoryStore) Mutate(ctx context.Context, fn func(ctx context.Context, m ports.Mutator) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, &memoryMutator{s: s})
}

// memoryMutator opère sous le verrou exclusif pris par Mutate.
type memoryMutator struct {
	s *MemoryStore
}

func (m *memoryMutator) LockPerson(_ context.Context, id string) (*domain.Person, error) {
	p, ok := m.s.persons[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePerson(p), nil
}

func (m *memoryMutator) LockArtist(_ context.Context, id string) (*domain.Artist, error) {
	a, ok := m.s.artists[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneArtist(a), nil
}

func (m *memoryMutator) LockArtwork(_ context.Context, id string) (*domain.Artwork, error) {
	w, ok := m.s.artworks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneArtwork(w), nil
}

func (m *memoryMutator) AddToSet(_ context.Context, ref domain.SetRef, member string) (bool, error) {
	if m.s.fault != nil {
		if err := m.s.fault("add", ref, member); err != nil {
			return false, err
		}
	}
	set, err := m.s.set(ref)
	if err != nil {
		return false, err
	}
	return set.Add(member), nil
}

func (m *memoryMutator) RemoveFromSet(_ context.Context, ref domain.SetRef, member string) (bool, error) {
	if m.s.fault != nil {
		if err := m.s.fault("remove", ref, member); err != nil {
			return false, err
		}
	}
	set, err := m.s.set(ref)
	if err != nil {
		return false, err
	}
	return set.Remove(member), nil
}

func (m *memoryMutator) Cardinality(_ context.Context, ref domain.SetRef) (int, error) {
	set, err := m.s.set(ref)
	if err != nil {
		return 0, err
	}
	return set.Len(), nil
}

func (m *memoryMutator) PutRatings(_ context.Context, doc domain.DocRef, ratings domain.Ratings) error {
	cp := append(domain.Ratings{}, ratings...)
	switch doc.Collection {
	case domain.CollectionArtists:
		a, ok := m.s.artists[doc.ID]
		if !ok {
			return domain.ErrNotFound
		}
		a.Ratings = cp
	case domain.CollectionArtworks:
		w, ok := m.s.artworks[doc.ID]
		if !ok {
			return domain.ErrNotFound
		}
		w.Ratings = cp
	default:
		return fmt.Errorf("%w: %s cannot be rated", domain.ErrInvalidArgument, doc.Collection)
	}
	return nil
}

func (m *memoryMutator) AppendComment(_ context.Context, artworkID string, c domain.Comment) error {
	w, ok := m.s.artworks[artworkID]
	if !ok {
		return domain.ErrNotFound
	}
	w.Comments = append(w.Comments, c)
	return nil
}

func (m *memoryMutator) ReplaceContainers(_ context.Context, doc domain.Document) error {
	ref := doc.Ref()
	switch d := doc.(type) {
	case *domain.Person:
		p, ok := m.s.persons[ref.ID]
		if !ok {
			return domain.ErrNotFound
		}
		n := clonePerson(d)
		p.FollowingArtists, p.Followers, p.Following = n.FollowingArtists, n.Followers, n.Following
	case *domain.Artist:
		a, ok := m.s.artists[ref.ID]
		if !ok {
			return domain.ErrNotFound
		}
		n := cloneArtist(d)
		a.Followers, a.Following, a.FollowedByArtists, a.Artworks, a.Ratings =
			n.Followers, n.Following, n.FollowedByArtists, n.Artworks, n.Ratings
	case *domain.Artwork:
		w, ok := m.s.artworks[ref.ID]
		if !ok {
			return domain.ErrNotFound
		}
		n := cloneArtwork(d)
		w.Likes, w.Comments, w.Ratings = n.Likes, n.Comments, n.Ratings
	default:
		return fmt.Errorf("%w: unsupported document %s", domain.ErrInvalidArgument, ref)
	}
	return nil
}

// set renvoie le conteneur stocké (pas une copie). Appelant : verrou tenu.
func (s *MemoryStore) set(ref domain.SetRef) (*domain.Set, error) {
	var doc domain.Document
	switch ref.Doc.Collection {
	case domain.CollectionPersons:
		if p, ok := s.persons[ref.Doc.ID]; ok {
			doc = p
		}
	case domain.CollectionArtists:
		if a, ok := s.artists[ref.Doc.ID]; ok {
			doc = a
		}
	case domain.CollectionArtworks:
		if w, ok := s.artworks[ref.Doc.ID]; ok {
			doc = w
		}
	default:
		return nil, fmt.Errorf("%w: unknown collection %q", domain.ErrInvalidArgument, ref.Doc.Collection)
	}
	if doc == nil {
		return nil, domain.ErrNotFound
	}
	return doc.Set(ref.Field)
}

// --- JOURNAL DE RÉPARATION ---

func (s *MemoryStore) Flag(_ context.Context, flag domain.RepairFlag) error {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	s.flags = append(s.flags, journalEntry{flag: flag})
	return nil
}

func (s *MemoryStore) Pending(_ context.Context, limit int) ([]domain.RepairFlag, error) {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	out := []domain.RepairFlag{}
	for _, e := range s.flags {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !e.resolved {
			out = append(out, e.flag)
		}
	}
	return out, nil
}

func (s *MemoryStore) Resolve(_ context.Context, ids []string) error {
	s.jmu.Lock()
	defer s.jmu.Unlock()
	done := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}
	for i := range s.flags {
		if _, ok := done[s.flags[i].flag.ID]; ok {
			s.flags[i].resolved = true
		}
	}
	return nil
}

// --- HELPERS ---

func keys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func clonePerson(p *domain.Person) *domain.Person {
	return &domain.Person{
		ID:               p.ID,
		FollowingArtists: p.FollowingArtists.Clone(),
		Followers:        p.Followers.Clone(),
		Following:        p.Following.Clone(),
	}
}

func cloneArtist(a *domain.Artist) *domain.Artist {
	return &domain.Artist{
		ID:                a.ID,
		OwnerID:           a.OwnerID,
		Followers:         a.Followers.Clone(),
		Following:         a.Following.Clone(),
		FollowedByArtists: a.FollowedByArtists.Clone(),
		Artworks:          a.Artworks.Clone(),
		Ratings:           cloneRatings(a.Ratings),
	}
}

func cloneArtwork(w *domain.Artwork) *domain.Artwork {
	out := &domain.Artwork{
		ID:       w.ID,
		ArtistID: w.ArtistID,
		Likes:    w.Likes.Clone(),
		Ratings:  cloneRatings(w.Ratings),
	}
	if w.Comments != nil {
		out.Comments = append([]domain.Comment{}, w.Comments...)
	}
	return out
}

func cloneRatings(r domain.Ratings) domain.Ratings {
	if r == nil {
		return nil
	}
	return append(domain.Ratings{}, r...)
}
