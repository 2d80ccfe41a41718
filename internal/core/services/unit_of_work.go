package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/jupiterclapton/atelier/internal/core/ports"
)

// lockDoc verrouille un document quelle que soit sa collection.
func lockDoc(ctx context.Context, m ports.Mutator, ref domain.DocRef) (domain.Document, error) {
	switch ref.Collection {
	case domain.CollectionPersons:
		return m.LockPerson(ctx, ref.ID)
	case domain.CollectionArtists:
		return m.LockArtist(ctx, ref.ID)
	case domain.CollectionArtworks:
		return m.LockArtwork(ctx, ref.ID)
	}
	return nil, fmt.Errorf("%w: unknown collection %q", domain.ErrInvalidArgument, ref.Collection)
}

// lockPair verrouille deux documents dans un ordre déterministe (collection, id)
// pour éviter les deadlocks entre deux toggles concurrents sur la même paire.
// Avec optional=true, un document absent est renvoyé nil au lieu d'une erreur.
func lockPair(ctx context.Context, m ports.Mutator, a, b domain.DocRef, optional bool) (domain.Document, domain.Document, error) {
	if a == b {
		doc, err := lockOne(ctx, m, a, optional)
		return doc, doc, err
	}

	first, second := a, b
	if less(b, a) {
		first, second = b, a
	}

	d1, err := lockOne(ctx, m, first, optional)
	if err != nil {
		return nil, nil, err
	}
	d2, err := lockOne(ctx, m, second, optional)
	if err != nil {
		return nil, nil, err
	}

	if first == a {
		return d1, d2, nil
	}
	return d2, d1, nil
}

func lockOne(ctx context.Context, m ports.Mutator, ref domain.DocRef, optional bool) (domain.Document, error) {
	doc, err := lockDoc(ctx, m, ref)
	if err != nil {
		if optional && errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock %s: %w", ref, err)
	}
	return doc, nil
}

func less(a, b domain.DocRef) bool {
	if a.Collection != b.Collection {
		return a.Collection < b.Collection
	}
	return a.ID < b.ID
}

// applyMembership amène le conteneur à l'état voulu (présent/absent) de façon idempotente.
func applyMembership(ctx context.Context, m ports.Mutator, ref domain.SetRef, member string, present bool) (bool, error) {
	if present {
		return m.AddToSet(ctx, ref, member)
	}
	return m.RemoveFromSet(ctx, ref, member)
}

// members renvoie une copie du conteneur (un conteneur absent se lit vide).
func members(doc domain.Document, f domain.SetField) (domain.Set, error) {
	s, err := doc.Set(f)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}
