package domain

import "errors"

// --- ERREURS DU DOMAINE ---
var (
	ErrNotFound           = errors.New("entity not found")
	ErrSelfEdge           = errors.New("self edge rejected")
	ErrInvalidRatingValue = errors.New("rating value must be between 1 and 5")
	ErrEmptyComment       = errors.New("comment text is empty")
	ErrCommentTooLong     = errors.New("comment text is too long")
	ErrInvalidEdgeKind    = errors.New("invalid edge kind")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrUnauthorized       = errors.New("unauthorized")

	// ErrPartialWrite : le côté sujet est écrit mais pas le miroir.
	// La paire est signalée au journal de réparation.
	ErrPartialWrite = errors.New("partial write failure")
)
