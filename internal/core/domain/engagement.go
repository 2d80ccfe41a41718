package domain

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinRating        = 1
	MaxRating        = 5
	MaxCommentLength = 2000
)

type Rating struct {
	RaterID string
	Value   int
	RatedAt time.Time
}

// Ratings contient au plus une entrée par évaluateur.
type Ratings []Rating

func ValidateRating(value int) error {
	if value < MinRating || value > MaxRating {
		return ErrInvalidRatingValue
	}
	return nil
}

// Upsert remplace la note existante de l'évaluateur ou l'ajoute en fin de liste.
// Retourne true si une entrée existante a été remplacée.
func (r *Ratings) Upsert(rating Rating) bool {
	for i := range *r {
		if (*r)[i].RaterID == rating.RaterID {
			(*r)[i].Value = rating.Value
			(*r)[i].RatedAt = rating.RatedAt
			return true
		}
	}
	*r = append(*r, rating)
	return false
}

// Average = round(somme/nombre, 1). 0 si aucune note.
func (r Ratings) Average() float64 {
	if len(r) == 0 {
		return 0
	}
	sum := 0
	for _, v := range r {
		sum += v.Value
	}
	return math.Round(float64(sum)/float64(len(r))*10) / 10
}

// Normalized fusionne les doublons par évaluateur (la dernière entrée gagne, à la
// position de la première) et écarte les entrées sans évaluateur.
func (r Ratings) Normalized() (Ratings, bool) {
	changed := r == nil
	out := make(Ratings, 0, len(r))
	for _, v := range r {
		if v.RaterID == "" {
			changed = true
			continue
		}
		if out.Upsert(v) {
			changed = true
		}
	}
	return out, changed
}

func (r Ratings) Summary() RatingSummary {
	ratings := make([]Rating, len(r))
	copy(ratings, r)
	return RatingSummary{
		Count:   len(r),
		Ratings: ratings,
		Average: r.Average(),
	}
}

type RatingSummary struct {
	Count   int
	Ratings []Rating
	Average float64
}

// Comment est immuable une fois ajouté au journal.
type Comment struct {
	ID        string
	AuthorID  string
	Text      string
	CreatedAt time.Time
}

// ValidateCommentText refuse les textes vides ou composés d'espaces. La longueur est
// celle du texte stocké, donc après trim.
func ValidateCommentText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyComment
	}
	if utf8.RuneCountInString(text) > MaxCommentLength {
		return ErrCommentTooLong
	}
	return nil
}

type LikeResult struct {
	Liked      bool
	LikesCount int
}
