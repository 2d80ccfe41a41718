package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRatings_UpsertKeepsOneEntryPerRater(t *testing.T) {
	var r Ratings
	now := time.Now()

	assert.False(t, r.Upsert(Rating{RaterID: "p1", Value: 4, RatedAt: now}))
	assert.True(t, r.Upsert(Rating{RaterID: "p1", Value: 2, RatedAt: now}))

	assert.Len(t, r, 1)
	assert.Equal(t, 2, r[0].Value)
	assert.Equal(t, 2.0, r.Average())
}

func TestRatings_AverageRoundsToOneDecimal(t *testing.T) {
	r := Ratings{{RaterID: "a", Value: 5}, {RaterID: "b", Value: 4}, {RaterID: "c", Value: 4}}

	assert.Equal(t, 4.3, r.Average())
	assert.Equal(t, 0.0, Ratings{}.Average())
}

func TestRatings_NormalizedCollapsesDuplicates(t *testing.T) {
	r := Ratings{{RaterID: "a", Value: 1}, {RaterID: "b", Value: 3}, {RaterID: "a", Value: 5}, {Value: 2}}

	got, changed := r.Normalized()

	assert.True(t, changed)
	assert.Equal(t, Ratings{{RaterID: "a", Value: 5}, {RaterID: "b", Value: 3}}, got)
}

func TestValidateRating(t *testing.T) {
	for _, v := range []int{1, 3, 5} {
		assert.NoError(t, ValidateRating(v))
	}
	for _, v := range []int{0, 6, -1} {
		assert.ErrorIs(t, ValidateRating(v), ErrInvalidRatingValue)
	}
}

func TestValidateCommentText(t *testing.T) {
	assert.NoError(t, ValidateCommentText("nice brushwork"))
	assert.ErrorIs(t, ValidateCommentText(""), ErrEmptyComment)
	assert.ErrorIs(t, ValidateCommentText(" \t\n "), ErrEmptyComment)
	assert.ErrorIs(t, ValidateCommentText(strings.Repeat("é", MaxCommentLength+1)), ErrCommentTooLong)

	// La limite porte sur le texte stocké, espaces de bord retirés.
	padded := "  " + strings.Repeat("é", MaxCommentLength) + "\n"
	assert.NoError(t, ValidateCommentText(padded))
}

func TestEdgeKind_Mirror(t *testing.T) {
	m, err := EdgePersonArtist.Mirror()
	assert.NoError(t, err)
	assert.Equal(t, SetRef{Doc: DocRef{CollectionPersons, "p1"}, Field: FieldFollowingArtists}, m.SubjectSet("p1"))
	assert.Equal(t, SetRef{Doc: DocRef{CollectionArtists, "a1"}, Field: FieldFollowers}, m.ObjectSet("a1"))

	_, err = EdgeKind("artist_person").Mirror()
	assert.ErrorIs(t, err, ErrInvalidEdgeKind)
}
