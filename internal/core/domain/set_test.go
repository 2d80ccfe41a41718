package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_AddIsMembershipNotMultiset(t *testing.T) {
	var s Set

	assert.True(t, s.Add("p1"))
	assert.False(t, s.Add("p1"))
	assert.False(t, s.Add(""))
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains("p1"))
}

func TestSet_RemoveDoesNotAliasOriginal(t *testing.T) {
	orig := NewSet("a", "b", "c")
	cp := orig[:3]

	assert.True(t, cp.Remove("b"))
	assert.False(t, cp.Remove("b"))
	assert.Equal(t, Set{"a", "c"}, cp)
	assert.Equal(t, Set{"a", "b", "c"}, orig)
}

func TestSet_Normalized(t *testing.T) {
	tests := []struct {
		name    string
		in      Set
		want    Set
		changed bool
	}{
		{name: "nil container", in: nil, want: Set{}, changed: true},
		{name: "clean", in: Set{"a", "b"}, want: Set{"a", "b"}, changed: false},
		{name: "duplicates", in: Set{"a", "b", "a"}, want: Set{"a", "b"}, changed: true},
		{name: "empty id", in: Set{"a", ""}, want: Set{"a"}, changed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := tt.in.Normalized()
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestSet_Page(t *testing.T) {
	s := NewSet("a", "b", "c", "d", "e")

	assert.Equal(t, []string{"a", "b"}, s.Page(0, 2))
	assert.Equal(t, []string{"e"}, s.Page(4, 2))
	assert.Empty(t, s.Page(5, 2))
	assert.Empty(t, s.Page(0, 0))
}

func TestPerson_NormalizeMissingContainers(t *testing.T) {
	p := &Person{ID: "p1", Followers: Set{"p2", "p2"}}

	require.True(t, p.Normalize())
	assert.NotNil(t, p.FollowingArtists)
	assert.NotNil(t, p.Following)
	assert.Equal(t, Set{"p2"}, p.Followers)
	assert.False(t, p.Normalize())
}

func TestArtist_SetRejectsUnknownField(t *testing.T) {
	a := NewArtist("a1", "p1")

	_, err := a.Set(FieldLikes)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.False(t, HasField(CollectionArtists, FieldLikes))
	assert.True(t, HasField(CollectionArtists, FieldFollowedByArtists))
}
