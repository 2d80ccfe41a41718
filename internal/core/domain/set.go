package domain

// Set est un ensemble d'identifiants qui conserve l'ordre d'insertion.
// Un Set nil représente un conteneur absent (document antérieur au schéma) ;
// il se lit comme un ensemble vide.
type Set []string

func NewSet(ids ...string) Set {
	s := make(Set, 0, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s Set) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

func (s Set) Len() int { return len(s) }

// Add ajoute id s'il est absent. Retourne true si l'ensemble a changé.
func (s *Set) Add(id string) bool {
	if id == "" || s.Contains(id) {
		return false
	}
	if *s == nil {
		*s = Set{}
	}
	*s = append(*s, id)
	return true
}

// Remove retire id s'il est présent. Retourne true si l'ensemble a changé.
func (s *Set) Remove(id string) bool {
	for i, v := range *s {
		if v == id {
			*s = append((*s)[:i:i], (*s)[i+1:]...)
			return true
		}
	}
	return false
}

// Normalized renvoie une copie non-nil, sans doublon ni id vide.
// changed indique si la copie diffère de l'original.
func (s Set) Normalized() (Set, bool) {
	changed := s == nil
	out := make(Set, 0, len(s))
	for _, id := range s {
		if !out.Add(id) {
			changed = true
		}
	}
	return out, changed
}

// Page découpe l'ensemble pour la pagination offset/limit.
func (s Set) Page(offset, limit int) []string {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(s) || limit <= 0 {
		return []string{}
	}
	end := offset + limit
	if end > len(s) {
		end = len(s)
	}
	out := make([]string, end-offset)
	copy(out, s[offset:end])
	return out
}

func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	copy(out, s)
	return out
}
