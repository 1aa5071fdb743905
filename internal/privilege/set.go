package privilege

import (
	"database/sql/driver"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/datatypes"
)

// Set is an immutable-by-convention, deduplicated privilege list kept in
// catalog order. Methods never mutate the receiver.
type Set []Privilege

// NewSet deduplicates and orders the given privileges. Unknown tokens are
// dropped; validate with Parse first when input is untrusted.
func NewSet(values ...Privilege) Set {
	return fromMapset(mapset.NewThreadUnsafeSet(values...))
}

func (s Set) toMapset() mapset.Set[Privilege] {
	return mapset.NewThreadUnsafeSet(s...)
}

func fromMapset(m mapset.Set[Privilege]) Set {
	out := make(Set, 0, m.Cardinality())
	for _, p := range m.ToSlice() {
		if Known(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return rank[out[i]] < rank[out[j]] })
	return out
}

func (s Set) Contains(p Privilege) bool {
	for _, v := range s {
		if v == p {
			return true
		}
	}
	return false
}

func (s Set) Intersects(other Set) bool {
	if len(s) == 0 || len(other) == 0 {
		return false
	}
	return s.toMapset().Intersect(other.toMapset()).Cardinality() > 0
}

func (s Set) Union(other Set) Set {
	return fromMapset(s.toMapset().Union(other.toMapset()))
}

// Toggle returns the full replacement set with p flipped.
func (s Set) Toggle(p Privilege) Set {
	m := s.toMapset()
	if m.Contains(p) {
		m.Remove(p)
	} else {
		m.Add(p)
	}
	return fromMapset(m)
}

func (s Set) Equal(other Set) bool {
	return s.toMapset().Equal(other.toMapset())
}

func (s Set) Clone() Set {
	return append(Set{}, s...)
}

func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for _, p := range s {
		out = append(out, string(p))
	}
	return out
}

// Value stores the set as a JSON array.
func (s Set) Value() (driver.Value, error) {
	if s == nil {
		s = Set{}
	}
	v, err := datatypes.JSONSlice[Privilege](s).Value()
	if err != nil {
		return nil, err
	}
	if b, ok := v.([]byte); ok {
		return string(b), nil
	}
	return v, nil
}

// Scan reads a JSON array written by Value.
func (s *Set) Scan(value any) error {
	var raw datatypes.JSONSlice[Privilege]
	if err := raw.Scan(value); err != nil {
		return err
	}
	*s = NewSet(raw...)
	return nil
}
