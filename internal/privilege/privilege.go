// Package privilege defines the fixed catalog of capability tokens that roles
// and memberships are built from.
package privilege

import (
	"errors"
	"strings"
)

// Privilege is an atomic capability token.
type Privilege string

const (
	Admin          Privilege = "ADMIN"
	Read           Privilege = "READ"
	Write          Privilege = "WRITE"
	Execute        Privilege = "EXECUTE"
	Billing        Privilege = "BILLING"
	Network        Privilege = "NETWORK"
	Infrastructure Privilege = "INFRASTRUCTURE"
	DatabaseManage Privilege = "DATABASE_MANAGE"
)

var ErrUnknownPrivilege = errors.New("unknown_privilege")

// catalog order is also the presentation order of every Set.
var catalog = []Privilege{
	Admin,
	Read,
	Write,
	Execute,
	Billing,
	Network,
	Infrastructure,
	DatabaseManage,
}

var rank = func() map[Privilege]int {
	out := make(map[Privilege]int, len(catalog))
	for i, p := range catalog {
		out[p] = i
	}
	return out
}()

// Catalog returns the full catalog as a fresh Set.
func Catalog() Set {
	return append(Set(nil), catalog...)
}

// Minimal is the fallback granted to identities without a membership.
func Minimal() Set {
	return Set{Read}
}

// Known reports whether p belongs to the catalog.
func Known(p Privilege) bool {
	_, ok := rank[p]
	return ok
}

// Parse validates a raw token. Matching is case-insensitive.
func Parse(raw string) (Privilege, error) {
	p := Privilege(strings.ToUpper(strings.TrimSpace(raw)))
	if !Known(p) {
		return "", ErrUnknownPrivilege
	}
	return p, nil
}

// ParseAll validates every token and returns them as a normalized Set.
func ParseAll(raw []string) (Set, error) {
	out := make([]Privilege, 0, len(raw))
	for _, value := range raw {
		p, err := Parse(value)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return NewSet(out...), nil
}

func (p Privilege) String() string { return string(p) }
