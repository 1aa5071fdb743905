// Package eid generates and validates the short, human-typable organization
// codes (for example NX-1234-A).
package eid

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
)

const DefaultPrefix = "NX"

var pattern = regexp.MustCompile(`^[A-Z]{2,8}-[0-9]{4}-[A-Z]$`)

// Generator produces candidate codes. Uniqueness is not guaranteed here;
// callers check the store and retry on collision.
type Generator interface {
	Next() string
}

type randomGenerator struct {
	prefix string
	rng    *rand.Rand
}

// NewGenerator returns a Generator for PREFIX-NNNN-L codes.
func NewGenerator(prefix string) Generator {
	return NewGeneratorWithSource(prefix, rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// NewGeneratorWithSource is NewGenerator with a caller-supplied source, for
// deterministic sequences in tests.
func NewGeneratorWithSource(prefix string, src rand.Source) Generator {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &randomGenerator{prefix: prefix, rng: rand.New(src)}
}

func (g *randomGenerator) Next() string {
	number := 1000 + g.rng.IntN(9000)
	letter := rune('A' + g.rng.IntN(26))
	return fmt.Sprintf("%s-%04d-%c", g.prefix, number, letter)
}

// Normalize trims and upper-cases a user supplied code.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Valid reports whether code matches PREFIX-NNNN-L.
func Valid(code string) bool {
	return pattern.MatchString(code)
}

// Sequence replays a fixed list of codes, then repeats the last one.
type Sequence struct {
	codes []string
	next  int
}

func NewSequence(codes ...string) *Sequence {
	return &Sequence{codes: codes}
}

func (s *Sequence) Next() string {
	if len(s.codes) == 0 {
		return ""
	}
	if s.next >= len(s.codes) {
		return s.codes[len(s.codes)-1]
	}
	code := s.codes[s.next]
	s.next++
	return code
}
