package store

import (
	"fmt"
	"slices"
)

// Triple is an ordered (subject, predicate, object) statement.
type Triple struct {
	Subject   Node
	Predicate Node
	Object    Node
}

// NewTriple creates a new triple with the given components.
func NewTriple(subject, predicate, object Node) Triple {
	return Triple{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
	}
}

// Equals checks if two triples have identical components.
func (t Triple) Equals(other Triple) bool {
	return t == other
}

// String returns the triple as an N-Triples statement.
func (t Triple) String() string {
	return fmt.Sprintf("%s %s %s .", t.Subject, t.Predicate, t.Object)
}

// IsValid reports whether the triple is well-formed: a resource subject, an
// IRI predicate and a bound object.
func (t Triple) IsValid() bool {
	return t.Subject.IsResource() && t.Predicate.IsIRI() && !t.Object.IsZero()
}

// TriplePattern is a pattern for matching triples. Zero nodes act as
// wildcards that match any value.
type TriplePattern struct {
	Subject   Node
	Predicate Node
	Object    Node
}

// NewTriplePattern creates a new pattern for querying.
func NewTriplePattern(subject, predicate, object Node) TriplePattern {
	return TriplePattern{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
	}
}

// Matches checks if a triple matches this pattern.
func (p TriplePattern) Matches(t Triple) bool {
	if !p.Subject.IsZero() && p.Subject != t.Subject {
		return false
	}
	if !p.Predicate.IsZero() && p.Predicate != t.Predicate {
		return false
	}
	if !p.Object.IsZero() && p.Object != t.Object {
		return false
	}
	return true
}

// WildcardCount returns the number of wildcard components.
func (p TriplePattern) WildcardCount() int {
	count := 0
	if p.Subject.IsZero() {
		count++
	}
	if p.Predicate.IsZero() {
		count++
	}
	if p.Object.IsZero() {
		count++
	}
	return count
}

// SortTriples orders triples by subject, predicate, then object.
func SortTriples(triples []Triple) {
	slices.SortFunc(triples, func(a, b Triple) int {
		if c := Compare(a.Subject, b.Subject); c != 0 {
			return c
		}
		if c := Compare(a.Predicate, b.Predicate); c != 0 {
			return c
		}
		return Compare(a.Object, b.Object)
	})
}
