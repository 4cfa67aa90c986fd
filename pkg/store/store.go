package store

import (
	"fmt"
	"slices"
	"sync"
)

// Graph is the read surface shared by stored graphs, unions and derived
// views. Zero nodes passed to Find are wildcards.
type Graph interface {
	Find(subject, predicate, object Node) []Triple
	Contains(t Triple) bool
	Len() int
	// Generation increases whenever the graph's content changes.
	Generation() uint64
}

// IndexStats contains statistics about the triple store for query optimization.
type IndexStats struct {
	TotalTriples     int          `json:"total_triples"`
	UniqueSubjects   int          `json:"unique_subjects"`
	UniquePredicates int          `json:"unique_predicates"`
	UniqueObjects    int          `json:"unique_objects"`
	PredicateCounts  map[Node]int `json:"predicate_counts"`
	SubjectCounts    map[Node]int `json:"subject_counts"`
	ObjectCounts     map[Node]int `json:"object_counts"`
}

// TripleStore is a named in-memory graph with multiple indexes.
// It provides efficient lookups via three indexes:
//   - SPO: Subject -> Predicate -> Object (find facts about a subject)
//   - POS: Predicate -> Object -> Subject (find subjects with property=value)
//   - OSP: Object -> Subject -> Predicate (find subjects pointing to object)
//
// A TripleStore has set semantics: adding a triple that is already present
// is a no-op.
type TripleStore struct {
	mu sync.RWMutex

	name string
	base string

	spo map[Node]map[Node]map[Node]bool
	pos map[Node]map[Node]map[Node]bool
	osp map[Node]map[Node]map[Node]bool

	count      int
	generation uint64

	predicateCounts map[Node]int
	subjectCounts   map[Node]int
	objectCounts    map[Node]int
}

// NewTripleStore creates an empty, unnamed graph.
func NewTripleStore() *TripleStore {
	return NewNamedGraph("", "")
}

// NewNamedGraph creates an empty graph with a name and the base namespace
// used to resolve relative identifiers while reading into it.
func NewNamedGraph(name, base string) *TripleStore {
	ts := &TripleStore{name: name, base: base}
	ts.reset()
	return ts
}

func (ts *TripleStore) reset() {
	ts.spo = make(map[Node]map[Node]map[Node]bool)
	ts.pos = make(map[Node]map[Node]map[Node]bool)
	ts.osp = make(map[Node]map[Node]map[Node]bool)
	ts.count = 0
	ts.predicateCounts = make(map[Node]int)
	ts.subjectCounts = make(map[Node]int)
	ts.objectCounts = make(map[Node]int)
}

// Name returns the graph name.
func (ts *TripleStore) Name() string { return ts.name }

// Base returns the graph's base namespace.
func (ts *TripleStore) Base() string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.base
}

// SetBase changes the base namespace used by subsequent reads.
func (ts *TripleStore) SetBase(base string) {
	ts.mu.Lock()
	ts.base = base
	ts.mu.Unlock()
}

// Add inserts a triple. Adding a triple that already exists is a no-op.
func (ts *TripleStore) Add(t Triple) error {
	if !t.IsValid() {
		return fmt.Errorf("invalid triple %s", t)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.insertUnsafe(t) {
		ts.generation++
	}
	return nil
}

// BulkAdd inserts triples as one mutation: if any triple is invalid nothing
// is inserted. Holds the write lock for the entire operation.
func (ts *TripleStore) BulkAdd(triples []Triple) error {
	for _, t := range triples {
		if !t.IsValid() {
			return fmt.Errorf("invalid triple %s", t)
		}
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	added := false
	for _, t := range triples {
		if ts.insertUnsafe(t) {
			added = true
		}
	}
	if added {
		ts.generation++
	}
	return nil
}

// Replace swaps the store's content for triples as one mutation, so readers
// see either the old content or the new, never an empty store in between.
// If any triple is invalid the store is left unchanged.
func (ts *TripleStore) Replace(triples []Triple) error {
	for _, t := range triples {
		if !t.IsValid() {
			return fmt.Errorf("invalid triple %s", t)
		}
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	hadContent := ts.count > 0
	ts.reset()
	added := false
	for _, t := range triples {
		if ts.insertUnsafe(t) {
			added = true
		}
	}
	if hadContent || added {
		ts.generation++
	}
	return nil
}

// MergeFrom copies all triples from source into this store and returns the
// number of new triples.
func (ts *TripleStore) MergeFrom(source Graph) int {
	before := ts.Len()
	_ = ts.BulkAdd(source.Find(Node{}, Node{}, Node{}))
	return ts.Len() - before
}

func (ts *TripleStore) insertUnsafe(t Triple) bool {
	subject, predicate, object := t.Subject, t.Predicate, t.Object
	if ts.existsUnsafe(subject, predicate, object) {
		return false
	}

	if ts.spo[subject] == nil {
		ts.spo[subject] = make(map[Node]map[Node]bool)
	}
	if ts.spo[subject][predicate] == nil {
		ts.spo[subject][predicate] = make(map[Node]bool)
	}
	ts.spo[subject][predicate][object] = true

	if ts.pos[predicate] == nil {
		ts.pos[predicate] = make(map[Node]map[Node]bool)
	}
	if ts.pos[predicate][object] == nil {
		ts.pos[predicate][object] = make(map[Node]bool)
	}
	ts.pos[predicate][object][subject] = true

	if ts.osp[object] == nil {
		ts.osp[object] = make(map[Node]map[Node]bool)
	}
	if ts.osp[object][subject] == nil {
		ts.osp[object][subject] = make(map[Node]bool)
	}
	ts.osp[object][subject][predicate] = true

	ts.predicateCounts[predicate]++
	ts.subjectCounts[subject]++
	ts.objectCounts[object]++
	ts.count++
	return true
}

// Find returns the triples matching the pattern, ordered by subject,
// predicate and object. Zero nodes are wildcards.
func (ts *TripleStore) Find(subject, predicate, object Node) []Triple {
	ts.mu.RLock()
	results := ts.findUnsafe(subject, predicate, object)
	ts.mu.RUnlock()

	SortTriples(results)
	return results
}

// FindPattern queries using a TriplePattern.
func (ts *TripleStore) FindPattern(pattern TriplePattern) []Triple {
	return ts.Find(pattern.Subject, pattern.Predicate, pattern.Object)
}

// Contains reports whether the exact triple is in the graph.
func (ts *TripleStore) Contains(t Triple) bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.existsUnsafe(t.Subject, t.Predicate, t.Object)
}

// Objects returns the objects of all (subject, predicate, *) triples in
// node order.
func (ts *TripleStore) Objects(subject, predicate Node) []Node {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	var objects []Node
	if pMap, ok := ts.spo[subject]; ok {
		for o := range pMap[predicate] {
			objects = append(objects, o)
		}
	}
	slices.SortFunc(objects, Compare)
	return objects
}

// Delete removes matching triples and returns how many were removed.
func (ts *TripleStore) Delete(subject, predicate, object Node) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	matches := ts.findUnsafe(subject, predicate, object)
	for _, triple := range matches {
		ts.deleteTripleUnsafe(triple.Subject, triple.Predicate, triple.Object)
	}
	if len(matches) > 0 {
		ts.generation++
	}
	return len(matches)
}

// RemoveAll empties the graph. The base namespace is kept.
func (ts *TripleStore) RemoveAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.count > 0 {
		ts.generation++
	}
	ts.reset()
}

// Len returns the total number of triples in the store.
func (ts *TripleStore) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.count
}

// Generation returns a counter that increases on every mutation that
// changes the graph's content.
func (ts *TripleStore) Generation() uint64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.generation
}

// Subjects returns all unique subjects in the store.
func (ts *TripleStore) Subjects() []Node {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	subjects := make([]Node, 0, len(ts.spo))
	for s := range ts.spo {
		subjects = append(subjects, s)
	}
	return subjects
}

// Stats returns statistics about the store for query optimization.
func (ts *TripleStore) Stats() IndexStats {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	return IndexStats{
		TotalTriples:     ts.count,
		UniqueSubjects:   len(ts.spo),
		UniquePredicates: len(ts.pos),
		UniqueObjects:    len(ts.osp),
		PredicateCounts:  copyCounts(ts.predicateCounts),
		SubjectCounts:    copyCounts(ts.subjectCounts),
		ObjectCounts:     copyCounts(ts.objectCounts),
	}
}

func copyCounts(counts map[Node]int) map[Node]int {
	out := make(map[Node]int, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}

// String returns a string representation of the store statistics.
func (ts *TripleStore) String() string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	return fmt.Sprintf("TripleStore{name: %q, triples: %d, subjects: %d, predicates: %d, objects: %d}",
		ts.name, ts.count, len(ts.spo), len(ts.pos), len(ts.osp))
}

// All returns all triples in the store.
func (ts *TripleStore) All() []Triple {
	return ts.Find(Node{}, Node{}, Node{})
}

func (ts *TripleStore) existsUnsafe(subject, predicate, object Node) bool {
	if pMap, ok := ts.spo[subject]; ok {
		if oMap, ok := pMap[predicate]; ok {
			return oMap[object]
		}
	}
	return false
}

// findUnsafe finds triples without locking, using the index that matches the
// bound components.
func (ts *TripleStore) findUnsafe(subject, predicate, object Node) []Triple {
	var results []Triple

	switch {
	case subject.IsZero() && predicate.IsZero() && object.IsZero():
		for s, pMap := range ts.spo {
			for p, oMap := range pMap {
				for o := range oMap {
					results = append(results, Triple{Subject: s, Predicate: p, Object: o})
				}
			}
		}

	case !subject.IsZero():
		pMap, ok := ts.spo[subject]
		if !ok {
			return nil
		}
		for p, oMap := range pMap {
			if !predicate.IsZero() && p != predicate {
				continue
			}
			if !object.IsZero() {
				if oMap[object] {
					results = append(results, Triple{Subject: subject, Predicate: p, Object: object})
				}
				continue
			}
			for o := range oMap {
				results = append(results, Triple{Subject: subject, Predicate: p, Object: o})
			}
		}

	case !predicate.IsZero():
		oMap, ok := ts.pos[predicate]
		if !ok {
			return nil
		}
		for o, sMap := range oMap {
			if !object.IsZero() && o != object {
				continue
			}
			for s := range sMap {
				results = append(results, Triple{Subject: s, Predicate: predicate, Object: o})
			}
		}

	default:
		for s, pMap := range ts.osp[object] {
			for p := range pMap {
				results = append(results, Triple{Subject: s, Predicate: p, Object: object})
			}
		}
	}

	return results
}

// deleteTripleUnsafe deletes a specific triple without locking.
func (ts *TripleStore) deleteTripleUnsafe(subject, predicate, object Node) {
	if !ts.existsUnsafe(subject, predicate, object) {
		return
	}

	if pMap, ok := ts.spo[subject]; ok {
		if oMap, ok := pMap[predicate]; ok {
			delete(oMap, object)
			if len(oMap) == 0 {
				delete(pMap, predicate)
			}
		}
		if len(pMap) == 0 {
			delete(ts.spo, subject)
		}
	}

	if oMap, ok := ts.pos[predicate]; ok {
		if sMap, ok := oMap[object]; ok {
			delete(sMap, subject)
			if len(sMap) == 0 {
				delete(oMap, object)
			}
		}
		if len(oMap) == 0 {
			delete(ts.pos, predicate)
		}
	}

	if sMap, ok := ts.osp[object]; ok {
		if pMap, ok := sMap[subject]; ok {
			delete(pMap, predicate)
			if len(pMap) == 0 {
				delete(sMap, subject)
			}
		}
		if len(sMap) == 0 {
			delete(ts.osp, object)
		}
	}

	decrement(ts.predicateCounts, predicate)
	decrement(ts.subjectCounts, subject)
	decrement(ts.objectCounts, object)
	ts.count--
}

func decrement(counts map[Node]int, key Node) {
	counts[key]--
	if counts[key] <= 0 {
		delete(counts, key)
	}
}
