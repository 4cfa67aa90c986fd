package store

// UnionGraph is a read-only view over several graphs. A triple is in the
// union if it is in any member.
type UnionGraph struct {
	members []Graph
}

// Union creates a read-only view over graphs.
func Union(graphs ...Graph) *UnionGraph {
	return &UnionGraph{members: graphs}
}

// Find returns the distinct matching triples of all members, sorted.
func (u *UnionGraph) Find(subject, predicate, object Node) []Triple {
	if len(u.members) == 1 {
		return u.members[0].Find(subject, predicate, object)
	}

	seen := make(map[Triple]bool)
	var results []Triple
	for _, g := range u.members {
		for _, t := range g.Find(subject, predicate, object) {
			if seen[t] {
				continue
			}
			seen[t] = true
			results = append(results, t)
		}
	}
	SortTriples(results)
	return results
}

func (u *UnionGraph) Contains(t Triple) bool {
	for _, g := range u.members {
		if g.Contains(t) {
			return true
		}
	}
	return false
}

func (u *UnionGraph) Len() int {
	return len(u.Find(Node{}, Node{}, Node{}))
}

// Generation changes whenever any member changes.
func (u *UnionGraph) Generation() uint64 {
	var gen uint64
	for _, g := range u.members {
		gen += g.Generation()
	}
	return gen
}
