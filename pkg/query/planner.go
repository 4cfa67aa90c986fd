package query

import (
	"slices"

	"github.com/coolbeans/dcatgraph/pkg/store"
)

// QueryPlanner orders triple patterns using index statistics.
type QueryPlanner struct {
	stats store.IndexStats
}

// NewQueryPlanner creates a new query planner with index statistics.
func NewQueryPlanner(stats store.IndexStats) *QueryPlanner {
	return &QueryPlanner{
		stats: stats,
	}
}

// OptimizePatterns returns the patterns in execution order. The most
// selective pattern runs first; after that, patterns sharing a variable with
// what is already bound are preferred so that no join degenerates into a
// cross product. The input slice is not modified.
func (qp *QueryPlanner) OptimizePatterns(patterns []TriplePattern) []TriplePattern {
	if len(patterns) <= 1 {
		return patterns
	}

	type candidate struct {
		pattern     TriplePattern
		selectivity float64
	}
	remaining := make([]candidate, len(patterns))
	for i, pattern := range patterns {
		remaining[i] = candidate{pattern: pattern, selectivity: qp.estimateSelectivity(pattern)}
	}
	slices.SortStableFunc(remaining, func(a, b candidate) int {
		switch {
		case a.selectivity < b.selectivity:
			return -1
		case a.selectivity > b.selectivity:
			return 1
		default:
			return 0
		}
	})

	ordered := make([]TriplePattern, 0, len(patterns))
	var bound []string
	for len(remaining) > 0 {
		pick := 0
		if len(bound) > 0 {
			for i, c := range remaining {
				if sharesVariable(c.pattern, bound) {
					pick = i
					break
				}
			}
		}
		chosen := remaining[pick]
		remaining = slices.Delete(remaining, pick, pick+1)
		ordered = append(ordered, chosen.pattern)
		bound = chosen.pattern.vars(bound)
	}
	return ordered
}

func sharesVariable(p TriplePattern, bound []string) bool {
	for _, v := range p.vars(nil) {
		if slices.Contains(bound, v) {
			return true
		}
	}
	return false
}

// estimateSelectivity estimates the number of matches of a pattern.
// Lower values = more selective (fewer results expected).
func (qp *QueryPlanner) estimateSelectivity(pattern TriplePattern) float64 {
	if qp.stats.TotalTriples == 0 {
		return 1.0
	}

	selectivity := float64(qp.stats.TotalTriples)
	boundCount := 0

	if !pattern.Subject.IsVariable() {
		boundCount++
		if count, ok := qp.stats.SubjectCounts[pattern.Subject.Node]; ok {
			selectivity = float64(count)
		} else {
			selectivity = 0.1 // Unknown subject is very selective
		}
	}

	if !pattern.Predicate.IsVariable() {
		boundCount++
		if count, ok := qp.stats.PredicateCounts[pattern.Predicate.Node]; ok {
			if boundCount == 1 {
				selectivity = float64(count)
			} else {
				selectivity *= float64(count) / float64(qp.stats.TotalTriples)
			}
		} else {
			selectivity *= 0.1
		}
	}

	if !pattern.Object.IsVariable() {
		boundCount++
		if count, ok := qp.stats.ObjectCounts[pattern.Object.Node]; ok {
			if boundCount == 1 {
				selectivity = float64(count)
			} else {
				selectivity *= float64(count) / float64(qp.stats.TotalTriples)
			}
		} else {
			selectivity *= 0.1
		}
	}

	if selectivity < 0.1 {
		selectivity = 0.1
	}

	return selectivity
}
