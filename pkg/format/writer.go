package format

import (
	"sort"
	"strings"

	"github.com/coolbeans/dcatgraph/pkg/store"
)

// PrefixMapping associates a short prefix label with its full namespace IRI.
type PrefixMapping struct {
	Prefix    string
	Namespace string
}

// namespaceIndex compacts IRIs against a set of prefix mappings.
type namespaceIndex struct {
	mappings    []PrefixMapping
	byNamespace map[string]string
}

func newNamespaceIndex(prefixes map[string]string) *namespaceIndex {
	index := &namespaceIndex{byNamespace: make(map[string]string, len(prefixes))}
	for prefix, namespace := range prefixes {
		index.mappings = append(index.mappings, PrefixMapping{Prefix: prefix, Namespace: namespace})
	}
	sort.Slice(index.mappings, func(i, j int) bool {
		return index.mappings[i].Prefix < index.mappings[j].Prefix
	})
	for _, mapping := range index.mappings {
		// Lowest prefix wins when two prefixes share a namespace.
		if _, taken := index.byNamespace[mapping.Namespace]; !taken {
			index.byNamespace[mapping.Namespace] = mapping.Prefix
		}
	}
	return index
}

// split returns the prefix and local name for iri, trying the longest
// matching namespace first. valid filters acceptable local names.
func (index *namespaceIndex) split(iri string, valid func(string) bool) (string, string, bool) {
	bestPrefix := ""
	bestNamespace := ""
	for namespace, prefix := range index.byNamespace {
		if strings.HasPrefix(iri, namespace) && len(namespace) > len(bestNamespace) {
			if valid(iri[len(namespace):]) {
				bestPrefix = prefix
				bestNamespace = namespace
			}
		}
	}
	if bestNamespace == "" {
		return "", "", false
	}
	return bestPrefix, iri[len(bestNamespace):], true
}

// subjectGroup holds the statements about one subject with rdf:type first
// and the remaining predicates in node order.
type subjectGroup struct {
	subject    store.Node
	predicates []store.Node
	objects    map[store.Node][]store.Node
}

func groupBySubject(g store.Graph) []subjectGroup {
	var groups []subjectGroup
	for _, t := range g.Find(store.Node{}, store.Node{}, store.Node{}) {
		if len(groups) == 0 || groups[len(groups)-1].subject != t.Subject {
			groups = append(groups, subjectGroup{
				subject: t.Subject,
				objects: make(map[store.Node][]store.Node),
			})
		}
		group := &groups[len(groups)-1]
		if _, seen := group.objects[t.Predicate]; !seen {
			group.predicates = append(group.predicates, t.Predicate)
		}
		group.objects[t.Predicate] = append(group.objects[t.Predicate], t.Object)
	}
	for i := range groups {
		sortPredicatesTypeFirst(groups[i].predicates)
	}
	return groups
}

func sortPredicatesTypeFirst(predicates []store.Node) {
	sort.SliceStable(predicates, func(i, j int) bool {
		iType := predicates[i] == store.RDFType
		jType := predicates[j] == store.RDFType
		if iType != jType {
			return iType
		}
		return store.Compare(predicates[i], predicates[j]) < 0
	})
}
