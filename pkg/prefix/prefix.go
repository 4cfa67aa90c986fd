// Package prefix maintains prefix to namespace bindings and the PREFIX
// preamble prepended to every query.
package prefix

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/coolbeans/dcatgraph/pkg/errs"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

// Defaults are the namespaces used in DCAT documents, plus owl.
var Defaults = map[string]string{
	"dcat":   store.NamespaceDCAT,
	"dct":    store.NamespaceDCT,
	"dctype": store.NamespaceDCType,
	"foaf":   store.NamespaceFOAF,
	"owl":    store.NamespaceOWL,
	"rdf":    store.NamespaceRDF,
	"rdfs":   store.NamespaceRDFS,
	"skos":   store.NamespaceSKOS,
	"vcard":  store.NamespaceVCard,
	"xsd":    store.NamespaceXSD,
}

// Registry maps prefixes to namespaces. The preamble is cached and rebuilt
// only after the map changes.
type Registry struct {
	mu         sync.Mutex
	namespaces map[string]string
	preamble   string
	dirty      bool
}

// NewRegistry creates a registry holding Defaults.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	for p, ns := range Defaults {
		r.namespaces[p] = ns
	}
	return r
}

// NewEmptyRegistry creates a registry with no bindings.
func NewEmptyRegistry() *Registry {
	return &Registry{namespaces: make(map[string]string), dirty: true}
}

// SetPrefix binds prefix to namespace, replacing any earlier binding. A nil
// namespace removes the prefix.
func (r *Registry) SetPrefix(prefix string, namespace *string) error {
	if !ValidPrefix(prefix) {
		return errs.NewConfigError(errs.CodeInvalidPrefix, prefix, "prefix %q is not a valid name", prefix)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if namespace == nil {
		if _, ok := r.namespaces[prefix]; ok {
			delete(r.namespaces, prefix)
			r.dirty = true
		}
		return nil
	}
	if *namespace == "" {
		return errs.NewConfigError(errs.CodeInvalidPrefix, prefix, "empty namespace for prefix %q", prefix)
	}
	if current, ok := r.namespaces[prefix]; !ok || current != *namespace {
		r.namespaces[prefix] = *namespace
		r.dirty = true
	}
	return nil
}

// Bind is SetPrefix with a non-nil namespace.
func (r *Registry) Bind(prefix, namespace string) error {
	return r.SetPrefix(prefix, &namespace)
}

// Remove deletes prefix.
func (r *Registry) Remove(prefix string) error {
	return r.SetPrefix(prefix, nil)
}

// Namespace returns the namespace bound to prefix.
func (r *Registry) Namespace(prefix string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, ok := r.namespaces[prefix]
	return ns, ok
}

// Map returns a copy of the bindings.
func (r *Registry) Map() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.namespaces))
	for p, ns := range r.namespaces {
		out[p] = ns
	}
	return out
}

// Preamble returns one "PREFIX p: <ns>" line per binding, sorted by prefix.
func (r *Registry) Preamble() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dirty {
		return r.preamble
	}

	prefixes := make([]string, 0, len(r.namespaces))
	for p := range r.namespaces {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	var builder strings.Builder
	for _, p := range prefixes {
		fmt.Fprintf(&builder, "PREFIX %s: <%s>\n", p, r.namespaces[p])
	}
	r.preamble = builder.String()
	r.dirty = false
	return r.preamble
}

// Expand resolves a prefixed name such as "foaf:name". A term in angle
// brackets is returned without them.
func (r *Registry) Expand(term string) (string, error) {
	term = strings.TrimSpace(term)
	if strings.HasPrefix(term, "<") && strings.HasSuffix(term, ">") {
		return term[1 : len(term)-1], nil
	}
	i := strings.IndexByte(term, ':')
	if i < 0 {
		return "", errs.NewQueryError(errs.CodeUnresolvedPrefix, term, nil, "%q is not a prefixed name", term)
	}
	ns, ok := r.Namespace(term[:i])
	if !ok {
		return "", errs.NewQueryError(errs.CodeUnresolvedPrefix, term, nil, "unknown prefix %q", term[:i])
	}
	return ns + term[i+1:], nil
}

// Compact abbreviates iri with the longest matching namespace.
func (r *Registry) Compact(iri string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	best, bestNS := "", ""
	for p, ns := range r.namespaces {
		if strings.HasPrefix(iri, ns) && len(ns) > len(bestNS) {
			best, bestNS = p, ns
		}
	}
	if bestNS == "" || len(iri) == len(bestNS) {
		return iri
	}
	return best + ":" + iri[len(bestNS):]
}

// ValidPrefix reports whether p can appear before the colon of a prefixed
// name. The empty prefix is allowed.
func ValidPrefix(p string) bool {
	for i, ch := range p {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= 0x80:
		case i > 0 && (ch >= '0' && ch <= '9' || ch == '_' || ch == '-' || ch == '.'):
		default:
			return false
		}
	}
	return !strings.HasSuffix(p, ".")
}
