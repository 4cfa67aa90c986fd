package store

import (
	"fmt"
	"sort"
	"sync"
)

// Well-known graph names held by a catalog model.
const (
	GraphCatalog   = "catalog"
	GraphSchema    = "schema"
	GraphAlignment = "alignment"
	GraphDataset   = "dataset"
)

// Dataset is a set of independently mutable named graphs.
type Dataset struct {
	mu     sync.RWMutex
	graphs map[string]*TripleStore
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{graphs: make(map[string]*TripleStore)}
}

// CreateGraph adds an empty named graph. Names are unique within a dataset.
func (d *Dataset) CreateGraph(name, base string) (*TripleStore, error) {
	if name == "" {
		return nil, fmt.Errorf("create graph: empty name")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.graphs[name]; exists {
		return nil, fmt.Errorf("create graph: %q already exists", name)
	}
	g := NewNamedGraph(name, base)
	d.graphs[name] = g
	return g, nil
}

// Graph returns the named graph.
func (d *Dataset) Graph(name string) (*TripleStore, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.graphs[name]
	return g, ok
}

// DropGraph removes a named graph from the dataset. It reports whether the
// graph existed.
func (d *Dataset) DropGraph(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.graphs[name]; !ok {
		return false
	}
	delete(d.graphs, name)
	return true
}

// Names returns the graph names in sorted order.
func (d *Dataset) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.graphs))
	for name := range d.graphs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
