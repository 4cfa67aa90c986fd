// Package align loads alignment files: YAML lists of schema assertions that
// relate the vocabularies of different datasets, such as
//
//	name: friends
//	assertions:
//	  - [foaf:Person, owl:equivalentClass, blah:BlahPerson]
//	  - [foaf:knows, owl:equivalentProperty, blah:hasFriend]
//	  - [ex:me, foaf:name, "Me"]
//
// A quoted term in object position is a plain literal.
//
// The assertions of every loaded file make up the alignment graph, which a
// catalog model feeds to the reasoner next to its schema graph.
package align

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/fsnotify.v1"
	"gopkg.in/yaml.v3"

	"github.com/coolbeans/dcatgraph/pkg/prefix"
	"github.com/coolbeans/dcatgraph/pkg/store"
)

// File is one alignment file.
type File struct {
	Name       string        `yaml:"name"`
	Assertions [][]yaml.Node `yaml:"assertions"`

	path    string
	triples []store.Triple
}

// Path returns the file the alignment was loaded from.
func (f *File) Path() string { return f.path }

// Triples returns the expanded assertions.
func (f *File) Triples() []store.Triple { return f.triples }

// Registry holds the loaded alignment files and keeps the alignment graph
// in step with them.
type Registry struct {
	mu       sync.RWMutex
	files    map[string]*File
	dir      string
	prefixes *prefix.Registry
	graph    *store.TripleStore
	logger   *slog.Logger

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	onChange func(event string, file *File)
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for watch events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an empty registry that writes into graph and expands
// prefixed names with prefixes.
func NewRegistry(prefixes *prefix.Registry, graph *store.TripleStore, opts ...Option) *Registry {
	r := &Registry{
		files:    make(map[string]*File),
		prefixes: prefixes,
		graph:    graph,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Graph returns the alignment graph.
func (r *Registry) Graph() *store.TripleStore { return r.graph }

// LoadDirectory loads every YAML file in dir and applies the result. A
// missing directory loads nothing.
func (r *Registry) LoadDirectory(dir string) error {
	r.mu.Lock()
	r.dir = dir
	r.mu.Unlock()

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return r.Apply()
		}
		return fmt.Errorf("checking directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var loadErrors []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		if err := r.load(filepath.Join(dir, entry.Name())); err != nil {
			loadErrors = append(loadErrors, fmt.Sprintf("%s: %v", entry.Name(), err))
		}
	}

	if err := r.Apply(); err != nil {
		return err
	}
	if len(loadErrors) > 0 {
		return fmt.Errorf("errors loading alignments: %s", strings.Join(loadErrors, "; "))
	}
	return nil
}

// LoadFile loads a single alignment file and applies the result.
func (r *Registry) LoadFile(path string) error {
	if err := r.load(path); err != nil {
		return err
	}
	return r.Apply()
}

func (r *Registry) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}
	if file.Name == "" {
		file.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	file.path = path

	for i, assertion := range file.Assertions {
		t, err := r.expand(assertion)
		if err != nil {
			return fmt.Errorf("assertion %d: %w", i+1, err)
		}
		file.triples = append(file.triples, t)
	}

	r.mu.Lock()
	r.files[path] = &file
	r.mu.Unlock()
	return nil
}

// expand turns [subject, predicate, object] into a triple. Terms are
// prefixed names, <iri> or, in object position, quoted literals.
func (r *Registry) expand(assertion []yaml.Node) (store.Triple, error) {
	if len(assertion) != 3 {
		return store.Triple{}, fmt.Errorf("want [subject, predicate, object], got %d terms", len(assertion))
	}

	var nodes [3]store.Node
	for i, node := range assertion {
		if node.Kind != yaml.ScalarNode {
			return store.Triple{}, fmt.Errorf("term %d: want a scalar, line %d", i+1, node.Line)
		}
		term := strings.TrimSpace(node.Value)
		switch {
		case i == 1 && term == "a":
			nodes[i] = store.RDFType
		case i == 2 && node.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0:
			nodes[i] = store.Literal(node.Value)
		default:
			iri, err := r.prefixes.Expand(term)
			if err != nil {
				return store.Triple{}, err
			}
			nodes[i] = store.IRI(iri)
		}
	}
	return store.NewTriple(nodes[0], nodes[1], nodes[2]), nil
}

// Apply rebuilds the alignment graph from the loaded files.
func (r *Registry) Apply() error {
	var triples []store.Triple
	for _, f := range r.Files() {
		triples = append(triples, f.triples...)
	}

	if err := r.graph.Replace(triples); err != nil {
		return fmt.Errorf("applying alignments: %w", err)
	}
	return nil
}

// Files returns the loaded files sorted by path.
func (r *Registry) Files() []*File {
	r.mu.RLock()
	defer r.mu.RUnlock()

	files := make([]*File, 0, len(r.files))
	for _, f := range r.files {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files
}

// Remove forgets the file at path and applies the result.
func (r *Registry) Remove(path string) error {
	r.mu.Lock()
	delete(r.files, path)
	r.mu.Unlock()
	return r.Apply()
}

// Reload forgets every file and loads the directory again.
func (r *Registry) Reload() error {
	r.mu.Lock()
	dir := r.dir
	r.files = make(map[string]*File)
	r.mu.Unlock()

	if dir == "" {
		return fmt.Errorf("no directory configured for reload")
	}
	return r.LoadDirectory(dir)
}

// SetOnChange sets a callback run after a watched change was applied. The
// file is nil for removals.
func (r *Registry) SetOnChange(fn func(event string, file *File)) {
	r.onChange = fn
}

// Watch starts watching the alignment directory for changes.
func (r *Registry) Watch() error {
	r.mu.RLock()
	dir := r.dir
	r.mu.RUnlock()
	if dir == "" {
		return fmt.Errorf("no directory configured for watching")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}

	r.watcher = watcher
	r.stopChan = make(chan struct{})
	go r.watchLoop(watcher, r.stopChan)
	return nil
}

func (r *Registry) watchLoop(watcher *fsnotify.Watcher, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}

			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				r.handleFileChange(event.Name, "create")
			case event.Op&fsnotify.Write == fsnotify.Write:
				r.handleFileChange(event.Name, "modify")
			case event.Op&fsnotify.Remove == fsnotify.Remove:
				r.handleFileRemove(event.Name)
			case event.Op&fsnotify.Rename == fsnotify.Rename:
				r.handleFileRemove(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("alignment watcher error", "error", err)
		}
	}
}

func (r *Registry) handleFileChange(path, event string) {
	if err := r.LoadFile(path); err != nil {
		r.logger.Warn("alignment file rejected", "path", path, "event", event, "error", err)
		return
	}
	r.logger.Info("alignment reloaded", "path", path, "event", event, "triples", r.graph.Len())

	if r.onChange != nil {
		r.mu.RLock()
		file := r.files[path]
		r.mu.RUnlock()
		r.onChange(event, file)
	}
}

func (r *Registry) handleFileRemove(path string) {
	if err := r.Remove(path); err != nil {
		r.logger.Warn("alignment removal failed", "path", path, "error", err)
		return
	}
	r.logger.Info("alignment removed", "path", path, "triples", r.graph.Len())

	if r.onChange != nil {
		r.onChange("remove", nil)
	}
}

// StopWatch stops watching the alignment directory.
func (r *Registry) StopWatch() {
	if r.stopChan != nil {
		close(r.stopChan)
		r.stopChan = nil
	}
	if r.watcher != nil {
		r.watcher.Close()
		r.watcher = nil
	}
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
