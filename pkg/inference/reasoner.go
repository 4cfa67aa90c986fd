// Package inference binds a reasoner to a schema graph and serves the
// entailment closure of a base graph as a read-only view.
package inference

import (
	"context"

	"github.com/coolbeans/dcatgraph/pkg/store"
)

// ViewName is the graph name reported by inferred views.
const ViewName = "inferred"

// Reasoner computes the entailment closure of a base graph under a schema.
// The returned graph holds the base and schema triples plus everything they
// entail.
type Reasoner interface {
	Closure(ctx context.Context, schema, base store.Graph) (*store.TripleStore, error)
}

// ReasonerFunc adapts a function to the Reasoner interface.
type ReasonerFunc func(ctx context.Context, schema, base store.Graph) (*store.TripleStore, error)

func (f ReasonerFunc) Closure(ctx context.Context, schema, base store.Graph) (*store.TripleStore, error) {
	return f(ctx, schema, base)
}

// RuleReasoner applies a fixed RDFS/OWL rule set until no new triple is
// derived:
//
//   - rdfs:subClassOf and rdfs:subPropertyOf are transitive and propagate
//     rdf:type and property assertions upwards
//   - owl:equivalentClass and owl:equivalentProperty are mutual sub-relations
//   - owl:sameAs is symmetric and transitive, and statements about one name
//     hold for the other
//   - owl:inverseOf, owl:SymmetricProperty and owl:TransitiveProperty
//   - rdfs:domain and rdfs:range type the subject and object
//
// Evaluation is semi-naive: each round joins only the triples derived in
// the previous round against the closure so far.
type RuleReasoner struct{}

// NewRuleReasoner creates the default reasoner.
func NewRuleReasoner() *RuleReasoner { return &RuleReasoner{} }

// Closure computes base ∪ schema ∪ entailments.
func (r *RuleReasoner) Closure(ctx context.Context, schema, base store.Graph) (*store.TripleStore, error) {
	c := &closure{all: store.NewNamedGraph(ViewName, "")}
	for _, g := range []store.Graph{schema, base} {
		if g == nil {
			continue
		}
		for _, t := range g.Find(store.Node{}, store.Node{}, store.Node{}) {
			c.derive(t)
		}
	}

	for len(c.delta) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		round := c.delta
		c.delta = nil
		for _, t := range round {
			c.apply(t)
		}
	}
	return c.all, nil
}

type closure struct {
	all   *store.TripleStore
	delta []store.Triple
}

// derive adds t if it is well-formed and new, queueing it for the next round.
func (c *closure) derive(t store.Triple) {
	if !t.IsValid() || c.all.Contains(t) {
		return
	}
	if err := c.all.Add(t); err != nil {
		return
	}
	c.delta = append(c.delta, t)
}

func (c *closure) add(s, p, o store.Node) {
	c.derive(store.NewTriple(s, p, o))
}

func (c *closure) find(s, p, o store.Node) []store.Triple {
	return c.all.Find(s, p, o)
}

func (c *closure) has(s, p, o store.Node) bool {
	return c.all.Contains(store.NewTriple(s, p, o))
}

// apply joins a newly derived triple against the closure in every role it
// can play in a rule.
func (c *closure) apply(t store.Triple) {
	s, p, o := t.Subject, t.Predicate, t.Object
	var none store.Node

	switch p {
	case store.RDFSSubClass:
		for _, up := range c.find(o, store.RDFSSubClass, none) {
			c.add(s, store.RDFSSubClass, up.Object)
		}
		for _, down := range c.find(none, store.RDFSSubClass, s) {
			c.add(down.Subject, store.RDFSSubClass, o)
		}
		for _, member := range c.find(none, store.RDFType, s) {
			c.add(member.Subject, store.RDFType, o)
		}

	case store.RDFSSubProp:
		for _, up := range c.find(o, store.RDFSSubProp, none) {
			c.add(s, store.RDFSSubProp, up.Object)
		}
		for _, down := range c.find(none, store.RDFSSubProp, s) {
			c.add(down.Subject, store.RDFSSubProp, o)
		}
		for _, stmt := range c.find(none, s, none) {
			c.add(stmt.Subject, o, stmt.Object)
		}

	case store.OWLEquivalentClass:
		c.add(s, store.RDFSSubClass, o)
		c.add(o, store.RDFSSubClass, s)

	case store.OWLEquivalentProperty:
		c.add(s, store.RDFSSubProp, o)
		c.add(o, store.RDFSSubProp, s)

	case store.OWLSameAs:
		c.add(o, store.OWLSameAs, s)
		for _, next := range c.find(o, store.OWLSameAs, none) {
			c.add(s, store.OWLSameAs, next.Object)
		}
		for _, stmt := range c.find(s, none, none) {
			c.add(o, stmt.Predicate, stmt.Object)
		}
		for _, stmt := range c.find(none, none, s) {
			c.add(stmt.Subject, stmt.Predicate, o)
		}

	case store.OWLInverseOf:
		for _, stmt := range c.find(none, s, none) {
			c.add(stmt.Object, o, stmt.Subject)
		}
		for _, stmt := range c.find(none, o, none) {
			c.add(stmt.Object, s, stmt.Subject)
		}

	case store.RDFSDomain:
		for _, stmt := range c.find(none, s, none) {
			c.add(stmt.Subject, store.RDFType, o)
		}

	case store.RDFSRange:
		for _, stmt := range c.find(none, s, none) {
			c.add(stmt.Object, store.RDFType, o)
		}

	case store.RDFType:
		for _, up := range c.find(o, store.RDFSSubClass, none) {
			c.add(s, store.RDFType, up.Object)
		}
		switch o {
		case store.OWLSymmetricProperty:
			for _, stmt := range c.find(none, s, none) {
				c.add(stmt.Object, s, stmt.Subject)
			}
		case store.OWLTransitiveProperty:
			for _, left := range c.find(none, s, none) {
				for _, right := range c.find(left.Object, s, none) {
					c.add(left.Subject, s, right.Object)
				}
			}
		}
	}

	c.applyProperty(t)
	c.applyIdentity(t)
}

// applyProperty handles t as an assertion of its predicate.
func (c *closure) applyProperty(t store.Triple) {
	s, p, o := t.Subject, t.Predicate, t.Object
	var none store.Node

	for _, up := range c.find(p, store.RDFSSubProp, none) {
		c.add(s, up.Object, o)
	}
	for _, inv := range c.find(p, store.OWLInverseOf, none) {
		c.add(o, inv.Object, s)
	}
	for _, inv := range c.find(none, store.OWLInverseOf, p) {
		c.add(o, inv.Subject, s)
	}
	for _, d := range c.find(p, store.RDFSDomain, none) {
		c.add(s, store.RDFType, d.Object)
	}
	if o.IsResource() {
		for _, r := range c.find(p, store.RDFSRange, none) {
			c.add(o, store.RDFType, r.Object)
		}
	}
	if c.has(p, store.RDFType, store.OWLSymmetricProperty) {
		c.add(o, p, s)
	}
	if c.has(p, store.RDFType, store.OWLTransitiveProperty) {
		for _, right := range c.find(o, p, none) {
			c.add(s, p, right.Object)
		}
		for _, left := range c.find(none, p, s) {
			c.add(left.Subject, p, o)
		}
	}
}

// applyIdentity replicates t over the owl:sameAs aliases of its subject and
// object.
func (c *closure) applyIdentity(t store.Triple) {
	s, p, o := t.Subject, t.Predicate, t.Object
	var none store.Node

	for _, alias := range c.find(s, store.OWLSameAs, none) {
		c.add(alias.Object, p, o)
	}
	if o.IsResource() {
		for _, alias := range c.find(o, store.OWLSameAs, none) {
			c.add(s, p, alias.Object)
		}
	}
	if p == store.OWLSameAs {
		for _, prev := range c.find(none, store.OWLSameAs, s) {
			c.add(prev.Subject, store.OWLSameAs, o)
		}
	}
}
