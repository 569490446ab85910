// Package selector implements the Selector Compiler (spec.md §4.D):
// translation of a model.Selector (matchLabels + matchExpressions) into
// one or more conjunctions of logic.Atom literals over registered label
// or namespace-label relations. Grounded on npm/parseSelector.go's
// parseSelector (operator dispatch over metav1.LabelSelectorOperator)
// and constraint.py's notes on empty-selector/absent-key semantics.
package selector

import (
	"sort"

	"k8s.io/klog/v2"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/Azure/netreach/pkg/intern"
	"github.com/Azure/netreach/pkg/logic"
	"github.com/Azure/netreach/pkg/model"
	"github.com/Azure/netreach/pkg/relation"
)

// Compiler produces rule bodies from selectors, consulting the
// interner to turn label values into value-sort tokens and the engine
// to seal label and presence relations immediately before negating them (the
// negation-safety rule of logic.Engine.Rule; see pkg/reachability for
// the matching pattern over selected_by_any).
type Compiler struct {
	registry *relation.Registry
	interner *intern.Interner
	engine   logic.Engine

	sealedExists map[string]bool
}

// New creates a Compiler bound to one build's registry/interner/engine.
func New(registry *relation.Registry, interner *intern.Interner, engine logic.Engine) *Compiler {
	return &Compiler{registry: registry, interner: interner, engine: engine, sealedExists: make(map[string]bool)}
}

// Bodies is a disjunction of conjunctions: selector compilation produces
// more than one body only when a matchExpression uses In over more than
// one value, since Horn rule bodies admit no disjunction (spec.md
// §4.D/§9) — callers duplicate the enclosing rule once per Bodies entry.
type Bodies [][]logic.Atom

// Compile compiles sel against pod variable x, consulting the pod
// (Label-bucket) relations. An empty selector yields {is_pod(x)}.
func (c *Compiler) Compile(sel model.Selector, x logic.Term) (Bodies, error) {
	return c.compile(sel, x, relation.Label, "", []logic.Atom{logic.Pos("is_pod", x)})
}

// CompileNamespace compiles sel against namespace variable y, consulting
// the namespace-label bucket (suffix "__namespace"). An empty selector
// yields no atoms at all: y is already constrained to a valid namespace
// index by the namespace(pod,y) atom callers pair this with.
func (c *Compiler) CompileNamespace(sel model.Selector, y logic.Term) (Bodies, error) {
	return c.compile(sel, y, relation.NamespaceLabel, "__namespace", nil)
}

func (c *Compiler) compile(sel model.Selector, v logic.Term, kind relation.Kind, suffix string, emptyBody []logic.Atom) (Bodies, error) {
	if sel.Empty() {
		return Bodies{append([]logic.Atom(nil), emptyBody...)}, nil
	}

	bodies := Bodies{{}}

	keys := make([]string, 0, len(sel.MatchLabels))
	for k := range sel.MatchLabels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := sel.MatchLabels[key]
		atom, err := c.equalityAtom(key, suffix, value, v, kind)
		if err != nil {
			return nil, err
		}
		bodies = appendToEach(bodies, atom)
	}

	for _, expr := range sel.MatchExpressions {
		var err error
		bodies, err = c.applyExpression(bodies, expr, v, kind, suffix)
		if err != nil {
			return nil, err
		}
	}

	return bodies, nil
}

func (c *Compiler) applyExpression(bodies Bodies, expr metav1.LabelSelectorRequirement, v logic.Term, kind relation.Kind, suffix string) (Bodies, error) {
	relName := expr.Key + suffix
	existsName := expr.Key + suffix + "__exists"

	switch expr.Operator {
	case metav1.LabelSelectorOpIn:
		var next Bodies
		for _, body := range bodies {
			for _, value := range expr.Values {
				tok, err := c.interner.Intern(value)
				if err != nil {
					return nil, err
				}
				extended := append(append([]logic.Atom(nil), body...), logic.Pos(relName, v, logic.Const(int(tok))))
				next = append(next, extended)
			}
		}
		return next, nil

	case metav1.LabelSelectorOpNotIn:
		atoms := []logic.Atom{logic.Pos(existsName, v)}
		for _, value := range expr.Values {
			tok, err := c.interner.Intern(value)
			if err != nil {
				return nil, err
			}
			if err := c.sealOnce(relName); err != nil {
				return nil, err
			}
			atoms = append(atoms, logic.Neg(relName, v, logic.Const(int(tok))))
		}
		return appendAllToEach(bodies, atoms), nil

	case metav1.LabelSelectorOpExists:
		return appendToEach(bodies, logic.Pos(existsName, v)), nil

	case metav1.LabelSelectorOpDoesNotExist:
		if err := c.sealOnce(existsName); err != nil {
			return nil, err
		}
		return appendToEach(bodies, logic.Neg(existsName, v)), nil

	default:
		klog.Warningf("selector: unknown operator %q on key %q, treating as always-false", expr.Operator, expr.Key)
		return appendToEach(bodies, logic.Pos(relName+"__unsupported_operator", v)), nil
	}
}

func (c *Compiler) equalityAtom(key, suffix, value string, v logic.Term, kind relation.Kind) (logic.Atom, error) {
	tok, err := c.interner.Intern(value)
	if err != nil {
		return logic.Atom{}, err
	}
	relName := key + suffix
	if _, ok := c.registry.Lookup(relName, kind); !ok {
		klog.V(4).Infof("selector: label key %q never observed on any %s, compiling a vacuous predicate", key, kind)
	}
	return logic.Pos(relName, v, logic.Const(int(tok))), nil
}

// sealOnce seals relation at most once per Compiler lifetime, needed
// before the first Neg atom referencing it: Compile only ever runs
// after the fact-emission stage of the build, so no further facts will
// legitimately arrive for any presence relation by this point.
func (c *Compiler) sealOnce(relation string) error {
	if c.sealedExists[relation] {
		return nil
	}
	c.sealedExists[relation] = true
	return c.engine.Seal(relation)
}

func appendToEach(bodies Bodies, atom logic.Atom) Bodies {
	out := make(Bodies, len(bodies))
	for i, body := range bodies {
		out[i] = append(append([]logic.Atom(nil), body...), atom)
	}
	return out
}

func appendAllToEach(bodies Bodies, atoms []logic.Atom) Bodies {
	out := make(Bodies, len(bodies))
	for i, body := range bodies {
		out[i] = append(append([]logic.Atom(nil), body...), atoms...)
	}
	return out
}
