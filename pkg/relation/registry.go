// Package relation implements the Relation Registry (spec.md §4.B): three
// disjoint dictionaries of typed function symbols — label relations
// (pod-indexed), namespace-label relations (namespace-indexed), and core
// (structural/analytic) relations — grounded on constraint.py's
// GlobalInfo.rels/ns_rels/core_rels and register_relation(_ns).
package relation

import (
	"fmt"

	"github.com/Azure/netreach/pkg/npmerrors"
	"github.com/Azure/netreach/pkg/sort"
)

// Kind identifies which of the three disjoint buckets a Symbol lives in.
type Kind int

const (
	Label Kind = iota
	NamespaceLabel
	Core
)

func (k Kind) String() string {
	switch k {
	case Label:
		return "label"
	case NamespaceLabel:
		return "namespace-label"
	case Core:
		return "core"
	default:
		return "unknown"
	}
}

// Symbol is a typed function symbol: a relation name and the sort of each
// argument position. All registered relations are boolean (membership)
// relations, matching the source's exclusively-BoolSort() functions.
type Symbol struct {
	Name     string
	ArgSorts []sort.Sort
	Kind     Kind
}

// Arity returns the number of arguments Symbol expects.
func (s *Symbol) Arity() int { return len(s.ArgSorts) }

// Registry holds the three disjoint relation buckets for one built program.
type Registry struct {
	label          map[string]*Symbol
	namespaceLabel map[string]*Symbol
	core           map[string]*Symbol
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		label:          make(map[string]*Symbol),
		namespaceLabel: make(map[string]*Symbol),
		core:           make(map[string]*Symbol),
	}
}

func (r *Registry) bucket(kind Kind) map[string]*Symbol {
	switch kind {
	case Label:
		return r.label
	case NamespaceLabel:
		return r.namespaceLabel
	default:
		return r.core
	}
}

// Register adds a new Symbol under the given bucket. Core relations may
// never be re-registered under any bucket; label/namespace-label relations
// may only collide with an existing entry in their own bucket — matching
// spec.md §4.B's "fails with DuplicateRelation if name already exists in
// any bucket under kind=core, or in the same bucket otherwise".
func (r *Registry) Register(name string, argSorts []sort.Sort, kind Kind) (*Symbol, error) {
	if kind == Core {
		if _, exists := r.label[name]; exists {
			return nil, duplicate(name)
		}
		if _, exists := r.namespaceLabel[name]; exists {
			return nil, duplicate(name)
		}
	}
	bucket := r.bucket(kind)
	if _, exists := bucket[name]; exists {
		return nil, duplicate(name)
	}

	sym := &Symbol{Name: name, ArgSorts: argSorts, Kind: kind}
	bucket[name] = sym
	return sym, nil
}

// RegisterIfAbsent returns the existing Symbol for name in the given
// bucket, or registers a fresh one — the "register-if-absent" pattern
// spec.md §9 calls out to replace the source's hidden first-sight
// relation creation during fact emission.
func (r *Registry) RegisterIfAbsent(name string, argSorts []sort.Sort, kind Kind) (*Symbol, error) {
	if sym, ok := r.Lookup(name, kind); ok {
		return sym, nil
	}
	return r.Register(name, argSorts, kind)
}

// Lookup returns the Symbol registered under name in the given bucket, if
// any.
func (r *Registry) Lookup(name string, kind Kind) (*Symbol, bool) {
	sym, ok := r.bucket(kind)[name]
	return sym, ok
}

// Core is a convenience accessor for core relations, used pervasively by
// the reachability and analysis packages.
func (r *Registry) Core(name string) (*Symbol, bool) {
	return r.Lookup(name, Core)
}

func duplicate(name string) error {
	return npmerrors.New(npmerrors.DuplicateRelation, "Register", fmt.Sprintf("relation %q already registered", name))
}
