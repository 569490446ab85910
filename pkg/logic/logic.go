// Package logic implements the Logic Engine (spec.md §4.I, new): the
// Engine interface the relational core (pkg/facts, pkg/selector,
// pkg/policy, pkg/reachability, pkg/analysis) programs against, the
// Atom/Term/Rule vocabulary rules are built from, the DNF Answer tree the
// Query Driver parses, and NaiveEngine, the shipped non-recursive
// evaluator. Grounded on constraint.py's GlobalInfo call shape
// (fp.register_relation/fp.rule/fp.fact/fp.query/fp.get_answer) and
// postprocess.py's parse_z3_or_and recursion, walked here in the
// direction of construction rather than parsing.
package logic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Azure/netreach/pkg/npmerrors"
)

// Term is either a bound Var (a rule-local variable, identified by
// position index within the rule) or a Const (a ground value-sort or
// bounded-sort integer).
type Term struct {
	isVar bool
	val   int
}

// Var constructs a variable term. Two Var terms with the same index
// within one Rule's Head+Body refer to the same logical variable.
func Var(index int) Term { return Term{isVar: true, val: index} }

// Const constructs a ground integer term.
func Const(value int) Term { return Term{isVar: false, val: value} }

func (t Term) IsVar() bool { return t.isVar }

// Value returns the variable index (if IsVar) or the constant value.
func (t Term) Value() int { return t.val }

func (t Term) String() string {
	if t.isVar {
		return fmt.Sprintf("X%d", t.val)
	}
	return fmt.Sprintf("%d", t.val)
}

// Atom is a single relation application, optionally negated.
type Atom struct {
	Relation string
	Args     []Term
	Negated  bool
}

// Pos builds a positive atom.
func Pos(relation string, args ...Term) Atom {
	return Atom{Relation: relation, Args: args}
}

// Neg builds a negated atom.
func Neg(relation string, args ...Term) Atom {
	return Atom{Relation: relation, Args: args, Negated: true}
}

func (a Atom) String() string {
	parts := make([]string, len(a.Args))
	for i, arg := range a.Args {
		parts[i] = arg.String()
	}
	s := fmt.Sprintf("%s(%s)", a.Relation, strings.Join(parts, ","))
	if a.Negated {
		return "!" + s
	}
	return s
}

// Rule is a single Horn clause: Head holds whenever every atom of Body
// holds (positive atoms joined, negative atoms excluded).
type Rule struct {
	Head Atom
	Body []Atom
}

// Answer is the DNF tree returned from a query: an Or of And of Eq
// leaves, or any of the degenerate shapes spec.md §6 names (a lone And,
// a lone Eq, or Unsat for an empty result). Implementations are the four
// types below; callers type-switch rather than using isinstance-style
// checks, per spec.md §9's "write the parser against an algebraic
// variant type" note.
type Answer interface {
	answerNode()
}

// AnswerUnsat is the empty-answer case: the query holds for no bindings.
type AnswerUnsat struct{}

func (AnswerUnsat) answerNode() {}

// AnswerEq binds query argument position Var to the integer Value. It
// appears bare when a unary query has exactly one satisfying value.
type AnswerEq struct {
	Var   int
	Value int
}

func (AnswerEq) answerNode() {}

// AnswerAnd joins one Eq per query argument position into a single
// satisfying tuple. It appears bare when the query has exactly one
// satisfying tuple.
type AnswerAnd struct {
	Conjuncts []AnswerEq
}

func (AnswerAnd) answerNode() {}

// AnswerOr unions two or more satisfying tuples.
type AnswerOr struct {
	Disjuncts []Answer
}

func (AnswerOr) answerNode() {}

// Engine is the abstraction the relational core programs against, so
// that the core never depends on a concrete fixed-point implementation.
// Fact and Rule registration are synchronous and cannot fail except as
// noted; Query is the one call that may block and is cancellable.
type Engine interface {
	// Fact asserts a ground tuple in relation.
	Fact(relation string, args ...int)

	// Rule adds a Horn clause. Negated body atoms referencing a
	// relation that has not yet been Sealed are rejected with
	// EngineError, the static form of spec.md §9's "negation safety"
	// concern.
	Rule(rule Rule) error

	// Seal marks relation's definition complete: no further Fact or
	// Rule calls may target it, and it becomes eligible to appear in a
	// negated body atom. Sealing an already-sealed relation is a no-op.
	Seal(relation string) error

	// Query evaluates goal's relation to closure and returns the DNF
	// answer over goal's argument positions. Every argument of goal is
	// expected to be a Var; callers encode constants by folding them
	// into the defining rules instead of the query itself.
	Query(ctx context.Context, goal Atom) (Answer, error)
}

// NaiveEngine is the shipped Engine: a bottom-up evaluator over relation
// extensions represented as sets of integer tuples. It relies on the
// fact (argued for every rule set the relational core emits in
// SPEC_FULL.md §4.I) that no relation is recursive, even transitively,
// through its rule bodies: a single evaluation pass per relation, taken
// in dependency order, reaches the least fixed point. A relation that
// does depend on itself is not evaluated; the query fails with
// EngineError instead.
type NaiveEngine struct {
	arity  map[string]int
	facts  map[string]map[string][]int
	rules  map[string][]Rule
	sealed map[string]bool

	cache map[string][][]int
}

// NewNaiveEngine creates an empty NaiveEngine.
func NewNaiveEngine() *NaiveEngine {
	return &NaiveEngine{
		arity:  make(map[string]int),
		facts:  make(map[string]map[string][]int),
		rules:  make(map[string][]Rule),
		sealed: make(map[string]bool),
		cache:  make(map[string][][]int),
	}
}

func tupleKey(tuple []int) string {
	parts := make([]string, len(tuple))
	for i, v := range tuple {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ",")
}

func (e *NaiveEngine) Fact(relation string, args ...int) {
	if _, ok := e.arity[relation]; !ok {
		e.arity[relation] = len(args)
	}
	if e.facts[relation] == nil {
		e.facts[relation] = make(map[string][]int)
	}
	tuple := append([]int(nil), args...)
	e.facts[relation][tupleKey(tuple)] = tuple
	delete(e.cache, relation)
}

func (e *NaiveEngine) Rule(rule Rule) error {
	if e.sealed[rule.Head.Relation] {
		return npmerrors.New(npmerrors.EngineError, "Rule",
			fmt.Sprintf("relation %q is sealed; no further rules may target it", rule.Head.Relation))
	}
	if _, ok := e.arity[rule.Head.Relation]; !ok {
		e.arity[rule.Head.Relation] = len(rule.Head.Args)
	}
	for _, atom := range rule.Body {
		if atom.Negated && !e.sealed[atom.Relation] {
			return npmerrors.New(npmerrors.EngineError, "Rule",
				fmt.Sprintf("negated atom %q references unsealed relation %q", atom, atom.Relation))
		}
	}
	e.rules[rule.Head.Relation] = append(e.rules[rule.Head.Relation], rule)
	delete(e.cache, rule.Head.Relation)
	return nil
}

func (e *NaiveEngine) Seal(relation string) error {
	e.sealed[relation] = true
	return nil
}

// binding maps rule-local variable indices to bound integer values.
type binding map[int]int

func (b binding) clone() binding {
	out := make(binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// evaluate computes (and memoizes) the full extension of relation as a
// slice of tuples, recursively evaluating any relation its rules depend
// on first.
func (e *NaiveEngine) evaluate(relation string, inProgress map[string]bool) ([][]int, error) {
	if tuples, ok := e.cache[relation]; ok {
		return tuples, nil
	}
	if inProgress[relation] {
		return nil, npmerrors.New(npmerrors.EngineError, "Query",
			fmt.Sprintf("relation %q is recursively defined; NaiveEngine supports only non-recursive programs", relation))
	}
	inProgress[relation] = true
	defer delete(inProgress, relation)

	seen := make(map[string][]int)
	for _, tuple := range e.facts[relation] {
		seen[tupleKey(tuple)] = tuple
	}

	for _, rule := range e.rules[relation] {
		bindings, err := e.evaluateBody(rule.Body, inProgress)
		if err != nil {
			return nil, err
		}
		for _, b := range bindings {
			tuple, ok := project(rule.Head, b)
			if !ok {
				continue
			}
			seen[tupleKey(tuple)] = tuple
		}
	}

	out := make([][]int, 0, len(seen))
	for _, tuple := range seen {
		out = append(out, tuple)
	}
	sort.Slice(out, func(i, j int) bool {
		return tupleKey(out[i]) < tupleKey(out[j])
	})
	e.cache[relation] = out
	return out, nil
}

// evaluateBody joins the body's positive atoms left to right, then
// filters by the negative atoms, once every variable they reference is
// bound.
func (e *NaiveEngine) evaluateBody(body []Atom, inProgress map[string]bool) ([]binding, error) {
	bindings := []binding{{}}

	ordered := make([]Atom, 0, len(body))
	for _, atom := range body {
		if !atom.Negated {
			ordered = append(ordered, atom)
		}
	}
	for _, atom := range body {
		if atom.Negated {
			ordered = append(ordered, atom)
		}
	}

	for _, atom := range ordered {
		tuples, err := e.evaluate(atom.Relation, inProgress)
		if err != nil {
			return nil, err
		}

		if atom.Negated {
			next := make([]binding, 0, len(bindings))
			for _, b := range bindings {
				args, ok := groundArgs(atom.Args, b)
				if !ok {
					return nil, npmerrors.New(npmerrors.EngineError, "Query",
						fmt.Sprintf("negated atom %q has an unbound variable", atom))
				}
				if !containsTuple(tuples, args) {
					next = append(next, b)
				}
			}
			bindings = next
			continue
		}

		var next []binding
		for _, b := range bindings {
			for _, tuple := range tuples {
				nb, ok := unify(atom.Args, tuple, b)
				if ok {
					next = append(next, nb)
				}
			}
		}
		bindings = next
		if len(bindings) == 0 {
			return bindings, nil
		}
	}

	return bindings, nil
}

func unify(args []Term, tuple []int, b binding) (binding, bool) {
	if len(args) != len(tuple) {
		return nil, false
	}
	nb := b.clone()
	for i, arg := range args {
		if arg.IsVar() {
			if bound, ok := nb[arg.Value()]; ok {
				if bound != tuple[i] {
					return nil, false
				}
				continue
			}
			nb[arg.Value()] = tuple[i]
		} else if arg.Value() != tuple[i] {
			return nil, false
		}
	}
	return nb, true
}

func groundArgs(args []Term, b binding) ([]int, bool) {
	out := make([]int, len(args))
	for i, arg := range args {
		if arg.IsVar() {
			v, ok := b[arg.Value()]
			if !ok {
				return nil, false
			}
			out[i] = v
		} else {
			out[i] = arg.Value()
		}
	}
	return out, true
}

func containsTuple(tuples [][]int, target []int) bool {
	key := tupleKey(target)
	for _, t := range tuples {
		if tupleKey(t) == key {
			return true
		}
	}
	return false
}

func project(head Atom, b binding) ([]int, bool) {
	return groundArgs(head.Args, b)
}

func (e *NaiveEngine) Query(ctx context.Context, goal Atom) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return nil, npmerrors.Wrap(npmerrors.Timeout, "Query", "context already done before evaluation started", err)
	}

	tuples, err := e.evaluate(goal.Relation, make(map[string]bool))
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, npmerrors.Wrap(npmerrors.Timeout, "Query", "context expired during evaluation", err)
	}

	return buildAnswer(tuples), nil
}

// buildAnswer renders a tuple set as the DNF Answer tree of spec.md §6,
// collapsing to the degenerate shapes (bare And, bare Eq, Unsat) where
// the tuple set makes that exact, per spec.md §9's guidance to model the
// variability structurally rather than special-case it downstream.
func buildAnswer(tuples [][]int) Answer {
	if len(tuples) == 0 {
		return AnswerUnsat{}
	}
	if len(tuples) == 1 {
		return tupleAnswer(tuples[0])
	}
	disjuncts := make([]Answer, len(tuples))
	for i, t := range tuples {
		disjuncts[i] = tupleAnswer(t)
	}
	return AnswerOr{Disjuncts: disjuncts}
}

func tupleAnswer(tuple []int) Answer {
	if len(tuple) == 1 {
		return AnswerEq{Var: 0, Value: tuple[0]}
	}
	conjuncts := make([]AnswerEq, len(tuple))
	for i, v := range tuple {
		conjuncts[i] = AnswerEq{Var: i, Value: v}
	}
	return AnswerAnd{Conjuncts: conjuncts}
}
