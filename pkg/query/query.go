// Package query implements the Query Driver (spec.md §4.G): issuing a
// rel(v0,v1,...) query to the logic engine and parsing its disjunctive
// answer tree into a set of integer tuples or an N×N reachability
// bit-matrix. Grounded on postprocess.py's parse_z3_result/
// parse_z3_or_and/get_z3_bitarray, walked as a type-switch over
// logic.Answer rather than z3's is_and/is_or/is_eq predicates.
package query

import (
	"context"
	"sort"

	"github.com/Azure/netreach/pkg/logic"
)

// Driver issues queries against one built program's engine.
type Driver struct {
	engine logic.Engine
}

// New creates a Driver bound to engine.
func New(engine logic.Engine) *Driver {
	return &Driver{engine: engine}
}

// Tuples queries relation with the given arity (one Var per argument
// position) and returns every satisfying tuple, sorted for deterministic
// output. An Unsat answer yields an empty, non-nil slice.
func (d *Driver) Tuples(ctx context.Context, relation string, arity int) ([][]int, error) {
	args := make([]logic.Term, arity)
	for i := range args {
		args[i] = logic.Var(i)
	}
	ans, err := d.engine.Query(ctx, logic.Pos(relation, args...))
	if err != nil {
		return nil, err
	}
	tuples := flatten(ans, arity)
	sort.Slice(tuples, func(i, j int) bool { return lessTuple(tuples[i], tuples[j]) })
	return tuples, nil
}

// Unary is a convenience wrapper over Tuples for a one-argument relation,
// returning the bound values directly rather than one-element tuples.
func (d *Driver) Unary(ctx context.Context, relation string) ([]int, error) {
	tuples, err := d.Tuples(ctx, relation, 1)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(tuples))
	for i, t := range tuples {
		out[i] = t[0]
	}
	return out, nil
}

// Pairs is a convenience wrapper over Tuples for a two-argument relation.
func (d *Driver) Pairs(ctx context.Context, relation string) ([][2]int, error) {
	tuples, err := d.Tuples(ctx, relation, 2)
	if err != nil {
		return nil, err
	}
	out := make([][2]int, len(tuples))
	for i, t := range tuples {
		out[i] = [2]int{t[0], t[1]}
	}
	return out, nil
}

// BitMatrix is an n×n boolean adjacency matrix: row i holds, at column j,
// whether the queried relation's pair (i,j) — or, with isIngress=false,
// (j,i) — holds. n is the pod population the matrix is sized to, fixed at
// construction, matching spec.md §4.G's "N × N boolean array" shape.
type BitMatrix [][]bool

// NewBitMatrix allocates an n×n all-false matrix.
func NewBitMatrix(n int) BitMatrix {
	m := make(BitMatrix, n)
	for i := range m {
		m[i] = make([]bool, n)
	}
	return m
}

// BitMatrix runs Pairs against relation and folds the result into an n×n
// matrix. With isIngress true, row src holds the destinations reachable
// from src (matrix[src][dst]); with isIngress false, row dst holds the
// sources that reach dst (matrix[dst][src]) — the two orientations
// get_z3_bitarray's is_ingress flag distinguishes.
func (d *Driver) BitMatrix(ctx context.Context, relation string, n int, isIngress bool) (BitMatrix, error) {
	pairs, err := d.Pairs(ctx, relation)
	if err != nil {
		return nil, err
	}
	m := NewBitMatrix(n)
	for _, p := range pairs {
		src, dst := p[0], p[1]
		if src < 0 || src >= n || dst < 0 || dst >= n {
			continue
		}
		if isIngress {
			m[src][dst] = true
		} else {
			m[dst][src] = true
		}
	}
	return m, nil
}

func lessTuple(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// flatten walks the DNF Answer tree into a flat tuple list, padding each
// leaf/conjunction out to arity positions (unary queries collapse to a
// bare Eq/And-of-one; this restores the uniform [][]int shape callers
// expect regardless of arity).
func flatten(ans logic.Answer, arity int) [][]int {
	switch a := ans.(type) {
	case logic.AnswerUnsat:
		return [][]int{}
	case logic.AnswerEq:
		return [][]int{{a.Value}}
	case logic.AnswerAnd:
		tuple := make([]int, arity)
		for _, eq := range a.Conjuncts {
			tuple[eq.Var] = eq.Value
		}
		return [][]int{tuple}
	case logic.AnswerOr:
		out := make([][]int, 0, len(a.Disjuncts))
		for _, d := range a.Disjuncts {
			out = append(out, flatten(d, arity)...)
		}
		return out
	default:
		return [][]int{}
	}
}
