// Package analysis implements the Postprocess Analytics (spec.md §4.H):
// all_reachable, all_isolated, user_crosscheck, system_isolation,
// policy_shadow, and policy_conflict, each synthesizing a small Horn
// program of its own against an already-built engine. Grounded 1:1 on
// postprocess.py's five analytic functions — note the Python source
// defines two functions named policy_shadow (the second actually
// computes a conflict relation, silently shadowing the first at module
// scope); this package names them distinctly instead, per spec.md §9.
package analysis

import (
	"context"
	"fmt"

	"github.com/Azure/netreach/pkg/facts"
	"github.com/Azure/netreach/pkg/logic"
	"github.com/Azure/netreach/pkg/policy"
	"github.com/Azure/netreach/pkg/query"
	"github.com/Azure/netreach/pkg/reachability"
	"github.com/Azure/netreach/pkg/relation"
	rsort "github.com/Azure/netreach/pkg/sort"
)

// Analyzer runs the postprocess analytics against one built program.
// Each method registers its own relation(s) under a name suffixed by its
// arguments, so distinct calls (e.g. SystemIsolation(0) and
// SystemIsolation(1)) never collide — matching spec.md §5's "give each
// analytic relation a unique suffix" requirement.
type Analyzer struct {
	registry *relation.Registry
	engine   logic.Engine
	driver   *query.Driver
	podCount int
}

// New creates an Analyzer over a fully built program's registry/engine.
func New(registry *relation.Registry, engine logic.Engine, podCount int) *Analyzer {
	return &Analyzer{registry: registry, engine: engine, driver: query.New(engine), podCount: podCount}
}

// AllReachable returns indices i such that every other pod j has
// matrix[j][i] = true: i is reachable from anywhere.
func (a *Analyzer) AllReachable(ctx context.Context) ([]int, error) {
	matrix, err := a.driver.BitMatrix(ctx, reachability.RelEdge, a.podCount, true)
	if err != nil {
		return nil, err
	}
	var out []int
	for i := 0; i < a.podCount; i++ {
		reachableFromAll := true
		for j := 0; j < a.podCount; j++ {
			if j != i && !matrix[j][i] {
				reachableFromAll = false
				break
			}
		}
		if reachableFromAll {
			out = append(out, i)
		}
	}
	return out, nil
}

// AllIsolated returns indices i such that matrix[j][i] = false for every
// other pod j: no other pod reaches i (a self edge does not count).
func (a *Analyzer) AllIsolated(ctx context.Context) ([]int, error) {
	matrix, err := a.driver.BitMatrix(ctx, reachability.RelEdge, a.podCount, true)
	if err != nil {
		return nil, err
	}
	var out []int
	for i := 0; i < a.podCount; i++ {
		isolated := true
		for j := 0; j < a.podCount; j++ {
			if j != i && matrix[j][i] {
				isolated = false
				break
			}
		}
		if isolated {
			out = append(out, i)
		}
	}
	return out, nil
}

// UserCrosscheck reproduces user_violation(sel) :- is_pod(sel),
// is_pod(rnd), edge(rnd,sel), label(rnd,v0), label(sel,v1), v0 != v1 and
// returns the violating pod indices: pods with an in-edge from a pod
// carrying a different value of label. The engine's rule language has no
// inequality literal, so the join is performed here against the driver's
// plain tuple results instead of as a Horn rule; the relation is still
// registered and its result Fact-ed in, so a later query against the
// same name sees the same answer a Horn-rule formulation would have
// produced.
func (a *Analyzer) UserCrosscheck(ctx context.Context, label string) ([]int, error) {
	if _, ok := a.registry.Lookup(label, relation.Label); !ok {
		return nil, nil
	}

	edges, err := a.driver.Pairs(ctx, reachability.RelEdge)
	if err != nil {
		return nil, err
	}
	labelValues, err := a.driver.Pairs(ctx, label)
	if err != nil {
		return nil, err
	}
	valueOf := make(map[int]int, len(labelValues))
	for _, lv := range labelValues {
		valueOf[lv[0]] = lv[1]
	}

	violating := make(map[int]bool)
	for _, e := range edges {
		rnd, sel := e[0], e[1]
		v0, ok0 := valueOf[rnd]
		v1, ok1 := valueOf[sel]
		if ok0 && ok1 && v0 != v1 {
			violating[sel] = true
		}
	}

	relName := "user_violation__" + label
	if _, err := a.registry.Register(relName, []rsort.Sort{rsort.Pod}, relation.Core); err != nil {
		return nil, err
	}
	for sel := range violating {
		a.engine.Fact(relName, sel)
	}
	if err := a.engine.Seal(relName); err != nil {
		return nil, err
	}
	return a.driver.Unary(ctx, relName)
}

// SystemIsolation synthesizes system_isolation_<idx>(sel) :- is_pod(sel),
// ¬ edge(sel, idx), and returns the pods with no egress edge to idx.
func (a *Analyzer) SystemIsolation(ctx context.Context, idx int) ([]int, error) {
	relName := fmt.Sprintf("system_isolation__%d", idx)
	const selVar = 0

	if err := a.engine.Seal(reachability.RelEdge); err != nil {
		return nil, err
	}
	if err := a.engine.Rule(logic.Rule{
		Head: logic.Pos(relName, logic.Var(selVar)),
		Body: []logic.Atom{
			logic.Pos(facts.RelIsPod, logic.Var(selVar)),
			logic.Neg(reachability.RelEdge, logic.Var(selVar), logic.Const(idx)),
		},
	}); err != nil {
		return nil, err
	}
	return a.driver.Unary(ctx, relName)
}

// PolicyShadow reports pairs (q0,q1) such that q0's selection/ingress/
// egress effects are entirely contained in q1's: q0 never selects,
// ingress-allows, or egress-allows a pod that q1 does not also cover.
func (a *Analyzer) PolicyShadow(ctx context.Context) ([][2]int, error) {
	return a.shadowOrConflict(ctx, "policy_unshadow", "policy_shadow", true)
}

// PolicyConflict reports pairs (q0,q1) that never jointly affect any pod
// via selection, ingress-allow, or egress-allow.
func (a *Analyzer) PolicyConflict(ctx context.Context) ([][2]int, error) {
	return a.shadowOrConflict(ctx, "policy_inconflict", "policy_conflict", false)
}

// shadowOrConflict builds the shared scaffolding both analytics use:
// witness(q0,q1) holds per-relation-triple if some pod is jointly/
// differentially affected by q0 and q1 (complement selects which: true
// for differentially, false for jointly), and the
// outer relation holds for q0 != q1 pairs where witness does not.
func (a *Analyzer) shadowOrConflict(ctx context.Context, witnessName, outerName string, complement bool) ([][2]int, error) {
	const (
		q0Var  = 0
		q1Var  = 1
		selVar = 2
	)

	triples := []string{policy.RelSelectedByPol, policy.RelIngressAllowByPol, policy.RelEgressAllowByPol}
	for _, rel := range triples {
		body := []logic.Atom{
			logic.Pos(facts.RelIsPol, logic.Var(q0Var)),
			logic.Pos(facts.RelIsPol, logic.Var(q1Var)),
			logic.Pos(facts.RelIsPod, logic.Var(selVar)),
			logic.Pos(rel, logic.Var(selVar), logic.Var(q0Var)),
		}
		if complement {
			if err := a.engine.Seal(rel); err != nil {
				return nil, err
			}
			body = append(body, logic.Neg(rel, logic.Var(selVar), logic.Var(q1Var)))
		} else {
			body = append(body, logic.Pos(rel, logic.Var(selVar), logic.Var(q1Var)))
		}
		if err := a.engine.Rule(logic.Rule{Head: logic.Pos(witnessName, logic.Var(q0Var), logic.Var(q1Var)), Body: body}); err != nil {
			return nil, err
		}
	}

	if err := a.engine.Seal(witnessName); err != nil {
		return nil, err
	}
	if err := a.engine.Rule(logic.Rule{
		Head: logic.Pos(outerName, logic.Var(q0Var), logic.Var(q1Var)),
		Body: []logic.Atom{
			logic.Pos(facts.RelIsPol, logic.Var(q0Var)),
			logic.Pos(facts.RelIsPol, logic.Var(q1Var)),
			logic.Neg(witnessName, logic.Var(q0Var), logic.Var(q1Var)),
		},
	}); err != nil {
		return nil, err
	}

	// Horn bodies have no "!=" literal; the q0 != q1 exclusion spec.md
	// §4.H/§9 names is applied here, against the query result, instead.
	pairs, err := a.driver.Pairs(ctx, outerName)
	if err != nil {
		return nil, err
	}
	out := pairs[:0]
	for _, p := range pairs {
		if p[0] != p[1] {
			out = append(out, p)
		}
	}
	return out, nil
}
