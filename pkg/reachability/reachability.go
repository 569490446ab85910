// Package reachability implements the Reachability Rules (spec.md §4.F):
// the one-hop ingress_traffic/egress_traffic/have_path/edge relations (no
// transitive closure is computed),
// with the self-ingress and select-by-no-policy toggles. Grounded on
// constraint.py's define_model (the literal ingress_traffic/egress_traffic/
// have_path Horn clauses), including the design gap its own FIXME comments
// flag around "selected by no policy" — see DESIGN.md for how this package
// resolves it.
package reachability

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/Azure/netreach/pkg/facts"
	"github.com/Azure/netreach/pkg/logic"
	"github.com/Azure/netreach/pkg/npmerrors"
	"github.com/Azure/netreach/pkg/policy"
	"github.com/Azure/netreach/pkg/relation"
	rsort "github.com/Azure/netreach/pkg/sort"
)

// Core relation names this package owns.
const (
	RelIngressTraffic = "ingress_traffic"
	RelEgressTraffic  = "egress_traffic"
	RelHavePath       = "have_path"
	RelEdge           = "edge"
	RelSelectedByAny  = "selected_by_any"
)

const (
	srcVar = 0
	selVar = 1
	polVar = 2
	dstVar = 0
)

// Toggles mirrors pkg/config.Toggles without importing it, so this package
// stays usable against any source of the same three booleans; pkg/program
// wires it from pkg/config.Toggles directly.
type Toggles struct {
	SelfIngress      bool
	SelectByNoPolicy bool
	GroundDefaultPod bool
}

// Compiler emits the reachability relations once per build, after every
// policy has been compiled (selected_by_pol/ingress_allow_by_pol/
// egress_allow_by_pol must already be fully defined).
type Compiler struct {
	registry *relation.Registry
	engine   logic.Engine
	toggles  Toggles
}

// New creates a Compiler and registers its five core relations.
func New(registry *relation.Registry, engine logic.Engine, toggles Toggles) (*Compiler, error) {
	for _, rel := range []string{RelIngressTraffic, RelEgressTraffic, RelHavePath, RelEdge} {
		if _, err := registry.Register(rel, []rsort.Sort{rsort.Pod, rsort.Pod}, relation.Core); err != nil {
			return nil, err
		}
	}
	if _, err := registry.Register(RelSelectedByAny, []rsort.Sort{rsort.Pod}, relation.Core); err != nil {
		return nil, err
	}
	return &Compiler{registry: registry, engine: engine, toggles: toggles}, nil
}

// Compile emits the self-loop seed facts (if enabled), the per-policy join
// rules, the select-by-no-policy default-allow rules (if enabled), and
// finally have_path/edge. podCount is the total number of pods the build
// declared, needed only for the grounded form of select-by-no-policy.
func (c *Compiler) Compile(ctx context.Context, podCount int) error {
	if c.toggles.SelfIngress {
		for p := 0; p < podCount; p++ {
			c.engine.Fact(RelIngressTraffic, p, p)
			// egress_traffic gets the same self-loop seed as
			// ingress_traffic. Without it, have_path(src,dst) — which
			// joins ingress_traffic(src,sel) against egress_traffic(dst,sel)
			// on a shared sel — can never be satisfied for a policy that
			// declares only one of Ingress/Egress, since the other
			// direction's *_allow_by_pol is never populated at all. The
			// source's define_model has no such seed and its own
			// commented-out FIXME rules (an attempt to patch this same gap
			// via negation) were left disabled; pairing the seed with
			// self-ingress is the documented resolution here (DESIGN.md).
			c.engine.Fact(RelEgressTraffic, p, p)
		}
	}

	if err := c.engine.Rule(logic.Rule{
		Head: logic.Pos(RelIngressTraffic, logic.Var(srcVar), logic.Var(selVar)),
		Body: []logic.Atom{
			logic.Pos(policy.RelSelectedByPol, logic.Var(selVar), logic.Var(polVar)),
			logic.Pos(policy.RelIngressAllowByPol, logic.Var(srcVar), logic.Var(polVar)),
		},
	}); err != nil {
		return err
	}
	if err := c.engine.Rule(logic.Rule{
		Head: logic.Pos(RelEgressTraffic, logic.Var(dstVar), logic.Var(selVar)),
		Body: []logic.Atom{
			logic.Pos(policy.RelSelectedByPol, logic.Var(selVar), logic.Var(polVar)),
			logic.Pos(policy.RelEgressAllowByPol, logic.Var(dstVar), logic.Var(polVar)),
		},
	}); err != nil {
		return err
	}

	if err := c.engine.Rule(logic.Rule{
		Head: logic.Pos(RelSelectedByAny, logic.Var(selVar)),
		Body: []logic.Atom{logic.Pos(policy.RelSelectedByPol, logic.Var(selVar), logic.Var(polVar))},
	}); err != nil {
		return err
	}

	if c.toggles.SelectByNoPolicy {
		if c.toggles.GroundDefaultPod {
			if err := c.compileGroundedDefault(ctx, podCount); err != nil {
				return err
			}
		} else {
			if err := c.compileNegatedDefault(); err != nil {
				return err
			}
		}
	}

	if err := c.engine.Rule(logic.Rule{
		Head: logic.Pos(RelHavePath, logic.Var(srcVar), logic.Var(dstVar)),
		Body: []logic.Atom{
			logic.Pos(RelIngressTraffic, logic.Var(srcVar), logic.Var(selVar)),
			logic.Pos(RelEgressTraffic, logic.Var(dstVar), logic.Var(selVar)),
		},
	}); err != nil {
		return err
	}
	return c.engine.Rule(logic.Rule{
		Head: logic.Pos(RelEdge, logic.Var(srcVar), logic.Var(dstVar)),
		Body: []logic.Atom{logic.Pos(RelHavePath, logic.Var(srcVar), logic.Var(dstVar))},
	})
}

// compileNegatedDefault emits the open-negation form: ingress_traffic(src,sel)
// :- ¬selected_by_any(sel), is_pod(sel), is_pod(src), and its egress
// symmetric. Requires sealing selected_by_any first.
func (c *Compiler) compileNegatedDefault() error {
	if err := c.engine.Seal(RelSelectedByAny); err != nil {
		return err
	}
	if err := c.engine.Rule(logic.Rule{
		Head: logic.Pos(RelIngressTraffic, logic.Var(srcVar), logic.Var(selVar)),
		Body: []logic.Atom{
			logic.Neg(RelSelectedByAny, logic.Var(selVar)),
			logic.Pos(facts.RelIsPod, logic.Var(selVar)),
			logic.Pos(facts.RelIsPod, logic.Var(srcVar)),
		},
	}); err != nil {
		return err
	}
	return c.engine.Rule(logic.Rule{
		Head: logic.Pos(RelEgressTraffic, logic.Var(dstVar), logic.Var(selVar)),
		Body: []logic.Atom{
			logic.Neg(RelSelectedByAny, logic.Var(selVar)),
			logic.Pos(facts.RelIsPod, logic.Var(selVar)),
			logic.Pos(facts.RelIsPod, logic.Var(dstVar)),
		},
	})
}

// compileGroundedDefault avoids open negation (spec.md §9's "negation
// safety" concern) by querying selected_by_any once, up front, and
// emitting one allow-all rule per concrete pod index *not* in that result —
// trading a query at compile time for a negated atom at evaluation time.
func (c *Compiler) compileGroundedDefault(ctx context.Context, podCount int) error {
	ans, err := c.engine.Query(ctx, logic.Pos(RelSelectedByAny, logic.Var(0)))
	if err != nil {
		return npmerrors.Wrap(npmerrors.EngineError, "compileGroundedDefault", "querying selected_by_any", err)
	}
	selected := make(map[int]bool, podCount)
	for _, v := range flattenUnary(ans) {
		selected[v] = true
	}

	for p := 0; p < podCount; p++ {
		if selected[p] {
			continue
		}
		klog.V(4).Infof("reachability: pod %d selected by no policy, grounding default-allow", p)
		if err := c.engine.Rule(logic.Rule{
			Head: logic.Pos(RelIngressTraffic, logic.Var(srcVar), logic.Const(p)),
			Body: []logic.Atom{logic.Pos(facts.RelIsPod, logic.Var(srcVar))},
		}); err != nil {
			return err
		}
		if err := c.engine.Rule(logic.Rule{
			Head: logic.Pos(RelEgressTraffic, logic.Var(dstVar), logic.Const(p)),
			Body: []logic.Atom{logic.Pos(facts.RelIsPod, logic.Var(dstVar))},
		}); err != nil {
			return err
		}
	}
	return nil
}

// flattenUnary reads the values bound to a single-argument query's Answer.
func flattenUnary(ans logic.Answer) []int {
	switch a := ans.(type) {
	case logic.AnswerUnsat:
		return nil
	case logic.AnswerEq:
		return []int{a.Value}
	case logic.AnswerAnd:
		out := make([]int, len(a.Conjuncts))
		for i, eq := range a.Conjuncts {
			out[i] = eq.Value
		}
		return out
	case logic.AnswerOr:
		var out []int
		for _, d := range a.Disjuncts {
			out = append(out, flattenUnary(d)...)
		}
		return out
	default:
		return nil
	}
}
