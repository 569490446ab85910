// Package program implements the Program/Builder (spec.md §4.J): the Go
// analog of constraint.py's GlobalInfo, owning one build's engine,
// registry, interner, and descriptor slices, and exposing the six
// query-surface methods spec.md §6 names. Grounded on constraint.py's
// top-level build() function for the strict A→H assembly sequence.
package program

import (
	"context"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/Azure/netreach/pkg/analysis"
	"github.com/Azure/netreach/pkg/buildmetrics"
	"github.com/Azure/netreach/pkg/config"
	"github.com/Azure/netreach/pkg/facts"
	"github.com/Azure/netreach/pkg/intern"
	"github.com/Azure/netreach/pkg/logic"
	"github.com/Azure/netreach/pkg/model"
	"github.com/Azure/netreach/pkg/policy"
	"github.com/Azure/netreach/pkg/query"
	"github.com/Azure/netreach/pkg/reachability"
	"github.com/Azure/netreach/pkg/relation"
	"github.com/Azure/netreach/pkg/selector"
	"github.com/Azure/netreach/pkg/sort"
)

// SortWidths records the bit-widths sort.Width computed for each bounded
// sort a build's population implies, kept on Program for introspection
// and logging rather than recomputed by callers that already hold one.
type SortWidths struct {
	Pod       int
	Namespace int
	Policy    int
	Value     int
}

// Program is one built reachability model: a closed set of relations
// over a fixed pod/namespace/policy population, ready for querying.
// Not safe for concurrent use: NaiveEngine.Query memoizes relation
// extensions into a shared cache, and the analytic methods register new
// relations and rules on the engine, so calls must not overlap.
type Program struct {
	BuildID  string
	registry *relation.Registry
	engine   logic.Engine
	driver   *query.Driver
	analyzer *analysis.Analyzer

	podCount   int
	nsIndex    map[string]int
	sortWidths SortWidths
}

// Build runs the strict intern→register→emit-facts→emit-rules→finalize
// sequence of spec.md §5 and returns a ready-to-query Program. cfg's
// toggles are mandatory and never defaulted implicitly (spec.md §9).
func Build(ctx context.Context, pods []model.Pod, nses []model.Namespace, policies []model.Policy, cfg config.Toggles) (*Program, error) {
	start := time.Now()
	buildID := uuid.NewString()

	registry := relation.New()
	interner := intern.New()
	engine := logic.NewNaiveEngine()

	fe, err := facts.New(registry, interner, engine)
	if err != nil {
		return nil, err
	}
	if err := fe.EmitNamespaces(nses); err != nil {
		return nil, err
	}
	if err := fe.EmitPods(pods); err != nil {
		return nil, err
	}
	if err := fe.EmitPolicies(len(policies)); err != nil {
		return nil, err
	}

	nsIndex := make(map[string]int, len(nses))
	for idx, ns := range nses {
		nsIndex[ns.Name] = idx
	}

	sc := selector.New(registry, interner, engine)
	pc, err := policy.New(registry, sc, engine)
	if err != nil {
		return nil, err
	}
	if err := pc.Compile(policies, nsIndex); err != nil {
		return nil, err
	}

	rc, err := reachability.New(registry, engine, reachability.Toggles{
		SelfIngress:      cfg.SelfIngress,
		SelectByNoPolicy: cfg.SelectByNoPolicy,
		GroundDefaultPod: cfg.GroundDefaultPod,
	})
	if err != nil {
		return nil, err
	}
	if err := rc.Compile(ctx, len(pods)); err != nil {
		return nil, err
	}

	widths := SortWidths{
		Pod:       sort.Width(len(pods)),
		Namespace: sort.Width(len(nses)),
		Policy:    sort.Width(len(policies)),
		Value:     sort.ValueSortBits,
	}

	p := &Program{
		BuildID:    buildID,
		registry:   registry,
		engine:     engine,
		driver:     query.New(engine),
		analyzer:   analysis.New(registry, engine, len(pods)),
		podCount:   len(pods),
		nsIndex:    nsIndex,
		sortWidths: widths,
	}
	elapsed := time.Since(start)
	buildmetrics.ObserveBuild(elapsed)
	klog.V(2).Infof("program: build %s complete, %d pods, %d namespaces, %d policies, sort widths pod=%d ns=%d policy=%d value=%d, %s",
		buildID, len(pods), len(nses), len(policies), widths.Pod, widths.Namespace, widths.Policy, widths.Value, elapsed)
	return p, nil
}

// SortWidths reports the bit-widths computed for this build's population.
func (p *Program) SortWidths() SortWidths {
	return p.sortWidths
}

// AllEdges returns every (src,dst) pair of the have-path relation
// (spec.md §6 all_edges).
func (p *Program) AllEdges(ctx context.Context) ([][2]int, error) {
	defer timeQuery("edges")()
	return p.driver.Pairs(ctx, reachability.RelEdge)
}

// AllReachIsolate returns (reachable, isolated) pod index lists
// (spec.md §6 all_reach_isolate).
func (p *Program) AllReachIsolate(ctx context.Context) ([]int, []int, error) {
	defer timeQuery("reach-isolate")()
	reachable, err := p.analyzer.AllReachable(ctx)
	if err != nil {
		return nil, nil, err
	}
	isolated, err := p.analyzer.AllIsolated(ctx)
	if err != nil {
		return nil, nil, err
	}
	return reachable, isolated, nil
}

// UserCrosscheck returns the pod indices violating labelKey's crosscheck
// (spec.md §6 user_crosscheck).
func (p *Program) UserCrosscheck(ctx context.Context, labelKey string) ([]int, error) {
	defer timeQuery("crosscheck")()
	return p.analyzer.UserCrosscheck(ctx, labelKey)
}

// SystemIsolation returns the pod indices with no egress edge to podIdx
// (spec.md §6 system_isolation).
func (p *Program) SystemIsolation(ctx context.Context, podIdx int) ([]int, error) {
	defer timeQuery("system-isolation")()
	return p.analyzer.SystemIsolation(ctx, podIdx)
}

// PolicyShadow returns (q0,q1) pairs where q0's effects are contained in
// q1's (spec.md §6 policy_shadow).
func (p *Program) PolicyShadow(ctx context.Context) ([][2]int, error) {
	defer timeQuery("shadow")()
	return p.analyzer.PolicyShadow(ctx)
}

// PolicyConflict returns (q0,q1) pairs that never jointly affect any pod
// (spec.md §6 policy_conflict).
func (p *Program) PolicyConflict(ctx context.Context) ([][2]int, error) {
	defer timeQuery("conflict")()
	return p.analyzer.PolicyConflict(ctx)
}

// timeQuery returns a func to defer that records kind's duration against
// buildmetrics.QueryDuration on return.
func timeQuery(kind string) func() {
	start := time.Now()
	return func() { buildmetrics.ObserveQuery(kind, time.Since(start)) }
}

// PodCount reports the pod population this Program was built over.
func (p *Program) PodCount() int {
	return p.podCount
}
