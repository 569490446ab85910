package analysis

import (
	"context"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/Azure/netreach/pkg/facts"
	"github.com/Azure/netreach/pkg/intern"
	"github.com/Azure/netreach/pkg/logic"
	"github.com/Azure/netreach/pkg/model"
	"github.com/Azure/netreach/pkg/policy"
	"github.com/Azure/netreach/pkg/reachability"
	"github.com/Azure/netreach/pkg/relation"
	"github.com/Azure/netreach/pkg/selector"
)

type built struct {
	reg    *relation.Registry
	engine *logic.NaiveEngine
}

func buildProgram(t *testing.T, pods []model.Pod, policies []model.Policy, toggles reachability.Toggles) *built {
	t.Helper()
	reg := relation.New()
	in := intern.New()
	engine := logic.NewNaiveEngine()
	fe, err := facts.New(reg, in, engine)
	require.NoError(t, err)
	require.NoError(t, fe.EmitNamespaces([]model.Namespace{{Name: "default"}}))
	require.NoError(t, fe.EmitPods(pods))
	require.NoError(t, fe.EmitPolicies(len(policies)))

	sc := selector.New(reg, in, engine)
	pc, err := policy.New(reg, sc, engine)
	require.NoError(t, err)
	require.NoError(t, pc.Compile(policies, map[string]int{"default": 0}))

	rc, err := reachability.New(reg, engine, toggles)
	require.NoError(t, err)
	require.NoError(t, rc.Compile(context.Background(), len(pods)))
	return &built{reg: reg, engine: engine}
}

// TestNoPoliciesAllReachable reproduces spec.md §8 scenario 2: 2 pods, no
// policies, self-ingress and select-by-no-policy both on.
func TestNoPoliciesAllReachable(t *testing.T) {
	pods := []model.Pod{{Name: "A", Namespace: "default"}, {Name: "B", Namespace: "default"}}
	b := buildProgram(t, pods, nil, reachability.Toggles{SelfIngress: true, SelectByNoPolicy: true, GroundDefaultPod: true})
	a := New(b.reg, b.engine, len(pods))

	reachable, err := a.AllReachable(context.Background())
	require.NoError(t, err)
	sort.Ints(reachable)
	if diff := cmp.Diff([]int{0, 1}, reachable); diff != "" {
		t.Fatalf("AllReachable mismatch (-want +got):\n%s", diff)
	}

	isolated, err := a.AllIsolated(context.Background())
	require.NoError(t, err)
	require.Empty(t, isolated)
}

// TestUserCrosscheckFullMesh reproduces spec.md §8 scenario 4: 3 pods with
// labels User:u1,u1,u2, no policies; full mesh from select-by-no-policy
// means every pod has an in-edge from a pod with a different User value.
func TestUserCrosscheckFullMesh(t *testing.T) {
	pods := []model.Pod{
		{Name: "p0", Namespace: "default", Labels: map[string]string{"User": "u1"}},
		{Name: "p1", Namespace: "default", Labels: map[string]string{"User": "u1"}},
		{Name: "p2", Namespace: "default", Labels: map[string]string{"User": "u2"}},
	}
	b := buildProgram(t, pods, nil, reachability.Toggles{SelfIngress: true, SelectByNoPolicy: true, GroundDefaultPod: true})
	a := New(b.reg, b.engine, len(pods))

	violating, err := a.UserCrosscheck(context.Background(), "User")
	require.NoError(t, err)
	sort.Ints(violating)
	if diff := cmp.Diff([]int{0, 1, 2}, violating); diff != "" {
		t.Fatalf("UserCrosscheck mismatch (-want +got):\n%s", diff)
	}
}

// TestSystemIsolation checks system_isolation(idx) against an isolated pod.
func TestSystemIsolation(t *testing.T) {
	pods := []model.Pod{{Name: "zero", Namespace: "default"}, {Name: "one", Namespace: "default"}}
	policies := []model.Policy{{
		Name:        "deny-ingress",
		Namespace:   "default",
		PolicyTypes: map[model.PolicyType]bool{model.PolicyTypeIngress: true},
	}}
	b := buildProgram(t, pods, policies, reachability.Toggles{SelfIngress: true, SelectByNoPolicy: false, GroundDefaultPod: true})
	a := New(b.reg, b.engine, len(pods))

	iso, err := a.SystemIsolation(context.Background(), 0)
	require.NoError(t, err)
	sort.Ints(iso)
	if diff := cmp.Diff([]int{1}, iso); diff != "" {
		t.Fatalf("SystemIsolation(0) mismatch (-want +got):\n%s", diff)
	}
}

// TestPolicyShadow reproduces spec.md §8 scenario 5: two policies with
// identical pod-selector and identical single-peer ingress shadow each
// other both ways.
func TestPolicyShadow(t *testing.T) {
	pods := []model.Pod{
		{Name: "db", Namespace: "default", Labels: map[string]string{"app": "db"}},
		{Name: "api", Namespace: "default", Labels: map[string]string{"app": "api"}},
	}
	mkPolicy := func(name string) model.Policy {
		return model.Policy{
			Name:        name,
			Namespace:   "default",
			PodSelector: model.Selector{LabelSelector: metav1.LabelSelector{MatchLabels: map[string]string{"app": "db"}}},
			PolicyTypes: map[model.PolicyType]bool{model.PolicyTypeIngress: true},
			Ingress: []model.PeerRule{{Peers: []model.Peer{{
				Kind:        model.PeerPodSelector,
				PodSelector: model.Selector{LabelSelector: metav1.LabelSelector{MatchLabels: map[string]string{"app": "api"}}},
			}}}},
		}
	}
	policies := []model.Policy{mkPolicy("p0"), mkPolicy("p1")}
	b := buildProgram(t, pods, policies, reachability.Toggles{SelfIngress: true, SelectByNoPolicy: false, GroundDefaultPod: true})
	a := New(b.reg, b.engine, len(pods))

	shadow, err := a.PolicyShadow(context.Background())
	require.NoError(t, err)
	require.Len(t, shadow, 2)
	for _, p := range shadow {
		require.NotEqual(t, p[0], p[1], "PolicyShadow reported a self-pair %v, want q0 != q1 excluded", p)
	}
}

// TestPolicyConflict reproduces spec.md §8 scenario 6: two policies with
// disjoint pod-selectors and disjoint peers never jointly affect any pod.
func TestPolicyConflict(t *testing.T) {
	pods := []model.Pod{
		{Name: "db", Namespace: "default", Labels: map[string]string{"app": "db"}},
		{Name: "cache", Namespace: "default", Labels: map[string]string{"app": "cache"}},
		{Name: "front", Namespace: "default", Labels: map[string]string{"app": "front"}},
		{Name: "back", Namespace: "default", Labels: map[string]string{"app": "back"}},
	}
	policies := []model.Policy{
		{
			Name:        "db-policy",
			Namespace:   "default",
			PodSelector: model.Selector{LabelSelector: metav1.LabelSelector{MatchLabels: map[string]string{"app": "db"}}},
			PolicyTypes: map[model.PolicyType]bool{model.PolicyTypeIngress: true},
			Ingress: []model.PeerRule{{Peers: []model.Peer{{
				Kind:        model.PeerPodSelector,
				PodSelector: model.Selector{LabelSelector: metav1.LabelSelector{MatchLabels: map[string]string{"app": "front"}}},
			}}}},
		},
		{
			Name:        "cache-policy",
			Namespace:   "default",
			PodSelector: model.Selector{LabelSelector: metav1.LabelSelector{MatchLabels: map[string]string{"app": "cache"}}},
			PolicyTypes: map[model.PolicyType]bool{model.PolicyTypeIngress: true},
			Ingress: []model.PeerRule{{Peers: []model.Peer{{
				Kind:        model.PeerPodSelector,
				PodSelector: model.Selector{LabelSelector: metav1.LabelSelector{MatchLabels: map[string]string{"app": "back"}}},
			}}}},
		},
	}
	b := buildProgram(t, pods, policies, reachability.Toggles{SelfIngress: true, SelectByNoPolicy: false, GroundDefaultPod: true})
	a := New(b.reg, b.engine, len(pods))

	conflict, err := a.PolicyConflict(context.Background())
	require.NoError(t, err)
	require.Len(t, conflict, 2)
}
