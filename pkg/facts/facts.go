// Package facts implements the Fact Emitter (spec.md §4.C): ground facts
// for each pod's namespace, each (pod,label-value) pair, each
// namespace's labels, and the is_pod/is_pol presence facts. Grounded on
// constraint.py's define_pod_facts/define_pol_facts, including its
// register-on-first-sight label relation behavior — generalized per
// spec.md §9 into an explicit RegisterIfAbsent call on the registry
// rather than hidden dict mutation.
package facts

import (
	"fmt"
	"sort"

	"k8s.io/klog/v2"

	"github.com/Azure/netreach/pkg/intern"
	"github.com/Azure/netreach/pkg/logic"
	"github.com/Azure/netreach/pkg/model"
	"github.com/Azure/netreach/pkg/npmerrors"
	"github.com/Azure/netreach/pkg/relation"
	rsort "github.com/Azure/netreach/pkg/sort"
)

// Core relation names, registered exactly once per build (spec.md §3
// invariants).
const (
	RelNamespace = "namespace"
	RelIsPod     = "is_pod"
	RelIsPol     = "is_pol"
)

// Emitter owns the core relation registration and emits every ground
// fact spec.md §4.C describes against a single build's engine.
type Emitter struct {
	registry *relation.Registry
	interner *intern.Interner
	engine   logic.Engine

	nsIndex map[string]int
}

// New creates an Emitter and registers the three core relations it
// owns (namespace, is_pod, is_pol).
func New(registry *relation.Registry, interner *intern.Interner, engine logic.Engine) (*Emitter, error) {
	if _, err := registry.Register(RelNamespace, []rsort.Sort{rsort.Pod, rsort.Namespace}, relation.Core); err != nil {
		return nil, err
	}
	if _, err := registry.Register(RelIsPod, []rsort.Sort{rsort.Pod}, relation.Core); err != nil {
		return nil, err
	}
	if _, err := registry.Register(RelIsPol, []rsort.Sort{rsort.Policy}, relation.Core); err != nil {
		return nil, err
	}
	return &Emitter{registry: registry, interner: interner, engine: engine, nsIndex: make(map[string]int)}, nil
}

// EmitNamespaces emits each namespace's label facts into the
// namespace-label bucket (key__namespace, key__namespace__exists) and
// records the name→index map pods resolve against in EmitPods.
func (e *Emitter) EmitNamespaces(namespaces []model.Namespace) error {
	for idx, ns := range namespaces {
		e.nsIndex[ns.Name] = idx
		if err := e.emitLabels(idx, ns.Labels, relation.NamespaceLabel, "__namespace", rsort.Namespace); err != nil {
			return err
		}
		klog.V(4).Infof("facts: namespace %d (%s) labels emitted", idx, ns.Name)
	}
	return nil
}

// EmitPods emits namespace(p, ns_idx), is_pod(p), and each pod's label
// facts, in the label bucket. A pod referencing an undeclared namespace
// fails the whole build with UnknownNamespace (spec.md §3 invariants).
func (e *Emitter) EmitPods(pods []model.Pod) error {
	for idx, pod := range pods {
		nsIdx, ok := e.nsIndex[pod.Namespace]
		if !ok {
			return npmerrors.New(npmerrors.UnknownNamespace, "EmitPods",
				fmt.Sprintf("pod %q (index %d) references undeclared namespace %q", pod.Name, idx, pod.Namespace))
		}
		e.engine.Fact(RelNamespace, idx, nsIdx)
		e.engine.Fact(RelIsPod, idx)

		if err := e.emitLabels(idx, pod.Labels, relation.Label, "", rsort.Pod); err != nil {
			return err
		}
		klog.V(4).Infof("facts: pod %d (%s/%s) in namespace %d", idx, pod.Namespace, pod.Name, nsIdx)
	}
	return nil
}

// EmitPolicies emits is_pol(q) for q in [0,count).
func (e *Emitter) EmitPolicies(count int) error {
	for q := 0; q < count; q++ {
		e.engine.Fact(RelIsPol, q)
	}
	klog.V(4).Infof("facts: %d policies", count)
	return nil
}

// emitLabels registers (on first sight) a key and key<suffix>__exists
// relation per label key, then emits the membership and presence facts
// for index idx. suffix distinguishes the namespace-label bucket's
// names ("__namespace"/"__namespace__exists") from the pod bucket's
// bare names, per spec.md §3's "disjoint namespace" requirement.
func (e *Emitter) emitLabels(idx int, labels map[string]string, kind relation.Kind, suffix string, indexSort rsort.Sort) error {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := labels[key]
		relName := key + suffix
		existsName := key + suffix + "__exists"

		if _, err := e.registry.RegisterIfAbsent(relName, []rsort.Sort{indexSort, rsort.Value}, kind); err != nil {
			return err
		}
		if _, err := e.registry.RegisterIfAbsent(existsName, []rsort.Sort{indexSort}, kind); err != nil {
			return err
		}

		tok, err := e.interner.Intern(value)
		if err != nil {
			return err
		}
		e.engine.Fact(relName, idx, int(tok))
		e.engine.Fact(existsName, idx)
	}
	return nil
}
