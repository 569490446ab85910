// Package policy implements the Policy Compiler (spec.md §4.E): for
// each policy, selected_by_pol, ingress_allow_by_pol, and
// egress_allow_by_pol rules derived from its pod-selector and
// ingress/egress peer lists. Grounded line-for-line on
// translatePolicy.go's translateIngress/ruleExists/peerAndPortRule
// branch structure (the #0..#2.4 cases), substituting Horn-rule-body
// emission for ACL/IPSet emission.
package policy

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/Azure/netreach/pkg/facts"
	"github.com/Azure/netreach/pkg/logic"
	"github.com/Azure/netreach/pkg/model"
	"github.com/Azure/netreach/pkg/npmerrors"
	"github.com/Azure/netreach/pkg/relation"
	"github.com/Azure/netreach/pkg/selector"
	rsort "github.com/Azure/netreach/pkg/sort"
)

// Core relation names, registered exactly once per build.
const (
	RelSelectedByPol      = "selected_by_pol"
	RelIngressAllowByPol  = "ingress_allow_by_pol"
	RelEgressAllowByPol   = "egress_allow_by_pol"
	podVar      = 0
	nsVar       = 1
)

// Compiler emits the three per-policy relations for every policy in a
// build.
type Compiler struct {
	registry *relation.Registry
	selector *selector.Compiler
	engine   logic.Engine
}

// New creates a Compiler and registers its three core relations.
func New(registry *relation.Registry, sel *selector.Compiler, engine logic.Engine) (*Compiler, error) {
	if _, err := registry.Register(RelSelectedByPol, []rsort.Sort{rsort.Pod, rsort.Policy}, relation.Core); err != nil {
		return nil, err
	}
	if _, err := registry.Register(RelIngressAllowByPol, []rsort.Sort{rsort.Pod, rsort.Policy}, relation.Core); err != nil {
		return nil, err
	}
	if _, err := registry.Register(RelEgressAllowByPol, []rsort.Sort{rsort.Pod, rsort.Policy}, relation.Core); err != nil {
		return nil, err
	}
	return &Compiler{registry: registry, selector: sel, engine: engine}, nil
}

// Compile emits rules for every policy, resolving each policy's own
// namespace through nsIndex (name → namespace index, as populated by
// facts.Emitter.EmitNamespaces).
func (c *Compiler) Compile(policies []model.Policy, nsIndex map[string]int) error {
	for q, pol := range policies {
		nsIdx, ok := nsIndex[pol.Namespace]
		if !ok {
			return npmerrors.New(npmerrors.UnknownNamespace, "Compile",
				fmt.Sprintf("policy %q (index %d) references undeclared namespace %q", pol.Name, q, pol.Namespace))
		}

		if err := c.compileSelectedBy(pol, q, nsIdx); err != nil {
			return err
		}

		if pol.HasType(model.PolicyTypeIngress) {
			if err := c.compileDirection(pol.Ingress, RelIngressAllowByPol, q, nsIdx); err != nil {
				return err
			}
		}
		if pol.HasType(model.PolicyTypeEgress) {
			if err := c.compileDirection(pol.Egress, RelEgressAllowByPol, q, nsIdx); err != nil {
				return err
			}
		}
		klog.V(4).Infof("policy: compiled policy %d (%s/%s)", q, pol.Namespace, pol.Name)
	}
	return nil
}

// compileSelectedBy emits selected_by_pol(p,q): the policy's pod
// selector, restricted to its own namespace (spec.md §4.E.1).
func (c *Compiler) compileSelectedBy(pol model.Policy, q, nsIdx int) error {
	bodies, err := c.selector.Compile(pol.PodSelector, logic.Var(podVar))
	if err != nil {
		return err
	}
	for _, body := range bodies {
		body = append(body, logic.Pos(facts.RelNamespace, logic.Var(podVar), logic.Const(nsIdx)))
		if err := c.engine.Rule(logic.Rule{
			Head: logic.Pos(RelSelectedByPol, logic.Var(podVar), logic.Const(q)),
			Body: body,
		}); err != nil {
			return err
		}
	}
	return nil
}

// compileDirection emits relName(p,q) rules for one direction's peer
// rule list (spec.md §4.E.2/3). An empty from/to list allows all
// sources/destinations: one rule with body {is_pod(p)}.
func (c *Compiler) compileDirection(rules []model.PeerRule, relName string, q, nsIdx int) error {
	for _, rule := range rules {
		if len(rule.Peers) == 0 {
			if err := c.engine.Rule(logic.Rule{
				Head: logic.Pos(relName, logic.Var(podVar), logic.Const(q)),
				Body: []logic.Atom{logic.Pos("is_pod", logic.Var(podVar))},
			}); err != nil {
				return err
			}
			continue
		}
		for _, peer := range rule.Peers {
			if err := c.compilePeer(peer, relName, q, nsIdx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Compiler) compilePeer(peer model.Peer, relName string, q, nsIdx int) error {
	switch peer.Kind {
	case model.PeerIPBlock:
		klog.V(4).Infof("policy: skipping IPBlock peer %s (policy %d, relation %s); IP-level reasoning is out of scope", peer.IPBlockCIDR, q, relName)
		return nil

	case model.PeerPodSelector:
		bodies, err := c.selector.Compile(peer.PodSelector, logic.Var(podVar))
		if err != nil {
			return err
		}
		for _, body := range bodies {
			body = append(body, logic.Pos(facts.RelNamespace, logic.Var(podVar), logic.Const(nsIdx)))
			if err := c.emitRule(relName, q, body); err != nil {
				return err
			}
		}
		return nil

	case model.PeerNamespaceSelector:
		nsBodies, err := c.selector.CompileNamespace(peer.NSSelector, logic.Var(nsVar))
		if err != nil {
			return err
		}
		for _, nsBody := range nsBodies {
			body := append([]logic.Atom{logic.Pos(facts.RelNamespace, logic.Var(podVar), logic.Var(nsVar))}, nsBody...)
			if err := c.emitRule(relName, q, body); err != nil {
				return err
			}
		}
		return nil

	case model.PeerPodAndNamespaceSelector:
		podBodies, err := c.selector.Compile(peer.PodSelector, logic.Var(podVar))
		if err != nil {
			return err
		}
		nsBodies, err := c.selector.CompileNamespace(peer.NSSelector, logic.Var(nsVar))
		if err != nil {
			return err
		}
		for _, podBody := range podBodies {
			for _, nsBody := range nsBodies {
				body := append([]logic.Atom{logic.Pos(facts.RelNamespace, logic.Var(podVar), logic.Var(nsVar))}, podBody...)
				body = append(body, nsBody...)
				if err := c.emitRule(relName, q, body); err != nil {
					return err
				}
			}
		}
		return nil

	default:
		return fmt.Errorf("policy: unknown peer kind %v", peer.Kind)
	}
}

func (c *Compiler) emitRule(relName string, q int, body []logic.Atom) error {
	return c.engine.Rule(logic.Rule{
		Head: logic.Pos(relName, logic.Var(podVar), logic.Const(q)),
		Body: body,
	})
}
