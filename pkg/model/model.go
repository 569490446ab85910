// Package model holds the descriptor shapes spec.md §3/§6 define (Pod,
// Namespace, Policy, Selector, Peer) and the conversions from upstream
// Kubernetes wire types into them, grounded on
// npm/pkg/controlplane/translation/translatePolicy.go's peer dispatch
// and npm/parseSelector.go's match-expression handling. Reusing
// metav1.LabelSelector and networkingv1.NetworkPolicyPeer verbatim is
// deliberate: they are the teacher's own contract surface.
package model

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Pod is the frozen descriptor for one workload (spec.md §3).
type Pod struct {
	Name      string
	Namespace string
	Labels    map[string]string
}

// Namespace is the frozen descriptor for one namespace (spec.md §3).
type Namespace struct {
	Name   string
	Labels map[string]string
}

// Selector wraps metav1.LabelSelector: matchLabels plus matchExpressions,
// consumed verbatim by the Selector Compiler (pkg/selector).
type Selector struct {
	metav1.LabelSelector
}

// Empty reports whether the selector has neither matchLabels nor
// matchExpressions, the "selects everything" case of spec.md §4.D.
func (s Selector) Empty() bool {
	return len(s.MatchLabels) == 0 && len(s.MatchExpressions) == 0
}

// PeerKind distinguishes the four peer variants of spec.md §3.
type PeerKind int

const (
	PeerPodSelector PeerKind = iota
	PeerNamespaceSelector
	PeerPodAndNamespaceSelector
	PeerIPBlock
)

func (k PeerKind) String() string {
	switch k {
	case PeerPodSelector:
		return "PodSelector"
	case PeerNamespaceSelector:
		return "NamespaceSelector"
	case PeerPodAndNamespaceSelector:
		return "PodAndNamespaceSelector"
	case PeerIPBlock:
		return "IPBlock"
	default:
		return "unknown"
	}
}

// Peer is a source or destination specification in a policy rule
// (spec.md §3/GLOSSARY). IPBlock peers are parsed for round-tripping and
// debug visibility but are dropped by the Policy Compiler (spec.md §4.E,
// §9): the reachability program never gains a rule for them.
type Peer struct {
	Kind          PeerKind
	PodSelector   Selector
	NSSelector    Selector
	IPBlockCIDR   string
	IPBlockExcept []string
}

// PeerRule is one ingress or egress rule: an ordered peer list, plus
// ports carried only for completeness (spec.md §6 marks ports ignored).
type PeerRule struct {
	Peers []Peer
	Ports []networkingv1.NetworkPolicyPort
}

// PolicyType mirrors networkingv1.PolicyType's two members.
type PolicyType string

const (
	PolicyTypeIngress PolicyType = "Ingress"
	PolicyTypeEgress  PolicyType = "Egress"
)

// Policy is the frozen descriptor for one NetworkPolicy (spec.md §3).
// Name/Namespace are metadata only, threaded through for log and error
// messages, matching the teacher's habit of carrying Name/NameSpace on
// NPMNetworkPolicy for ACL naming; the core itself only consumes
// PodSelector/PolicyTypes/Ingress/Egress.
type Policy struct {
	Name        string
	Namespace   string
	PodSelector Selector
	PolicyTypes map[PolicyType]bool
	Ingress     []PeerRule
	Egress      []PeerRule
}

// HasType reports whether t is declared in the policy's policyTypes set.
func (p Policy) HasType(t PolicyType) bool {
	return p.PolicyTypes[t]
}

// ErrEmptyPeer is returned by FromNetworkPolicy when a peer has neither
// selector set nor an IPBlock — a shape that does not occur in valid
// upstream objects.
var ErrEmptyPeer = fmt.Errorf("peer has neither a selector nor an ipBlock")

// FromPod converts a live corev1.Pod into a Pod descriptor.
func FromPod(pod *corev1.Pod) Pod {
	return Pod{
		Name:      pod.Name,
		Namespace: pod.Namespace,
		Labels:    copyLabels(pod.Labels),
	}
}

// FromNamespace converts a live corev1.Namespace into a Namespace
// descriptor.
func FromNamespace(ns *corev1.Namespace) Namespace {
	return Namespace{
		Name:   ns.Name,
		Labels: copyLabels(ns.Labels),
	}
}

// FromLabelSelector converts a metav1.LabelSelector into a Selector. A
// nil selector is treated as the empty selector (selects everything).
// An absent namespaceSelector in a PodSelector-only peer never reaches
// this function: FromNetworkPolicy makes such a peer PodSelector-kind,
// and the Policy Compiler scopes it to the policy's own namespace.
func FromLabelSelector(sel *metav1.LabelSelector) Selector {
	if sel == nil {
		return Selector{}
	}
	return Selector{LabelSelector: *sel}
}

// FromNetworkPolicy converts a live networkingv1.NetworkPolicy, plus the
// namespace it was observed in, into a Policy descriptor. Grounded on
// translatePolicy.go's TranslatePolicy/translateIngress peer dispatch:
// a peer with both PodSelector and NamespaceSelector set becomes
// PodAndNamespaceSelector, one with only PodSelector becomes
// PodSelector-kind (implicitly scoped to the policy's own namespace by
// the Policy Compiler, not here), one with only NamespaceSelector
// becomes NamespaceSelector-kind, and an IPBlock peer becomes an inert
// PeerIPBlock entry.
func FromNetworkPolicy(namespace string, np *networkingv1.NetworkPolicy) (Policy, error) {
	p := Policy{
		Name:        np.Name,
		Namespace:   namespace,
		PodSelector: FromLabelSelector(&np.Spec.PodSelector),
		PolicyTypes: make(map[PolicyType]bool, len(np.Spec.PolicyTypes)),
	}
	for _, t := range np.Spec.PolicyTypes {
		p.PolicyTypes[PolicyType(t)] = true
	}
	// A NetworkPolicy with no explicit policyTypes defaults to Ingress
	// always, and to Egress only if egress rules are present — the
	// same default client-go/kubectl apply to a bare NetworkPolicySpec.
	if len(np.Spec.PolicyTypes) == 0 {
		p.PolicyTypes[PolicyTypeIngress] = true
		if len(np.Spec.Egress) > 0 {
			p.PolicyTypes[PolicyTypeEgress] = true
		}
	}

	for _, rule := range np.Spec.Ingress {
		pr, err := fromPeers(rule.From)
		if err != nil {
			return Policy{}, fmt.Errorf("policy %s/%s ingress rule: %w", namespace, np.Name, err)
		}
		pr.Ports = rule.Ports
		p.Ingress = append(p.Ingress, pr)
	}
	for _, rule := range np.Spec.Egress {
		pr, err := fromPeers(rule.To)
		if err != nil {
			return Policy{}, fmt.Errorf("policy %s/%s egress rule: %w", namespace, np.Name, err)
		}
		pr.Ports = rule.Ports
		p.Egress = append(p.Egress, pr)
	}
	return p, nil
}

func fromPeers(peers []networkingv1.NetworkPolicyPeer) (PeerRule, error) {
	pr := PeerRule{}
	for _, np := range peers {
		peer, err := fromPeer(np)
		if err != nil {
			return PeerRule{}, err
		}
		pr.Peers = append(pr.Peers, peer)
	}
	return pr, nil
}

func fromPeer(np networkingv1.NetworkPolicyPeer) (Peer, error) {
	switch {
	case np.IPBlock != nil:
		return Peer{
			Kind:          PeerIPBlock,
			IPBlockCIDR:   np.IPBlock.CIDR,
			IPBlockExcept: append([]string(nil), np.IPBlock.Except...),
		}, nil
	case np.PodSelector != nil && np.NamespaceSelector != nil:
		return Peer{
			Kind:        PeerPodAndNamespaceSelector,
			PodSelector: FromLabelSelector(np.PodSelector),
			NSSelector:  FromLabelSelector(np.NamespaceSelector),
		}, nil
	case np.PodSelector != nil:
		return Peer{Kind: PeerPodSelector, PodSelector: FromLabelSelector(np.PodSelector)}, nil
	case np.NamespaceSelector != nil:
		return Peer{Kind: PeerNamespaceSelector, NSSelector: FromLabelSelector(np.NamespaceSelector)}, nil
	default:
		return Peer{}, ErrEmptyPeer
	}
}

func copyLabels(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
