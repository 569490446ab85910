package program

import (
	"context"
	"sort"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/Azure/netreach/pkg/config"
	"github.com/Azure/netreach/pkg/model"
)

func TestProgram(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Program Suite")
}

func sortedPairs(pairs [][2]int) [][2]int {
	out := append([][2]int(nil), pairs...)
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

func sortedInts(xs []int) []int {
	out := append([]int(nil), xs...)
	sort.Ints(out)
	return out
}

var _ = Describe("Program", func() {
	ctx := context.Background()
	defaultNamespaces := []model.Namespace{{Name: "default"}}

	Describe("Paper example (scenario 1)", func() {
		It("produces the documented have_path edge set", func() {
			pods := []model.Pod{
				{Name: "A", Namespace: "default", Labels: map[string]string{"app": "db"}},
				{Name: "B", Namespace: "default", Labels: map[string]string{"app": "api"}},
				{Name: "C", Namespace: "default", Labels: map[string]string{"app": "api"}},
			}
			policies := []model.Policy{{
				Name:        "db-ingress",
				Namespace:   "default",
				PodSelector: model.Selector{LabelSelector: metav1.LabelSelector{MatchLabels: map[string]string{"app": "db"}}},
				PolicyTypes: map[model.PolicyType]bool{model.PolicyTypeIngress: true},
				Ingress: []model.PeerRule{{Peers: []model.Peer{{
					Kind:        model.PeerPodSelector,
					PodSelector: model.Selector{LabelSelector: metav1.LabelSelector{MatchLabels: map[string]string{"app": "api"}}},
				}}}},
			}}
			p, err := Build(ctx, pods, defaultNamespaces, policies, config.Toggles{SelfIngress: true, SelectByNoPolicy: false, GroundDefaultPod: true})
			Expect(err).NotTo(HaveOccurred())

			edges, err := p.AllEdges(ctx)
			Expect(err).NotTo(HaveOccurred())
			// A=0, B=1, C=2.
			Expect(sortedPairs(edges)).To(Equal(sortedPairs([][2]int{{1, 0}, {2, 0}, {0, 0}, {1, 1}, {2, 2}})))
		})
	})

	Describe("No policies, 2 pods (scenario 2)", func() {
		It("is a full mesh: every pod reachable, none isolated", func() {
			pods := []model.Pod{{Name: "x", Namespace: "default"}, {Name: "y", Namespace: "default"}}
			p, err := Build(ctx, pods, defaultNamespaces, nil, config.Toggles{SelfIngress: true, SelectByNoPolicy: true, GroundDefaultPod: true})
			Expect(err).NotTo(HaveOccurred())

			edges, err := p.AllEdges(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sortedPairs(edges)).To(Equal(sortedPairs([][2]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}})))

			reachable, isolated, err := p.AllReachIsolate(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sortedInts(reachable)).To(Equal([]int{0, 1}))
			Expect(isolated).To(BeEmpty())
		})
	})

	Describe("Isolated pod (scenario 3)", func() {
		It("reports pod 0 as isolated when its policy permits no ingress", func() {
			pods := []model.Pod{
				{Name: "zero", Namespace: "default", Labels: map[string]string{"app": "target"}},
				{Name: "one", Namespace: "default"},
			}
			policies := []model.Policy{{
				Name:        "deny-ingress",
				Namespace:   "default",
				PodSelector: model.Selector{LabelSelector: metav1.LabelSelector{MatchLabels: map[string]string{"app": "target"}}},
				PolicyTypes: map[model.PolicyType]bool{model.PolicyTypeIngress: true},
			}}
			p, err := Build(ctx, pods, defaultNamespaces, policies, config.Toggles{SelfIngress: true, SelectByNoPolicy: false, GroundDefaultPod: true})
			Expect(err).NotTo(HaveOccurred())

			_, isolated, err := p.AllReachIsolate(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(isolated).To(ContainElement(0))
		})
	})

	Describe("User crosscheck (scenario 4)", func() {
		It("reports every pod when the full mesh crosses differing label values", func() {
			pods := []model.Pod{
				{Name: "p0", Namespace: "default", Labels: map[string]string{"User": "u1"}},
				{Name: "p1", Namespace: "default", Labels: map[string]string{"User": "u1"}},
				{Name: "p2", Namespace: "default", Labels: map[string]string{"User": "u2"}},
			}
			p, err := Build(ctx, pods, defaultNamespaces, nil, config.Toggles{SelfIngress: true, SelectByNoPolicy: true, GroundDefaultPod: true})
			Expect(err).NotTo(HaveOccurred())

			violating, err := p.UserCrosscheck(ctx, "User")
			Expect(err).NotTo(HaveOccurred())
			Expect(sortedInts(violating)).To(Equal([]int{0, 1, 2}))
		})
	})

	Describe("Policy shadow (scenario 5)", func() {
		It("reports both directions for two identical policies", func() {
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
			p, err := Build(ctx, pods, defaultNamespaces, policies, config.Toggles{SelfIngress: true, SelectByNoPolicy: false, GroundDefaultPod: true})
			Expect(err).NotTo(HaveOccurred())

			shadow, err := p.PolicyShadow(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sortedPairs(shadow)).To(Equal(sortedPairs([][2]int{{0, 1}, {1, 0}})))
			for _, pair := range shadow {
				Expect(pair[0]).NotTo(Equal(pair[1]))
			}
		})
	})

	Describe("Policy conflict (scenario 6)", func() {
		It("reports both directions for two disjoint policies", func() {
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
			p, err := Build(ctx, pods, defaultNamespaces, policies, config.Toggles{SelfIngress: true, SelectByNoPolicy: false, GroundDefaultPod: true})
			Expect(err).NotTo(HaveOccurred())

			conflict, err := p.PolicyConflict(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sortedPairs(conflict)).To(Equal(sortedPairs([][2]int{{0, 1}, {1, 0}})))
		})
	})

	Describe("Invariants", func() {
		It("never reports policy_shadow(q,q)", func() {
			pods := []model.Pod{{Name: "solo", Namespace: "default"}}
			policies := []model.Policy{{
				Name:        "only",
				Namespace:   "default",
				PolicyTypes: map[model.PolicyType]bool{model.PolicyTypeIngress: true},
			}}
			p, err := Build(ctx, pods, defaultNamespaces, policies, config.DefaultToggles)
			Expect(err).NotTo(HaveOccurred())

			shadow, err := p.PolicyShadow(ctx)
			Expect(err).NotTo(HaveOccurred())
			for _, pair := range shadow {
				Expect(pair[0]).NotTo(Equal(pair[1]))
			}
		})

		It("is idempotent: the same query run twice returns the same pair set", func() {
			pods := []model.Pod{{Name: "x", Namespace: "default"}, {Name: "y", Namespace: "default"}}
			p, err := Build(ctx, pods, defaultNamespaces, nil, config.DefaultToggles)
			Expect(err).NotTo(HaveOccurred())

			first, err := p.AllEdges(ctx)
			Expect(err).NotTo(HaveOccurred())
			second, err := p.AllEdges(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sortedPairs(first)).To(Equal(sortedPairs(second)))
		})

		It("builds an empty program and returns empty/unsat results for every query", func() {
			p, err := Build(ctx, nil, defaultNamespaces, nil, config.DefaultToggles)
			Expect(err).NotTo(HaveOccurred())

			edges, err := p.AllEdges(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(edges).To(BeEmpty())

			reachable, isolated, err := p.AllReachIsolate(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(reachable).To(BeEmpty())
			Expect(isolated).To(BeEmpty())
		})

		It("toggles have_path(0,0) on self-ingress for a single pod", func() {
			pods := []model.Pod{{Name: "solo", Namespace: "default"}}

			withSelf, err := Build(ctx, pods, defaultNamespaces, nil, config.Toggles{SelfIngress: true, SelectByNoPolicy: false, GroundDefaultPod: true})
			Expect(err).NotTo(HaveOccurred())
			edgesWith, err := withSelf.AllEdges(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(edgesWith).To(ContainElement([2]int{0, 0}))

			withoutSelf, err := Build(ctx, pods, defaultNamespaces, nil, config.Toggles{SelfIngress: false, SelectByNoPolicy: false, GroundDefaultPod: true})
			Expect(err).NotTo(HaveOccurred())
			edgesWithout, err := withoutSelf.AllEdges(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(edgesWithout).NotTo(ContainElement([2]int{0, 0}))
		})
	})
})
