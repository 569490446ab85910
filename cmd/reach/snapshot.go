package main

import (
	"context"
	"fmt"
	"os"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/yaml"

	"github.com/Azure/netreach/pkg/model"
)

// snapshot is the on-disk descriptor shape: plain Kubernetes API objects
// grouped under the namespaces/pods/policies keys, so objects taken from
// a cluster dump (kubectl get -o yaml) can be placed under those keys
// unchanged (a kubectl List, with its single items key, is not read as a
// snapshot), and the existing model.From* converters (grounded on
// translatePolicy.go) apply unchanged whether the objects came from a
// file or a live cluster.
type snapshot struct {
	Namespaces []corev1.Namespace          `json:"namespaces"`
	Pods       []corev1.Pod                `json:"pods"`
	Policies   []networkingv1.NetworkPolicy `json:"policies"`
}

func (s snapshot) toDescriptors() ([]model.Namespace, []model.Pod, []model.Policy, error) {
	namespaces := make([]model.Namespace, len(s.Namespaces))
	for i, ns := range s.Namespaces {
		namespaces[i] = model.FromNamespace(&ns)
	}
	pods := make([]model.Pod, len(s.Pods))
	for i, pod := range s.Pods {
		pods[i] = model.FromPod(&pod)
	}
	policies := make([]model.Policy, len(s.Policies))
	for i, np := range s.Policies {
		p, err := model.FromNetworkPolicy(np.Namespace, &np)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("converting policy %d: %w", i, err)
		}
		policies[i] = p
	}
	return namespaces, pods, policies, nil
}

// loadFromFile reads a JSON or YAML snapshot file (sigs.k8s.io/yaml
// accepts both, converting YAML to JSON before unmarshaling).
func loadFromFile(path string) ([]model.Namespace, []model.Pod, []model.Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading descriptor file %q: %w", path, err)
	}
	var snap snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return nil, nil, nil, fmt.Errorf("parsing descriptor file %q: %w", path, err)
	}
	return snap.toDescriptors()
}

// loadFromCluster lists namespaces, pods, and network policies across the
// whole cluster reachable via kubeconfigPath and converts them the same
// way loadFromFile does.
func loadFromCluster(ctx context.Context, kubeconfigPath string) ([]model.Namespace, []model.Pod, []model.Policy, error) {
	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building client config from %q: %w", kubeconfigPath, err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building clientset: %w", err)
	}

	nsList, err := clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("listing namespaces: %w", err)
	}
	podList, err := clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("listing pods: %w", err)
	}
	polList, err := clientset.NetworkingV1().NetworkPolicies(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("listing network policies: %w", err)
	}

	snap := snapshot{Namespaces: nsList.Items, Pods: podList.Items, Policies: polList.Items}
	return snap.toDescriptors()
}
