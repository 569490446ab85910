package relation

import (
	"testing"

	"github.com/Azure/netreach/pkg/npmerrors"
	"github.com/Azure/netreach/pkg/sort"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()

	sym, err := r.Register("role", []sort.Sort{sort.Pod, sort.Value}, Label)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if sym.Arity() != 2 {
		t.Errorf("Arity() = %d, want 2", sym.Arity())
	}

	got, ok := r.Lookup("role", Label)
	if !ok || got != sym {
		t.Errorf("Lookup(role, Label) = (%v, %v), want (%v, true)", got, ok, sym)
	}

	if _, ok := r.Lookup("role", NamespaceLabel); ok {
		t.Errorf("Lookup found %q under the wrong bucket", "role")
	}
}

func TestRegisterDuplicateSameBucket(t *testing.T) {
	r := New()
	if _, err := r.Register("role", []sort.Sort{sort.Pod, sort.Value}, Label); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := r.Register("role", []sort.Sort{sort.Pod, sort.Value}, Label); !npmerrors.Is(err, npmerrors.DuplicateRelation) {
		t.Errorf("second Register: got %v, want DuplicateRelation", err)
	}
}

func TestLabelAndNamespaceLabelBucketsAreIndependent(t *testing.T) {
	r := New()
	if _, err := r.Register("tier", []sort.Sort{sort.Pod, sort.Value}, Label); err != nil {
		t.Fatalf("Register label: %v", err)
	}
	if _, err := r.Register("tier", []sort.Sort{sort.Namespace, sort.Value}, NamespaceLabel); err != nil {
		t.Errorf("Register namespace-label with same name in a different bucket: %v", err)
	}
}

func TestRegisterCoreCollidesAcrossBuckets(t *testing.T) {
	r := New()
	if _, err := r.Register("have_path", []sort.Sort{sort.Pod, sort.Value}, Label); err != nil {
		t.Fatalf("Register label: %v", err)
	}
	if _, err := r.Register("have_path", []sort.Sort{sort.Pod, sort.Pod}, Core); !npmerrors.Is(err, npmerrors.DuplicateRelation) {
		t.Errorf("Register core colliding with label bucket: got %v, want DuplicateRelation", err)
	}
}

func TestRegisterIfAbsent(t *testing.T) {
	r := New()
	first, err := r.RegisterIfAbsent("role", []sort.Sort{sort.Pod, sort.Value}, Label)
	if err != nil {
		t.Fatalf("RegisterIfAbsent: %v", err)
	}
	second, err := r.RegisterIfAbsent("role", []sort.Sort{sort.Pod, sort.Value}, Label)
	if err != nil {
		t.Fatalf("RegisterIfAbsent (second call): %v", err)
	}
	if first != second {
		t.Errorf("RegisterIfAbsent returned distinct symbols for the same name")
	}
}

func TestCoreAccessor(t *testing.T) {
	r := New()
	sym, err := r.Register("edge", []sort.Sort{sort.Pod, sort.Pod}, Core)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, ok := r.Core("edge")
	if !ok || got != sym {
		t.Errorf("Core(edge) = (%v, %v), want (%v, true)", got, ok, sym)
	}
}
