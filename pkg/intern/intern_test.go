package intern

import (
	"testing"

	"github.com/Azure/netreach/pkg/npmerrors"
)

func TestInternIsStableAndDeduplicates(t *testing.T) {
	in := New()

	t1, err := in.Intern("frontend")
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	t2, err := in.Intern("backend")
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	t3, err := in.Intern("frontend")
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}

	if t1 != t3 {
		t.Errorf("re-interning \"frontend\" produced a new token: %d != %d", t1, t3)
	}
	if t1 == t2 {
		t.Errorf("distinct strings produced the same token: %d", t1)
	}
	if in.Len() != 2 {
		t.Errorf("Len() = %d, want 2", in.Len())
	}
}

func TestLookupRoundTrips(t *testing.T) {
	in := New()
	tok, err := in.Intern("frontend")
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}

	s, ok := in.Lookup(tok)
	if !ok || s != "frontend" {
		t.Errorf("Lookup(%d) = (%q, %v), want (\"frontend\", true)", tok, s, ok)
	}

	if _, ok := in.Lookup(Token(999)); ok {
		t.Errorf("Lookup of unassigned token reported ok=true")
	}
}

func TestInternResourceExhaustion(t *testing.T) {
	in := &Interner{tokens: make(map[string]Token), next: uint64(1) << 32}

	if _, err := in.Intern("overflow"); !npmerrors.Is(err, npmerrors.ResourceExhaustion) {
		t.Errorf("Intern at capacity: got %v, want ResourceExhaustion", err)
	}
}
