package facts

import (
	"context"
	"testing"

	"github.com/Azure/netreach/pkg/intern"
	"github.com/Azure/netreach/pkg/logic"
	"github.com/Azure/netreach/pkg/model"
	"github.com/Azure/netreach/pkg/npmerrors"
	"github.com/Azure/netreach/pkg/relation"
)

func TestEmitPodsAndNamespaces(t *testing.T) {
	reg := relation.New()
	in := intern.New()
	engine := logic.NewNaiveEngine()

	e, err := New(reg, in, engine)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	namespaces := []model.Namespace{{Name: "default", Labels: map[string]string{"env": "prod"}}}
	if err := e.EmitNamespaces(namespaces); err != nil {
		t.Fatalf("EmitNamespaces: %v", err)
	}

	pods := []model.Pod{
		{Name: "a", Namespace: "default", Labels: map[string]string{"app": "db"}},
		{Name: "b", Namespace: "default", Labels: map[string]string{"app": "api"}},
	}
	if err := e.EmitPods(pods); err != nil {
		t.Fatalf("EmitPods: %v", err)
	}
	if err := e.EmitPolicies(1); err != nil {
		t.Fatalf("EmitPolicies: %v", err)
	}

	if _, ok := reg.Lookup("app", relation.Label); !ok {
		t.Errorf("expected label relation %q to be registered", "app")
	}
	if _, ok := reg.Lookup("app__exists", relation.Label); !ok {
		t.Errorf("expected presence relation %q to be registered", "app__exists")
	}
	if _, ok := reg.Lookup("env__namespace", relation.NamespaceLabel); !ok {
		t.Errorf("expected namespace-label relation %q to be registered", "env__namespace")
	}

	ans, err := engine.Query(context.Background(), logic.Pos(RelIsPod, logic.Var(0)))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	or, ok := ans.(logic.AnswerOr)
	if !ok || len(or.Disjuncts) != 2 {
		t.Fatalf("Query(is_pod) = %#v, want 2 disjuncts", ans)
	}
}

func TestEmitPodsRejectsUnknownNamespace(t *testing.T) {
	reg := relation.New()
	in := intern.New()
	engine := logic.NewNaiveEngine()
	e, err := New(reg, in, engine)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pods := []model.Pod{{Name: "a", Namespace: "ghost"}}
	if err := e.EmitPods(pods); !npmerrors.Is(err, npmerrors.UnknownNamespace) {
		t.Fatalf("EmitPods with undeclared namespace: got %v, want UnknownNamespace", err)
	}
}
