package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
)

var (
	root  = identity.ServiceUser{ID: identity.Root}
	alice = identity.ServiceUser{ID: "alice", Groups: []string{"reviewers"}}
	bob   = identity.ServiceUser{ID: "bob"}
)

func TestRootPermitsEverything(t *testing.T) {
	maps := []Permissions{
		nil,
		{},
		{ProjectAssign: {"alice"}},
	}
	for _, p := range maps {
		for _, intent := range append(IntentsFor(ScopeProject), "made.up.intent") {
			if !Permits(p, root, intent) {
				t.Fatalf("expected root to hold %s with %v", intent, p)
			}
		}
		if !Permits(p, root) {
			t.Fatal("expected root to pass with no intents")
		}
	}
}

func TestPermits(t *testing.T) {
	p := Permissions{
		SubprojectBudgetUpdateProjected: {"reviewers"},
		SubprojectAssign:                {"bob"},
	}
	tests := []struct {
		name    string
		user    identity.ServiceUser
		intents []Intent
		want    bool
	}{
		{"group member", alice, []Intent{SubprojectBudgetUpdateProjected}, true},
		{"direct user", bob, []Intent{SubprojectAssign}, true},
		{"any of several", bob, []Intent{SubprojectClose, SubprojectAssign}, true},
		{"missing intent", alice, []Intent{SubprojectAssign}, false},
		{"absent key", bob, []Intent{SubprojectClose}, false},
		{"no intents", bob, nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Permits(p, tc.user, tc.intents...); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestPermitsResolvedUsesMembershipLookup(t *testing.T) {
	p := Permissions{WorkflowitemView: {"G"}}
	resolver := identity.ResolverFunc(func(_ context.Context, id string) ([]string, error) {
		if id == "G" {
			return []string{"bob"}, nil
		}
		return nil, errors.New("unknown identity")
	})
	ctx := context.Background()

	// bob did not claim G but the directory lists him.
	ok, err := PermitsResolved(ctx, resolver, p, bob, WorkflowitemView)
	if err != nil || !ok {
		t.Fatalf("expected bob to be resolved into G, got %v, %v", ok, err)
	}
	// claiming G is not enough for the resolved check.
	claimer := identity.ServiceUser{ID: "mallory", Groups: []string{"G"}}
	ok, err = PermitsResolved(ctx, resolver, p, claimer, WorkflowitemView)
	if err != nil || ok {
		t.Fatalf("expected claimed group to be ignored, got %v, %v", ok, err)
	}
	if !Permits(p, claimer, WorkflowitemView) {
		t.Fatal("expected coarse check to accept claimed group")
	}
	ok, err = PermitsResolved(ctx, resolver, p, root, WorkflowitemView)
	if err != nil || !ok {
		t.Fatalf("expected root bypass, got %v, %v", ok, err)
	}
	if _, err := PermitsResolved(ctx, resolver, Permissions{WorkflowitemView: {"ghost"}}, bob, WorkflowitemView); err == nil {
		t.Fatal("expected lookup failure to surface")
	}
}

func TestGrantAndRevokeCopy(t *testing.T) {
	original := Permissions{ProjectView: {"alice"}}

	granted, changed := original.Grant(ProjectView, "bob")
	if !changed || len(granted[ProjectView]) != 2 {
		t.Fatalf("expected bob to be granted, got %v", granted)
	}
	if len(original[ProjectView]) != 1 {
		t.Fatalf("expected original untouched, got %v", original)
	}
	if _, changed := granted.Grant(ProjectView, "bob"); changed {
		t.Fatal("expected duplicate grant to be a no-op")
	}

	revoked, changed := granted.Revoke(ProjectView, "alice")
	if !changed || revoked.Holds(ProjectView, "alice") {
		t.Fatalf("expected alice revoked, got %v", revoked)
	}
	emptied, _ := revoked.Revoke(ProjectView, "bob")
	if _, ok := emptied[ProjectView]; ok {
		t.Fatalf("expected empty intent key to be removed, got %v", emptied)
	}
	if _, changed := emptied.Revoke(ProjectView, "bob"); changed {
		t.Fatal("expected revoking an absent identity to be a no-op")
	}
}

func TestExposableHidesIntents(t *testing.T) {
	p := Permissions{SubprojectClose: {"alice"}, SubprojectView: {"alice"}}
	exposed := Exposable(p, SubprojectClose)
	if _, ok := exposed[SubprojectClose]; ok {
		t.Fatal("expected subproject.close hidden")
	}
	if _, ok := p[SubprojectClose]; !ok {
		t.Fatal("expected source map untouched")
	}
	if !exposed.Holds(SubprojectView, "alice") {
		t.Fatal("expected other intents kept")
	}
}

func TestCreatorGetsFullScope(t *testing.T) {
	p := Creator(ScopeWorkflowitem, "alice")
	for _, intent := range IntentsFor(ScopeWorkflowitem) {
		if !p.Holds(intent, "alice") {
			t.Fatalf("expected creator to hold %s", intent)
		}
	}
	if p.Holds(ProjectView, "alice") {
		t.Fatal("expected scope to be limited to workflowitem intents")
	}
}

func TestIntentValid(t *testing.T) {
	if !SubprojectBudgetUpdateProjected.Valid(ScopeSubproject) {
		t.Fatal("expected subproject intent valid for subproject scope")
	}
	if SubprojectBudgetUpdateProjected.Valid(ScopeProject) {
		t.Fatal("expected subproject intent invalid for project scope")
	}
	if Intent("subproject.fly").Valid(ScopeSubproject) {
		t.Fatal("expected unknown intent invalid")
	}
}

func TestDecideChange(t *testing.T) {
	p := Permissions{SubprojectGrantPermission: {"alice"}, SubprojectView: {"bob"}}

	if _, _, err := Decide(p, bob, ScopeSubproject, Change{Intent: SubprojectView, Identity: "carol", Grant: true}); err == nil {
		t.Fatal("expected bob to lack grant permission")
	}
	if _, _, err := Decide(p, alice, ScopeSubproject, Change{Intent: ProjectView, Identity: "carol", Grant: true}); err == nil {
		t.Fatal("expected project intent to be rejected on a subproject")
	}
	change, changed, err := Decide(p, alice, ScopeSubproject, Change{Intent: SubprojectView, Identity: " carol ", Grant: true})
	if err != nil || !changed || change.Identity != "carol" {
		t.Fatalf("expected grant to carol, got %+v, %v, %v", change, changed, err)
	}
	if !p.Apply(change).Holds(SubprojectView, "carol") {
		t.Fatal("expected apply to grant carol")
	}
	if _, changed, err := Decide(p, alice, ScopeSubproject, Change{Intent: SubprojectView, Identity: "bob", Grant: true}); err != nil || changed {
		t.Fatalf("expected existing grant to be unchanged, got %v, %v", changed, err)
	}
	if _, _, err := Decide(p, alice, ScopeSubproject, Change{Intent: SubprojectView, Identity: "bob"}); err == nil {
		t.Fatal("expected alice to lack revoke permission")
	}
	if _, changed, err := Decide(p, root, ScopeSubproject, Change{Intent: SubprojectView, Identity: "bob"}); err != nil || !changed {
		t.Fatalf("expected root revoke to change map, got %v, %v", changed, err)
	}
}

func TestDecideResolvedRejectsUnknownGrantee(t *testing.T) {
	ctx := context.Background()
	resolver := identity.ResolverFunc(func(_ context.Context, id string) ([]string, error) {
		if id == "carol" {
			return []string{"carol"}, nil
		}
		return nil, errors.New("identity " + id + " not found")
	})
	p := Permissions{SubprojectGrantPermission: {"alice"}, SubprojectView: {"ghost"}}

	if _, changed, err := DecideResolved(ctx, resolver, p, alice, ScopeSubproject, Change{Intent: SubprojectView, Identity: "nobody", Grant: true}); err == nil || changed {
		t.Fatalf("expected unknown grantee to be rejected, got %v, %v", changed, err)
	}
	if _, changed, err := DecideResolved(ctx, resolver, p, alice, ScopeSubproject, Change{Intent: SubprojectView, Identity: "carol", Grant: true}); err != nil || !changed {
		t.Fatalf("expected grant to carol, got %v, %v", changed, err)
	}
	if _, changed, err := DecideResolved(ctx, resolver, p, root, ScopeSubproject, Change{Intent: SubprojectView, Identity: "ghost"}); err != nil || !changed {
		t.Fatalf("expected revoke of unknown identity to succeed, got %v, %v", changed, err)
	}
}
