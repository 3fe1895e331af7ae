package app_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/platform/metrics"
	"github.com/openkfw/trubudget/internal/platform/requestctx"
	"github.com/openkfw/trubudget/internal/services/budget/app"
	"github.com/openkfw/trubudget/internal/services/budget/domain/command"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
	"github.com/openkfw/trubudget/internal/services/budget/domain/permission"
	"github.com/openkfw/trubudget/internal/services/budget/domain/project"
	"github.com/openkfw/trubudget/internal/services/budget/domain/subproject"
	"github.com/openkfw/trubudget/internal/services/budget/domain/workflowitem"
	"github.com/openkfw/trubudget/internal/services/budget/ledger"
	"github.com/openkfw/trubudget/internal/services/budget/ledger/memory"
	dto "github.com/prometheus/client_model/go"
)

var (
	root    = identity.ServiceUser{ID: identity.Root}
	alice   = identity.ServiceUser{ID: "alice"}
	bob     = identity.ServiceUser{ID: "bob", Groups: []string{"reviewers"}}
	charlie = identity.ServiceUser{ID: "charlie", Groups: []string{"reviewers"}}
)

var testSeed = app.Seed{
	Users: []app.SeedUser{
		{ID: "alice", DisplayName: "Alice"},
		{ID: "bob", DisplayName: "Bob"},
		{ID: "charlie", DisplayName: "Charlie", Organization: "Partner"},
	},
	Groups: []app.SeedGroup{
		{ID: "reviewers", DisplayName: "Reviewers", Members: []string{"bob", "charlie"}},
	},
	GlobalPermissions: map[string][]string{
		string(permission.GlobalCreateProject): {"alice"},
	},
}

// testEnv returns an env with a ticking clock and sequential ids.
func testEnv() command.Env {
	var mu sync.Mutex
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	next := 0
	return command.Env{
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(time.Second)
			return now
		},
		NewID: func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			next++
			return fmt.Sprintf("id-%d", next), nil
		},
	}
}

func newService(t *testing.T, store ledger.Store) (*app.Service, *metrics.Recorder) {
	t.Helper()
	recorder := metrics.New()
	svc, err := app.New(store, app.Options{Organization: "ACME", Metrics: recorder, Env: testEnv()})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := svc.ApplySeed(ctx, testSeed); err != nil {
		t.Fatalf("apply seed: %v", err)
	}
	return svc, recorder
}

// newSubproject creates project p1 and subproject s1 owned by alice and
// assigned to the reviewers group.
func newSubproject(t *testing.T, svc *app.Service) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.CreateProject(ctx, alice, project.NewProject{ID: "p1", DisplayName: "School"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	_, err := svc.CreateSubproject(ctx, alice, "p1", subproject.NewSubproject{
		ID:          "s1",
		DisplayName: "Roof",
		Currency:    "EUR",
		Assignee:    "reviewers",
	})
	if err != nil {
		t.Fatalf("create subproject: %v", err)
	}
}

func counterValue(t *testing.T, recorder *metrics.Recorder, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := recorder.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		var total float64
		for _, m := range family.GetMetric() {
			if matches(m, labels) {
				total += m.GetCounter().GetValue()
			}
		}
		return total
	}
	return 0
}

func matches(m *dto.Metric, labels map[string]string) bool {
	for name, value := range labels {
		found := false
		for _, pair := range m.GetLabel() {
			if pair.GetName() == name && pair.GetValue() == value {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestNewRequiresStoreAndOrganization(t *testing.T) {
	if _, err := app.New(nil, app.Options{Organization: "ACME"}); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := app.New(memory.New(), app.Options{Organization: "  "}); err == nil {
		t.Fatal("expected error for blank organization")
	}
}

func TestBootstrapCreatesServiceStreams(t *testing.T) {
	store := memory.New()
	svc, _ := newService(t, store)
	if svc.Organization() != "ACME" {
		t.Fatalf("expected organization ACME, got %q", svc.Organization())
	}
	cases := []struct {
		kind event.StreamKind
		name string
	}{
		{event.StreamKindGlobal, event.GlobalStream},
		{event.StreamKindUsers, event.UsersStream},
		{event.StreamKindNotifications, event.NotificationsStream},
		{event.StreamKindOrganization, event.OrganizationStream("ACME")},
	}
	for _, tc := range cases {
		streams, err := store.Streams(context.Background(), tc.kind)
		if err != nil {
			t.Fatalf("streams %s: %v", tc.kind, err)
		}
		if len(streams) != 1 || streams[0].Name != tc.name {
			t.Fatalf("expected stream %s, got %+v", tc.name, streams)
		}
	}
}

func TestApplySeedIsIdempotent(t *testing.T) {
	store := memory.New()
	svc, _ := newService(t, store)
	ctx := context.Background()

	before, err := store.ReadStream(ctx, event.UsersStream, 0)
	if err != nil {
		t.Fatalf("read users stream: %v", err)
	}
	if err := svc.ApplySeed(ctx, testSeed); err != nil {
		t.Fatalf("apply seed again: %v", err)
	}
	after, err := store.ReadStream(ctx, event.UsersStream, 0)
	if err != nil {
		t.Fatalf("read users stream: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("expected %d directory events, got %d", len(before), len(after))
	}

	users, err := svc.ListUsers(ctx, root)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}
	orgs := map[string]string{}
	for _, u := range users {
		orgs[u.ID] = u.Organization
	}
	if orgs["alice"] != "ACME" || orgs["charlie"] != "Partner" {
		t.Fatalf("unexpected organizations: %v", orgs)
	}
	groups, err := svc.ListGroups(ctx, root)
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(groups) != 1 || len(groups[0].Members) != 2 {
		t.Fatalf("expected reviewers with 2 members, got %+v", groups)
	}
	perms, err := svc.ListGlobalPermissions(ctx, root)
	if err != nil {
		t.Fatalf("list global permissions: %v", err)
	}
	if got := perms[permission.GlobalCreateProject]; len(got) != 1 || got[0] != "alice" {
		t.Fatalf("expected createProject for alice, got %v", got)
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	content := `users:
  - id: alice
    display_name: Alice
    address: addr-1
groups:
  - id: reviewers
    display_name: Reviewers
    members: [alice]
global_permissions:
  global.createProject: [alice]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	seed, err := app.LoadSeed(path)
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if len(seed.Users) != 1 || seed.Users[0].DisplayName != "Alice" || seed.Users[0].Address != "addr-1" {
		t.Fatalf("unexpected users: %+v", seed.Users)
	}
	if len(seed.Groups) != 1 || seed.Groups[0].Members[0] != "alice" {
		t.Fatalf("unexpected groups: %+v", seed.Groups)
	}
	if got := seed.GlobalPermissions["global.createProject"]; len(got) != 1 {
		t.Fatalf("unexpected global permissions: %v", seed.GlobalPermissions)
	}

	if _, err := app.LoadSeed(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing seed file")
	}
}

func TestCreateProjectRequiresGlobalIntent(t *testing.T) {
	svc, recorder := newService(t, memory.New())
	_, err := svc.CreateProject(context.Background(), bob, project.NewProject{ID: "p1", DisplayName: "School"})
	if !apperrors.IsKind(err, apperrors.KindNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	got := counterValue(t, recorder, "trubudget_commands_total", map[string]string{"command": "global.createProject", "outcome": metrics.OutcomeRejected})
	if got != 1 {
		t.Fatalf("expected 1 rejected command, got %v", got)
	}
}

func TestCreateProjectCreatesStreamOnFirstAppend(t *testing.T) {
	store := memory.New()
	svc, recorder := newService(t, store)
	newSubproject(t, svc)

	streams, err := store.Streams(context.Background(), event.StreamKindProject)
	if err != nil {
		t.Fatalf("streams: %v", err)
	}
	if len(streams) != 1 || streams[0].Name != "p1" {
		t.Fatalf("expected project stream p1, got %+v", streams)
	}
	if got := counterValue(t, recorder, "trubudget_ledger_stream_create_retries_total", nil); got != 1 {
		t.Fatalf("expected 1 stream create retry, got %v", got)
	}
	got := counterValue(t, recorder, "trubudget_ledger_events_appended_total", map[string]string{"type": string(event.TypeProjectCreated)})
	if got != 1 {
		t.Fatalf("expected 1 project_created append, got %v", got)
	}

	projects, err := svc.ListProjects(context.Background(), alice)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != "p1" {
		t.Fatalf("expected project p1, got %+v", projects)
	}
	if projects, _ := svc.ListProjects(context.Background(), bob); len(projects) != 0 {
		t.Fatalf("expected bob to see no projects, got %d", len(projects))
	}
}

func TestCreateProjectRejectsReservedID(t *testing.T) {
	svc, _ := newService(t, memory.New())
	_, err := svc.CreateProject(context.Background(), alice, project.NewProject{ID: event.NotificationsStream, DisplayName: "X"})
	if !apperrors.IsKind(err, apperrors.KindInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestProjectedBudgetUpdateNotifiesAssigneeGroup(t *testing.T) {
	svc, _ := newService(t, memory.New())
	newSubproject(t, svc)
	ctx := context.Background()

	// Subproject creation already notified both reviewers.
	for _, user := range []identity.ServiceUser{bob, charlie} {
		count, err := svc.CountUnreadNotifications(ctx, user)
		if err != nil {
			t.Fatalf("count %s: %v", user.ID, err)
		}
		if count != 1 {
			t.Fatalf("expected 1 unread for %s, got %d", user.ID, count)
		}
	}

	budgets, err := svc.UpdateSubprojectProjectedBudget(ctx, alice, "p1", "s1", "ACME", "2500.75", "eur")
	if err != nil {
		t.Fatalf("update projected budget: %v", err)
	}
	if len(budgets) != 1 || budgets[0].CurrencyCode != "EUR" || budgets[0].Value != "2500.75" {
		t.Fatalf("unexpected budgets: %+v", budgets)
	}
	s, err := svc.GetSubproject(ctx, alice, "p1", "s1")
	if err != nil {
		t.Fatalf("get subproject: %v", err)
	}
	if len(s.ProjectedBudgets) != 1 {
		t.Fatalf("expected stored budget, got %+v", s.ProjectedBudgets)
	}

	notifications, err := svc.ListNotifications(ctx, bob)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifications))
	}
	newest := notifications[0]
	if newest.BusinessEvent.Type != event.TypeSubprojectProjectedBudgetUpdated {
		t.Fatalf("expected newest notification about budget update, got %s", newest.BusinessEvent.Type)
	}
	if newest.Ref.SubprojectID != "s1" {
		t.Fatalf("expected ref to s1, got %+v", newest.Ref)
	}
	if count, _ := svc.CountUnreadNotifications(ctx, alice); count != 0 {
		t.Fatalf("expected acting user to get no notifications, got %d", count)
	}

	unread, err := svc.MarkNotificationsRead(ctx, bob, []string{newest.ID})
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if unread != 1 {
		t.Fatalf("expected 1 unread after mark read, got %d", unread)
	}
	if count, _ := svc.CountUnreadNotifications(ctx, charlie); count != 2 {
		t.Fatalf("expected charlie to keep 2 unread, got %d", count)
	}

	// Another user's notification is not in charlie's inbox.
	_, err = svc.MarkNotificationsRead(ctx, charlie, []string{newest.ID})
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Fatalf("expected notification not found, got %v", err)
	}
}

func TestDeleteAbsentProjectedBudgetAppendsNothing(t *testing.T) {
	store := memory.New()
	svc, _ := newService(t, store)
	newSubproject(t, svc)
	ctx := context.Background()

	before, _ := store.ReadStream(ctx, "p1", 0)
	budgets, err := svc.DeleteSubprojectProjectedBudget(ctx, alice, "p1", "s1", "ACME", "USD")
	if err != nil {
		t.Fatalf("delete projected budget: %v", err)
	}
	if len(budgets) != 0 {
		t.Fatalf("expected no budgets, got %+v", budgets)
	}
	after, _ := store.ReadStream(ctx, "p1", 0)
	if len(after) != len(before) {
		t.Fatalf("expected no new events, got %d", len(after)-len(before))
	}
}

func TestEventsCarryRequestSource(t *testing.T) {
	store := memory.New()
	svc, _ := newService(t, store)
	ctx := requestctx.WithSource(context.Background(), "grpc")
	if _, err := svc.CreateProject(ctx, alice, project.NewProject{ID: "p1", DisplayName: "School"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	items, err := store.ReadStream(context.Background(), "p1", 0)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(items) != 1 || items[0].Data.JSON.Source != "grpc" {
		t.Fatalf("expected one event from grpc, got %+v", items)
	}
}

func TestListWorkflowitemsRedactsHistory(t *testing.T) {
	svc, _ := newService(t, memory.New())
	newSubproject(t, svc)
	ctx := context.Background()

	for _, id := range []string{"w1", "w2"} {
		_, err := svc.CreateWorkflowitem(ctx, alice, "p1", "s1", workflowitem.NewWorkflowitem{ID: id, DisplayName: "Step " + id})
		if err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if _, err := svc.ReorderWorkflowitems(ctx, alice, "p1", "s1", []string{"w2"}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	_, err := svc.ChangeWorkflowitemPermission(ctx, alice, "p1", "s1", "w1", permission.Change{
		Intent:   permission.WorkflowitemView,
		Identity: "reviewers",
		Grant:    true,
	})
	if err != nil {
		t.Fatalf("grant view: %v", err)
	}

	items, err := svc.ListWorkflowitems(ctx, alice, "p1", "s1")
	if err != nil {
		t.Fatalf("list as alice: %v", err)
	}
	if len(items) != 2 || items[0].ID != "w2" || items[1].ID != "w1" {
		t.Fatalf("expected [w2 w1], got %v", ids(items))
	}
	if len(items[1].Log) != 2 {
		t.Fatalf("expected alice to see 2 trace entries on w1, got %d", len(items[1].Log))
	}

	items, err = svc.ListWorkflowitems(ctx, bob, "p1", "s1")
	if err != nil {
		t.Fatalf("list as bob: %v", err)
	}
	if len(items) != 1 || items[0].ID != "w1" {
		t.Fatalf("expected bob to see only w1, got %v", ids(items))
	}
	if len(items[0].Log) != 1 || items[0].Log[0].BusinessEvent.Type != event.TypeWorkflowitemCreated {
		t.Fatalf("expected bob to see only the creation entry, got %+v", items[0].Log)
	}

	_, err = svc.ListWorkflowitems(ctx, alice, "p1", "missing")
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func ids(list []workflowitem.Workflowitem) []string {
	out := make([]string, len(list))
	for i, w := range list {
		out[i] = w.ID
	}
	return out
}

// failingStore fails every append after the first allowed ones. With
// readsFailAfterAppend set, every read after the next successful append
// fails too.
type failingStore struct {
	ledger.Store
	mu                   sync.Mutex
	allowed              int
	armed                bool
	readsFailAfterAppend bool
	readsDown            bool
	reads                map[string]int
}

func (s *failingStore) AppendEvent(ctx context.Context, stream, key string, data ledger.Data) (uint64, error) {
	s.mu.Lock()
	if s.armed {
		if s.allowed == 0 {
			s.mu.Unlock()
			return 0, errors.New("ledger node offline")
		}
		s.allowed--
	}
	s.mu.Unlock()
	seq, err := s.Store.AppendEvent(ctx, stream, key, data)
	if err == nil {
		s.mu.Lock()
		if s.readsFailAfterAppend {
			s.readsDown = true
		}
		s.mu.Unlock()
	}
	return seq, err
}

func (s *failingStore) ReadStream(ctx context.Context, stream string, after uint64) ([]ledger.Item, error) {
	s.mu.Lock()
	if s.reads == nil {
		s.reads = map[string]int{}
	}
	s.reads[stream]++
	down := s.readsDown
	s.mu.Unlock()
	if down {
		return nil, errors.New("ledger node offline")
	}
	return s.Store.ReadStream(ctx, stream, after)
}

func (s *failingStore) setReadsDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readsDown = down
	s.readsFailAfterAppend = false
}

func (s *failingStore) readsOf(stream string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[stream]
}

func (s *failingStore) arm(allowed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
	s.allowed = allowed
}

func TestPartialAppendIsNotRetryable(t *testing.T) {
	store := &failingStore{Store: memory.New()}
	svc, recorder := newService(t, store)
	newSubproject(t, svc)
	ctx := context.Background()

	// The budget update emits the business event plus one notification
	// per reviewer; only the business event gets through.
	store.arm(1)
	_, err := svc.UpdateSubprojectProjectedBudget(ctx, alice, "p1", "s1", "ACME", "10", "EUR")
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperrors.IsNonRetryable(err) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
	if !apperrors.IsCode(err, apperrors.CodePartialAppend) {
		t.Fatalf("expected partial append code, got %s", apperrors.GetCode(err))
	}
	got := counterValue(t, recorder, "trubudget_commands_total", map[string]string{"command": "subproject.budget.updateProjected", "outcome": metrics.OutcomeFailed})
	if got != 1 {
		t.Fatalf("expected 1 failed command, got %v", got)
	}

	s, err := svc.GetSubproject(ctx, alice, "p1", "s1")
	if err != nil {
		t.Fatalf("get subproject: %v", err)
	}
	if len(s.ProjectedBudgets) != 1 {
		t.Fatalf("expected the appended budget event to be visible, got %+v", s.ProjectedBudgets)
	}
}

func TestFirstAppendFailureIsRetryable(t *testing.T) {
	store := &failingStore{Store: memory.New()}
	svc, _ := newService(t, store)
	newSubproject(t, svc)

	store.arm(0)
	_, err := svc.UpdateSubprojectProjectedBudget(context.Background(), alice, "p1", "s1", "ACME", "10", "EUR")
	if !apperrors.IsCode(err, apperrors.CodeLedgerUnavailable) {
		t.Fatalf("expected ledger unavailable, got %v", err)
	}
	if apperrors.IsNonRetryable(err) {
		t.Fatal("expected a retryable error when nothing was appended")
	}
}

func TestGrantToUnknownIdentityIsRejected(t *testing.T) {
	svc, _ := newService(t, memory.New())
	newSubproject(t, svc)
	ctx := context.Background()

	if _, err := svc.CreateWorkflowitem(ctx, alice, "p1", "s1", workflowitem.NewWorkflowitem{ID: "w1", DisplayName: "Step"}); err != nil {
		t.Fatalf("create workflowitem: %v", err)
	}
	_, err := svc.ChangeWorkflowitemPermission(ctx, alice, "p1", "s1", "w1", permission.Change{
		Intent:   permission.WorkflowitemView,
		Identity: "ghost",
		Grant:    true,
	})
	if !apperrors.IsCode(err, apperrors.CodeIdentityNotFound) {
		t.Fatalf("expected identity not found, got %v", err)
	}
	for _, grant := range []func() error{
		func() error {
			_, err := svc.ChangeProjectPermission(ctx, alice, "p1", permission.Change{Intent: permission.ProjectView, Identity: "ghost", Grant: true})
			return err
		},
		func() error {
			_, err := svc.ChangeSubprojectPermission(ctx, alice, "p1", "s1", permission.Change{Intent: permission.SubprojectView, Identity: "ghost", Grant: true})
			return err
		},
	} {
		if err := grant(); !apperrors.IsKind(err, apperrors.KindNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	}

	_, err = svc.ChangeWorkflowitemPermission(ctx, alice, "p1", "s1", "w1", permission.Change{
		Intent:   permission.WorkflowitemView,
		Identity: "reviewers",
		Grant:    true,
	})
	if err != nil {
		t.Fatalf("grant view: %v", err)
	}
	items, err := svc.ListWorkflowitems(ctx, bob, "p1", "s1")
	if err != nil {
		t.Fatalf("expected bob to list workflowitems, got %v", err)
	}
	if len(items) != 1 || items[0].ID != "w1" {
		t.Fatalf("expected bob to see w1, got %v", ids(items))
	}
}

func TestCreateByUnknownUserIsRejected(t *testing.T) {
	store := memory.New()
	svc, _ := newService(t, store)
	newSubproject(t, svc)
	ctx := context.Background()

	if _, err := svc.ChangeProjectPermission(ctx, alice, "p1", permission.Change{Intent: permission.ProjectCreateSubproject, Identity: "reviewers", Grant: true}); err != nil {
		t.Fatalf("grant create subproject: %v", err)
	}
	if _, err := svc.ChangeSubprojectPermission(ctx, alice, "p1", "s1", permission.Change{Intent: permission.SubprojectCreateWorkflowitem, Identity: "reviewers", Grant: true}); err != nil {
		t.Fatalf("grant create workflowitem: %v", err)
	}

	// mallory's token claims the reviewers group but the directory has no such user.
	mallory := identity.ServiceUser{ID: "mallory", Groups: []string{"reviewers"}}
	before, _ := store.ReadStream(ctx, "p1", 0)
	if _, err := svc.CreateSubproject(ctx, mallory, "p1", subproject.NewSubproject{ID: "s2", DisplayName: "Walls", Currency: "EUR"}); !apperrors.IsCode(err, apperrors.CodeIdentityNotFound) {
		t.Fatalf("expected identity not found for subproject, got %v", err)
	}
	if _, err := svc.CreateWorkflowitem(ctx, mallory, "p1", "s1", workflowitem.NewWorkflowitem{ID: "w1", DisplayName: "Step"}); !apperrors.IsCode(err, apperrors.CodeIdentityNotFound) {
		t.Fatalf("expected identity not found for workflowitem, got %v", err)
	}
	after, _ := store.ReadStream(ctx, "p1", 0)
	if len(after) != len(before) {
		t.Fatalf("expected no appends, stream grew from %d to %d", len(before), len(after))
	}

	if _, err := svc.CreateWorkflowitem(ctx, charlie, "p1", "s1", workflowitem.NewWorkflowitem{ID: "w1", DisplayName: "Step"}); err != nil {
		t.Fatalf("expected charlie to create workflowitem, got %v", err)
	}
}

func TestRefreshFailureAfterFullAppendSucceeds(t *testing.T) {
	store := &failingStore{Store: memory.New()}
	svc, recorder := newService(t, store)
	newSubproject(t, svc)
	ctx := context.Background()

	store.mu.Lock()
	store.readsFailAfterAppend = true
	store.mu.Unlock()
	budgets, err := svc.UpdateSubprojectProjectedBudget(ctx, alice, "p1", "s1", "ACME", "10", "EUR")
	if err != nil {
		t.Fatalf("expected success once every event is stored, got %v", err)
	}
	if len(budgets) != 1 {
		t.Fatalf("expected 1 projected budget, got %+v", budgets)
	}
	got := counterValue(t, recorder, "trubudget_commands_total", map[string]string{"command": "subproject.budget.updateProjected", "outcome": metrics.OutcomeAccepted})
	if got != 1 {
		t.Fatalf("expected 1 accepted command, got %v", got)
	}

	store.setReadsDown(false)
	s, err := svc.GetSubproject(ctx, alice, "p1", "s1")
	if err != nil {
		t.Fatalf("get subproject: %v", err)
	}
	if len(s.ProjectedBudgets) != 1 {
		t.Fatalf("expected the stored budget after the ledger recovers, got %+v", s.ProjectedBudgets)
	}
}

func TestBootstrapWarmsServiceStreams(t *testing.T) {
	store := &failingStore{Store: memory.New()}
	svc, err := app.New(store, app.Options{Organization: "ACME"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	for _, stream := range []string{event.GlobalStream, event.UsersStream, event.NotificationsStream} {
		if got := store.readsOf(stream); got != 1 {
			t.Fatalf("expected 1 read of %s, got %d", stream, got)
		}
	}

	down := &failingStore{Store: memory.New(), readsDown: true}
	svc, err = app.New(down, app.Options{Organization: "ACME"})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Bootstrap(context.Background()); !apperrors.IsCode(err, apperrors.CodeLedgerUnavailable) {
		t.Fatalf("expected ledger unavailable, got %v", err)
	}
}
