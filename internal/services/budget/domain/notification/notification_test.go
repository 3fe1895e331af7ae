package notification

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/command"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/domain/identity"
)

var directory = identity.ResolverFunc(func(_ context.Context, id string) ([]string, error) {
	switch id {
	case "alice", "bob", "charlie", identity.Root:
		return []string{id}, nil
	case "alice_and_bob_and_charlie":
		return []string{"alice", "bob", "charlie"}, nil
	case "empty":
		return nil, nil
	}
	return nil, errors.New("unexpected identity: " + id)
})

func testEnv() command.Env {
	n := 0
	return command.Env{
		Now: func() time.Time { return time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC) },
		NewID: func() (string, error) {
			n++
			return fmt.Sprintf("n%d", n), nil
		},
	}
}

func causeEvent(t *testing.T) event.Event {
	t.Helper()
	evt, err := event.New(event.TypeSubprojectAssigned, "alice", time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC), map[string]string{"projectId": "p", "subprojectId": "s"})
	if err != nil {
		t.Fatalf("cause: %v", err)
	}
	return evt
}

func recipientsOf(t *testing.T, events []event.Event) []string {
	t.Helper()
	var out []string
	for _, evt := range events {
		if evt.Type != event.TypeNotificationCreated {
			t.Fatalf("unexpected event type %s", evt.Type)
		}
		var payload CreatedPayload
		if err := evt.Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, payload.Recipient)
	}
	return out
}

func TestDeriveGroupExcludesActor(t *testing.T) {
	alice := identity.ServiceUser{ID: "alice"}
	events, err := Derive(context.Background(), testEnv(), directory, alice, "alice_and_bob_and_charlie", Ref{ProjectID: "p", SubprojectID: "s"}, causeEvent(t))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	got := recipientsOf(t, events)
	if len(got) != 2 || got[0] != "bob" || got[1] != "charlie" {
		t.Fatalf("expected [bob charlie], got %v", got)
	}
}

func TestDeriveSingleUser(t *testing.T) {
	alice := identity.ServiceUser{ID: "alice"}
	events, err := Derive(context.Background(), testEnv(), directory, alice, "bob", Ref{ProjectID: "p"}, causeEvent(t))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if got := recipientsOf(t, events); len(got) != 1 || got[0] != "bob" {
		t.Fatalf("expected [bob], got %v", got)
	}
	if err := event.Validate(events[0]); err != nil {
		t.Fatalf("expected routable notification, got %v", err)
	}
	addr, err := event.Route(events[0])
	if err != nil || addr.Stream != event.NotificationsStream || addr.Key != "bob" {
		t.Fatalf("expected notifications/bob, got %+v, %v", addr, err)
	}
}

func TestDeriveNoRecipients(t *testing.T) {
	alice := identity.ServiceUser{ID: "alice"}
	for _, assignee := range []string{"alice", "", "empty"} {
		events, err := Derive(context.Background(), testEnv(), directory, alice, assignee, Ref{}, causeEvent(t))
		if err != nil {
			t.Fatalf("derive %q: %v", assignee, err)
		}
		if len(events) != 0 {
			t.Fatalf("expected no notifications for %q, got %d", assignee, len(events))
		}
	}
}

func TestDeriveSurfacesLookupFailure(t *testing.T) {
	_, err := Derive(context.Background(), testEnv(), directory, identity.ServiceUser{ID: "alice"}, "ghost", Ref{}, causeEvent(t))
	if !apperrors.IsKind(err, apperrors.KindUnexpected) {
		t.Fatalf("expected Unexpected, got %v", err)
	}
}

func TestInboxFoldAndMarkRead(t *testing.T) {
	alice := identity.ServiceUser{ID: "alice"}
	bob := identity.ServiceUser{ID: "bob"}
	env := testEnv()
	events, err := Derive(context.Background(), env, directory, alice, "alice_and_bob_and_charlie", Ref{ProjectID: "p"}, causeEvent(t))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	inbox := Inbox{Recipient: "bob"}
	for _, evt := range events {
		if inbox, err = FoldInbox(inbox, evt); err != nil {
			t.Fatalf("fold: %v", err)
		}
	}
	if len(inbox.Items) != 1 || inbox.Unread() != 1 {
		t.Fatalf("expected one unread item for bob, got %+v", inbox)
	}
	id := inbox.Items[0].ID

	if _, err := MarkRead(env, alice, inbox, []string{id}); !apperrors.IsCode(err, apperrors.CodeNotificationNotOwned) {
		t.Fatalf("expected not owned, got %v", err)
	}
	if _, err := MarkRead(env, bob, inbox, []string{"missing"}); !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	res, err := MarkRead(env, bob, inbox, []string{id})
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if len(res.NewEvents) != 1 || res.NewState.Unread() != 0 {
		t.Fatalf("expected one event and zero unread, got %d events, %d unread", len(res.NewEvents), res.NewState.Unread())
	}
	if inbox.Unread() != 1 {
		t.Fatal("expected prior inbox untouched")
	}

	again, err := MarkRead(env, bob, res.NewState, []string{id})
	if err != nil || len(again.NewEvents) != 0 {
		t.Fatalf("expected idempotent mark read, got %d events, %v", len(again.NewEvents), err)
	}
}
