package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func mustEvent(t *testing.T, typ Type, data any) Event {
	t.Helper()
	evt, err := New(typ, "alice", testTime, data)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return evt
}

func TestNewEncodesPayload(t *testing.T) {
	evt := mustEvent(t, TypeProjectCreated, map[string]string{"projectId": "p1"})
	if evt.DataVersion != CurrentDataVersion {
		t.Fatalf("expected data version %d, got %d", CurrentDataVersion, evt.DataVersion)
	}
	var payload map[string]string
	if err := evt.Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["projectId"] != "p1" {
		t.Fatalf("expected projectId p1, got %q", payload["projectId"])
	}
}

func TestValidate(t *testing.T) {
	valid := mustEvent(t, TypeProjectCreated, map[string]string{"projectId": "p1"})
	tests := []struct {
		name   string
		mutate func(*Event)
		want   error
	}{
		{name: "valid", mutate: func(*Event) {}},
		{name: "unknown type", mutate: func(e *Event) { e.Type = " workflowitem_created" }, want: ErrTypeUnknown},
		{name: "missing author", mutate: func(e *Event) { e.CreatedBy = " " }, want: ErrCreatedByRequired},
		{name: "missing time", mutate: func(e *Event) { e.CreatedAt = time.Time{} }, want: ErrCreatedAtRequired},
		{name: "zero version", mutate: func(e *Event) { e.DataVersion = 0 }, want: ErrDataVersionInvalid},
		{name: "array payload", mutate: func(e *Event) { e.Data = json.RawMessage(`[1]`) }, want: ErrPayloadInvalid},
		{name: "broken payload", mutate: func(e *Event) { e.Data = json.RawMessage(`{"a":`) }, want: ErrPayloadInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			evt := valid
			tc.mutate(&evt)
			err := Validate(evt)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected valid event, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		typ  Type
		data map[string]string
		want Address
	}{
		{TypeGlobalPermissionGranted, map[string]string{"intent": "global.createProject"}, Address{StreamKindGlobal, GlobalStream, SelfKey}},
		{TypeUserCreated, map[string]string{"userId": "alice"}, Address{StreamKindUsers, UsersStream, "alice"}},
		{TypeGroupMemberAdded, map[string]string{"groupId": "g1", "userId": "bob"}, Address{StreamKindUsers, UsersStream, "g1"}},
		{TypeProjectAssigned, map[string]string{"projectId": "p1"}, Address{StreamKindProject, "p1", SelfKey}},
		{TypeSubprojectClosed, map[string]string{"projectId": "p1", "subprojectId": "s1"}, Address{StreamKindProject, "p1", "s1"}},
		{TypeWorkflowitemClosed, map[string]string{"projectId": "p1", "subprojectId": "s1", "workflowitemId": "w1"}, Address{StreamKindProject, "p1", "w1"}},
		{TypeNotificationCreated, map[string]string{"recipient": "bob"}, Address{StreamKindNotifications, NotificationsStream, "bob"}},
	}
	for _, tc := range tests {
		t.Run(string(tc.typ), func(t *testing.T) {
			got, err := Route(mustEvent(t, tc.typ, tc.data))
			if err != nil {
				t.Fatalf("route: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestRouteRejectsIncompleteScope(t *testing.T) {
	_, err := Route(mustEvent(t, TypeWorkflowitemCreated, map[string]string{"projectId": "p1", "workflowitemId": "w1"}))
	if !errors.Is(err, ErrScopeIncomplete) {
		t.Fatalf("expected ErrScopeIncomplete, got %v", err)
	}
}

func TestTypesAreSortedAndKnown(t *testing.T) {
	types := Types()
	if len(types) == 0 {
		t.Fatal("expected registered types")
	}
	for i, typ := range types {
		if !Known(typ) {
			t.Fatalf("type %s not known", typ)
		}
		if i > 0 && types[i-1] >= typ {
			t.Fatalf("types not sorted at %d: %s >= %s", i, types[i-1], typ)
		}
	}
}

func TestTypeDomain(t *testing.T) {
	if got := TypeSubprojectItemsReordered.Domain(); got != "subproject" {
		t.Fatalf("expected subproject, got %q", got)
	}
	if got := Type("plain").Domain(); got != "plain" {
		t.Fatalf("expected plain, got %q", got)
	}
}

func TestReservedStreamNames(t *testing.T) {
	for _, name := range []string{GlobalStream, UsersStream, NotificationsStream, OrganizationStream("ACME")} {
		if !Reserved(name) {
			t.Fatalf("expected %q reserved", name)
		}
	}
	if Reserved("school-project") {
		t.Fatal("expected project id to be free")
	}
}
