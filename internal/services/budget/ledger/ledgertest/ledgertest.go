// Package ledgertest runs the behavior every ledger.Store must share.
package ledgertest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/ledger"
)

// Run exercises newStore against the ledger contract. newStore must return
// an empty store on every call.
func Run(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Helper()
	t.Run("append to missing stream", func(t *testing.T) {
		testAppendMissingStream(t, newStore(t))
	})
	t.Run("append and read", func(t *testing.T) {
		testAppendAndRead(t, newStore(t))
	})
	t.Run("read after seq", func(t *testing.T) {
		testReadAfter(t, newStore(t))
	})
	t.Run("streams by kind", func(t *testing.T) {
		testStreamsByKind(t, newStore(t))
	})
	t.Run("kind mismatch", func(t *testing.T) {
		testKindMismatch(t, newStore(t))
	})
}

// Event builds a valid event for store tests.
func Event(t *testing.T, typ event.Type, data any) event.Event {
	t.Helper()
	evt, err := event.New(typ, "root", time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC), data)
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	return evt
}

func grant(t *testing.T, identity string) ledger.Data {
	return ledger.Data{JSON: Event(t, event.TypeGlobalPermissionGranted, map[string]string{
		"intent":   "global.createProject",
		"identity": identity,
	})}
}

func testAppendMissingStream(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	if _, err := store.AppendEvent(ctx, "nope", event.SelfKey, grant(t, "alice")); !errors.Is(err, ledger.ErrStreamNotFound) {
		t.Fatalf("expected ErrStreamNotFound, got %v", err)
	}
	if _, err := store.ReadStream(ctx, "nope", 0); !errors.Is(err, ledger.ErrStreamNotFound) {
		t.Fatalf("expected ErrStreamNotFound on read, got %v", err)
	}
}

func testAppendAndRead(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	if err := store.GetOrCreateStream(ctx, event.StreamKindGlobal, event.GlobalStream); err != nil {
		t.Fatalf("create stream: %v", err)
	}
	if err := store.GetOrCreateStream(ctx, event.StreamKindGlobal, event.GlobalStream); err != nil {
		t.Fatalf("create stream twice: %v", err)
	}
	first := grant(t, "alice")
	seq, err := store.AppendEvent(ctx, event.GlobalStream, event.SelfKey, first)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected seq 1, got %d", seq)
	}
	if seq, err = store.AppendEvent(ctx, event.GlobalStream, "other", grant(t, "bob")); err != nil || seq != 2 {
		t.Fatalf("expected seq 2, got %d (%v)", seq, err)
	}

	items, err := store.ReadEvents(ctx, event.GlobalStream, event.SelfKey)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item under self, got %d", len(items))
	}
	got := items[0]
	if got.Stream != event.GlobalStream || got.Key != event.SelfKey || got.Seq != 1 {
		t.Fatalf("unexpected item address %+v", got)
	}
	want := first.JSON
	if got.Data.JSON.Type != want.Type || got.Data.JSON.CreatedBy != want.CreatedBy {
		t.Fatalf("expected %s by %s, got %+v", want.Type, want.CreatedBy, got.Data.JSON)
	}
	if !got.Data.JSON.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("expected createdAt %v, got %v", want.CreatedAt, got.Data.JSON.CreatedAt)
	}
	if string(got.Data.JSON.Data) != string(want.Data) {
		t.Fatalf("expected payload %s, got %s", want.Data, got.Data.JSON.Data)
	}
}

func testReadAfter(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	if err := store.GetOrCreateStream(ctx, event.StreamKindGlobal, event.GlobalStream); err != nil {
		t.Fatalf("create stream: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.AppendEvent(ctx, event.GlobalStream, event.SelfKey, grant(t, id)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	items, err := store.ReadStream(ctx, event.GlobalStream, 1)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(items) != 2 || items[0].Seq != 2 || items[1].Seq != 3 {
		t.Fatalf("expected seqs 2 and 3, got %+v", items)
	}
	items, err = store.ReadStream(ctx, event.GlobalStream, 3)
	if err != nil {
		t.Fatalf("read stream at head: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items past head, got %d", len(items))
	}
}

func testStreamsByKind(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	for _, name := range []string{"p2", "p1"} {
		if err := store.GetOrCreateStream(ctx, event.StreamKindProject, name); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	if err := store.GetOrCreateStream(ctx, event.StreamKindUsers, event.UsersStream); err != nil {
		t.Fatalf("create users: %v", err)
	}
	streams, err := store.Streams(ctx, event.StreamKindProject)
	if err != nil {
		t.Fatalf("streams: %v", err)
	}
	if len(streams) != 2 || streams[0].Name != "p2" || streams[1].Name != "p1" {
		t.Fatalf("expected [p2 p1] in creation order, got %+v", streams)
	}
	if streams[0].Kind != event.StreamKindProject {
		t.Fatalf("expected project kind, got %s", streams[0].Kind)
	}
}

func testKindMismatch(t *testing.T, store ledger.Store) {
	ctx := context.Background()
	if err := store.GetOrCreateStream(ctx, event.StreamKindUsers, event.UsersStream); err != nil {
		t.Fatalf("create users: %v", err)
	}
	err := store.GetOrCreateStream(ctx, event.StreamKindProject, event.UsersStream)
	if !errors.Is(err, ledger.ErrStreamKindMismatch) {
		t.Fatalf("expected ErrStreamKindMismatch, got %v", err)
	}
}
