package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/ledger"
	"github.com/openkfw/trubudget/internal/services/budget/ledger/ledgertest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestStoreContract(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store { return openTestStore(t) })
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestReopenKeepsItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()
	if err := store.GetOrCreateStream(ctx, event.StreamKindGlobal, event.GlobalStream); err != nil {
		t.Fatalf("create stream: %v", err)
	}
	evt := ledgertest.Event(t, event.TypeGlobalPermissionGranted, map[string]string{"intent": "global.createProject", "identity": "alice"})
	if _, err := store.AppendEvent(ctx, event.GlobalStream, event.SelfKey, ledger.Data{JSON: evt}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()
	items, err := reopened.ReadStream(ctx, event.GlobalStream, 0)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(items) != 1 || items[0].Data.JSON.Type != event.TypeGlobalPermissionGranted {
		t.Fatalf("expected persisted grant, got %+v", items)
	}
}
