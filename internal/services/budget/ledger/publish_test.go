package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/ledger"
	"github.com/openkfw/trubudget/internal/services/budget/ledger/ledgertest"
	"github.com/openkfw/trubudget/internal/services/budget/ledger/memory"
)

// flakyStore reports a missing stream for the first failures appends.
type flakyStore struct {
	*memory.Store
	failures  int
	appends   int
	creates   int
	appendErr error
}

func (s *flakyStore) AppendEvent(ctx context.Context, stream, key string, data ledger.Data) (uint64, error) {
	s.appends++
	if s.appendErr != nil {
		return 0, s.appendErr
	}
	if s.failures > 0 {
		s.failures--
		return 0, fmt.Errorf("%w: %s", ledger.ErrStreamNotFound, stream)
	}
	return s.Store.AppendEvent(ctx, stream, key, data)
}

func (s *flakyStore) GetOrCreateStream(ctx context.Context, kind event.StreamKind, name string) error {
	s.creates++
	return s.Store.GetOrCreateStream(ctx, kind, name)
}

func projectCreated(t *testing.T) event.Event {
	return ledgertest.Event(t, event.TypeProjectCreated, map[string]any{
		"projectId":   "p1",
		"displayName": "Schools",
		"assignee":    "alice",
		"permissions": map[string][]string{},
	})
}

func TestPublishCreatesMissingStreamAndRetriesOnce(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	var retried []string
	p := ledger.NewPublisher(store, ledger.WithCreateRetryHook(func(stream string) {
		retried = append(retried, stream)
	}))

	item, err := p.Publish(context.Background(), projectCreated(t))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if store.appends != 2 || store.creates != 1 {
		t.Fatalf("expected 2 appends and 1 create, got %d and %d", store.appends, store.creates)
	}
	if len(retried) != 1 || retried[0] != "p1" {
		t.Fatalf("expected retry hook for p1, got %v", retried)
	}
	if item.Stream != "p1" || item.Key != event.SelfKey || item.Seq != 1 {
		t.Fatalf("unexpected item %+v", item)
	}

	streams, err := store.Streams(context.Background(), event.StreamKindProject)
	if err != nil {
		t.Fatalf("streams: %v", err)
	}
	if len(streams) != 1 || streams[0].Name != "p1" {
		t.Fatalf("expected project stream p1, got %+v", streams)
	}
}

func TestPublishSecondMissingStreamIsUnexpected(t *testing.T) {
	store := &flakyStore{Store: memory.New(), failures: 2}
	p := ledger.NewPublisher(store)

	_, err := p.Publish(context.Background(), projectCreated(t))
	if !apperrors.IsKind(err, apperrors.KindUnexpected) {
		t.Fatalf("expected Unexpected, got %v", err)
	}
	if store.appends != 2 {
		t.Fatalf("expected exactly one retry, got %d appends", store.appends)
	}
}

func TestPublishOtherFailuresAreNotRetried(t *testing.T) {
	store := &flakyStore{Store: memory.New(), appendErr: errors.New("connection reset")}
	p := ledger.NewPublisher(store)

	_, err := p.Publish(context.Background(), projectCreated(t))
	if !apperrors.IsCode(err, apperrors.CodeLedgerUnavailable) {
		t.Fatalf("expected ledger unavailable, got %v", err)
	}
	if store.appends != 1 || store.creates != 0 {
		t.Fatalf("expected no retry, got %d appends and %d creates", store.appends, store.creates)
	}
}

func TestPublishRejectsInvalidEvents(t *testing.T) {
	p := ledger.NewPublisher(memory.New())
	evt := projectCreated(t)
	evt.CreatedBy = ""
	if _, err := p.Publish(context.Background(), evt); !apperrors.IsKind(err, apperrors.KindUnexpected) {
		t.Fatalf("expected Unexpected for invalid event, got %v", err)
	}
}

func TestPublishRoutesByPayload(t *testing.T) {
	store := memory.New()
	p := ledger.NewPublisher(store)
	evt := ledgertest.Event(t, event.TypeNotificationCreated, map[string]any{
		"notificationId": "n1",
		"recipient":      "bob",
		"projectId":      "p1",
	})
	item, err := p.Publish(context.Background(), evt)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if item.Stream != event.NotificationsStream || item.Key != "bob" {
		t.Fatalf("expected notifications/bob, got %s/%s", item.Stream, item.Key)
	}
	items, err := store.ReadEvents(context.Background(), event.NotificationsStream, "bob")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := ledger.Events(items); len(got) != 1 || got[0].Type != event.TypeNotificationCreated {
		t.Fatalf("expected stored notification, got %+v", got)
	}
}

func TestNilPublisherIsUnavailable(t *testing.T) {
	var p *ledger.Publisher
	if _, err := p.Publish(context.Background(), projectCreated(t)); !apperrors.IsCode(err, apperrors.CodeLedgerUnavailable) {
		t.Fatalf("expected ledger unavailable, got %v", err)
	}
}

func TestCheckRejectsBatchWithInvalidEvent(t *testing.T) {
	valid := projectCreated(t)
	invalid := projectCreated(t)
	invalid.CreatedBy = ""
	if err := ledger.Check(valid, valid); err != nil {
		t.Fatalf("expected valid batch, got %v", err)
	}
	if err := ledger.Check(valid, invalid); !apperrors.IsKind(err, apperrors.KindUnexpected) {
		t.Fatalf("expected Unexpected for batch with invalid event, got %v", err)
	}
}
