package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"

	apperrors "github.com/openkfw/trubudget/internal/platform/errors"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
)

// Publisher validates, routes and appends events.
type Publisher struct {
	store Store
	// onCreateRetry runs once per create-then-retry cycle.
	onCreateRetry func(stream string)
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithCreateRetryHook registers fn to run whenever a missing stream is
// created before the append is retried.
func WithCreateRetryHook(fn func(stream string)) PublisherOption {
	return func(p *Publisher) {
		p.onCreateRetry = fn
	}
}

// NewPublisher returns a Publisher appending to store.
func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Publish appends evt to the stream its payload routes to. A missing stream
// is created and the append retried exactly once; any failure after that is
// Unexpected.
func (p *Publisher) Publish(ctx context.Context, evt event.Event) (Item, error) {
	if p == nil || p.store == nil {
		return Item{}, apperrors.New(apperrors.CodeLedgerUnavailable, "ledger is not configured")
	}
	addr, err := event.Route(evt)
	if err != nil {
		return Item{}, apperrors.Unexpected("route event", err)
	}
	data := Data{JSON: evt}
	seq, err := p.store.AppendEvent(ctx, addr.Stream, addr.Key, data)
	if errors.Is(err, ErrStreamNotFound) {
		log.Printf("stream %s missing, creating", addr.Stream)
		if err := p.store.GetOrCreateStream(ctx, addr.Kind, addr.Stream); err != nil {
			return Item{}, apperrors.Unexpected("create stream "+addr.Stream, err)
		}
		if p.onCreateRetry != nil {
			p.onCreateRetry(addr.Stream)
		}
		seq, err = p.store.AppendEvent(ctx, addr.Stream, addr.Key, data)
		if err != nil {
			return Item{}, apperrors.Unexpected("append to "+addr.Stream+" after creating it", err)
		}
	} else if err != nil {
		return Item{}, apperrors.Wrap(apperrors.CodeLedgerUnavailable, "append to "+addr.Stream, err)
	}
	return Item{Stream: addr.Stream, Key: addr.Key, Seq: seq, Data: data}, nil
}

// Check routes every event of a batch without appending anything, so a
// malformed event rejects the whole batch up front.
func Check(events ...event.Event) error {
	for i, evt := range events {
		if _, err := event.Route(evt); err != nil {
			return apperrors.Unexpected(fmt.Sprintf("route event %d of %d (%s)", i+1, len(events), evt.Type), err)
		}
	}
	return nil
}

// EnsureStreams creates each named stream of kind when missing.
func EnsureStreams(ctx context.Context, store Store, kind event.StreamKind, names ...string) error {
	for _, name := range names {
		if err := store.GetOrCreateStream(ctx, kind, name); err != nil {
			return apperrors.Wrap(apperrors.CodeLedgerUnavailable, "create stream "+name, err)
		}
	}
	return nil
}
