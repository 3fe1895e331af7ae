// Package ledger defines the append-only stream store that holds every
// business event, and publishes events to it.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
)

var (
	// ErrStreamNotFound is returned by AppendEvent and ReadStream when the
	// stream has not been created.
	ErrStreamNotFound = errors.New("stream does not exist")
	// ErrStreamKindMismatch indicates GetOrCreateStream was asked for an
	// existing stream under a different kind.
	ErrStreamKindMismatch = errors.New("stream exists with another kind")
)

// Data is the stored body of one stream item.
type Data struct {
	JSON event.Event `json:"json" cbor:"json"`
}

// Item is one appended stream item. Seq starts at 1 and grows by one per
// append within a stream.
type Item struct {
	Stream string `json:"stream" cbor:"stream"`
	Key    string `json:"key" cbor:"key"`
	Seq    uint64 `json:"seq" cbor:"seq"`
	Data   Data   `json:"data" cbor:"data"`
}

// Stream describes one created stream.
type Stream struct {
	Name      string           `json:"name" cbor:"name"`
	Kind      event.StreamKind `json:"kind" cbor:"kind"`
	CreatedAt time.Time        `json:"createdAt" cbor:"createdAt"`
}

// Store is the log store contract. Appends to one stream are totally
// ordered; nothing is promised across streams.
type Store interface {
	// GetOrCreateStream creates the stream when missing.
	GetOrCreateStream(ctx context.Context, kind event.StreamKind, name string) error
	// AppendEvent appends data under key and returns the new item's Seq.
	AppendEvent(ctx context.Context, stream, key string, data Data) (uint64, error)
	// ReadEvents returns every item stored under key, in append order.
	ReadEvents(ctx context.Context, stream, key string) ([]Item, error)
	// ReadStream returns the items with Seq greater than after, in order.
	ReadStream(ctx context.Context, stream string, after uint64) ([]Item, error)
	// Streams lists the streams of kind in creation order.
	Streams(ctx context.Context, kind event.StreamKind) ([]Stream, error)
}

// Events unwraps the events of items.
func Events(items []Item) []event.Event {
	out := make([]event.Event, len(items))
	for i, item := range items {
		out[i] = item.Data.JSON
	}
	return out
}
