// Package memory provides an in-process ledger for tests and single-node
// development.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/ledger"
)

type stream struct {
	info  ledger.Stream
	items []ledger.Item
}

// Store is a ledger.Store held in memory.
type Store struct {
	mu      sync.RWMutex
	now     func() time.Time
	streams map[string]*stream
	order   []string
}

// New returns an empty Store.
func New() *Store {
	return &Store{now: time.Now, streams: map[string]*stream{}}
}

// GetOrCreateStream creates the stream when missing.
func (s *Store) GetOrCreateStream(ctx context.Context, kind event.StreamKind, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("stream name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.streams[name]; ok {
		if existing.info.Kind != kind {
			return fmt.Errorf("%w: %s is %s", ledger.ErrStreamKindMismatch, name, existing.info.Kind)
		}
		return nil
	}
	s.streams[name] = &stream{info: ledger.Stream{Name: name, Kind: kind, CreatedAt: s.now().UTC()}}
	s.order = append(s.order, name)
	return nil
}

// AppendEvent appends data under key.
func (s *Store) AppendEvent(ctx context.Context, name, key string, data ledger.Data) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ledger.ErrStreamNotFound, name)
	}
	seq := uint64(len(st.items)) + 1
	st.items = append(st.items, ledger.Item{Stream: name, Key: key, Seq: seq, Data: data})
	return seq, nil
}

// ReadEvents returns the items under key.
func (s *Store) ReadEvents(ctx context.Context, name, key string) ([]ledger.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrStreamNotFound, name)
	}
	var out []ledger.Item
	for _, item := range st.items {
		if item.Key == key {
			out = append(out, item)
		}
	}
	return out, nil
}

// ReadStream returns the items after seq.
func (s *Store) ReadStream(ctx context.Context, name string, after uint64) ([]ledger.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrStreamNotFound, name)
	}
	if after >= uint64(len(st.items)) {
		return nil, nil
	}
	return slices.Clone(st.items[after:]), nil
}

// Streams lists streams of kind in creation order.
func (s *Store) Streams(ctx context.Context, kind event.StreamKind) ([]ledger.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Stream
	for _, name := range s.order {
		if info := s.streams[name].info; info.Kind == kind {
			out = append(out, info)
		}
	}
	return out, nil
}
