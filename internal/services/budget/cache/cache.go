// Package cache keeps the events of each ledger stream in memory and pulls
// newer items on demand. Cached streams only ever grow forward.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
	"github.com/openkfw/trubudget/internal/services/budget/ledger"
	"golang.org/x/sync/singleflight"
)

type entry struct {
	seq   uint64
	items []ledger.Item
}

// Cache is safe for concurrent readers. Concurrent refreshes of one stream
// share a single ledger read.
type Cache struct {
	store     ledger.Store
	group     singleflight.Group
	onRefresh func(applied int)

	mu      sync.RWMutex
	streams map[string]*entry
	// calls counts Refresh calls per stream. A flight covers every call
	// counted before its read started.
	calls map[string]uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithRefreshHook registers fn to receive the number of items each refresh
// applied.
func WithRefreshHook(fn func(applied int)) Option {
	return func(c *Cache) {
		c.onRefresh = fn
	}
}

// New returns an empty cache over store.
func New(store ledger.Store, opts ...Option) *Cache {
	c := &Cache{store: store, streams: map[string]*entry{}, calls: map[string]uint64{}}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Refresh pulls the items of stream appended since the last refresh. A
// stream the ledger does not know yet is cached as empty. Refresh returns
// only after a ledger read that started after the call itself, so an
// append that completed before the call is always visible.
func (c *Cache) Refresh(ctx context.Context, stream string) error {
	call := c.register(stream)
	for {
		covered, err, _ := c.group.Do(stream, func() (any, error) {
			covered := c.registered(stream)
			after := c.cursor(stream)
			items, err := c.store.ReadStream(ctx, stream, after)
			if errors.Is(err, ledger.ErrStreamNotFound) {
				return covered, nil
			}
			if err != nil {
				return covered, fmt.Errorf("refresh %s: %w", stream, err)
			}
			applied := c.apply(stream, items)
			if c.onRefresh != nil {
				c.onRefresh(applied)
			}
			return covered, nil
		})
		if err != nil {
			return err
		}
		// A flight whose read began before this call may miss its append.
		if covered.(uint64) >= call {
			return nil
		}
	}
}

// RefreshAll refreshes each stream in order, stopping at the first error.
func (c *Cache) RefreshAll(ctx context.Context, streams ...string) error {
	for _, stream := range streams {
		if err := c.Refresh(ctx, stream); err != nil {
			return err
		}
	}
	return nil
}

// Events returns the cached events of stream in append order.
func (c *Cache) Events(stream string) []event.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.streams[stream]
	if !ok {
		return nil
	}
	return ledger.Events(e.items)
}

// EventsFor returns the cached events stored under key in stream.
func (c *Cache) EventsFor(stream, key string) []event.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.streams[stream]
	if !ok {
		return nil
	}
	var out []event.Event
	for _, item := range e.items {
		if item.Key == key {
			out = append(out, item.Data.JSON)
		}
	}
	return out
}

// Seq returns the last cached seq of stream.
func (c *Cache) Seq(stream string) uint64 {
	return c.cursor(stream)
}

func (c *Cache) register(stream string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[stream]++
	return c.calls[stream]
}

func (c *Cache) registered(stream string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls[stream]
}

func (c *Cache) cursor(stream string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.streams[stream]; ok {
		return e.seq
	}
	return 0
}

// apply appends the items past the cached cursor. Items at or before the
// cursor were already applied and are skipped.
func (c *Cache) apply(stream string, items []ledger.Item) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.streams[stream]
	if !ok {
		e = &entry{}
		c.streams[stream] = e
	}
	applied := 0
	for _, item := range items {
		if item.Seq <= e.seq {
			continue
		}
		e.items = append(e.items, item)
		e.seq = item.Seq
		applied++
	}
	return applied
}
