// Package command holds the result envelope and the environment shared by
// every budget command handler.
//
// Handlers are pure: they take prior state, inputs and read-only
// repositories and return either a complete batch of new events with the
// projection those events produce, or an error and no events.
package command

import (
	"fmt"
	"time"

	"github.com/openkfw/trubudget/internal/platform/id"
	"github.com/openkfw/trubudget/internal/services/budget/domain/event"
)

// Result is the outcome of an accepted command.
type Result[T any] struct {
	NewEvents []event.Event
	NewState  T
}

// Accept returns a result carrying events and state.
func Accept[T any](state T, events ...event.Event) Result[T] {
	return Result[T]{NewEvents: append([]event.Event(nil), events...), NewState: state}
}

// Env carries the clock, id source and request source handlers stamp onto
// new events. Zero values fall back to time.Now and random ids.
type Env struct {
	Now    func() time.Time
	NewID  func() (string, error)
	Source string
}

// Time returns the current time in UTC.
func (e Env) Time() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

// ID returns a fresh identifier.
func (e Env) ID() (string, error) {
	if e.NewID == nil {
		return id.NewID()
	}
	return e.NewID()
}

// Event builds an event authored by createdBy at the current time.
func (e Env) Event(typ event.Type, createdBy string, data any) (event.Event, error) {
	evt, err := event.New(typ, createdBy, e.Time(), data)
	if err != nil {
		return event.Event{}, fmt.Errorf("build %s: %w", typ, err)
	}
	evt.Source = e.Source
	return evt, nil
}
