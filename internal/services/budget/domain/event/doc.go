// Package event defines the business event envelope shared by every budget
// aggregate, the closed vocabulary of event types, and the routing of each
// type onto a ledger stream and key.
//
// Events are immutable once appended. Aggregates are never stored; they are
// folded from their ordered events on every read.
package event
