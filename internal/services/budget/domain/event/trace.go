package event

// TraceEvent is the display-oriented history entry kept in an aggregate log.
type TraceEvent struct {
	BusinessEvent Event    `json:"businessEvent"`
	Snapshot      Snapshot `json:"snapshot"`
}

// Snapshot denormalizes the aggregate fields a history view shows next to
// the event.
type Snapshot struct {
	DisplayName string `json:"displayName"`
}
