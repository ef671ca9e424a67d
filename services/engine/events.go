package engine

// EventType classifies replay events recorded for forensics.
type EventType string

const (
	EventEntryFill      EventType = "entry_fill"
	EventPyramidFill    EventType = "pyramid_fill"
	EventExitFill       EventType = "exit_fill"
	EventStopHit        EventType = "stop_hit"
	EventSignalRejected EventType = "signal_rejected"
	EventEndOfData      EventType = "end_of_data_flatten"
)

// Event is one append-only record attributed to a single candle
// timestamp, so any failure can be traced to the bar that caused it.
type Event struct {
	Timestamp int64             `json:"timestamp"`
	Type      EventType         `json:"type"`
	Details   map[string]string `json:"details,omitempty"`
}

// EventLog collects events in replay order.
type EventLog struct {
	Events []Event
}

// Append records one event.
func (l *EventLog) Append(e Event) { l.Events = append(l.Events, e) }
