package domain

// EventKind tags a StreamEvent variant.
type EventKind string

const (
	EventChunk EventKind = "chunk"
	EventError EventKind = "error"
	EventDone  EventKind = "done"
)

// StreamEvent is one unit of incremental output for a single request.
type StreamEvent struct {
	Kind EventKind
	Text string // chunk text or error message
}

func Chunk(text string) StreamEvent {
	return StreamEvent{Kind: EventChunk, Text: text}
}

func ErrorEvent(msg string) StreamEvent {
	return StreamEvent{Kind: EventError, Text: msg}
}

func Done() StreamEvent {
	return StreamEvent{Kind: EventDone}
}

// Terminal reports whether no further event may follow e.
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}
