package recognition

import "context"

// Segment is one result segment delivered by the capability.
type Segment struct {
	Transcript string `json:"transcript"`
	Final      bool   `json:"final"`
}

// EventKind enumerates the session event variants.
type EventKind string

const (
	EventResult EventKind = "result"
	EventError  EventKind = "error"
	EventEnd    EventKind = "end"
)

// Event is a single callback from a recognition session. Result events carry
// the full segment list for the current utterance window plus the index of
// the first segment not yet processed.
type Event struct {
	Kind        EventKind `json:"kind"`
	Segments    []Segment `json:"segments,omitempty"`
	ResumeIndex int       `json:"resume_index,omitempty"`
	Code        string    `json:"code,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// Session is a live continuous recognition session. Events is closed after
// the terminal End (or Error) event has been delivered.
type Session interface {
	Events() <-chan Event
	Stop() error
}

// Capability opens continuous, interim-enabled recognition sessions bound to
// a locale. A nil Capability models a platform without speech recognition.
type Capability interface {
	OpenSession(ctx context.Context, locale string) (Session, error)
}

// EventSink receives normalized controller output.
type EventSink interface {
	TranscriptPartial(text string)
	TranscriptFinal(delta string)
	StateChanged(listening bool, diagnostic string)
}
