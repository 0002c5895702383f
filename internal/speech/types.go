package speech

import "context"

// Utterance describes one playback request.
type Utterance struct {
	Text   string  `json:"text"`
	Locale string  `json:"locale"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
}

// Phase enumerates playback transitions.
type Phase string

const (
	PhaseStarted Phase = "started"
	PhaseEnded   Phase = "ended"
	PhaseFailed  Phase = "failed"
)

// Transition is one observable playback state change.
type Transition struct {
	Phase  Phase  `json:"phase"`
	Detail string `json:"detail,omitempty"`
}

// Synthesizer plays a single utterance. Transitions arrive on the returned
// channel, which is closed after the terminal transition. Cancelling the
// context interrupts playback; an interrupted utterance may close its channel
// without ever delivering a terminal transition.
type Synthesizer interface {
	Speak(ctx context.Context, utterance Utterance) (<-chan Transition, error)
}
