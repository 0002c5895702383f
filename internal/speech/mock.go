package speech

import (
	"context"
	"time"
)

// MockSynth simulates playback: Started immediately, Ended after Duration.
// An interrupted utterance closes its channel without a terminal transition,
// matching platforms that never fire end callbacks for cancelled utterances.
type MockSynth struct {
	Duration time.Duration
}

func NewMockSynth(duration time.Duration) *MockSynth {
	return &MockSynth{Duration: duration}
}

func (m *MockSynth) Speak(ctx context.Context, _ Utterance) (<-chan Transition, error) {
	transitions := make(chan Transition, 2)
	go func() {
		defer close(transitions)
		select {
		case transitions <- Transition{Phase: PhaseStarted}:
		case <-ctx.Done():
			return
		}
		select {
		case <-time.After(m.Duration):
			transitions <- Transition{Phase: PhaseEnded}
		case <-ctx.Done():
		}
	}()
	return transitions, nil
}
