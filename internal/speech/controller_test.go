package speech

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedSynth hands out one controllable playback per Speak call.
type scriptedSynth struct {
	mu        sync.Mutex
	playbacks []*playback
}

type playback struct {
	utterance   Utterance
	transitions chan Transition
	ctx         context.Context
}

func (s *scriptedSynth) Speak(ctx context.Context, utterance Utterance) (<-chan Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &playback{
		utterance:   utterance,
		transitions: make(chan Transition, 4),
		ctx:         ctx,
	}
	s.playbacks = append(s.playbacks, p)
	return p.transitions, nil
}

func (s *scriptedSynth) playback(i int) *playback {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playbacks[i]
}

func (s *scriptedSynth) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.playbacks)
}

type transitionRecorder struct {
	mu  sync.Mutex
	got []Transition
}

func (r *transitionRecorder) record(t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, t)
}

func (r *transitionRecorder) last() (Transition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		return Transition{}, false
	}
	return r.got[len(r.got)-1], true
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestControllerSpeakLifecycle(t *testing.T) {
	t.Parallel()

	synth := &scriptedSynth{}
	controller := NewController(synth, 0.8, 1.0, testLogger())
	recorder := &transitionRecorder{}

	if err := controller.Speak(context.Background(), "hello", "th", recorder.record); err != nil {
		t.Fatalf("speak failed: %v", err)
	}

	p := synth.playback(0)
	if p.utterance.Locale != "th-TH" {
		t.Fatalf("expected locale th-TH, got %q", p.utterance.Locale)
	}
	if p.utterance.Rate != 0.8 || p.utterance.Pitch != 1.0 {
		t.Fatalf("unexpected utterance tuning: %+v", p.utterance)
	}

	p.transitions <- Transition{Phase: PhaseStarted}
	waitFor(t, controller.Speaking)

	p.transitions <- Transition{Phase: PhaseEnded}
	close(p.transitions)
	waitFor(t, func() bool { return !controller.Speaking() })
}

func TestControllerSecondSpeakInterruptsFirst(t *testing.T) {
	t.Parallel()

	synth := &scriptedSynth{}
	controller := NewController(synth, 0.8, 1.0, testLogger())
	recorder := &transitionRecorder{}

	if err := controller.Speak(context.Background(), "first", "en", recorder.record); err != nil {
		t.Fatalf("first speak failed: %v", err)
	}
	first := synth.playback(0)
	first.transitions <- Transition{Phase: PhaseStarted}
	waitFor(t, controller.Speaking)

	if err := controller.Speak(context.Background(), "second", "en", recorder.record); err != nil {
		t.Fatalf("second speak failed: %v", err)
	}
	if synth.count() != 2 {
		t.Fatalf("expected two playbacks, got %d", synth.count())
	}

	// The first playback's context must be cancelled, and the speaking flag
	// reset before the second utterance reports anything.
	select {
	case <-first.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("first playback was not cancelled")
	}
	if controller.Speaking() {
		t.Fatal("speaking flag must reset synchronously on interruption")
	}

	// A late terminal transition from the interrupted utterance must not
	// clobber the replacement's state.
	second := synth.playback(1)
	second.transitions <- Transition{Phase: PhaseStarted}
	waitFor(t, controller.Speaking)

	first.transitions <- Transition{Phase: PhaseEnded}
	close(first.transitions)
	time.Sleep(20 * time.Millisecond)
	if !controller.Speaking() {
		t.Fatal("stale transition from interrupted utterance clobbered state")
	}

	second.transitions <- Transition{Phase: PhaseEnded}
	close(second.transitions)
	waitFor(t, func() bool { return !controller.Speaking() })
}

func TestControllerErrorClearsSpeakingWithDiagnostic(t *testing.T) {
	t.Parallel()

	synth := &scriptedSynth{}
	controller := NewController(synth, 0.8, 1.0, testLogger())
	recorder := &transitionRecorder{}

	if err := controller.Speak(context.Background(), "text", "en", recorder.record); err != nil {
		t.Fatalf("speak failed: %v", err)
	}
	p := synth.playback(0)
	p.transitions <- Transition{Phase: PhaseStarted}
	waitFor(t, controller.Speaking)

	p.transitions <- Transition{Phase: PhaseFailed, Detail: "engine died"}
	close(p.transitions)
	waitFor(t, func() bool { return !controller.Speaking() })

	last, ok := recorder.last()
	if !ok || last.Phase != PhaseFailed || last.Detail != "engine died" {
		t.Fatalf("expected failed transition surfaced, got %+v", last)
	}
}

func TestControllerUnsupportedSynthesisDegrades(t *testing.T) {
	t.Parallel()

	controller := NewController(nil, 0.8, 1.0, testLogger())
	recorder := &transitionRecorder{}

	if controller.Supported() {
		t.Fatal("expected unsupported synthesis")
	}
	if err := controller.Speak(context.Background(), "text", "en", recorder.record); err != nil {
		t.Fatalf("speak must not fail hard: %v", err)
	}

	last, ok := recorder.last()
	if !ok || last.Phase != PhaseFailed || last.Detail != DiagnosticUnsupported {
		t.Fatalf("expected unsupported diagnostic, got %+v", last)
	}
	if controller.Speaking() {
		t.Fatal("speaking flag must stay false")
	}
}

func TestControllerInterruptedChannelCloseWithoutTerminal(t *testing.T) {
	t.Parallel()

	synth := &scriptedSynth{}
	controller := NewController(synth, 0.8, 1.0, testLogger())
	recorder := &transitionRecorder{}

	if err := controller.Speak(context.Background(), "one", "en", recorder.record); err != nil {
		t.Fatalf("speak failed: %v", err)
	}
	first := synth.playback(0)
	first.transitions <- Transition{Phase: PhaseStarted}
	waitFor(t, controller.Speaking)

	if err := controller.Speak(context.Background(), "two", "en", recorder.record); err != nil {
		t.Fatalf("second speak failed: %v", err)
	}
	// Platform never fires a terminal callback for the interrupted utterance.
	close(first.transitions)

	second := synth.playback(1)
	second.transitions <- Transition{Phase: PhaseStarted}
	waitFor(t, controller.Speaking)
	second.transitions <- Transition{Phase: PhaseEnded}
	close(second.transitions)
	waitFor(t, func() bool { return !controller.Speaking() })
}
