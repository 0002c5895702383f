package recognition

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
)

type fakeSink struct {
	mu       sync.Mutex
	partials []string
	finals   []string
	states   []stateChange
}

type stateChange struct {
	listening  bool
	diagnostic string
}

func (f *fakeSink) TranscriptPartial(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partials = append(f.partials, text)
}

func (f *fakeSink) TranscriptFinal(delta string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finals = append(f.finals, delta)
}

func (f *fakeSink) StateChanged(listening bool, diagnostic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateChange{listening: listening, diagnostic: diagnostic})
}

func (f *fakeSink) snapshotStates() []stateChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stateChange(nil), f.states...)
}

func (f *fakeSink) snapshotFinals() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.finals...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestControllerAppendsFinalsInDeliveryOrder(t *testing.T) {
	t.Parallel()

	script := []Event{
		{Kind: EventResult, Segments: []Segment{{Transcript: "hello ", Final: false}}},
		{Kind: EventResult, Segments: []Segment{{Transcript: "hello world. ", Final: true}}},
		{Kind: EventResult, ResumeIndex: 1, Segments: []Segment{
			{Transcript: "hello world. ", Final: true},
			{Transcript: "how are", Final: false},
		}},
		{Kind: EventResult, ResumeIndex: 1, Segments: []Segment{
			{Transcript: "hello world. ", Final: true},
			{Transcript: "how are you?", Final: true},
		}},
		{Kind: EventEnd},
	}

	sink := &fakeSink{}
	controller := NewController(NewMockCapability(script), "en", true, sink, testLogger())

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	controller.Wait()

	state := controller.State()
	if state.Transcript.Finalized != "hello world. how are you?" {
		t.Fatalf("unexpected finalized transcript: %q", state.Transcript.Finalized)
	}
	if state.Transcript.Interim != "" {
		t.Fatalf("expected interim cleared at session end, got %q", state.Transcript.Interim)
	}
	if state.Listening {
		t.Fatal("expected idle after end event")
	}

	finals := sink.snapshotFinals()
	if len(finals) != 2 || finals[0] != "hello world. " || finals[1] != "how are you?" {
		t.Fatalf("unexpected final deltas: %v", finals)
	}
}

func TestControllerFinalBatchClearsInterim(t *testing.T) {
	t.Parallel()

	script := []Event{
		{Kind: EventResult, Segments: []Segment{{Transcript: "partial text", Final: false}}},
		{Kind: EventResult, Segments: []Segment{
			{Transcript: "committed. ", Final: true},
			{Transcript: "trailing", Final: false},
		}},
		{Kind: EventEnd},
	}

	sink := &fakeSink{}
	controller := NewController(NewMockCapability(script), "en", true, sink, testLogger())

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	controller.Wait()

	// The batch carried a final segment, so the interim buffer must have been
	// dropped in favor of the commit even though a non-final segment followed.
	if got := controller.State().Transcript.Finalized; got != "committed. " {
		t.Fatalf("unexpected finalized transcript: %q", got)
	}
	finals := sink.snapshotFinals()
	if len(finals) != 1 || finals[0] != "committed. " {
		t.Fatalf("unexpected final deltas: %v", finals)
	}
}

func TestControllerStopDiscardsInterim(t *testing.T) {
	t.Parallel()

	script := []Event{
		{Kind: EventResult, Segments: []Segment{{Transcript: "spoken. ", Final: true}}},
		{Kind: EventResult, ResumeIndex: 1, Segments: []Segment{
			{Transcript: "spoken. ", Final: true},
			{Transcript: "never committed", Final: false},
		}},
	}

	sink := &fakeSink{}
	controller := NewController(NewMockCapability(script), "en", true, sink, testLogger())

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	controller.Wait()

	state := controller.State()
	if state.Transcript.Finalized != "spoken. " {
		t.Fatalf("unexpected finalized transcript: %q", state.Transcript.Finalized)
	}
	if state.Transcript.Interim != "" {
		t.Fatalf("interim must be discarded on stop, got %q", state.Transcript.Interim)
	}
	if state.Listening {
		t.Fatal("expected idle after stop")
	}
}

func TestControllerUnsupportedCapabilityDegrades(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	controller := NewController(nil, "en", true, sink, testLogger())

	if controller.Supported() {
		t.Fatal("expected unsupported capability")
	}
	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start must not fail hard: %v", err)
	}

	states := sink.snapshotStates()
	if len(states) != 1 {
		t.Fatalf("expected a single state event, got %d", len(states))
	}
	if states[0].listening {
		t.Fatal("start must stay inert without a capability")
	}
	if states[0].diagnostic != DiagnosticUnsupported {
		t.Fatalf("unexpected diagnostic: %q", states[0].diagnostic)
	}
	if controller.State().Listening {
		t.Fatal("controller must remain idle")
	}
}

func TestControllerErrorStopsSessionWithDiagnostic(t *testing.T) {
	t.Parallel()

	script := []Event{
		{Kind: EventResult, Segments: []Segment{{Transcript: "kept. ", Final: true}}},
		{Kind: EventError, Code: "not-allowed", Message: "permission denied"},
	}

	sink := &fakeSink{}
	controller := NewController(NewMockCapability(script), "en", true, sink, testLogger())

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	controller.Wait()

	state := controller.State()
	if state.Listening {
		t.Fatal("expected idle after recognition error")
	}
	if state.Transcript.Finalized != "kept. " {
		t.Fatalf("finalized text must survive the error, got %q", state.Transcript.Finalized)
	}

	states := sink.snapshotStates()
	last := states[len(states)-1]
	if last.listening || last.diagnostic != "Microphone access was denied." {
		t.Fatalf("unexpected terminal state: %+v", last)
	}
}

func TestControllerStartWhileRunningIsNoop(t *testing.T) {
	t.Parallel()

	capability := &countingCapability{inner: NewMockCapability(nil)}
	sink := &fakeSink{}
	controller := NewController(capability, "en", true, sink, testLogger())

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if capability.opens != 1 {
		t.Fatalf("expected a single session, got %d", capability.opens)
	}

	if err := controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	controller.Wait()
}

func TestControllerInterimSuppressedWhenDisabled(t *testing.T) {
	t.Parallel()

	script := []Event{
		{Kind: EventResult, Segments: []Segment{{Transcript: "quiet", Final: false}}},
		{Kind: EventEnd},
	}

	sink := &fakeSink{}
	controller := NewController(NewMockCapability(script), "en", false, sink, testLogger())

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	controller.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.partials) != 0 {
		t.Fatalf("expected no partial events, got %v", sink.partials)
	}
}

type countingCapability struct {
	inner *MockCapability
	opens int
}

func (c *countingCapability) OpenSession(ctx context.Context, locale string) (Session, error) {
	c.opens++
	return c.inner.OpenSession(ctx, locale)
}
