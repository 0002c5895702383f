package recognition

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/parlalabs/parla-core/internal/languages"
)

// DiagnosticUnsupported is the persistent diagnostic shown when the platform
// offers no speech recognition capability.
const DiagnosticUnsupported = "Speech recognition is not supported in this browser."

// State is a snapshot of the controller.
type State struct {
	Transcript TranscriptState `json:"transcript"`
	Listening  bool            `json:"listening"`
}

// Controller owns one continuous recognition session and normalizes its
// interim/final results into a growing transcript.
type Controller struct {
	capability     Capability
	sink           EventSink
	log            *slog.Logger
	publishInterim bool

	mu       sync.Mutex
	language string
	running  bool
	session  Session
	done     chan struct{}

	state transcript
}

func NewController(capability Capability, defaultLanguage string, publishInterim bool, sink EventSink, log *slog.Logger) *Controller {
	return &Controller{
		capability:     capability,
		sink:           sink,
		log:            log.With(slog.String("component", "recognition-controller")),
		publishInterim: publishInterim,
		language:       defaultLanguage,
	}
}

// Configure rebinds the recognition language. Safe to call at any time; when
// a session is active the new language takes effect on the next Start.
func (c *Controller) Configure(languageCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.language = languageCode
}

// Supported reports whether the platform offers recognition at all.
func (c *Controller) Supported() bool {
	return c.capability != nil
}

// Start begins listening. Calling Start while already listening is a no-op.
// A missing capability degrades instead of crashing: one persistent
// diagnostic, and the controller stays idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	if c.capability == nil {
		c.mu.Unlock()
		c.log.Warn("speech recognition capability unavailable")
		c.sink.StateChanged(false, DiagnosticUnsupported)
		return nil
	}
	locale := languages.LocaleFor(c.language)
	c.mu.Unlock()

	session, err := c.capability.OpenSession(ctx, locale)
	if err != nil {
		diag := fmt.Sprintf("Could not start speech recognition: %v", err)
		c.sink.StateChanged(false, diag)
		return fmt.Errorf("open recognition session: %w", err)
	}

	done := make(chan struct{})

	c.mu.Lock()
	c.running = true
	c.session = session
	c.done = done
	c.mu.Unlock()

	c.state.clearInterim()
	c.sink.StateChanged(true, "")
	c.log.Info("recognition session started", slog.String("locale", locale))

	go c.consume(session, done)
	return nil
}

// Stop requests a graceful end. The terminal End event clears status to idle
// and discards any outstanding interim text.
func (c *Controller) Stop() error {
	c.mu.Lock()
	session := c.session
	running := c.running
	c.mu.Unlock()

	if !running || session == nil {
		return nil
	}
	return session.Stop()
}

// State returns a copy of the transcript and listening status.
func (c *Controller) State() State {
	c.mu.Lock()
	listening := c.running
	c.mu.Unlock()
	return State{Transcript: c.state.snapshot(), Listening: listening}
}

// Wait blocks until the current session (if any) has fully ended.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Controller) consume(session Session, done chan struct{}) {
	defer close(done)

	var diagnostic string
	for event := range session.Events() {
		switch event.Kind {
		case EventResult:
			c.processResult(event)
		case EventError:
			diagnostic = diagnosticFor(event.Code, event.Message)
			c.log.Warn("recognition error",
				slog.String("code", event.Code),
				slog.String("message", event.Message))
		case EventEnd:
			// terminal; channel close follows
		}
	}

	c.mu.Lock()
	c.running = false
	c.session = nil
	c.done = nil
	c.mu.Unlock()

	// Outstanding interim text is discarded, never appended.
	c.state.clearInterim()
	c.sink.StateChanged(false, diagnostic)
	c.log.Info("recognition session ended")
}

// processResult walks the batch from the resume index. Final segments are
// committed before any interim replacement happens, so interim flicker can
// never overwrite finalized text.
func (c *Controller) processResult(event Event) {
	start := event.ResumeIndex
	if start < 0 {
		start = 0
	}

	var finalDelta, interimBuf string
	for i := start; i < len(event.Segments); i++ {
		segment := event.Segments[i]
		if segment.Final {
			finalDelta += segment.Transcript
		} else {
			interimBuf += segment.Transcript
		}
	}

	if finalDelta != "" {
		c.state.appendFinal(finalDelta)
		c.sink.TranscriptFinal(finalDelta)
		return
	}
	c.state.setInterim(interimBuf)
	if c.publishInterim {
		c.sink.TranscriptPartial(interimBuf)
	}
}

func diagnosticFor(code, message string) string {
	switch code {
	case "not-allowed", "service-not-allowed":
		return "Microphone access was denied."
	case "no-speech":
		return "No speech was detected. Please try again."
	case "network":
		return "Speech recognition network error."
	case "aborted":
		return ""
	}
	if message != "" {
		return "Speech recognition error: " + message
	}
	return "Speech recognition error."
}
