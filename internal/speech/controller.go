package speech

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/parlalabs/parla-core/internal/languages"
)

// DiagnosticUnsupported is surfaced when the platform offers no speech
// synthesis capability.
const DiagnosticUnsupported = "Speech synthesis is not supported in this browser."

// Controller enforces single-utterance-at-a-time playback: starting a new
// utterance cancels any in-flight one, and the speaking flag is reset
// synchronously before the new utterance starts, because the interrupted
// utterance's terminal transition cannot be relied upon to arrive.
type Controller struct {
	synth Synthesizer
	rate  float64
	pitch float64
	log   *slog.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	generation uint64
	speaking   bool
}

func NewController(synth Synthesizer, rate, pitch float64, log *slog.Logger) *Controller {
	return &Controller{
		synth: synth,
		rate:  rate,
		pitch: pitch,
		log:   log.With(slog.String("component", "speech-controller")),
	}
}

// Supported reports whether synthesis is available at all.
func (c *Controller) Supported() bool {
	return c.synth != nil
}

// Speaking reports whether an utterance is currently playing.
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Speak interrupts any current utterance and plays text in the locale derived
// from languageCode. Transitions are delivered to onTransition in order; a
// missing capability degrades to a failed transition instead of crashing.
func (c *Controller) Speak(ctx context.Context, text, languageCode string, onTransition func(Transition)) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	generation := c.generation
	c.speaking = false
	c.mu.Unlock()

	if c.synth == nil {
		c.log.Warn("speech synthesis capability unavailable")
		onTransition(Transition{Phase: PhaseFailed, Detail: DiagnosticUnsupported})
		return nil
	}

	utterance := Utterance{
		Text:   text,
		Locale: languages.LocaleFor(languageCode),
		Rate:   c.rate,
		Pitch:  c.pitch,
	}

	uttCtx, cancel := context.WithCancel(ctx)
	transitions, err := c.synth.Speak(uttCtx, utterance)
	if err != nil {
		cancel()
		onTransition(Transition{Phase: PhaseFailed, Detail: fmt.Sprintf("Could not start speech: %v", err)})
		return fmt.Errorf("start utterance: %w", err)
	}

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.consume(generation, transitions, onTransition)
	return nil
}

// consume routes transitions for one utterance. Transitions belonging to an
// interrupted (stale) generation are dropped so they cannot clobber the state
// of the utterance that replaced them.
func (c *Controller) consume(generation uint64, transitions <-chan Transition, onTransition func(Transition)) {
	for transition := range transitions {
		c.mu.Lock()
		if generation != c.generation {
			c.mu.Unlock()
			continue
		}
		switch transition.Phase {
		case PhaseStarted:
			c.speaking = true
		case PhaseEnded, PhaseFailed:
			c.speaking = false
		}
		c.mu.Unlock()
		onTransition(transition)
	}

	c.mu.Lock()
	if generation == c.generation {
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.speaking = false
	}
	c.mu.Unlock()
}
