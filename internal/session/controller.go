package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/parlalabs/parla-core/internal/bus"
	"github.com/parlalabs/parla-core/internal/clipboard"
	"github.com/parlalabs/parla-core/internal/languages"
	"github.com/parlalabs/parla-core/internal/protocol"
	"github.com/parlalabs/parla-core/internal/recognition"
	"github.com/parlalabs/parla-core/internal/translate"
)

// Speakable and copyable translation slots.
const (
	SlotTranslated = "translated"
	SlotReply      = "reply"
)

// Recorder persists committed utterances. A nil Recorder disables history.
type Recorder interface {
	RecordUtterance(ctx context.Context, u protocol.Utterance) error
	Recent(ctx context.Context, conversationID string, limit int) ([]protocol.Utterance, error)
}

// translationKey is the watched dependency of one translation slot. A request
// is issued once per distinct key, never per interim update.
type translationKey struct {
	text   string
	source string
	target string
}

// Options configures one conversation controller.
type Options struct {
	ConversationID string // generated when empty
	InputLanguage  string
	OutputLanguage string
	Capability     recognition.Capability
	PublishInterim bool
	Translator     translate.Translator
	Clipboard      clipboard.Port
	Recorder       Recorder
	Bus            *bus.Client
	Logger         *slog.Logger
}

// Controller owns one conversation: the view state, a recognition controller
// feeding it over the bus, and the two translation watchers. Translation is
// fire-and-forget per slot; a stale response may overwrite a newer one, the
// slot keeps whatever arrived last.
type Controller struct {
	id          string
	store       *Store
	recognition *recognition.Controller
	translator  translate.Translator
	clipboard   clipboard.Port
	recorder    Recorder
	bus         *bus.Client
	log         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	subs []*nats.Subscription

	watchMu        sync.Mutex
	lastForwardKey translationKey
	lastReplyKey   translationKey
}

func NewController(parent context.Context, opts Options) *Controller {
	id := opts.ConversationID
	if id == "" {
		id = uuid.NewString()
	}

	log := opts.Logger.With(
		slog.String("component", "session"),
		slog.String("conversation_id", id))

	recognizer := recognition.NewController(
		opts.Capability,
		opts.InputLanguage,
		opts.PublishInterim,
		recognition.NewBusSink(opts.Bus, id),
		opts.Logger)

	ctx, cancel := context.WithCancel(parent)

	return &Controller{
		id:          id,
		store:       NewStore(opts.InputLanguage, opts.OutputLanguage),
		recognition: recognizer,
		translator:  opts.Translator,
		clipboard:   opts.Clipboard,
		recorder:    opts.Recorder,
		bus:         opts.Bus,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start subscribes to this conversation's bus subjects. When the platform
// offers no recognition capability the persistent diagnostic is set right
// away, before the user ever presses start.
func (c *Controller) Start() error {
	conn := c.bus.Conn()

	handlers := []struct {
		subject string
		handler nats.MsgHandler
	}{
		{protocol.SubjectTranscripts(c.id), c.handleTranscript},
		{protocol.SubjectRecognitionStatePrefix + "." + c.id, c.handleRecognitionState},
		{protocol.SubjectSpeechStatus, c.handleSpeechStatus},
	}
	for _, h := range handlers {
		sub, err := conn.Subscribe(h.subject, h.handler)
		if err != nil {
			c.closeSubscriptions()
			return fmt.Errorf("subscribe %s: %w", h.subject, err)
		}
		c.subs = append(c.subs, sub)
	}

	if !c.recognition.Supported() {
		c.store.SetListening(false, recognition.DiagnosticUnsupported)
	}
	return nil
}

// Close tears the conversation down: recognition stops, subscriptions drain,
// in-flight translations are cancelled.
func (c *Controller) Close() {
	c.cancel()
	if err := c.recognition.Stop(); err != nil {
		c.log.Warn("failed to stop recognition", slog.String("error", err.Error()))
	}
	c.recognition.Wait()
	c.closeSubscriptions()
}

func (c *Controller) closeSubscriptions() {
	for _, sub := range c.subs {
		_ = sub.Drain()
	}
	c.subs = nil
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) Snapshot() State { return c.store.Snapshot() }

// Subscribe registers a listener for every view state transition.
func (c *Controller) Subscribe(fn func(State)) { c.store.Subscribe(fn) }

// RecognitionSupported reports whether the start affordance should be live.
func (c *Controller) RecognitionSupported() bool { return c.recognition.Supported() }

// StartListening begins a recognition session in the current input language.
func (c *Controller) StartListening() error {
	return c.recognition.Start(c.ctx)
}

// StopListening requests a graceful end of the recognition session.
func (c *Controller) StopListening() error {
	return c.recognition.Stop()
}

// SetLanguages changes the language pair. The recognition language takes
// effect on the next listening session; both watchers re-evaluate so a
// translation in the new direction is issued immediately.
func (c *Controller) SetLanguages(input, output string) error {
	if !languages.IsSupported(input) {
		return fmt.Errorf("unsupported input language %q", input)
	}
	if !languages.IsSupported(output) {
		return fmt.Errorf("unsupported output language %q", output)
	}
	c.store.SetLanguages(input, output)
	c.recognition.Configure(input)
	c.evaluateForward()
	c.evaluateReply()
	return nil
}

// SetReply updates the typed reply text. A blank reply clears the translated
// slot synchronously without issuing a request.
func (c *Controller) SetReply(text string) {
	c.store.SetReplyText(text)
	c.evaluateReply()
}

// Speak sends the given slot's text to the speech service in the language the
// slot is written in. A blank slot is a no-op.
func (c *Controller) Speak(slot string) error {
	snap := c.store.Snapshot()

	var text, language string
	switch slot {
	case SlotTranslated:
		text, language = snap.Translated, snap.OutputLanguage
	case SlotReply:
		text, language = snap.ReplyTranslated, snap.InputLanguage
	default:
		return fmt.Errorf("unknown speak slot %q", slot)
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	req := protocol.SpeechRequest{
		ConversationID: c.id,
		Text:           text,
		Language:       language,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode speech request: %w", err)
	}
	return c.bus.Conn().Publish(protocol.SubjectSpeechRequest, data)
}

// Copy places the given slot's text on the system clipboard. Failures are
// logged, never surfaced.
func (c *Controller) Copy(slot string) error {
	snap := c.store.Snapshot()

	var text string
	switch slot {
	case SlotTranslated:
		text = snap.Translated
	case SlotReply:
		text = snap.ReplyTranslated
	default:
		return fmt.Errorf("unknown copy slot %q", slot)
	}
	if strings.TrimSpace(text) == "" || c.clipboard == nil {
		return nil
	}

	if err := c.clipboard.SetText(c.ctx, text); err != nil {
		c.log.Warn("clipboard copy failed", slog.String("error", err.Error()))
	}
	return nil
}

// History returns the most recent recorded utterances for this conversation.
func (c *Controller) History(ctx context.Context, limit int) ([]protocol.Utterance, error) {
	if c.recorder == nil {
		return nil, nil
	}
	return c.recorder.Recent(ctx, c.id, limit)
}

func (c *Controller) handleTranscript(msg *nats.Msg) {
	var transcript protocol.Transcript
	if err := json.Unmarshal(msg.Data, &transcript); err != nil {
		c.log.Warn("failed to decode transcript", slog.String("error", err.Error()))
		return
	}
	if transcript.Partial {
		c.store.SetInterim(transcript.Text)
		return
	}
	c.store.AppendFinal(transcript.Text)
	c.evaluateForward()
}

func (c *Controller) handleRecognitionState(msg *nats.Msg) {
	var state protocol.RecognitionState
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		c.log.Warn("failed to decode recognition state", slog.String("error", err.Error()))
		return
	}
	if !state.Listening {
		c.store.ClearInterim()
	}
	c.store.SetListening(state.Listening, state.Diagnostic)
}

// handleSpeechStatus tracks the process-global speaking flag. Playback status
// is broadcast, so every conversation observes it.
func (c *Controller) handleSpeechStatus(msg *nats.Msg) {
	var status protocol.SpeechStatus
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		c.log.Warn("failed to decode speech status", slog.String("error", err.Error()))
		return
	}
	switch status.Phase {
	case protocol.SpeechPhaseStarted:
		c.store.SetSpeaking(true)
	case protocol.SpeechPhaseEnded:
		c.store.SetSpeaking(false)
	case protocol.SpeechPhaseFailed:
		c.store.SetSpeaking(false)
		if status.Detail != "" {
			c.store.SetDiagnostic(status.Detail)
		}
	}
}

// evaluateForward issues a forward translation when the watched key
// (finalized transcript, input language, output language) has changed.
func (c *Controller) evaluateForward() {
	snap := c.store.Snapshot()
	key := translationKey{
		text:   snap.Finalized,
		source: snap.InputLanguage,
		target: snap.OutputLanguage,
	}

	c.watchMu.Lock()
	if key == c.lastForwardKey {
		c.watchMu.Unlock()
		return
	}
	c.lastForwardKey = key
	c.watchMu.Unlock()

	if strings.TrimSpace(key.text) == "" {
		return
	}

	c.store.SetTranslatingForward(true)
	go c.runForward(key)
}

func (c *Controller) runForward(key translationKey) {
	defer c.store.SetTranslatingForward(false)

	translated, err := c.translator.Translate(c.ctx, key.text, key.source, key.target)
	if err != nil {
		c.log.Warn("forward translation failed", slog.String("error", err.Error()))
		c.store.SetDiagnostic(translate.DiagnosticFailed)
		return
	}
	c.store.SetTranslated(translated)
	c.record(key, translated)
}

// evaluateReply issues a reverse translation (output language back into the
// input language) when the watched key has changed. A blank reply clears the
// slot synchronously; the busy flag is never touched.
func (c *Controller) evaluateReply() {
	snap := c.store.Snapshot()
	key := translationKey{
		text:   snap.ReplyText,
		source: snap.OutputLanguage,
		target: snap.InputLanguage,
	}

	c.watchMu.Lock()
	if key == c.lastReplyKey {
		c.watchMu.Unlock()
		return
	}
	c.lastReplyKey = key
	c.watchMu.Unlock()

	if strings.TrimSpace(key.text) == "" {
		c.store.SetReplyTranslated("")
		return
	}

	c.store.SetTranslatingReply(true)
	go c.runReply(key)
}

func (c *Controller) runReply(key translationKey) {
	defer c.store.SetTranslatingReply(false)

	translated, err := c.translator.Translate(c.ctx, key.text, key.source, key.target)
	if err != nil {
		c.log.Warn("reply translation failed", slog.String("error", err.Error()))
		c.store.SetDiagnostic(translate.DiagnosticFailed)
		return
	}
	c.store.SetReplyTranslated(translated)
	c.record(key, translated)
}

func (c *Controller) record(key translationKey, translated string) {
	if c.recorder == nil {
		return
	}
	utterance := protocol.Utterance{
		ConversationID: c.id,
		SourceText:     key.text,
		SourceLanguage: key.source,
		TranslatedText: translated,
		TargetLanguage: key.target,
		CreatedAt:      time.Now().UTC(),
	}
	if err := c.recorder.RecordUtterance(c.ctx, utterance); err != nil {
		c.log.Warn("failed to record utterance", slog.String("error", err.Error()))
	}
}
