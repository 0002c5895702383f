package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parlalabs/parla-core/internal/bus"
	"github.com/parlalabs/parla-core/internal/capability"
	"github.com/parlalabs/parla-core/internal/clipboard"
	"github.com/parlalabs/parla-core/internal/config"
	"github.com/parlalabs/parla-core/internal/gateway"
	"github.com/parlalabs/parla-core/internal/natsserver"
	"github.com/parlalabs/parla-core/internal/recognition"
	"github.com/parlalabs/parla-core/internal/session"
	"github.com/parlalabs/parla-core/internal/speech"
	"github.com/parlalabs/parla-core/internal/timeline"
	"github.com/parlalabs/parla-core/internal/translate"
)

// Runtime bootstraps the daemon: telemetry, the message bus, the platform
// capability backends, the speech service, and the websocket gateway.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer  *http.Server
	tracerClose func(context.Context) error
	bus         *bus.Client
	registry    *capability.Registry

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start runs the daemon until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	busClient, err := bus.Connect(busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	r.bus = busClient
	defer busClient.Close()

	registry, err := capability.NewRegistry(ctx, r.cfg.Capability, busClient, r.logger)
	if err != nil {
		return fmt.Errorf("start capability registry: %w", err)
	}
	r.registry = registry
	defer registry.Close()

	store, err := timeline.Open(ctx, r.cfg.Timeline, r.logger)
	if err != nil {
		return fmt.Errorf("open timeline: %w", err)
	}
	defer store.Close()

	recognizer, err := r.buildRecognition()
	if err != nil {
		return err
	}
	synth, err := r.buildSynthesizer()
	if err != nil {
		return err
	}
	translator := r.buildTranslator()
	clip, err := r.buildClipboard()
	if err != nil {
		return err
	}

	speechController := speech.NewController(synth, r.cfg.Speech.Rate, r.cfg.Speech.Pitch, r.logger)
	speechService := speech.NewService(ctx, speechController, busClient, r.logger)
	if err := speechService.Start(); err != nil {
		return fmt.Errorf("start speech service: %w", err)
	}
	defer speechService.Close()

	factory := &session.Factory{
		Capability:     recognizer,
		PublishInterim: r.cfg.Recognition.InterimResults,
		DefaultInput:   r.cfg.Recognition.DefaultLanguage,
		DefaultOutput:  r.cfg.Translation.DefaultTarget,
		Translator:     translator,
		Clipboard:      clip,
		Recorder:       store,
		Bus:            busClient,
		Logger:         r.logger,
	}
	gw := gateway.New(factory, r.cfg.Gateway.AllowAnyOrigin, r.logger)

	r.announceCapabilities(recognizer != nil, synth != nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	mux.Handle(r.cfg.Gateway.Path, gw)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("gateway_path", r.cfg.Gateway.Path))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildRecognition() (recognition.Capability, error) {
	if !r.cfg.Recognition.Enabled {
		return nil, nil
	}
	switch r.cfg.Recognition.Mode {
	case "exec":
		return recognition.NewExecCapability(r.cfg.Recognition.Command)
	default:
		// Development backend: one scripted utterance, then the session stays
		// open until it is stopped.
		return recognition.NewMockCapability([]recognition.Event{
			{Kind: recognition.EventResult, Segments: []recognition.Segment{
				{Transcript: "hello", Final: false},
			}},
			{Kind: recognition.EventResult, Segments: []recognition.Segment{
				{Transcript: "hello world.", Final: true},
			}},
		}), nil
	}
}

func (r *Runtime) buildSynthesizer() (speech.Synthesizer, error) {
	if !r.cfg.Speech.Enabled {
		return nil, nil
	}
	switch r.cfg.Speech.Mode {
	case "exec":
		return speech.NewExecSynth(r.cfg.Speech.Command)
	default:
		return speech.NewMockSynth(time.Second), nil
	}
}

func (r *Runtime) buildTranslator() translate.Translator {
	if r.cfg.Translation.Mode == "mock" {
		return translate.NewMockTranslator()
	}
	return translate.NewHTTPClient(
		r.cfg.Translation.Endpoint,
		time.Duration(r.cfg.Translation.TimeoutMS)*time.Millisecond)
}

func (r *Runtime) buildClipboard() (clipboard.Port, error) {
	if r.cfg.Clipboard.Command != "" {
		return clipboard.NewExecPort(r.cfg.Clipboard.Command)
	}
	return clipboard.NewMemory(), nil
}

func (r *Runtime) announceCapabilities(recognitionAvailable, synthesisAvailable bool) {
	announce := func(name string, available bool, detail string) {
		if err := r.registry.Announce(name, available, detail); err != nil {
			r.logger.Warn("failed to announce capability",
				slog.String("capability", name),
				slog.String("error", err.Error()))
		}
	}
	announce("recognition", recognitionAvailable, disabledDetail(recognitionAvailable))
	announce("synthesis", synthesisAvailable, disabledDetail(synthesisAvailable))
	announce("translation", true, r.cfg.Translation.Mode)
	announce("clipboard", true, "")
}

func disabledDetail(available bool) string {
	if available {
		return ""
	}
	return "disabled by configuration"
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.bus.Healthy() && r.registry.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
