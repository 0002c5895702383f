package session

import (
	"context"
	"log/slog"

	"github.com/parlalabs/parla-core/internal/bus"
	"github.com/parlalabs/parla-core/internal/clipboard"
	"github.com/parlalabs/parla-core/internal/recognition"
	"github.com/parlalabs/parla-core/internal/translate"
)

// Factory builds conversation controllers sharing the process-wide
// dependencies. The gateway opens one conversation per client connection.
type Factory struct {
	Capability     recognition.Capability
	PublishInterim bool
	DefaultInput   string
	DefaultOutput  string
	Translator     translate.Translator
	Clipboard      clipboard.Port
	Recorder       Recorder
	Bus            *bus.Client
	Logger         *slog.Logger
}

// Open creates and starts a new conversation.
func (f *Factory) Open(parent context.Context) (*Controller, error) {
	controller := NewController(parent, Options{
		InputLanguage:  f.DefaultInput,
		OutputLanguage: f.DefaultOutput,
		Capability:     f.Capability,
		PublishInterim: f.PublishInterim,
		Translator:     f.Translator,
		Clipboard:      f.Clipboard,
		Recorder:       f.Recorder,
		Bus:            f.Bus,
		Logger:         f.Logger,
	})
	if err := controller.Start(); err != nil {
		return nil, err
	}
	return controller, nil
}
