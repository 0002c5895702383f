package speech

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/parlalabs/parla-core/internal/bus"
	"github.com/parlalabs/parla-core/internal/protocol"
)

// Service owns the process-wide speech output controller and drives it from
// bus requests. Playback status is broadcast so every conversation observes
// the global speaking flag.
type Service struct {
	controller *Controller
	bus        *bus.Client
	sub        *nats.Subscription
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *slog.Logger
}

func NewService(parent context.Context, controller *Controller, busClient *bus.Client, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		controller: controller,
		bus:        busClient,
		ctx:        ctx,
		cancel:     cancel,
		logger:     log.With(slog.String("component", "speech-service")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectSpeechRequest, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
}

func (s *Service) Healthy() bool { return s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.SpeechRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode speech request", slog.String("error", err.Error()))
		return
	}

	err := s.controller.Speak(s.ctx, req.Text, req.Language, func(transition Transition) {
		s.publishStatus(req.ConversationID, transition)
	})
	if err != nil {
		s.logger.Warn("speech playback failed to start", slog.String("error", err.Error()))
	}
}

func (s *Service) publishStatus(conversationID string, transition Transition) {
	status := protocol.SpeechStatus{
		ConversationID: conversationID,
		Phase:          string(transition.Phase),
		Detail:         transition.Detail,
		Timestamp:      time.Now().UTC(),
	}
	data, err := json.Marshal(status)
	if err != nil {
		s.logger.Warn("failed to marshal speech status", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectSpeechStatus, data); err != nil {
		s.logger.Warn("failed to publish speech status", slog.String("error", err.Error()))
	}
}
