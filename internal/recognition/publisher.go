package recognition

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/parlalabs/parla-core/internal/bus"
	"github.com/parlalabs/parla-core/internal/protocol"
)

// BusSink publishes controller output on the message bus, scoped to one
// conversation.
type BusSink struct {
	bus            *bus.Client
	conversationID string
}

func NewBusSink(busClient *bus.Client, conversationID string) *BusSink {
	return &BusSink{bus: busClient, conversationID: conversationID}
}

func (s *BusSink) TranscriptPartial(text string) {
	s.publishTranscript(text, true)
}

func (s *BusSink) TranscriptFinal(delta string) {
	s.publishTranscript(delta, false)
}

func (s *BusSink) publishTranscript(text string, partial bool) {
	msg := protocol.Transcript{
		ConversationID: s.conversationID,
		Text:           text,
		Partial:        partial,
		Timestamp:      time.Now().UTC(),
	}
	subject := protocol.SubjectTranscriptFinalPrefix + "." + s.conversationID
	if partial {
		subject = protocol.SubjectTranscriptPartialPrefix + "." + s.conversationID
	}
	s.publish(subject, msg)
}

func (s *BusSink) StateChanged(listening bool, diagnostic string) {
	msg := protocol.RecognitionState{
		ConversationID: s.conversationID,
		Listening:      listening,
		Diagnostic:     diagnostic,
		Timestamp:      time.Now().UTC(),
	}
	s.publish(protocol.SubjectRecognitionStatePrefix+"."+s.conversationID, msg)
}

func (s *BusSink) publish(subject string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.bus.Logger().Warn("failed to marshal recognition message", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.bus.Logger().Warn("failed to publish recognition message",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}
