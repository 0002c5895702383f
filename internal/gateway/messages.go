package gateway

import (
	"github.com/parlalabs/parla-core/internal/languages"
	"github.com/parlalabs/parla-core/internal/protocol"
	"github.com/parlalabs/parla-core/internal/session"
)

// Command types accepted from a client connection.
const (
	CommandStart        = "start"
	CommandStop         = "stop"
	CommandSetLanguages = "set_languages"
	CommandSetReply     = "set_reply"
	CommandSpeak        = "speak"
	CommandCopy         = "copy"
	CommandHistory      = "history"
)

// Command is one client request.
type Command struct {
	Type   string `json:"type"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
	Text   string `json:"text,omitempty"`
	Slot   string `json:"slot,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// Envelope types sent to a client connection.
const (
	EnvelopeHello   = "hello"
	EnvelopeState   = "state"
	EnvelopeHistory = "history"
	EnvelopeError   = "error"
)

// Envelope is one server message. Hello carries the conversation identity and
// the supported language table; state carries a full view snapshot.
type Envelope struct {
	Type           string               `json:"type"`
	ConversationID string               `json:"conversation_id,omitempty"`
	Languages      []languages.Language `json:"languages,omitempty"`
	State          *session.State       `json:"state,omitempty"`
	History        []protocol.Utterance `json:"history,omitempty"`
	Error          string               `json:"error,omitempty"`
}
