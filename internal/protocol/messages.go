package protocol

import "time"

// Transcript represents committed recognition output broadcast on the bus.
// Partial carries the wholesale interim replacement; final carries only the
// newly appended delta.
type Transcript struct {
	ConversationID string    `json:"conversation_id"`
	Text           string    `json:"text"`
	Partial        bool      `json:"partial"`
	Timestamp      time.Time `json:"timestamp"`
}

// RecognitionState announces recognition controller lifecycle transitions.
type RecognitionState struct {
	ConversationID string    `json:"conversation_id"`
	Listening      bool      `json:"listening"`
	Diagnostic     string    `json:"diagnostic,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// SpeechRequest asks the speech service to play one utterance. Language is
// the display code; the speech controller derives the locale from it.
type SpeechRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	Language       string `json:"language"`
}

// Speech playback phases. Playback is global to the process, so status
// messages are broadcast, not scoped per conversation.
const (
	SpeechPhaseStarted = "started"
	SpeechPhaseEnded   = "ended"
	SpeechPhaseFailed  = "failed"
)

// SpeechStatus reports utterance playback transitions.
type SpeechStatus struct {
	ConversationID string    `json:"conversation_id"`
	Phase          string    `json:"phase"`
	Detail         string    `json:"detail,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Utterance is one committed transcript together with its translation, as
// kept in the conversation timeline.
type Utterance struct {
	ConversationID string    `json:"conversation_id"`
	SourceText     string    `json:"source_text"`
	SourceLanguage string    `json:"source_language"`
	TranslatedText string    `json:"translated_text"`
	TargetLanguage string    `json:"target_language"`
	CreatedAt      time.Time `json:"created_at"`
}

// CapabilityAnnounce advertises availability of a platform capability.
type CapabilityAnnounce struct {
	Name      string    `json:"name"`
	Available bool      `json:"available"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CapabilityHeartbeat keeps an announced capability marked live.
type CapabilityHeartbeat struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTranscriptPartialPrefix = "recognition.transcript.partial"
	SubjectTranscriptFinalPrefix   = "recognition.transcript.final"
	SubjectRecognitionStatePrefix  = "recognition.state"
	SubjectSpeechRequest           = "speech.request"
	SubjectSpeechStatus            = "speech.status"
	SubjectCapabilityAnnounce      = "ctrl.capability.announce"
	SubjectCapabilityHeartbeat     = "ctrl.capability.heartbeat"
)

// SubjectTranscripts matches both partial and final transcripts for one
// conversation on a single subscription, preserving their relative order.
func SubjectTranscripts(conversationID string) string {
	return "recognition.transcript.*." + conversationID
}
