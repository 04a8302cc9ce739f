package chat

import (
	"time"

	"github.com/antoniostano/aura/internal/i18n"
)

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one transcript entry. Notice turns (the greeting and error
// notices) are shown to the user but never replayed to the model.
type Turn struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Speaker   Speaker   `json:"speaker"`
	CreatedAt time.Time `json:"created_at"`
	Notice    bool      `json:"notice,omitempty"`
}

type Mode string

const (
	ModeText  Mode = "text"
	ModeVoice Mode = "voice"
)

func ParseMode(raw string) (Mode, bool) {
	switch Mode(raw) {
	case ModeText, ModeVoice:
		return Mode(raw), true
	default:
		return "", false
	}
}

// Phase is derived from the recording and waiting flags, which are never
// both set.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseListening  Phase = "listening"
	PhaseSubmitting Phase = "submitting"
)

// State is a copy of everything a view needs to render the session.
type State struct {
	Language      i18n.Language `json:"language"`
	Mode          Mode          `json:"mode"`
	Phase         Phase         `json:"phase"`
	Recording     bool          `json:"recording"`
	Waiting       bool          `json:"waiting"`
	VoiceOutput   bool          `json:"voice_output"`
	SpeechInput   bool          `json:"speech_input_available"`
	Input         string        `json:"input"`
	Error         string        `json:"error,omitempty"`
	ErrorKey      string        `json:"error_key,omitempty"`
	ErrorCategory Category      `json:"error_category,omitempty"`
	Transcript    []Turn        `json:"transcript"`
}

type EventType string

const (
	EventTurnAppended EventType = "turn_appended"
	EventSessionReset EventType = "session_reset"
	EventStateChanged EventType = "state_changed"
)

type Event struct {
	Type  EventType
	Turn  *Turn
	State State
}

// Sink receives events in the order they happen. It runs with the
// orchestrator locked and must not call back into it.
type Sink func(Event)
