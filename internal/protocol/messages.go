// Package protocol defines the JSON messages exchanged with a session
// WebSocket client.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/antoniostano/aura/internal/chat"
	"github.com/antoniostano/aura/internal/voice"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientHello      MessageType = "client_hello"
	TypeClientControl    MessageType = "client_control"
	TypeRecognitionEvent MessageType = "recognition_event"
	TypeSpeechError      MessageType = "speech_error"

	TypeSessionState       MessageType = "session_state"
	TypeTurnAppended       MessageType = "turn_appended"
	TypeSessionReset       MessageType = "session_reset"
	TypeRecognitionCommand MessageType = "recognition_command"
	TypeSpeak              MessageType = "speak"
	TypeSpeechCancel       MessageType = "speech_cancel"
	TypeErrorEvent         MessageType = "error_event"
)

// Control actions carried by ClientControl.
const (
	ActionSubmit            = "submit"
	ActionSetInput          = "set_input"
	ActionStartRecording    = "start_recording"
	ActionStopRecording     = "stop_recording"
	ActionSetMode           = "set_mode"
	ActionToggleVoiceOutput = "toggle_voice_output"
	ActionReset             = "reset"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type SpeechSupport struct {
	Recognition bool `json:"recognition"`
	Synthesis   bool `json:"synthesis"`
}

// ClientHello announces the speech engines the client can run.
type ClientHello struct {
	Type   MessageType   `json:"type"`
	Speech SpeechSupport `json:"speech"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
	Text   string      `json:"text,omitempty"`
	Mode   string      `json:"mode,omitempty"`
}

// RecognitionEvent is one event from a client-side recognition started by a
// RecognitionCommand.
type RecognitionEvent struct {
	Type          MessageType `json:"type"`
	RecognitionID string      `json:"recognition_id"`
	Event         string      `json:"event"`
	Transcript    string      `json:"transcript,omitempty"`
	Final         bool        `json:"final,omitempty"`
	Code          string      `json:"code,omitempty"`
}

// Voice converts the wire event to the engine event.
func (e RecognitionEvent) Voice() voice.RecognitionEvent {
	switch voice.RecognitionEventType(e.Event) {
	case voice.RecognitionResult:
		return voice.Result(e.Transcript, e.Final)
	case voice.RecognitionError:
		return voice.Failure(voice.ErrorCode(e.Code))
	default:
		return voice.End()
	}
}

type SpeechError struct {
	Type   MessageType `json:"type"`
	Detail string      `json:"detail,omitempty"`
}

type SessionState struct {
	Type  MessageType `json:"type"`
	State chat.State  `json:"state"`
}

type TurnAppended struct {
	Type  MessageType `json:"type"`
	Turn  chat.Turn   `json:"turn"`
	State chat.State  `json:"state"`
}

type SessionReset struct {
	Type  MessageType `json:"type"`
	State chat.State  `json:"state"`
}

type RecognitionCommand struct {
	Type          MessageType `json:"type"`
	Action        string      `json:"action"`
	RecognitionID string      `json:"recognition_id"`
	Lang          string      `json:"lang,omitempty"`
	Interim       bool        `json:"interim_results,omitempty"`
	Continuous    bool        `json:"continuous,omitempty"`
}

type Speak struct {
	Type  MessageType `json:"type"`
	Text  string      `json:"text"`
	Lang  string      `json:"lang"`
	Rate  float64     `json:"rate"`
	Pitch float64     `json:"pitch"`
}

type SpeechCancel struct {
	Type MessageType `json:"type"`
}

type ErrorEvent struct {
	Type       MessageType `json:"type"`
	Code       string      `json:"code"`
	MessageKey string      `json:"message_key,omitempty"`
	Detail     string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientHello:
		var msg ClientHello
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Action) == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	case TypeRecognitionEvent:
		var msg RecognitionEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.RecognitionID == "" {
			return nil, errors.New("invalid recognition_event: missing recognition_id")
		}
		switch voice.RecognitionEventType(msg.Event) {
		case voice.RecognitionResult, voice.RecognitionError, voice.RecognitionEnd:
		default:
			return nil, fmt.Errorf("invalid recognition_event: unknown event %q", msg.Event)
		}
		return msg, nil
	case TypeSpeechError:
		var msg SpeechError
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// FromEvent maps a session event to its outbound message.
func FromEvent(ev chat.Event) any {
	switch ev.Type {
	case chat.EventTurnAppended:
		if ev.Turn == nil {
			return SessionState{Type: TypeSessionState, State: ev.State}
		}
		return TurnAppended{Type: TypeTurnAppended, Turn: *ev.Turn, State: ev.State}
	case chat.EventSessionReset:
		return SessionReset{Type: TypeSessionReset, State: ev.State}
	default:
		return SessionState{Type: TypeSessionState, State: ev.State}
	}
}

// FromCommand maps a speech command to its outbound message.
func FromCommand(cmd voice.Command) any {
	switch cmd.Type {
	case voice.CommandSpeak:
		return Speak{
			Type:  TypeSpeak,
			Text:  cmd.Utterance.Text,
			Lang:  cmd.Utterance.Lang,
			Rate:  cmd.Utterance.Rate,
			Pitch: cmd.Utterance.Pitch,
		}
	case voice.CommandSpeechCancel:
		return SpeechCancel{Type: TypeSpeechCancel}
	default:
		action := strings.TrimPrefix(string(cmd.Type), "recognition_")
		return RecognitionCommand{
			Type:          TypeRecognitionCommand,
			Action:        action,
			RecognitionID: cmd.RecognitionID,
			Lang:          cmd.Lang,
			Interim:       cmd.Interim,
			Continuous:    cmd.Continuous,
		}
	}
}

// TypeOf reports the message type of a protocol value.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case ClientHello:
		return m.Type, true
	case ClientControl:
		return m.Type, true
	case RecognitionEvent:
		return m.Type, true
	case SpeechError:
		return m.Type, true
	case SessionState:
		return m.Type, true
	case TurnAppended:
		return m.Type, true
	case SessionReset:
		return m.Type, true
	case RecognitionCommand:
		return m.Type, true
	case Speak:
		return m.Type, true
	case SpeechCancel:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
