package chat

import (
	"errors"

	"github.com/antoniostano/aura/internal/brain"
	"github.com/antoniostano/aura/internal/i18n"
	"github.com/antoniostano/aura/internal/voice"
)

var (
	ErrEmptyInput   = errors.New("input is empty")
	ErrTurnInFlight = errors.New("a reply is still pending")
	ErrListening    = errors.New("recording in progress")
	ErrNotVoiceMode = errors.New("not in voice mode")
	ErrInvalidMode  = errors.New("invalid chat mode")
	ErrClosed       = errors.New("session closed")
)

// Category classifies user-visible failures. Each maps to one string table
// key.
type Category string

const (
	CategoryConfiguration          Category = "configuration"
	CategoryUpstream               Category = "upstream"
	CategorySpeechUnsupported      Category = "speech_unsupported"
	CategorySpeechPermissionDenied Category = "speech_permission_denied"
	CategorySpeechNoInput          Category = "speech_no_input"
	CategorySpeechCaptureFailure   Category = "speech_capture_failure"
	CategorySpeechOther            Category = "speech_other"
	CategoryMicStart               Category = "mic_start"
	CategorySpeechSynthesis        Category = "speech_synthesis"
)

var categoryKeys = map[Category]string{
	CategoryConfiguration:          i18n.KeyErrorAPIKeyMissing,
	CategoryUpstream:               i18n.KeyErrorAIResponse,
	CategorySpeechUnsupported:      i18n.KeyErrorSpeechNotSupported,
	CategorySpeechPermissionDenied: i18n.KeyErrorSpeechNotAllowed,
	CategorySpeechNoInput:          i18n.KeyErrorSpeechNoSpeech,
	CategorySpeechCaptureFailure:   i18n.KeyErrorSpeechAudioCapture,
	CategorySpeechOther:            i18n.KeyErrorSpeechGeneric,
	CategoryMicStart:               i18n.KeyErrorMicStart,
	CategorySpeechSynthesis:        i18n.KeyErrorSpeechSynthesis,
}

// MessageKey is the string table key for c.
func (c Category) MessageKey() string {
	if k, ok := categoryKeys[c]; ok {
		return k
	}
	return i18n.KeyErrorGeneral
}

func classifyModelError(err error) Category {
	if errors.Is(err, brain.ErrNotConfigured) {
		return CategoryConfiguration
	}
	return CategoryUpstream
}

func classifyRecognitionError(code voice.ErrorCode) Category {
	switch code {
	case voice.ErrorNotAllowed:
		return CategorySpeechPermissionDenied
	case voice.ErrorNoSpeech:
		return CategorySpeechNoInput
	case voice.ErrorAudioCapture:
		return CategorySpeechCaptureFailure
	default:
		return CategorySpeechOther
	}
}
