package voice

import "context"

type RecognitionEventType string

const (
	RecognitionResult RecognitionEventType = "result"
	RecognitionError  RecognitionEventType = "error"
	RecognitionEnd    RecognitionEventType = "end"
)

// ErrorCode is the recognition error reported by the speech engine.
type ErrorCode string

const (
	ErrorNoSpeech     ErrorCode = "no-speech"
	ErrorNotAllowed   ErrorCode = "not-allowed"
	ErrorAudioCapture ErrorCode = "audio-capture"
)

type RecognitionEvent struct {
	Type RecognitionEventType
	// Transcript replaces, not extends, whatever the previous result said.
	Transcript string
	Final      bool
	Code       ErrorCode
}

func Result(transcript string, final bool) RecognitionEvent {
	return RecognitionEvent{Type: RecognitionResult, Transcript: transcript, Final: final}
}

func Failure(code ErrorCode) RecognitionEvent {
	return RecognitionEvent{Type: RecognitionError, Code: code}
}

func End() RecognitionEvent {
	return RecognitionEvent{Type: RecognitionEnd}
}

// Recognition is one running speech-to-text capture.
type Recognition interface {
	// Stop asks the engine to finish; it still delivers its last results and
	// an end event.
	Stop()
	// Abort discards the capture. No further events are delivered.
	Abort()
}

// Recognizer starts interim-result recognitions in a BCP 47 language.
// The event channel is closed after the end event or on Abort.
type Recognizer interface {
	StartRecognition(ctx context.Context, lang string) (Recognition, <-chan RecognitionEvent, error)
}

type Utterance struct {
	Text  string
	Lang  string
	Rate  float64
	Pitch float64
}

// Synthesizer speaks text aloud. Speak is fire-and-forget: it returns once
// speech is queued, not when it finishes.
type Synthesizer interface {
	Speak(ctx context.Context, u Utterance) error
	Cancel()
}

// Capability is what the platform offers for speech input.
type Capability struct {
	recognizer Recognizer
}

func Available(r Recognizer) Capability {
	return Capability{recognizer: r}
}

func Unavailable() Capability {
	return Capability{}
}

func (c Capability) Recognizer() (Recognizer, bool) {
	return c.recognizer, c.recognizer != nil
}

// Silent discards every utterance. It stands in when no synthesizer is
// attached.
type Silent struct{}

func (Silent) Speak(context.Context, Utterance) error { return nil }
func (Silent) Cancel()                                {}
