package voice

import (
	"context"
	"sync"
)

// MockRecognizer hands out scripted recognitions. Tests and the terminal
// client drive them with Emit.
type MockRecognizer struct {
	// StartErr, when set, fails every StartRecognition call.
	StartErr error
	// StopEmitsEnd makes Stop deliver an end event the way a real engine does.
	StopEmitsEnd bool

	mu      sync.Mutex
	started []*MockRecognition
}

func NewMockRecognizer() *MockRecognizer {
	return &MockRecognizer{StopEmitsEnd: true}
}

func (r *MockRecognizer) StartRecognition(ctx context.Context, lang string) (Recognition, <-chan RecognitionEvent, error) {
	if r.StartErr != nil {
		return nil, nil, r.StartErr
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	rec := &MockRecognition{Lang: lang, stream: newEventStream(), stopEmitsEnd: r.StopEmitsEnd}
	r.mu.Lock()
	r.started = append(r.started, rec)
	r.mu.Unlock()
	return rec, rec.stream.events, nil
}

// Last returns the most recent recognition, or nil.
func (r *MockRecognizer) Last() *MockRecognition {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.started) == 0 {
		return nil
	}
	return r.started[len(r.started)-1]
}

func (r *MockRecognizer) Started() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started)
}

type MockRecognition struct {
	Lang string

	stream       *eventStream
	stopEmitsEnd bool

	mu      sync.Mutex
	stopped bool
	aborted bool
}

// Emit delivers ev as if the engine produced it.
func (m *MockRecognition) Emit(ev RecognitionEvent) bool {
	return m.stream.emit(ev)
}

func (m *MockRecognition) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	if m.stopEmitsEnd {
		m.stream.emit(End())
	}
}

func (m *MockRecognition) Abort() {
	m.mu.Lock()
	m.aborted = true
	m.mu.Unlock()
	m.stream.close()
}

func (m *MockRecognition) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *MockRecognition) Aborted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborted
}

// MockSynthesizer records utterances and cancellations.
type MockSynthesizer struct {
	SpeakErr error

	mu         sync.Mutex
	utterances []Utterance
	cancels    int
	speaking   bool
}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (s *MockSynthesizer) Speak(_ context.Context, u Utterance) error {
	if s.SpeakErr != nil {
		return s.SpeakErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utterances = append(s.utterances, u)
	s.speaking = true
	return nil
}

func (s *MockSynthesizer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	s.speaking = false
}

func (s *MockSynthesizer) Utterances() []Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Utterance(nil), s.utterances...)
}

func (s *MockSynthesizer) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

func (s *MockSynthesizer) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}
