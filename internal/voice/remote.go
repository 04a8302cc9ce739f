package voice

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

type CommandType string

const (
	CommandRecognitionStart CommandType = "recognition_start"
	CommandRecognitionStop  CommandType = "recognition_stop"
	CommandRecognitionAbort CommandType = "recognition_abort"
	CommandSpeak            CommandType = "speak"
	CommandSpeechCancel     CommandType = "speech_cancel"
)

// Command asks the connected client to drive its platform speech engine.
type Command struct {
	Type          CommandType
	RecognitionID string
	Lang          string
	Interim       bool
	Continuous    bool
	Utterance     Utterance
}

// Commander delivers commands to the client that owns the speech engine.
type Commander interface {
	SendCommand(ctx context.Context, cmd Command) error
}

var ErrDetached = errors.New("speech client detached")

// RemoteEngine implements Recognizer and Synthesizer by forwarding to a
// client that runs the actual speech engines, and routing the client's
// recognition events back to the matching Recognition.
type RemoteEngine struct {
	commander Commander

	mu       sync.Mutex
	active   map[string]*remoteRecognition
	detached bool
}

func NewRemoteEngine(commander Commander) *RemoteEngine {
	return &RemoteEngine{commander: commander, active: make(map[string]*remoteRecognition)}
}

func (e *RemoteEngine) StartRecognition(ctx context.Context, lang string) (Recognition, <-chan RecognitionEvent, error) {
	e.mu.Lock()
	if e.detached {
		e.mu.Unlock()
		return nil, nil, ErrDetached
	}
	rec := &remoteRecognition{id: uuid.NewString(), engine: e, stream: newEventStream()}
	e.active[rec.id] = rec
	e.mu.Unlock()

	err := e.commander.SendCommand(ctx, Command{
		Type:          CommandRecognitionStart,
		RecognitionID: rec.id,
		Lang:          lang,
		Interim:       true,
		Continuous:    false,
	})
	if err != nil {
		e.forget(rec.id)
		rec.stream.close()
		return nil, nil, err
	}
	return rec, rec.stream.events, nil
}

// Deliver routes a client-reported event. Events for unknown or finished
// recognitions are ignored and reported as false.
func (e *RemoteEngine) Deliver(recognitionID string, ev RecognitionEvent) bool {
	e.mu.Lock()
	rec, ok := e.active[recognitionID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	delivered := rec.stream.emit(ev)
	if ev.Type == RecognitionEnd {
		e.forget(recognitionID)
	}
	return delivered
}

func (e *RemoteEngine) Speak(ctx context.Context, u Utterance) error {
	if e.isDetached() {
		return ErrDetached
	}
	return e.commander.SendCommand(ctx, Command{Type: CommandSpeak, Utterance: u})
}

func (e *RemoteEngine) Cancel() {
	if e.isDetached() {
		return
	}
	_ = e.commander.SendCommand(context.Background(), Command{Type: CommandSpeechCancel})
}

// Detach ends every running recognition. Later calls fail with ErrDetached.
func (e *RemoteEngine) Detach() {
	e.mu.Lock()
	e.detached = true
	active := e.active
	e.active = make(map[string]*remoteRecognition)
	e.mu.Unlock()
	for _, rec := range active {
		rec.stream.close()
	}
}

func (e *RemoteEngine) isDetached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detached
}

func (e *RemoteEngine) forget(id string) {
	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()
}

type remoteRecognition struct {
	id     string
	engine *RemoteEngine
	stream *eventStream
}

func (r *remoteRecognition) Stop() {
	if r.stream.isClosed() {
		return
	}
	_ = r.engine.commander.SendCommand(context.Background(), Command{
		Type:          CommandRecognitionStop,
		RecognitionID: r.id,
	})
}

func (r *remoteRecognition) Abort() {
	r.engine.forget(r.id)
	r.stream.close()
	_ = r.engine.commander.SendCommand(context.Background(), Command{
		Type:          CommandRecognitionAbort,
		RecognitionID: r.id,
	})
}
