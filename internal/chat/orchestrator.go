// Package chat sequences a single therapy chat session: typed and spoken
// turns, the pending model reply, spoken output and localized failures.
package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/aura/internal/brain"
	"github.com/antoniostano/aura/internal/i18n"
	"github.com/antoniostano/aura/internal/observability"
	"github.com/antoniostano/aura/internal/policy"
	"github.com/antoniostano/aura/internal/voice"
)

const (
	speechRate  = 0.95
	speechPitch = 1.0
)

// Replier is the model side of a session. *brain.Client implements it.
type Replier interface {
	Reply(ctx context.Context, lang i18n.Language, seed []brain.Message, text string) (string, error)
	Reset()
}

type Config struct {
	Catalog     *i18n.Catalog
	Language    i18n.Language
	Model       Replier
	Capability  voice.Capability
	Synthesizer voice.Synthesizer
	Metrics     *observability.Metrics
	Sink        Sink
}

type Orchestrator struct {
	catalog *i18n.Catalog
	model   Replier
	metrics *observability.Metrics
	sink    Sink

	mu sync.Mutex
	wg sync.WaitGroup

	lang        i18n.Language
	bundle      *i18n.Bundle
	transcript  []Turn
	mode        Mode
	input       string
	voiceOutput bool
	errMsg      string
	errKey      string
	errCat      Category
	closed      bool

	// generation changes on reset, language change and close; replies
	// started under an older generation are dropped.
	generation uint64
	waiting    bool
	cancelCall context.CancelFunc

	capability  voice.Capability
	recognizer  voice.Recognizer
	synthesizer voice.Synthesizer
	recording   bool
	recognition voice.Recognition
	recDone     chan struct{}
	// recToken identifies the current recognition; events carrying an older
	// token are ignored.
	recToken uint64
}

func New(cfg Config) *Orchestrator {
	lang := cfg.Language
	if !lang.Valid() {
		lang = i18n.DefaultLanguage
	}
	synth := cfg.Synthesizer
	if synth == nil {
		synth = voice.Silent{}
	}
	o := &Orchestrator{
		catalog:     cfg.Catalog,
		model:       cfg.Model,
		metrics:     cfg.Metrics,
		sink:        cfg.Sink,
		lang:        lang,
		bundle:      cfg.Catalog.Bundle(lang),
		mode:        ModeText,
		voiceOutput: true,
		capability:  cfg.Capability,
		synthesizer: synth,
	}
	o.transcript = []Turn{o.greeting()}
	return o
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateLocked()
}

// SubmitText appends a user turn and starts the model call in the
// background. The reply or an error notice is appended when it completes.
func (o *Orchestrator) SubmitText(ctx context.Context, text string) (Turn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return Turn{}, ErrClosed
	}
	if o.recording {
		return Turn{}, ErrListening
	}
	turn, err := o.submitLocked(ctx, text)
	if err != nil {
		return Turn{}, err
	}
	o.emitStateLocked()
	return turn, nil
}

func (o *Orchestrator) submitLocked(ctx context.Context, text string) (Turn, error) {
	msg := strings.TrimSpace(text)
	if msg == "" {
		return Turn{}, ErrEmptyInput
	}
	if o.waiting {
		return Turn{}, ErrTurnInFlight
	}

	seed := o.seedLocked()
	turn := o.appendLocked(SpeakerUser, msg, false)
	o.input = ""
	o.clearErrorLocked()
	o.waiting = true

	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.cancelCall = cancel
	gen := o.generation
	lang := o.lang
	o.countEvent("turn_submitted")

	o.wg.Add(1)
	go o.awaitReply(callCtx, gen, lang, seed, msg)
	return turn, nil
}

func (o *Orchestrator) awaitReply(ctx context.Context, gen uint64, lang i18n.Language, seed []brain.Message, text string) {
	defer o.wg.Done()
	started := time.Now()
	reply, err := o.model.Reply(ctx, lang, seed, text)

	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.generation || o.closed {
		o.countEvent("reply_stale")
		return
	}
	o.waiting = false
	if o.cancelCall != nil {
		o.cancelCall()
		o.cancelCall = nil
	}

	if err != nil {
		cat := classifyModelError(err)
		log.Printf("chat: model reply failed category=%s text=%q: %v", cat, policy.LogExcerpt(text), err)
		o.countEvent("reply_failed")
		o.failLocked(cat, "")
		o.appendLocked(SpeakerAssistant, o.bundle.Text(i18n.KeyAppName)+": "+o.errMsg, true)
		o.emitStateLocked()
		return
	}

	if o.metrics != nil {
		o.metrics.ObserveReplyLatency(time.Since(started))
	}
	o.countEvent("reply_received")
	o.appendLocked(SpeakerAssistant, reply, false)
	o.speakLocked(reply)
	o.emitStateLocked()
}

// SetInput replaces the draft shown in the input box.
func (o *Orchestrator) SetInput(text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.recording {
		return ErrListening
	}
	o.input = text
	o.emitStateLocked()
	return nil
}

// StartRecording begins capturing speech into the input buffer. Failures
// to start are reported through the state error, not the return value.
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.mode != ModeVoice {
		return ErrNotVoiceMode
	}
	if o.recording {
		return nil
	}
	if o.waiting {
		return ErrTurnInFlight
	}

	o.input = ""
	o.clearErrorLocked()
	if o.recognizer == nil {
		o.failLocked(CategorySpeechUnsupported, "")
		o.emitStateLocked()
		return nil
	}

	rec, events, err := o.recognizer.StartRecognition(ctx, o.bundle.SpeechTag)
	if err != nil {
		log.Printf("chat: start recognition failed: %v", err)
		o.failLocked(CategoryMicStart, "")
		o.emitStateLocked()
		return nil
	}

	o.recToken++
	o.recording = true
	o.recognition = rec
	o.recDone = make(chan struct{})
	o.countEvent("recording_started")

	o.wg.Add(1)
	go o.pump(o.recToken, events, o.recDone)
	o.emitStateLocked()
	return nil
}

// StopRecording ends the capture and submits the buffered transcript, if
// any. Events the engine still delivers for this recognition are ignored.
func (o *Orchestrator) StopRecording() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.mode != ModeVoice {
		return ErrNotVoiceMode
	}
	if !o.recording {
		return nil
	}
	rec := o.recognition
	o.concludeRecordingLocked()
	rec.Stop()
	o.emitStateLocked()
	return nil
}

func (o *Orchestrator) pump(token uint64, events <-chan voice.RecognitionEvent, done <-chan struct{}) {
	defer o.wg.Done()
	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				o.recognitionClosed(token)
				return
			}
			o.handleRecognitionEvent(token, ev)
		}
	}
}

func (o *Orchestrator) handleRecognitionEvent(token uint64, ev voice.RecognitionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if token != o.recToken || !o.recording {
		return
	}

	switch ev.Type {
	case voice.RecognitionResult:
		o.input = ev.Transcript
	case voice.RecognitionError:
		cat := classifyRecognitionError(ev.Code)
		log.Printf("chat: recognition error code=%s", ev.Code)
		o.countEvent("recording_failed")
		o.endRecognitionLocked()
		o.input = ""
		o.failLocked(cat, string(ev.Code))
	case voice.RecognitionEnd:
		o.concludeRecordingLocked()
	default:
		return
	}
	o.emitStateLocked()
}

// recognitionClosed handles an engine that closed its stream without an end
// event, e.g. a detached client. The capture is treated as aborted.
func (o *Orchestrator) recognitionClosed(token uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if token != o.recToken || !o.recording {
		return
	}
	o.endRecognitionLocked()
	o.input = ""
	o.emitStateLocked()
}

// concludeRecordingLocked finishes the capture and submits the buffer once.
func (o *Orchestrator) concludeRecordingLocked() {
	o.endRecognitionLocked()
	if strings.TrimSpace(o.input) == "" {
		return
	}
	if _, err := o.submitLocked(context.Background(), o.input); err != nil {
		log.Printf("chat: submit recorded input failed: %v", err)
		return
	}
	o.countEvent("recording_submitted")
}

// endRecognitionLocked detaches the current recognition without touching
// the engine.
func (o *Orchestrator) endRecognitionLocked() {
	o.recording = false
	o.recognition = nil
	o.recToken++
	if o.recDone != nil {
		close(o.recDone)
		o.recDone = nil
	}
}

func (o *Orchestrator) abortRecognitionLocked() {
	if !o.recording {
		return
	}
	rec := o.recognition
	o.endRecognitionLocked()
	o.input = ""
	rec.Abort()
}

// SetMode switches between typed and spoken input. Entering voice mode
// without a speech recognizer records an error and stays in text mode.
func (o *Orchestrator) SetMode(_ context.Context, mode Mode) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	switch mode {
	case ModeText:
		if o.mode == ModeText {
			return nil
		}
		o.abortRecognitionLocked()
		o.synthesizer.Cancel()
		o.mode = ModeText
		o.recognizer = nil
		o.countEvent("mode_text")
	case ModeVoice:
		r, ok := o.capability.Recognizer()
		if !ok {
			o.mode = ModeText
			o.recognizer = nil
			o.failLocked(CategorySpeechUnsupported, "")
			o.emitStateLocked()
			return nil
		}
		o.recognizer = r
		if o.mode != ModeVoice {
			o.mode = ModeVoice
			o.countEvent("mode_voice")
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	o.emitStateLocked()
	return nil
}

// ToggleVoiceOutput flips spoken replies. Turning them off silences any
// utterance in progress.
func (o *Orchestrator) ToggleVoiceOutput() (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false, ErrClosed
	}
	o.voiceOutput = !o.voiceOutput
	if !o.voiceOutput {
		o.synthesizer.Cancel()
	}
	o.emitStateLocked()
	return o.voiceOutput, nil
}

// AttachSpeech swaps the platform speech engines. Losing the recognizer in
// voice mode aborts any capture and falls back to text mode.
func (o *Orchestrator) AttachSpeech(capability voice.Capability, synth voice.Synthesizer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if synth == nil {
		synth = voice.Silent{}
	}
	o.synthesizer.Cancel()
	o.synthesizer = synth
	o.capability = capability

	if o.mode != ModeVoice {
		o.emitStateLocked()
		return
	}
	o.abortRecognitionLocked()
	r, ok := capability.Recognizer()
	if !ok {
		o.mode = ModeText
		o.recognizer = nil
		o.failLocked(CategorySpeechUnsupported, "")
	} else {
		o.recognizer = r
	}
	o.emitStateLocked()
}

// ReportSynthesisFailure records a speech output failure reported by the
// client after Speak returned.
func (o *Orchestrator) ReportSynthesisFailure() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.failLocked(CategorySpeechSynthesis, "")
	o.emitStateLocked()
}

// ResetSession starts over with only the greeting. Any pending reply is
// discarded and the model conversation is dropped.
func (o *Orchestrator) ResetSession() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.resetLocked()
	return nil
}

func (o *Orchestrator) resetLocked() {
	o.generation++
	if o.cancelCall != nil {
		o.cancelCall()
		o.cancelCall = nil
	}
	o.waiting = false
	o.abortRecognitionLocked()
	o.synthesizer.Cancel()
	o.model.Reset()

	o.transcript = []Turn{o.greeting()}
	o.input = ""
	o.clearErrorLocked()
	o.countEvent("session_reset")
	o.emitLocked(Event{Type: EventSessionReset, State: o.stateLocked()})
}

// SetLanguage switches the string table and starts the session over in the
// new language.
func (o *Orchestrator) SetLanguage(lang i18n.Language) error {
	if !lang.Valid() {
		return fmt.Errorf("unsupported language %q", lang)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if lang == o.lang {
		return nil
	}
	o.lang = lang
	o.bundle = o.catalog.Bundle(lang)
	o.resetLocked()
	return nil
}

// Close stops capture and speech, abandons the pending reply and waits for
// background work to finish.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.generation++
	if o.cancelCall != nil {
		o.cancelCall()
		o.cancelCall = nil
	}
	o.waiting = false
	o.abortRecognitionLocked()
	o.synthesizer.Cancel()
	o.model.Reset()
	o.mu.Unlock()

	o.wg.Wait()
}

func (o *Orchestrator) speakLocked(text string) {
	if !o.voiceOutput {
		return
	}
	o.synthesizer.Cancel()
	err := o.synthesizer.Speak(context.Background(), voice.Utterance{
		Text:  text,
		Lang:  o.bundle.SpeechTag,
		Rate:  speechRate,
		Pitch: speechPitch,
	})
	if err != nil {
		log.Printf("chat: speak failed: %v", err)
		o.failLocked(CategorySpeechSynthesis, "")
	}
}

func (o *Orchestrator) greeting() Turn {
	return Turn{
		ID:        uuid.NewString(),
		Text:      o.bundle.Text(i18n.KeyInitialGreeting),
		Speaker:   SpeakerAssistant,
		CreatedAt: time.Now().UTC(),
		Notice:    true,
	}
}

func (o *Orchestrator) appendLocked(speaker Speaker, text string, notice bool) Turn {
	t := Turn{
		ID:        uuid.NewString(),
		Text:      text,
		Speaker:   speaker,
		CreatedAt: time.Now().UTC(),
		Notice:    notice,
	}
	o.transcript = append(o.transcript, t)
	o.emitLocked(Event{Type: EventTurnAppended, Turn: &t, State: o.stateLocked()})
	return t
}

// seedLocked is the history replayed to a new model conversation.
func (o *Orchestrator) seedLocked() []brain.Message {
	out := make([]brain.Message, 0, len(o.transcript))
	for _, t := range o.transcript {
		if t.Notice {
			continue
		}
		role := brain.RoleUser
		if t.Speaker == SpeakerAssistant {
			role = brain.RoleModel
		}
		out = append(out, brain.Message{Role: role, Text: t.Text})
	}
	return out
}

func (o *Orchestrator) failLocked(cat Category, detail string) {
	key := cat.MessageKey()
	o.errMsg = o.bundle.Format(key, map[string]string{"detail": detail})
	o.errKey = key
	o.errCat = cat
	if o.metrics != nil {
		o.metrics.SessionErrors.WithLabelValues(string(cat)).Inc()
	}
}

func (o *Orchestrator) clearErrorLocked() {
	o.errMsg = ""
	o.errKey = ""
	o.errCat = ""
}

func (o *Orchestrator) stateLocked() State {
	phase := PhaseIdle
	switch {
	case o.recording:
		phase = PhaseListening
	case o.waiting:
		phase = PhaseSubmitting
	}
	_, speech := o.capability.Recognizer()
	return State{
		Language:      o.lang,
		Mode:          o.mode,
		Phase:         phase,
		Recording:     o.recording,
		Waiting:       o.waiting,
		VoiceOutput:   o.voiceOutput,
		SpeechInput:   speech,
		Input:         o.input,
		Error:         o.errMsg,
		ErrorKey:      o.errKey,
		ErrorCategory: o.errCat,
		Transcript:    append([]Turn(nil), o.transcript...),
	}
}

func (o *Orchestrator) emitStateLocked() {
	o.emitLocked(Event{Type: EventStateChanged, State: o.stateLocked()})
}

func (o *Orchestrator) emitLocked(ev Event) {
	if o.sink != nil {
		o.sink(ev)
	}
}

func (o *Orchestrator) countEvent(name string) {
	if o.metrics != nil {
		o.metrics.SessionEvents.WithLabelValues(name).Inc()
	}
}
