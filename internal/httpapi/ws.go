package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/aura/internal/chat"
	"github.com/antoniostano/aura/internal/observability"
	"github.com/antoniostano/aura/internal/protocol"
	"github.com/antoniostano/aura/internal/session"
	"github.com/antoniostano/aura/internal/shell"
	"github.com/antoniostano/aura/internal/voice"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 64 << 10
	wsSendQueue    = 256
)

var errSendBacklog = errors.New("session client send backlog full")

// frameConn is the write side of a WebSocket connection.
type frameConn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// wsLink queues outbound messages for one WebSocket and carries speech
// commands to the browser. A single writer goroutine drains the queue, so
// senders never wait on the network. A client whose queue fills up is
// disconnected.
type wsLink struct {
	conn    frameConn
	metrics *observability.Metrics

	queue     chan any
	done      chan struct{}
	closeOnce sync.Once
}

func newWSLink(conn frameConn, metrics *observability.Metrics) *wsLink {
	l := &wsLink{
		conn:    conn,
		metrics: metrics,
		queue:   make(chan any, wsSendQueue),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *wsLink) run() {
	for {
		select {
		case <-l.done:
			return
		case msg := <-l.queue:
			_ = l.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := l.conn.WriteJSON(msg); err != nil {
				l.close()
				return
			}
			if t, ok := protocol.TypeOf(msg); ok && l.metrics != nil {
				l.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
			}
		}
	}
}

func (l *wsLink) send(msg any) error {
	select {
	case <-l.done:
		return voice.ErrDetached
	default:
	}
	select {
	case l.queue <- msg:
		return nil
	case <-l.done:
		return voice.ErrDetached
	default:
		log.Printf("session client send queue full; disconnecting")
		l.close()
		return errSendBacklog
	}
}

func (l *wsLink) SendCommand(ctx context.Context, cmd voice.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.send(protocol.FromCommand(cmd))
}

func (l *wsLink) close() {
	l.closeOnce.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	if _, err := s.app.Session(); err != nil {
		s.respondFailure(w, err)
		return
	}
	acct := s.app.State().Account
	if acct == nil {
		s.respondFailure(w, shell.ErrUnauthenticated)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := s.sessions.Create(acct.ID)
	link := newWSLink(conn, s.metrics)
	s.track(c.ID, link)
	defer s.untrack(c.ID)
	defer link.close()

	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	log.Printf("session client connected id=%s", c.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	engine := voice.NewRemoteEngine(link)
	events, unsubscribe := s.app.Subscribe()

	if o, err := s.app.Session(); err == nil {
		_ = link.send(protocol.SessionState{Type: protocol.TypeSessionState, State: o.Snapshot()})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range events {
			if err := link.send(protocol.FromEvent(ev)); err != nil {
				cancel()
				link.close()
				for range events {
				}
				return
			}
		}
	}()

	conn.SetReadLimit(wsReadLimit)
	for ctx.Err() == nil {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = s.sessions.Touch(c.ID)

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			_ = link.send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			})
			continue
		}
		if t, ok := protocol.TypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		s.handleClientMessage(ctx, c.ID, engine, link, parsed)
	}

	cancel()
	link.close()
	s.app.DetachSpeech(c.ID)
	engine.Detach()
	unsubscribe()
	<-writerDone

	if _, err := s.sessions.End(c.ID); err != nil && !errors.Is(err, session.ErrNotFound) {
		log.Printf("session client end failed id=%s: %v", c.ID, err)
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
	log.Printf("session client disconnected id=%s", c.ID)
}

func (s *Server) handleClientMessage(ctx context.Context, connID string, engine *voice.RemoteEngine, link *wsLink, msg any) {
	switch m := msg.(type) {
	case protocol.ClientHello:
		s.attachSpeech(connID, engine, m.Speech)
	case protocol.RecognitionEvent:
		if !engine.Deliver(m.RecognitionID, m.Voice()) {
			s.metrics.SessionEvents.WithLabelValues("recognition_event_ignored").Inc()
		}
	case protocol.SpeechError:
		if o, err := s.app.Session(); err == nil {
			log.Printf("session client speech error id=%s detail=%q", connID, m.Detail)
			o.ReportSynthesisFailure()
		}
	case protocol.ClientControl:
		if err := s.applyControl(ctx, m); err != nil {
			_ = link.send(controlError(m.Action, err))
		}
	}
}

func (s *Server) attachSpeech(connID string, engine *voice.RemoteEngine, speech protocol.SpeechSupport) {
	_ = s.sessions.SetSpeech(connID, session.Speech{
		Recognition: speech.Recognition,
		Synthesis:   speech.Synthesis,
	})
	if !speech.Recognition && !speech.Synthesis {
		s.app.DetachSpeech(connID)
		return
	}
	capability := voice.Unavailable()
	if speech.Recognition {
		capability = voice.Available(engine)
	}
	var synth voice.Synthesizer = voice.Silent{}
	if speech.Synthesis {
		synth = engine
	}
	s.app.AttachSpeech(connID, capability, synth)
}

func (s *Server) applyControl(ctx context.Context, m protocol.ClientControl) error {
	o, err := s.app.Session()
	if err != nil {
		return err
	}
	switch m.Action {
	case protocol.ActionSubmit:
		turn, err := o.SubmitText(ctx, m.Text)
		if err == nil {
			logTurn("ws", turn.Text)
		}
		return err
	case protocol.ActionSetInput:
		return o.SetInput(m.Text)
	case protocol.ActionStartRecording:
		return o.StartRecording(ctx)
	case protocol.ActionStopRecording:
		return o.StopRecording()
	case protocol.ActionSetMode:
		mode, ok := chat.ParseMode(m.Mode)
		if !ok {
			return chat.ErrInvalidMode
		}
		return o.SetMode(ctx, mode)
	case protocol.ActionToggleVoiceOutput:
		_, err := o.ToggleVoiceOutput()
		return err
	case protocol.ActionReset:
		return o.ResetSession()
	default:
		return errUnknownAction
	}
}

var errUnknownAction = errors.New("unknown control action")

func controlError(action string, err error) protocol.ErrorEvent {
	code := "control_failed"
	switch {
	case errors.Is(err, errUnknownAction):
		code = "unknown_action"
	case errors.Is(err, chat.ErrTurnInFlight):
		code = "reply_pending"
	case errors.Is(err, chat.ErrListening):
		code = "recording"
	case errors.Is(err, chat.ErrEmptyInput):
		code = "empty_input"
	case errors.Is(err, chat.ErrNotVoiceMode):
		code = "not_voice_mode"
	case errors.Is(err, chat.ErrInvalidMode):
		code = "invalid_mode"
	}
	return protocol.ErrorEvent{
		Type:   protocol.TypeErrorEvent,
		Code:   code,
		Detail: action + ": " + err.Error(),
	}
}

func (s *Server) track(id string, link *wsLink) {
	s.linksMu.Lock()
	s.links[id] = link
	s.linksMu.Unlock()
}

func (s *Server) untrack(id string) {
	s.linksMu.Lock()
	delete(s.links, id)
	s.linksMu.Unlock()
}

// handleExpired closes the socket of a client the janitor ended.
func (s *Server) handleExpired(c *session.Connection) {
	s.linksMu.Lock()
	link := s.links[c.ID]
	s.linksMu.Unlock()
	if link == nil {
		return
	}
	log.Printf("session client expired id=%s reason=%s", c.ID, c.EndReason)
	s.metrics.SessionEvents.WithLabelValues("ws_expired").Inc()
	link.close()
}
