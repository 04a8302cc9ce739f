package httpapi

import (
	"errors"
	"log"
	"net/http"

	"github.com/antoniostano/aura/internal/chat"
	"github.com/antoniostano/aura/internal/policy"
	"github.com/antoniostano/aura/internal/shell"
)

type textRequest struct {
	Text string `json:"text"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type startSessionResponse struct {
	Frame   shell.State `json:"frame"`
	Session chat.State  `json:"session"`
}

type submitResponse struct {
	Turn    chat.Turn  `json:"turn"`
	Session chat.State `json:"session"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	frame := s.app.StartSession(r.Context())
	if frame.Account == nil {
		s.respondFailure(w, shell.ErrUnauthenticated)
		return
	}
	o, err := s.app.Session()
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, startSessionResponse{Frame: frame, Session: o.Snapshot()})
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	o, err := s.app.Session()
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o.Snapshot())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	o, err := s.app.Session()
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	var req textRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	turn, err := o.SubmitText(r.Context(), req.Text)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.metrics.SessionEvents.WithLabelValues("http_submit").Inc()
	logTurn("http", turn.Text)
	respondJSON(w, http.StatusAccepted, submitResponse{Turn: turn, Session: o.Snapshot()})
}

func (s *Server) handleSetInput(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.withSession(w, func(o *chat.Orchestrator) error {
		return o.SetInput(req.Text)
	})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.withSession(w, func(o *chat.Orchestrator) error {
		return o.ResetSession()
	})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	mode, ok := chat.ParseMode(req.Mode)
	if !ok {
		s.respondFailure(w, chat.ErrInvalidMode)
		return
	}
	s.withSession(w, func(o *chat.Orchestrator) error {
		return o.SetMode(r.Context(), mode)
	})
}

func (s *Server) handleToggleVoiceOutput(w http.ResponseWriter, _ *http.Request) {
	s.withSession(w, func(o *chat.Orchestrator) error {
		_, err := o.ToggleVoiceOutput()
		return err
	})
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, func(o *chat.Orchestrator) error {
		return o.StartRecording(r.Context())
	})
}

func (s *Server) handleStopRecording(w http.ResponseWriter, _ *http.Request) {
	s.withSession(w, func(o *chat.Orchestrator) error {
		return o.StopRecording()
	})
}

// withSession runs fn against the signed-in session and responds with the
// resulting session state.
func (s *Server) withSession(w http.ResponseWriter, fn func(*chat.Orchestrator) error) {
	o, err := s.app.Session()
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if err := fn(o); err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o.Snapshot())
}

func logTurn(source, text string) {
	if text == "" {
		return
	}
	log.Printf("turn submitted source=%s text=%q", source, policy.LogExcerpt(text))
}
