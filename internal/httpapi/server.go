package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/aura/internal/account"
	"github.com/antoniostano/aura/internal/brain"
	"github.com/antoniostano/aura/internal/chat"
	"github.com/antoniostano/aura/internal/config"
	"github.com/antoniostano/aura/internal/i18n"
	"github.com/antoniostano/aura/internal/kv"
	"github.com/antoniostano/aura/internal/observability"
	"github.com/antoniostano/aura/internal/session"
	"github.com/antoniostano/aura/internal/shell"
)

type Server struct {
	cfg      config.Config
	app      *shell.App
	catalog  *i18n.Catalog
	provider brain.Provider
	sessions *session.Manager
	metrics  *observability.Metrics
	upgrader websocket.Upgrader

	linksMu sync.Mutex
	links   map[string]*wsLink
}

func New(cfg config.Config, app *shell.App, catalog *i18n.Catalog, provider brain.Provider, sessions *session.Manager, metrics *observability.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		app:      app,
		catalog:  catalog,
		provider: provider,
		sessions: sessions,
		metrics:  metrics,
		links:    make(map[string]*wsLink),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive the microphone.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
	sessions.SetExpireHook(s.handleExpired)
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/strings", s.handleStrings)
		r.Get("/onboarding/status", s.handleOnboardingStatus)

		r.Get("/prefs", s.handleGetPrefs)
		r.Post("/prefs/theme/toggle", s.handleToggleTheme)
		r.Put("/prefs/language", s.handleSetLanguage)
		r.Post("/prefs/language/toggle", s.handleToggleLanguage)
		r.Post("/prefs/cookie-consent", s.handleAcceptCookies)

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)
		r.Get("/auth/me", s.handleMe)

		r.Post("/navigate", s.handleNavigate)
		r.Post("/session/start", s.handleStartSession)

		r.Get("/session", s.handleGetSession)
		r.Post("/session/messages", s.handleSubmit)
		r.Put("/session/input", s.handleSetInput)
		r.Post("/session/reset", s.handleReset)
		r.Put("/session/mode", s.handleSetMode)
		r.Post("/session/voice-output/toggle", s.handleToggleVoiceOutput)
		r.Post("/session/recording/start", s.handleStartRecording)
		r.Post("/session/recording/stop", s.handleStopRecording)
		r.Get("/session/ws", s.handleSessionWS)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"model_provider": s.provider.Name(),
		"store_backend":  s.storeBackend(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"model_provider":   s.provider.Name(),
		"model_configured": brain.IsConfigured(s.provider),
		"ws_clients":       s.sessions.ActiveCount(),
	})
}

// handleStrings serves the string table for ?lang=, else the best
// Accept-Language match, else the saved language.
func (s *Server) handleStrings(w http.ResponseWriter, r *http.Request) {
	lang := s.app.State().Language
	if raw := strings.TrimSpace(r.URL.Query().Get("lang")); raw != "" {
		parsed, err := i18n.ParseLanguage(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_language", err.Error())
			return
		}
		lang = parsed
	} else if accept := r.Header.Get("Accept-Language"); accept != "" {
		if negotiated, ok := s.catalog.Negotiate(accept); ok {
			lang = negotiated
		}
	}
	respondJSON(w, http.StatusOK, s.catalog.Bundle(lang))
}

type errorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	MessageKey string `json:"message_key,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondFailure maps domain errors to HTTP statuses. Account rejections
// carry the localized message and its string table key.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	var ve *account.ValidationError
	switch {
	case errors.As(err, &ve):
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:      s.app.Bundle().Text(ve.MessageKey()),
			Code:       string(ve.Reason),
			MessageKey: ve.MessageKey(),
		})
	case errors.Is(err, shell.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, chat.ErrTurnInFlight):
		respondError(w, http.StatusConflict, "reply_pending", err.Error())
	case errors.Is(err, chat.ErrListening):
		respondError(w, http.StatusConflict, "recording", err.Error())
	case errors.Is(err, chat.ErrClosed):
		respondError(w, http.StatusConflict, "session_closed", err.Error())
	case errors.Is(err, chat.ErrEmptyInput):
		respondError(w, http.StatusBadRequest, "empty_input", err.Error())
	case errors.Is(err, chat.ErrNotVoiceMode):
		respondError(w, http.StatusBadRequest, "not_voice_mode", err.Error())
	case errors.Is(err, chat.ErrInvalidMode):
		respondError(w, http.StatusBadRequest, "invalid_mode", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (s *Server) storeBackend() string {
	return kv.Backend(s.cfg.StoreURL)
}
