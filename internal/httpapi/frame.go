package httpapi

import (
	"errors"
	"net/http"

	"github.com/antoniostano/aura/internal/i18n"
	"github.com/antoniostano/aura/internal/shell"
)

type languageRequest struct {
	Language string `json:"language"`
}

type credentialsRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type navigateRequest struct {
	View string `json:"view"`
}

func (s *Server) handleGetPrefs(w http.ResponseWriter, r *http.Request) {
	p, err := s.app.Preferences(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleToggleTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := s.app.ToggleTheme(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"theme": theme})
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	lang, err := i18n.ParseLanguage(req.Language)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_language", err.Error())
		return
	}
	st, err := s.app.SetLanguage(r.Context(), lang)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleToggleLanguage(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.ToggleLanguage(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleAcceptCookies(w http.ResponseWriter, r *http.Request) {
	if err := s.app.AcceptCookies(r.Context()); err != nil {
		s.respondFailure(w, err)
		return
	}
	s.handleGetPrefs(w, r)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	st, err := s.app.Register(r.Context(), req.Username, req.Password, req.ConfirmPassword)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, st)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	st, err := s.app.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Logout(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request) {
	st := s.app.State()
	if st.Account == nil {
		s.respondFailure(w, shell.ErrUnauthenticated)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.app.Navigate(shell.View(req.View)))
}
