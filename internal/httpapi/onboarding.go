package httpapi

import (
	"net/http"

	"github.com/antoniostano/aura/internal/brain"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	ModelProvider string            `json:"model_provider"`
	StoreBackend  string            `json:"store_backend"`
	Checks        []onboardingCheck `json:"checks"`
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, _ *http.Request) {
	checks := make([]onboardingCheck, 0, 4)
	checks = append(checks, s.modelCheck())
	checks = append(checks, s.storeCheck())
	checks = append(checks, s.speechCheck())

	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		ModelProvider: s.provider.Name(),
		StoreBackend:  s.storeBackend(),
		Checks:        checks,
	})
}

func (s *Server) modelCheck() onboardingCheck {
	name := s.provider.Name()
	switch {
	case !brain.IsConfigured(s.provider):
		fix := "Set GEMINI_API_KEY (or API_KEY)."
		if name == "openai" {
			fix = "Set OPENAI_API_KEY."
		}
		return onboardingCheck{
			ID:     "model_provider",
			Status: "error",
			Label:  "Model provider",
			Detail: name + " has no API key",
			Fix:    fix,
		}
	case name == "mock":
		return onboardingCheck{
			ID:     "model_provider",
			Status: "warn",
			Label:  "Model provider",
			Detail: "mock replies only",
			Fix:    "Set MODEL_PROVIDER=gemini and GEMINI_API_KEY for real replies.",
		}
	default:
		return onboardingCheck{ID: "model_provider", Status: "ok", Label: "Model provider", Detail: name}
	}
}

func (s *Server) storeCheck() onboardingCheck {
	backend := s.storeBackend()
	if backend == "memory" {
		return onboardingCheck{
			ID:     "store",
			Status: "warn",
			Label:  "Account storage",
			Detail: "in-memory only",
			Fix:    "Set STORE_URL=sqlite://aura.db to keep accounts across restarts.",
		}
	}
	return onboardingCheck{ID: "store", Status: "ok", Label: "Account storage", Detail: backend}
}

func (s *Server) speechCheck() onboardingCheck {
	if s.app.State().Speech {
		return onboardingCheck{ID: "speech", Status: "ok", Label: "Speech", Detail: "attached"}
	}
	return onboardingCheck{
		ID:     "speech",
		Status: "warn",
		Label:  "Speech",
		Detail: "no client has announced speech support",
		Fix:    "Open the session in a browser with the Web Speech API.",
	}
}
