// Package prefs stores the per-device UI preferences.
package prefs

import (
	"context"
	"fmt"

	"github.com/antoniostano/aura/internal/i18n"
	"github.com/antoniostano/aura/internal/kv"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"

	DefaultTheme = ThemeLight
)

func (t Theme) Toggle() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

const consentAccepted = "true"

// Preferences is a point-in-time view of every preference.
type Preferences struct {
	Theme         Theme         `json:"theme"`
	Language      i18n.Language `json:"language"`
	CookieConsent bool          `json:"cookie_consent"`
}

type Service struct {
	store kv.Store
}

func NewService(store kv.Store) *Service {
	return &Service{store: store}
}

// Theme returns the saved theme. A missing or unknown value is replaced by
// the default and written back.
func (s *Service) Theme(ctx context.Context) (Theme, error) {
	raw, ok, err := s.store.Get(ctx, kv.KeyTheme)
	if err != nil {
		return "", fmt.Errorf("load theme: %w", err)
	}
	if ok && (Theme(raw) == ThemeLight || Theme(raw) == ThemeDark) {
		return Theme(raw), nil
	}
	if err := s.store.Set(ctx, kv.KeyTheme, string(DefaultTheme)); err != nil {
		return "", fmt.Errorf("save theme: %w", err)
	}
	return DefaultTheme, nil
}

func (s *Service) ToggleTheme(ctx context.Context) (Theme, error) {
	cur, err := s.Theme(ctx)
	if err != nil {
		return "", err
	}
	next := cur.Toggle()
	if err := s.store.Set(ctx, kv.KeyTheme, string(next)); err != nil {
		return "", fmt.Errorf("save theme: %w", err)
	}
	return next, nil
}

// Language returns the saved language, writing the default back when the
// stored value is missing or unknown.
func (s *Service) Language(ctx context.Context) (i18n.Language, error) {
	raw, ok, err := s.store.Get(ctx, kv.KeyLanguage)
	if err != nil {
		return "", fmt.Errorf("load language: %w", err)
	}
	if ok && i18n.Language(raw).Valid() {
		return i18n.Language(raw), nil
	}
	if err := s.store.Set(ctx, kv.KeyLanguage, string(i18n.DefaultLanguage)); err != nil {
		return "", fmt.Errorf("save language: %w", err)
	}
	return i18n.DefaultLanguage, nil
}

func (s *Service) SetLanguage(ctx context.Context, lang i18n.Language) error {
	if !lang.Valid() {
		return fmt.Errorf("unsupported language %q", lang)
	}
	if err := s.store.Set(ctx, kv.KeyLanguage, string(lang)); err != nil {
		return fmt.Errorf("save language: %w", err)
	}
	return nil
}

func (s *Service) CookieConsent(ctx context.Context) (bool, error) {
	raw, ok, err := s.store.Get(ctx, kv.KeyCookieConsent)
	if err != nil {
		return false, fmt.Errorf("load cookie consent: %w", err)
	}
	return ok && raw == consentAccepted, nil
}

// AcceptCookies records consent. There is no way to withdraw it.
func (s *Service) AcceptCookies(ctx context.Context) error {
	if err := s.store.Set(ctx, kv.KeyCookieConsent, consentAccepted); err != nil {
		return fmt.Errorf("save cookie consent: %w", err)
	}
	return nil
}

func (s *Service) Load(ctx context.Context) (Preferences, error) {
	theme, err := s.Theme(ctx)
	if err != nil {
		return Preferences{}, err
	}
	lang, err := s.Language(ctx)
	if err != nil {
		return Preferences{}, err
	}
	consent, err := s.CookieConsent(ctx)
	if err != nil {
		return Preferences{}, err
	}
	return Preferences{Theme: theme, Language: lang, CookieConsent: consent}, nil
}
