// Package kv is the flat key-value store behind preferences and accounts.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Persisted keys.
const (
	KeyTheme         = "aura_theme"
	KeyLanguage      = "aura_language"
	KeyUsers         = "aura_users"
	KeyCurrentUser   = "aura_currentUser"
	KeyCookieConsent = "aura_cookie_consent"

	credentialPrefix = "cred_"
)

// CredentialKey is the key holding the credential record of an account.
func CredentialKey(accountID string) string {
	return credentialPrefix + accountID
}

var ErrClosed = errors.New("kv store closed")

// Store is a string-to-string map that survives restarts (except the
// in-memory variant).
type Store interface {
	// Get returns ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// NewStore picks a backend from url:
//
//	""  or "memory://"          in-process map
//	"sqlite://<path>"           SQLite file
//	"postgres://" "postgresql://"  PostgreSQL
func NewStore(ctx context.Context, url string) (Store, error) {
	u := strings.TrimSpace(url)
	switch {
	case u == "" || u == "memory://":
		return NewMemoryStore(), nil
	case strings.HasPrefix(u, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(u, "sqlite://"))
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return NewPostgresStore(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported store url %q", url)
	}
}

// Backend names the backend NewStore would pick for url.
func Backend(url string) string {
	u := strings.TrimSpace(url)
	switch {
	case u == "" || u == "memory://":
		return "memory"
	case strings.HasPrefix(u, "sqlite://"):
		return "sqlite"
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return "postgres"
	default:
		return "unknown"
	}
}

// GetJSON decodes the value at key into dst. ok is false when the key is
// absent; a value that fails to decode is reported as an error.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(raw))
}
