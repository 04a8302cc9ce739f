package kv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, KeyTheme); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want absent", ok, err)
	}
	if err := s.Set(ctx, KeyTheme, "dark"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, KeyTheme, "light"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	v, ok, err := s.Get(ctx, KeyTheme)
	if err != nil || !ok || v != "light" {
		t.Fatalf("Get() = %q,%v,%v; want light", v, ok, err)
	}

	type rec struct {
		HashedPassword string `json:"hashedPassword"`
	}
	key := CredentialKey("abc")
	if err := SetJSON(ctx, s, key, rec{HashedPassword: "h"}); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}
	raw, _, _ := s.Get(ctx, key)
	if raw != `{"hashedPassword":"h"}` {
		t.Fatalf("stored credential = %s", raw)
	}
	var got rec
	ok, err = GetJSON(ctx, s, key, &got)
	if err != nil || !ok || got.HashedPassword != "h" {
		t.Fatalf("GetJSON() = %+v,%v,%v", got, ok, err)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := s.Get(ctx, key); ok {
		t.Fatalf("key should be gone after Delete()")
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	_ = s.Close()
	if err := s.Set(context.Background(), "k", "v"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Set() after Close error = %v, want ErrClosed", err)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aura.db")
	ctx := context.Background()

	s, err := NewStore(ctx, "sqlite://"+path)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	exerciseStore(t, s)
	if err := s.Set(ctx, KeyLanguage, "eng"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	_ = s.Close()

	reopened, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer reopened.Close()
	v, ok, err := reopened.Get(ctx, KeyLanguage)
	if err != nil || !ok || v != "eng" {
		t.Fatalf("Get() after reopen = %q,%v,%v", v, ok, err)
	}
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("KV_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("KV_TEST_POSTGRES_URL not set")
	}
	s, err := NewStore(context.Background(), url)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestGetJSONRejectsCorruptValue(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.Set(ctx, KeyUsers, "{not json")
	var users []string
	if _, err := GetJSON(ctx, s, KeyUsers, &users); err == nil {
		t.Fatalf("GetJSON() expected decode error")
	}
}

func TestNewStoreRejectsUnknownScheme(t *testing.T) {
	if _, err := NewStore(context.Background(), "redis://localhost"); err == nil {
		t.Fatalf("NewStore() expected error for unsupported scheme")
	}
}

func TestBackend(t *testing.T) {
	cases := map[string]string{
		"":                        "memory",
		"memory://":               "memory",
		"sqlite://aura.db":        "sqlite",
		"postgres://db/aura":      "postgres",
		"postgresql://db/aura":    "postgres",
		"redis://localhost:6379/": "unknown",
	}
	for url, want := range cases {
		if got := Backend(url); got != want {
			t.Fatalf("Backend(%q) = %q, want %q", url, got, want)
		}
	}
}
