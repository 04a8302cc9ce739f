package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestManagerCreateTouchEnd(t *testing.T) {
	m := NewManager(time.Minute)
	c := m.Create("acct-1")
	if c.ID == "" {
		t.Fatalf("connection ID should not be empty")
	}

	if err := m.Touch(c.ID); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if err := m.SetSpeech(c.ID, Speech{Recognition: true, Synthesis: true}); err != nil {
		t.Fatalf("SetSpeech() error = %v", err)
	}
	got, err := m.Get(c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AccountID != "acct-1" || got.MessagesIn != 1 || !got.Speech.Recognition || got.Status != StatusActive {
		t.Fatalf("unexpected connection state: %+v", got)
	}

	ended, err := m.End(c.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded || ended.EndReason != EndReasonClosed {
		t.Fatalf("ended = %+v", ended)
	}
	if _, err := m.Get(c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after End error = %v, want ErrNotFound", err)
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", m.ActiveCount())
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	c := m.Create("acct-1")

	var mu sync.Mutex
	var expired []*Connection
	m.SetExpireHook(func(c *Connection) {
		mu.Lock()
		expired = append(expired, c)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.RunJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	if _, err := m.Get(c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound after expiry", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(expired) != 1 || expired[0].EndReason != EndReasonInactive {
		t.Fatalf("expired = %+v, want one inactive connection", expired)
	}
}
