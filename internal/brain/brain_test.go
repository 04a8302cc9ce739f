package brain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/antoniostano/aura/internal/i18n"
	"github.com/antoniostano/aura/internal/observability"
)

type personas map[i18n.Language]string

func (p personas) PersonaInstruction(l i18n.Language) string { return p[l] }

var testPersonas = personas{i18n.Czech: "buď laskavá", i18n.English: "be kind"}

func newTestMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	return observability.NewMetrics(fmt.Sprintf("aura_test_brain_%d", time.Now().UnixNano()))
}

func TestEnsureConversationIsIdempotent(t *testing.T) {
	p := NewMockProvider()
	c := NewClient(p, testPersonas, newTestMetrics(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.EnsureConversation(ctx, i18n.English, nil); err != nil {
			t.Fatalf("EnsureConversation() error = %v", err)
		}
	}
	if got := c.Conversations(); got != 1 {
		t.Fatalf("Conversations() = %d, want 1", got)
	}
}

func TestEnsureConversationRecreatesOnLanguageChange(t *testing.T) {
	p := NewMockProvider()
	c := NewClient(p, testPersonas, newTestMetrics(t))
	ctx := context.Background()

	_ = c.EnsureConversation(ctx, i18n.Czech, nil)
	seed := []Message{{Role: RoleUser, Text: "ahoj"}, {Role: RoleModel, Text: "dobrý den"}}
	if err := c.EnsureConversation(ctx, i18n.English, seed); err != nil {
		t.Fatalf("EnsureConversation() error = %v", err)
	}

	starts := p.Starts()
	if len(starts) != 2 {
		t.Fatalf("starts = %d, want 2", len(starts))
	}
	if starts[1].Instruction != "be kind" {
		t.Fatalf("instruction = %q, want english persona", starts[1].Instruction)
	}
	if len(starts[1].History) != 2 || starts[1].History[1].Role != RoleModel {
		t.Fatalf("seed history = %+v", starts[1].History)
	}
}

func TestResetForcesFreshConversation(t *testing.T) {
	p := NewMockProvider()
	c := NewClient(p, testPersonas, newTestMetrics(t))
	ctx := context.Background()

	if _, err := c.Reply(ctx, i18n.English, nil, "hello"); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	c.Reset()
	if _, err := c.SendTurn(ctx, "again"); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("SendTurn() after Reset error = %v, want ErrNoConversation", err)
	}
	if _, err := c.Reply(ctx, i18n.English, nil, "again"); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if got := c.Conversations(); got != 2 {
		t.Fatalf("Conversations() = %d, want 2", got)
	}
}

func TestConversationKeepsHistory(t *testing.T) {
	p := NewMockProvider()
	var seen []int
	p.Respond = func(_ context.Context, _ string, history []Message, text string) (string, error) {
		seen = append(seen, len(history))
		return "ok: " + text, nil
	}
	c := NewClient(p, testPersonas, newTestMetrics(t))
	ctx := context.Background()

	if err := c.EnsureConversation(ctx, i18n.English, []Message{{Role: RoleUser, Text: "a"}, {Role: RoleModel, Text: "b"}}); err != nil {
		t.Fatalf("EnsureConversation() error = %v", err)
	}
	for _, msg := range []string{"one", "two"} {
		reply, err := c.SendTurn(ctx, msg)
		if err != nil {
			t.Fatalf("SendTurn() error = %v", err)
		}
		if reply != "ok: "+msg {
			t.Fatalf("SendTurn() = %q", reply)
		}
	}
	if len(seen) != 2 || seen[0] != 2 || seen[1] != 4 {
		t.Fatalf("history lengths = %v, want [2 4]", seen)
	}
}

func TestUnconfiguredProviderFailsWithNotConfigured(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Mode: "gemini"})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if IsConfigured(p) {
		t.Fatalf("gemini without key should not be configured")
	}
	c := NewClient(p, testPersonas, newTestMetrics(t))
	if _, err := c.Reply(context.Background(), i18n.Czech, nil, "ahoj"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Reply() error = %v, want ErrNotConfigured", err)
	}
}

func TestNewProviderModes(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("NewProvider(auto) error = %v", err)
	}
	if p.Name() != "mock" {
		t.Fatalf("auto without keys = %q, want mock", p.Name())
	}

	p, err = NewProvider(ctx, Config{Mode: "auto", OpenAIAPIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewProvider(auto openai) error = %v", err)
	}
	if p.Name() != "openai" || !IsConfigured(p) {
		t.Fatalf("auto with openai key = %q", p.Name())
	}

	p, err = NewProvider(ctx, Config{})
	if err != nil {
		t.Fatalf("NewProvider(default) error = %v", err)
	}
	if p.Name() != "gemini" {
		t.Fatalf("default provider = %q, want gemini", p.Name())
	}

	if _, err := NewProvider(ctx, Config{Mode: "llama"}); err == nil {
		t.Fatalf("NewProvider(llama) expected error")
	}
}

func TestUpstreamErrorClassification(t *testing.T) {
	err := upstream("gemini", 503, errors.New("unavailable"))
	if !err.Retryable {
		t.Fatalf("503 should be retryable")
	}
	var ue *UpstreamError
	if !errors.As(fmt.Errorf("wrap: %w", err), &ue) || ue.Provider != "gemini" {
		t.Fatalf("errors.As() failed for %v", err)
	}
	empty := upstream("openai", 0, ErrEmptyReply)
	if !errors.Is(empty, ErrEmptyReply) || empty.Retryable {
		t.Fatalf("empty reply should unwrap to ErrEmptyReply and not be retryable")
	}
}

func TestMockReplyFailurePropagates(t *testing.T) {
	p := NewMockProvider()
	p.Respond = func(context.Context, string, []Message, string) (string, error) {
		return "", upstream("mock", 500, errors.New("boom"))
	}
	c := NewClient(p, testPersonas, newTestMetrics(t))
	_, err := c.Reply(context.Background(), i18n.English, nil, "hi")
	var ue *UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != 500 {
		t.Fatalf("Reply() error = %v, want upstream 500", err)
	}
}
