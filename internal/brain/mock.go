package brain

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// RespondFunc computes a mock reply. history holds the exchanges the
// conversation has seen so far, seed included.
type RespondFunc func(ctx context.Context, instruction string, history []Message, text string) (string, error)

// MockProvider gives deterministic local replies without a network.
type MockProvider struct {
	Respond RespondFunc

	mu      sync.Mutex
	started []MockStart
}

// MockStart records one StartConversation call.
type MockStart struct {
	Instruction string
	History     []Message
}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) StartConversation(ctx context.Context, instruction string, history []Message) (Conversation, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	seed := append([]Message(nil), history...)
	p.mu.Lock()
	p.started = append(p.started, MockStart{Instruction: instruction, History: seed})
	p.mu.Unlock()
	return &mockConversation{provider: p, instruction: instruction, history: append([]Message(nil), seed...)}, nil
}

// Starts returns every StartConversation call so far.
func (p *MockProvider) Starts() []MockStart {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]MockStart(nil), p.started...)
}

type mockConversation struct {
	provider    *MockProvider
	instruction string
	history     []Message
}

func (c *mockConversation) Instruction() string { return c.instruction }

func (c *mockConversation) Send(ctx context.Context, text string) (string, error) {
	respond := c.provider.Respond
	if respond == nil {
		respond = echoReply
	}
	reply, err := respond(ctx, c.instruction, append([]Message(nil), c.history...), text)
	if err != nil {
		return "", err
	}
	c.history = append(c.history, Message{Role: RoleUser, Text: text}, Message{Role: RoleModel, Text: reply})
	return reply, nil
}

func echoReply(ctx context.Context, _ string, history []Message, text string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	base := strings.TrimSpace(text)
	if base == "" {
		base = "..."
	}
	if len(history) == 0 {
		return fmt.Sprintf("I hear you: %s", base), nil
	}
	return fmt.Sprintf("I hear you: %s (we have talked %d times)", base, len(history)/2+1), nil
}
