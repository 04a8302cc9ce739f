// Package brain talks to the hosted chat model. A Client owns at most one
// live Conversation, created with the persona instruction of the active
// language and seeded with the prior transcript.
package brain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/antoniostano/aura/internal/i18n"
	"github.com/antoniostano/aura/internal/observability"
	"github.com/antoniostano/aura/internal/reliability"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one prior exchange used to seed a new conversation.
type Message struct {
	Role Role
	Text string
}

// Conversation is a live chat with the model. Implementations keep their own
// history and are not safe for concurrent Send calls.
type Conversation interface {
	Instruction() string
	Send(ctx context.Context, text string) (string, error)
}

// Provider starts conversations against one model backend.
type Provider interface {
	Name() string
	StartConversation(ctx context.Context, instruction string, history []Message) (Conversation, error)
}

// PersonaSource yields the system instruction for a language.
type PersonaSource interface {
	PersonaInstruction(lang i18n.Language) string
}

var (
	// ErrNotConfigured means the provider has no credential.
	ErrNotConfigured  = errors.New("model provider is not configured")
	ErrEmptyReply     = errors.New("model returned an empty reply")
	ErrNoConversation = errors.New("no active conversation")
)

// UpstreamError wraps any failure of the hosted model call.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s upstream error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s upstream error: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func upstream(provider string, status int, err error) *UpstreamError {
	return &UpstreamError{
		Provider:   provider,
		StatusCode: status,
		Retryable:  reliability.IsRetryableHTTPStatus(status),
		Err:        err,
	}
}

// Client holds the conversation handle for one chat session.
type Client struct {
	provider Provider
	personas PersonaSource
	metrics  *observability.Metrics

	mu      sync.Mutex
	conv    Conversation
	created int
}

func NewClient(provider Provider, personas PersonaSource, metrics *observability.Metrics) *Client {
	return &Client{provider: provider, personas: personas, metrics: metrics}
}

// EnsureConversation creates the handle when there is none or when its
// instruction no longer matches lang. seed is only used on creation.
func (c *Client) EnsureConversation(ctx context.Context, lang i18n.Language, seed []Message) error {
	_, err := c.ensure(ctx, lang, seed)
	return err
}

func (c *Client) ensure(ctx context.Context, lang i18n.Language, seed []Message) (Conversation, error) {
	instruction := c.personas.PersonaInstruction(lang)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conv != nil && c.conv.Instruction() == instruction {
		return c.conv, nil
	}

	history := make([]Message, len(seed))
	copy(history, seed)
	conv, err := c.provider.StartConversation(ctx, instruction, history)
	if err != nil {
		c.recordError(err)
		return nil, err
	}
	c.conv = conv
	c.created++
	if c.metrics != nil {
		c.metrics.ConversationStarts.WithLabelValues(c.provider.Name()).Inc()
	}
	return conv, nil
}

// SendTurn sends text on the current handle.
func (c *Client) SendTurn(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	conv := c.conv
	c.mu.Unlock()
	if conv == nil {
		return "", ErrNoConversation
	}
	return c.send(ctx, conv, text)
}

// Reply ensures a handle for lang and sends text on that same handle, so a
// concurrent Reset cannot redirect the turn to a different conversation.
func (c *Client) Reply(ctx context.Context, lang i18n.Language, seed []Message, text string) (string, error) {
	conv, err := c.ensure(ctx, lang, seed)
	if err != nil {
		return "", err
	}
	return c.send(ctx, conv, text)
}

func (c *Client) send(ctx context.Context, conv Conversation, text string) (string, error) {
	reply, err := conv.Send(ctx, text)
	if err != nil {
		c.recordError(err)
		return "", err
	}
	return reply, nil
}

// Reset discards the handle. The next send creates a fresh one.
func (c *Client) Reset() {
	c.mu.Lock()
	c.conv = nil
	c.mu.Unlock()
}

// Conversations counts the handles created over the client's lifetime.
func (c *Client) Conversations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

func (c *Client) recordError(err error) {
	if c.metrics == nil || reliability.IsContextError(err) {
		return
	}
	code := "not_configured"
	var ue *UpstreamError
	if errors.As(err, &ue) {
		code = reliability.StatusCode(ue.StatusCode)
		if errors.Is(err, ErrEmptyReply) {
			code = "empty_reply"
		}
	}
	c.metrics.ProviderErrors.WithLabelValues(c.provider.Name(), code).Inc()
}

// unconfigured stands in for a provider whose credential is missing, so the
// failure surfaces on the first send rather than at startup.
type unconfigured struct {
	name string
}

func (u unconfigured) Name() string { return u.name }

func (u unconfigured) StartConversation(context.Context, string, []Message) (Conversation, error) {
	return nil, ErrNotConfigured
}
