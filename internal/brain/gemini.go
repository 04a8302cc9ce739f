package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiProvider talks to the Google Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) StartConversation(_ context.Context, instruction string, history []Message) (Conversation, error) {
	model := p.client.GenerativeModel(p.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(instruction)},
	}
	cs := model.StartChat()
	for _, m := range history {
		cs.History = append(cs.History, &genai.Content{
			Role:  string(m.Role),
			Parts: []genai.Part{genai.Text(m.Text)},
		})
	}
	return &geminiConversation{instruction: instruction, session: cs}, nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

type geminiConversation struct {
	instruction string
	session     *genai.ChatSession
}

func (c *geminiConversation) Instruction() string { return c.instruction }

func (c *geminiConversation) Send(ctx context.Context, text string) (string, error) {
	resp, err := c.session.SendMessage(ctx, genai.Text(text))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		status := 0
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			status = gerr.Code
		}
		return "", upstream("gemini", status, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", upstream("gemini", 0, ErrEmptyReply)
	}
	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		}
	}
	reply := strings.TrimSpace(out.String())
	if reply == "" {
		return "", upstream("gemini", 0, ErrEmptyReply)
	}
	return reply, nil
}
