package brain

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultOpenAIModel = openai.GPT4oMini

// OpenAIProvider talks to any OpenAI-compatible chat completion endpoint.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, baseURL, model string) (*OpenAIProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNotConfigured
	}
	config := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		config.BaseURL = baseURL
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(config), model: model}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) StartConversation(_ context.Context, instruction string, history []Message) (Conversation, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: instruction})
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	return &openAIConversation{provider: p, instruction: instruction, messages: msgs}, nil
}

type openAIConversation struct {
	provider    *OpenAIProvider
	instruction string
	messages    []openai.ChatCompletionMessage
}

func (c *openAIConversation) Instruction() string { return c.instruction }

func (c *openAIConversation) Send(ctx context.Context, text string) (string, error) {
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}
	req := openai.ChatCompletionRequest{
		Model:    c.provider.model,
		Messages: append(append([]openai.ChatCompletionMessage(nil), c.messages...), user),
	}

	resp, err := c.provider.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", upstream("openai", openAIStatus(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", upstream("openai", 0, ErrEmptyReply)
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", upstream("openai", 0, ErrEmptyReply)
	}

	// History only grows on success, matching a chat session that drops
	// failed exchanges.
	c.messages = append(c.messages, user, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: reply,
	})
	return reply, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
