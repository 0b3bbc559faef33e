package upstream

import (
	"context"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const systemPrompt = "You are a helpful assistant."

// Config holds the shared remote API settings. BaseURL is optional and
// exists for tests and compatible gateways.
type Config struct {
	APIKey  string
	BaseURL string
}

func newClient(cfg Config) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Single attempt only; failures surface immediately.
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return openai.NewClient(opts...)
}

// ChatClient is the reply synthesizer adapter: one chat-completion call
// per request, bounded by the configured timeout.
type ChatClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func NewChatClient(cfg Config, model string, timeout time.Duration) *ChatClient {
	return &ChatClient{
		client:  newClient(cfg),
		model:   model,
		timeout: timeout,
	}
}

// Complete sends text as the sole user message and returns the assistant
// reply. Failures are *Error values.
func (c *ChatClient) Complete(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", classify(ServiceChat, err)
	}

	if len(completion.Choices) == 0 {
		return "", &Error{Service: ServiceChat, Kind: KindMalformed}
	}
	reply := strings.TrimSpace(completion.Choices[0].Message.Content)
	if reply == "" {
		return "", &Error{Service: ServiceChat, Kind: KindMalformed}
	}
	return reply, nil
}
