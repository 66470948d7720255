package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
)

// OpenAICompleter calls the chat completions API. One client is kept per
// API key.
type OpenAICompleter struct {
	baseURL string
	mu      sync.RWMutex
	clients map[string]*openai.Client
}

func NewOpenAICompleter(baseURL string) *OpenAICompleter {
	return &OpenAICompleter{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		clients: make(map[string]*openai.Client),
	}
}

func (c *OpenAICompleter) client(apiKey string) *openai.Client {
	c.mu.RLock()
	client, ok := c.clients[apiKey]
	c.mu.RUnlock()
	if ok {
		return client
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[apiKey]; ok {
		return client
	}
	cfg := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	client = openai.NewClientWithConfig(cfg)
	c.clients[apiKey] = client
	return client
}

func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	resp, err := c.client(req.APIKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", providerError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Kind: KindEmpty}
	}
	return resp.Choices[0].Message.Content, nil
}

func providerError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ProviderError{Kind: KindTimeout, Err: err}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Kind: KindForStatus(apiErr.HTTPStatusCode), Status: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{Kind: KindForStatus(reqErr.HTTPStatusCode), Status: reqErr.HTTPStatusCode, Err: err}
	}
	return &ProviderError{Kind: KindUnavailable, Err: err}
}
