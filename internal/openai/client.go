// Package openai is the generative backend used for classification and reply
// drafting. Azure OpenAI is tried first when configured, then the OpenAI platform.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mailpipe/internal/config"

	"github.com/sashabaranov/go-openai"
)

// ErrEmptyCompletion is returned when the provider answers without any choice
var ErrEmptyCompletion = errors.New("completion returned no choices")

type provider struct {
	name  string
	api   *openai.Client
	model string
}

// Client sends prompts down an ordered chain of providers
type Client struct {
	providers []provider
}

// NewClient builds the provider chain from configuration
func NewClient(cfg *config.Config) (*Client, error) {
	client := &Client{}

	if cfg.UseAzureOpenAI() {
		azureConfig := openai.DefaultAzureConfig(cfg.AzureOpenAIKey, cfg.AzureOpenAIEndpoint)
		client.providers = append(client.providers, provider{
			name:  "Azure OpenAI",
			api:   openai.NewClientWithConfig(azureConfig),
			model: cfg.AzureOpenAIGPTDeployment,
		})
		fmt.Printf("[OPENAI_CLIENT] Primary provider: Azure OpenAI (endpoint: %s)\n", cfg.AzureOpenAIEndpoint)
	}

	if cfg.HasOpenAIFallback() {
		platformConfig := openai.DefaultConfig(cfg.OpenAIKey)
		if cfg.OpenAIBaseURL != "" {
			platformConfig.BaseURL = cfg.OpenAIBaseURL
		}
		client.providers = append(client.providers, provider{
			name:  "OpenAI",
			api:   openai.NewClientWithConfig(platformConfig),
			model: openai.GPT4oMini,
		})
		fmt.Printf("[OPENAI_CLIENT] OpenAI provider at position %d\n", len(client.providers))
	}

	if len(client.providers) == 0 {
		return nil, fmt.Errorf("no OpenAI provider configured: set AZURE_OPENAI_ENDPOINT + AZURE_OPENAI_KEY or OPENAI_API_KEY")
	}
	return client, nil
}

// Providers lists provider names in the order they are tried
func (c *Client) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.name
	}
	return names
}

// Model is the model or deployment of the first provider
func (c *Client) Model() string {
	return c.providers[0].model
}

// Complete sends one system and one user message and returns the trimmed answer
// of the first provider that succeeds. Temperature is zero so identical prompts
// classify the same way.
func (c *Client) Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}

	var errs []error
	for i, p := range c.providers {
		answer, err := p.complete(ctx, messages, maxTokens)
		if err == nil {
			if i > 0 {
				fmt.Printf("[OPENAI_CLIENT] Fallback to %s succeeded\n", p.name)
			}
			return answer, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		if ctx.Err() != nil {
			break
		}
		if i < len(c.providers)-1 {
			fmt.Printf("[OPENAI_CLIENT] %s failed, trying next provider: %v\n", p.name, err)
		}
	}
	return "", errors.Join(errs...)
}

func (p provider) complete(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int) (string, error) {
	resp, err := p.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
