// Package llm wraps the OpenAI-compatible chat completion API used for
// intent routing, SQL generation and conversational replies.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dbsmedya/logops/internal/apperr"
	"github.com/dbsmedya/logops/internal/config"
	"github.com/dbsmedya/logops/internal/logger"
)

// Turn is one prior message in a conversation, role "user" or "assistant".
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompleter is the slice of the OpenAI client the package uses,
// extracted so tests can substitute a fake.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client issues chat completions with the configured model and bounds.
type Client struct {
	api chatCompleter
	cfg config.LLMConfig
	log *logger.Logger
}

// NewClient builds a client from configuration. Returns nil when no API
// key is configured; callers treat a nil client as "LLM unavailable" and
// fall back to pattern matching.
func NewClient(cfg config.LLMConfig, log *logger.Logger) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	if log == nil {
		log = logger.NewDefault()
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api: openai.NewClientWithConfig(apiCfg),
		cfg: cfg,
		log: log,
	}
}

// complete sends one completion request and returns the assistant text.
func (c *Client) complete(ctx context.Context, system string, history []Turn, user string) (string, error) {
	timeout := time.Duration(c.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", apperr.Wrap(apperr.KindTimeout, err, "completion timed out after %s", timeout)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// RouteIntent asks the model to classify a message against the fixed tool
// set. The reply is a single routing line parsed by the router package.
func (c *Client) RouteIntent(ctx context.Context, message string, history []Turn) (string, error) {
	out, err := c.complete(ctx, routingPrompt, history, message)
	if err != nil {
		return "", err
	}
	c.log.Debugf("routing decision: %s", out)
	return out, nil
}

// GenerateSQL asks the model for one SELECT statement answering a natural
// language request. The result still goes through sqlguard before running.
func (c *Client) GenerateSQL(ctx context.Context, request string) (string, error) {
	out, err := c.complete(ctx, sqlPrompt, nil, request)
	if err != nil {
		return "", err
	}
	// Models habitually fence SQL in markdown.
	out = strings.TrimSpace(out)
	out = strings.TrimPrefix(out, "```sql")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out), nil
}

// Reply produces a conversational answer for messages that need no tool.
func (c *Client) Reply(ctx context.Context, message string, history []Turn) (string, error) {
	return c.complete(ctx, conversationPrompt, history, message)
}
