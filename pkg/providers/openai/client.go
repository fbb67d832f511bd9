// Package openai implements the emotion analyzer, question generator, and
// music recommender contracts against the OpenAI chat-completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/emora-ai/emora/pkg/errorsx"
	"github.com/emora-ai/emora/pkg/logging"
	"github.com/emora-ai/emora/pkg/resilience"
)

type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	TimeoutMS int
}

type Client struct {
	cfg    Config
	http   *http.Client
	retry  resilience.Policy
	logger *slog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	timeout := 60 * time.Second
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		retry:  resilience.NewPolicy(2, 200*time.Millisecond),
		logger: logging.NewComponentLogger(slog.Default(), "openai"),
	}
}

// completeJSON runs one chat completion in JSON mode and decodes the model's
// reply into out. Rate limits and transient transport failures are retried
// before the error surfaces to the caller.
func (c *Client) completeJSON(ctx context.Context, system, user string, out any) error {
	payload := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]any{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"response_format": map[string]any{"type": "json_object"},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var content string
	err = c.retry.Do(ctx, func() error {
		reply, err := c.postChat(ctx, body)
		if err != nil {
			if resilience.Retryable(err) {
				c.logger.Warn("openai_transient_error", slog.String("error", err.Error()))
			}
			return err
		}
		content = reply
		return nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(content), out); err != nil {
		c.logger.Warn("openai_malformed_json_reply", slog.String("content", content))
		return errorsx.Wrap(err, errorsx.ReasonValidation)
	}
	return nil
}

// postChat performs a single chat-completions round trip and returns the
// model's message content.
func (c *Client) postChat(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		raw, _ := io.ReadAll(resp.Body)
		return "", errorsx.Wrap(errors.New(string(raw)), errorsx.ReasonRateLimit)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai: status %d: %s", resp.StatusCode, string(raw))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return completion.Choices[0].Message.Content, nil
}
