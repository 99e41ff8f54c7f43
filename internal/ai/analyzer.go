package ai

import (
	"context"
	"errors"
	"fmt"

	"NetSentry/internal/config"

	"github.com/sashabaranov/go-openai"
)

// DigestAnalyzer summarizes alert digests through an OpenAI-compatible
// endpoint. It implements model.Analyzer.
type DigestAnalyzer struct {
	cfg    *config.AIConfig
	client *openai.Client
}

// NewDigestAnalyzer creates an analyzer for the configured endpoint.
func NewDigestAnalyzer(cfg *config.AIConfig) (*DigestAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AI API key is not configured")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)
	return &DigestAnalyzer{cfg: cfg, client: client}, nil
}

// AnalyzeAlerts asks the model for an assessment of the alert digest and
// returns its markdown answer.
func (a *DigestAnalyzer) AnalyzeAlerts(ctx context.Context, input string) (string, error) {
	prompt := fmt.Sprintf(
		"You are a senior network security analyst. "+
			"Review the following alert digest from the NetSentry traffic monitor. "+
			"Summarize the most likely threats, rank them by urgency, and recommend "+
			"concrete next steps for investigation. Keep the answer concise.\n\n"+
			"--- Alert Digest ---\n%s\n--- End of Digest ---", input,
	)

	resp, err := a.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: a.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
		},
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("AI request timeout: %w", err)
		}
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("AI request canceled: %w", err)
		}
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI API returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
