package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kartikrastogi18/FitConnect/internal/services"
)

// OpenAICompatBridge calls any OpenAI-compatible /chat/completions endpoint.
// baseURL should include the version prefix, e.g. "https://api.openai.com/v1".
type OpenAICompatBridge struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOpenAICompatBridge(baseURL, apiKey, model string, timeout time.Duration) *OpenAICompatBridge {
	return &OpenAICompatBridge{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (b *OpenAICompatBridge) Complete(ctx context.Context, messages []services.ContextMessage) (string, error) {
	if b.model == "" {
		return "", fmt.Errorf("openai-compat model required")
	}

	var resp oaiChatResponse
	err := postJSON(ctx, b.httpClient, b.baseURL+"/chat/completions", b.apiKey, oaiChatRequest{
		Model:    b.model,
		Messages: toWireMessages(messages),
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("openai-compat request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from openai-compat api")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from openai-compat api")
	}
	return text, nil
}

type oaiChatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
}
