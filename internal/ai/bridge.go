package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/kartikrastogi18/FitConnect/internal/services"
)

type Config struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// NewBridge selects the completion provider named by cfg.Provider. An empty
// provider disables the AI coach; every reply is then the fallback text.
func NewBridge(cfg Config) (services.CompletionBridge, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "none", "disabled":
		return nil, nil
	case "ollama":
		return NewOllamaBridge(cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	case "openai", "openai-compat":
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, fmt.Errorf("AI_BASE_URL is required for provider %q", cfg.Provider)
		}
		return NewOpenAICompatBridge(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
