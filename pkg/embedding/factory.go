package embedding

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/config"
)

// New builds the Embedder selected by cfg.Provider.
func New(ctx context.Context, cfg config.AIConfig) (Embedder, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGemini(ctx, cfg.APIKey, cfg.EmbedModel)
	case "openai":
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.EmbedModel)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
