package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAI embeds through any OpenAI-compatible embeddings endpoint, including
// local servers that ignore the token.
type OpenAI struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

func NewOpenAI(baseURL, token, model string) (*OpenAI, error) {
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("creating openai embedder: %w", err)
	}
	return &OpenAI{
		embedder: embedder,
		logger:   slog.Default().With("component", "openai-embedder"),
	}, nil
}

func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		o.logger.Error("failed to generate embeddings", "count", len(texts), "error", err)
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

var _ Embedder = (*OpenAI)(nil)
