package embedding

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), config.AIConfig{Provider: "cohere"})
	assert.Error(t, err)
}

func TestNewGemini_RequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), "", "")
	assert.Error(t, err)
}

func TestOpenAI_EmptyInput(t *testing.T) {
	e, err := NewOpenAI("http://127.0.0.1:1/v1", "", "nomic-embed-text")
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}
