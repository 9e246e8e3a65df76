package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("", "gpt-4o-mini")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestNewClientDefaultsModel(t *testing.T) {
	client, err := NewClient("dummy-key", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, client.ModelName())
}

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder, err := NewEmbedder("dummy-key",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)
	require.NoError(t, err)

	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.Dimension())
}
