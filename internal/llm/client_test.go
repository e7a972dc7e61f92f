package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_OpenRouterMissingKey(t *testing.T) {
	_, err := New(Config{Provider: ProviderOpenRouter})
	require.Error(t, err)

	var llmErr *Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, KindAuthMissing, llmErr.Kind)
	assert.Equal(t, "openrouter", llmErr.Provider)
}

func TestNew_GeminiMissingKey(t *testing.T) {
	_, err := New(Config{Provider: ProviderGemini})
	require.Error(t, err)

	var llmErr *Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, KindAuthMissing, llmErr.Kind)
	assert.Equal(t, "gemini", llmErr.Provider)
}

func TestNew_DefaultsToOpenRouter(t *testing.T) {
	c, err := New(Config{OpenRouterAPIKey: "test-key"})
	require.NoError(t, err)
	require.NotNil(t, c)

	orc, ok := c.(*openRouterClient)
	require.True(t, ok)
	assert.Equal(t, DefaultOpenRouterModel, orc.model)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "bogus"})
	assert.Error(t, err)
}
