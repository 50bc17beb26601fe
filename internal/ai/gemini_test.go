package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToGeminiContents_ReshapesRoles(t *testing.T) {
	contents := toGeminiContents([]Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello!"},
		{Role: "tool", Content: "ignored"},
		{Role: RoleUser, Content: "question"},
	})
	require.Len(t, contents, 4)
	require.Equal(t, "user", contents[0].Role)
	require.Equal(t, "System Instructions: persona", contents[0].Parts[0].Text)
	require.Equal(t, "user", contents[1].Role)
	require.Equal(t, "model", contents[2].Role)
	require.Equal(t, "hello!", contents[2].Parts[0].Text)
	require.Equal(t, "user", contents[3].Role)
}

func TestToGeminiConfig(t *testing.T) {
	cfg := toGeminiConfig(GenerateParams{MaxTokens: 1000, Temperature: 0.7, TopP: 0.9, TopK: 30})
	require.EqualValues(t, 1000, cfg.MaxOutputTokens)
	require.InDelta(t, 0.7, *cfg.Temperature, 1e-6)
	require.InDelta(t, 0.9, *cfg.TopP, 1e-6)
	require.InDelta(t, 30, *cfg.TopK, 1e-6)

	empty := toGeminiConfig(GenerateParams{})
	require.Nil(t, empty.Temperature)
	require.Nil(t, empty.TopK)
}

func TestGemini_MissingKeyIsUnavailable(t *testing.T) {
	p, err := NewProvider("gemini", map[string]interface{}{})
	require.NoError(t, err)
	_, err = p.Chat(context.Background(), "gemini-2.0-flash", []Message{{Role: RoleUser, Content: "hi"}}, GenerateParams{})
	require.True(t, errors.Is(err, ErrUnavailable))
	_, err = p.Embed(context.Background(), "text-embedding-004", "hi", TaskRetrievalQuery)
	require.True(t, errors.Is(err, ErrUnavailable))
}
