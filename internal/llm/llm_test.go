package llm

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/pixel-chat/internal/apperr"
	"gwi.com/pixel-chat/internal/store"
)

func TestProviderFor(t *testing.T) {
	assert.Equal(t, ProviderOpenAI, ProviderFor("gpt-3.5-turbo"))
	assert.Equal(t, ProviderOpenAI, ProviderFor(""))
	assert.Equal(t, ProviderGemini, ProviderFor("gemini-1.5-flash-latest"))
	assert.Equal(t, ProviderGemini, ProviderFor(" Gemini-Pro"))
}

func TestWithPersona(t *testing.T) {
	user := store.Message{Role: store.RoleUser, Content: "hi"}
	sys := store.Message{Role: store.RoleSystem, Content: "custom"}

	t.Run("prepends once", func(t *testing.T) {
		in := []store.Message{user}
		out := WithPersona(in, "persona")
		assert.Equal(t, []store.Message{{Role: store.RoleSystem, Content: "persona"}, user}, out)
		assert.Equal(t, []store.Message{user}, in)
	})

	t.Run("keeps existing system message", func(t *testing.T) {
		out := WithPersona([]store.Message{sys, user}, "persona")
		assert.Equal(t, []store.Message{sys, user}, out)
	})

	t.Run("empty list", func(t *testing.T) {
		out := WithPersona(nil, "persona")
		assert.Equal(t, []store.Message{{Role: store.RoleSystem, Content: "persona"}}, out)
	})

	t.Run("output has exactly one leading system message", func(t *testing.T) {
		histories := [][]store.Message{
			{user},
			{user, {Role: store.RoleAssistant, Content: "a"}, user},
			{sys, user},
		}
		for _, h := range histories {
			out := WithPersona(h, "persona")
			require.NotEmpty(t, out)
			assert.Equal(t, store.RoleSystem, out[0].Role)
			count := 0
			for _, m := range out {
				if m.Role == store.RoleSystem {
					count++
				}
			}
			assert.Equal(t, 1, count)
		}
	})
}

func TestToGeminiContents(t *testing.T) {
	system, history, last, err := toGeminiContents([]store.Message{
		{Role: store.RoleSystem, Content: "persona"},
		{Role: store.RoleUser, Content: "a"},
		{Role: store.RoleAssistant, Content: "b"},
		{Role: store.RoleUser, Content: "c"},
	})
	require.NoError(t, err)

	assert.Equal(t, "persona", system)
	assert.Equal(t, []*genai.Content{
		{Role: "user", Parts: []genai.Part{genai.Text("a")}},
		{Role: "model", Parts: []genai.Part{genai.Text("b")}},
	}, history)
	assert.Equal(t, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text("c")}}, last)
}

func TestToGeminiContents_LastMessageMustBeUser(t *testing.T) {
	_, _, _, err := toGeminiContents([]store.Message{
		{Role: store.RoleUser, Content: "a"},
		{Role: store.RoleAssistant, Content: "b"},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindPrecondition, apperr.KindOf(err))

	_, _, _, err = toGeminiContents(nil)
	assert.Equal(t, apperr.KindPrecondition, apperr.KindOf(err))
}

func TestNew_SelectsProvider(t *testing.T) {
	c, err := New(context.Background(), Config{Provider: ProviderOpenAI, Credential: "sk", Endpoint: "http://localhost/v1/"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, c.Provider())
	assert.NoError(t, c.Close())

	_, err = New(context.Background(), Config{Provider: ProviderGemini})
	assert.Equal(t, apperr.KindPrecondition, apperr.KindOf(err))
}
