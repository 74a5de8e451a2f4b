package terminal

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/pixel-chat/internal/apperr"
	"gwi.com/pixel-chat/internal/core"
	"gwi.com/pixel-chat/internal/llm"
	"gwi.com/pixel-chat/internal/logger"
	"gwi.com/pixel-chat/internal/store"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type echoClient struct {
	fail error
}

func (c *echoClient) Complete(_ context.Context, req llm.Request) (string, error) {
	if c.fail != nil {
		return "", c.fail
	}
	last := req.Messages[len(req.Messages)-1]
	return "echo: " + last.Content, nil
}

func (c *echoClient) Provider() string { return llm.ProviderOpenAI }
func (c *echoClient) Close() error     { return nil }

func newTestChat(t *testing.T, client *echoClient) (*core.ChatService, *store.JSONStore) {
	t.Helper()
	st := store.NewJSONStore(t.TempDir())
	dial := func(context.Context, llm.Config) (llm.Client, error) { return client, nil }
	return core.NewChatService(st, core.NewLLMService(dial)), st
}

func runScript(t *testing.T, chat *core.ChatService, lines ...string) string {
	t.Helper()
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	require.NoError(t, NewREPL(chat, in, &out, nil).Run(context.Background()))
	return out.String()
}

func TestREPL_ChatAndPersist(t *testing.T) {
	chat, st := newTestChat(t, &echoClient{})

	out := runScript(t, chat,
		"hello there",
		"/set credential sk-test",
		"hello there",
		"/quit",
		"never read",
	)

	assert.Contains(t, out, "No API key yet")
	assert.Contains(t, out, "Oops: no API key configured")
	assert.Contains(t, out, "Saved credential.")
	assert.Contains(t, out, "pixel> echo: hello there")
	assert.Contains(t, out, "Bye bye!")
	assert.NotContains(t, out, "never read")

	archive := st.ReadArchive()
	require.Len(t, archive, 1)
	assert.Len(t, archive[0].Messages, 2)
	assert.Equal(t, "sk-test", st.ReadPreferences().Credential())
}

func TestREPL_HistoryLoadDelete(t *testing.T) {
	chat, st := newTestChat(t, &echoClient{})
	require.NoError(t, chat.UpdatePreference(store.KeyCredential, "sk"))
	_, err := chat.Submit(context.Background(), "first chat")
	require.NoError(t, err)
	id := chat.Status().CurrentID

	out := runScript(t, chat,
		"/new",
		"/history",
		"/load nope",
		"/load "+id,
		"/delete",
		"/history",
	)

	assert.Contains(t, out, "Started a new chat")
	assert.Contains(t, out, "  "+id+"  first chat  (2 messages)")
	assert.Contains(t, out, "No saved chat with id nope.")
	assert.Contains(t, out, "you> first chat")
	assert.Contains(t, out, "pixel> echo: first chat")
	assert.Contains(t, out, "Chat deleted.")
	assert.Contains(t, out, "No saved chats yet.")
	assert.Empty(t, st.ReadArchive())
}

func TestREPL_SetKeepsSpacesAndClears(t *testing.T) {
	chat, st := newTestChat(t, &echoClient{})

	out := runScript(t, chat,
		"/set persona_system_prompt You are terse.  Really.",
		"/set temperature hot",
		"/set temperature 1.5",
		"/set temperature",
	)

	assert.Contains(t, out, "Saved persona_system_prompt.")
	assert.Contains(t, out, "Oops:")
	assert.Contains(t, out, "Cleared temperature.")

	prefs := st.ReadPreferences()
	assert.Equal(t, "You are terse.  Really.", prefs.PersonaPrompt())
	assert.Equal(t, store.DefaultTemperature, prefs.Temperature())
}

func TestREPL_BackendErrorKeepsMessage(t *testing.T) {
	client := &echoClient{fail: apperr.Network("could not reach the chat endpoint", nil)}
	chat, st := newTestChat(t, client)
	require.NoError(t, chat.UpdatePreference(store.KeyCredential, "sk"))

	out := runScript(t, chat, "anyone there?", "/status")

	assert.Contains(t, out, "Error (network): could not reach the chat endpoint")
	assert.Contains(t, out, "[unsaved]")
	assert.Len(t, chat.CurrentMessages(), 1)
	assert.Empty(t, st.ReadArchive())
}

func TestREPL_UnknownCommandAndUsage(t *testing.T) {
	chat, _ := newTestChat(t, &echoClient{})

	out := runScript(t, chat, "/dance", "/load", "/history many", "/set", "/help")

	assert.Contains(t, out, "Unknown command /dance")
	assert.Contains(t, out, "Usage: /load <id>")
	assert.Contains(t, out, "Usage: /history [n]")
	assert.Contains(t, out, "Usage: /set <key> [value]")
	assert.Contains(t, out, "list recent chats")
}

func TestPrintHistory(t *testing.T) {
	var out bytes.Buffer
	PrintHistory(&out, []core.ConversationSummary{
		{ID: "20240502_090000", Title: "second", MessageCount: 4, Current: true},
		{ID: "20240501_101500", Title: "first", MessageCount: 2},
	})
	assert.Equal(t,
		"* 20240502_090000  second  (4 messages)\n  20240501_101500  first  (2 messages)\n",
		out.String())
}
