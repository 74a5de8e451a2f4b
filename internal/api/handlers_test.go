package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
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

// scriptedClient answers with queued replies or errors.
type scriptedClient struct {
	replies []string
	errs    []error
}

func (c *scriptedClient) Complete(_ context.Context, _ llm.Request) (string, error) {
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if len(c.replies) == 0 {
		return "", apperr.Malformed("no reply queued", nil)
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r, nil
}

func (c *scriptedClient) Provider() string { return llm.ProviderOpenAI }
func (c *scriptedClient) Close() error     { return nil }

type testEnv struct {
	server *httptest.Server
	store  *store.JSONStore
	client *scriptedClient
}

func newTestEnv(t *testing.T, credential string) *testEnv {
	t.Helper()
	st := store.NewJSONStore(t.TempDir())
	if credential != "" {
		p := store.NewPreferences()
		p.SetCredential(credential)
		require.NoError(t, st.WritePreferences(p))
	}

	client := &scriptedClient{}
	dial := func(context.Context, llm.Config) (llm.Client, error) { return client, nil }
	cs := core.NewChatService(st, core.NewLLMService(dial))

	srv := httptest.NewServer(NewRouter(NewAPIHandler(cs)))
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, store: st, client: client}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

type errorEnvelope struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	resp, data := env.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))
}

func TestPostMessage_RoundTrip(t *testing.T) {
	env := newTestEnv(t, "sk-test")
	env.client.replies = []string{"hello!"}

	resp, data := env.do(t, http.MethodPost, "/api/session/messages", `{"content":"hi"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	var out PostMessageResponse
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, store.Message{Role: store.RoleAssistant, Content: "hello!"}, out.Reply)
	assert.Regexp(t, `^\d{8}_\d{6}$`, out.ID)

	resp, data = env.do(t, http.MethodGet, "/api/session/messages", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var messages messagesResponse
	require.NoError(t, json.Unmarshal(data, &messages))
	assert.Equal(t, out.ID, messages.ID)
	assert.Equal(t, "hi", messages.Title)
	assert.Len(t, messages.Messages, 2)

	assert.Len(t, env.store.ReadArchive(), 1)
}

func TestPostMessage_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		credential string
		body       string
		backendErr error
		wantStatus int
		wantKind   apperr.Kind
		wantCode   int
	}{
		{
			name:       "no credential",
			body:       `{"content":"hi"}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   apperr.KindPrecondition,
		},
		{
			name:       "blank message",
			credential: "sk",
			body:       `{"content":"   "}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   apperr.KindPrecondition,
		},
		{
			name:       "bad body",
			credential: "sk",
			body:       `{"content":`,
			wantStatus: http.StatusBadRequest,
			wantKind:   apperr.KindPrecondition,
		},
		{
			name:       "rejected key",
			credential: "sk",
			body:       `{"content":"hi"}`,
			backendErr: apperr.InvalidCredential("the API key was rejected", nil),
			wantStatus: http.StatusUnauthorized,
			wantKind:   apperr.KindInvalidCredential,
		},
		{
			name:       "rate limited",
			credential: "sk",
			body:       `{"content":"hi"}`,
			backendErr: apperr.RemoteRejected(429, "Rate limit reached", nil),
			wantStatus: http.StatusBadGateway,
			wantKind:   apperr.KindRemoteRejected,
			wantCode:   429,
		},
		{
			name:       "network",
			credential: "sk",
			body:       `{"content":"hi"}`,
			backendErr: apperr.Network("could not reach the chat endpoint", nil),
			wantStatus: http.StatusBadGateway,
			wantKind:   apperr.KindNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.credential)
			env.client.errs = []error{tt.backendErr}

			resp, data := env.do(t, http.MethodPost, "/api/session/messages", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			e := decodeError(t, data)
			assert.Equal(t, string(tt.wantKind), e.Error.Kind)
			assert.NotEmpty(t, e.Error.Message)
			assert.Equal(t, tt.wantCode, e.Error.Code)

			assert.Empty(t, env.store.ReadArchive())
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, "sk-test")
	env.client.replies = []string{"one", "two"}

	_, data := env.do(t, http.MethodPost, "/api/session/messages", `{"content":"first"}`)
	var first PostMessageResponse
	require.NoError(t, json.Unmarshal(data, &first))

	resp, _ := env.do(t, http.MethodPost, "/api/session/new", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, data = env.do(t, http.MethodPost, "/api/session/messages", `{"content":"second"}`)
	var second PostMessageResponse
	require.NoError(t, json.Unmarshal(data, &second))
	require.NotEqual(t, first.ID, second.ID)

	resp, data = env.do(t, http.MethodGet, "/api/conversations?n=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Conversations []core.ConversationSummary `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Conversations, 2)
	assert.Equal(t, second.ID, list.Conversations[0].ID)
	assert.True(t, list.Conversations[0].Current)

	// Unknown ids are accepted and change nothing.
	resp, _ = env.do(t, http.MethodPost, "/api/session/load/19990101_000000", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/session/load/"+first.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, data = env.do(t, http.MethodGet, "/api/status", "")
	var status struct {
		State     string `json:"state"`
		CurrentID string `json:"current_id"`
		Connected bool   `json:"connected"`
	}
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, "saved", status.State)
	assert.Equal(t, first.ID, status.CurrentID)
	assert.True(t, status.Connected)

	resp, _ = env.do(t, http.MethodDelete, "/api/session/current", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	archive := env.store.ReadArchive()
	require.Len(t, archive, 1)
	assert.Equal(t, second.ID, archive[0].ID)
}

func TestListConversations_BadCount(t *testing.T) {
	env := newTestEnv(t, "")
	resp, data := env.do(t, http.MethodGet, "/api/conversations?n=ten", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "precondition", decodeError(t, data).Error.Kind)
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t, "")

	resp, data := env.do(t, http.MethodPut, "/api/preferences/credential", `{"value":"sk-abcdefghijkl"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode, string(data))
	resp, _ = env.do(t, http.MethodPut, "/api/preferences/temperature", `{"value": 7}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPut, "/api/preferences/theme", `{"value": {"accent": "pink"}}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, data = env.do(t, http.MethodGet, "/api/preferences", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var prefs map[string]any
	require.NoError(t, json.Unmarshal(data, &prefs))
	assert.Equal(t, "sk-...ijkl", prefs["credential"])
	assert.Equal(t, 2.0, prefs["temperature"])
	assert.Equal(t, store.DefaultModel, prefs["model"])
	assert.Equal(t, map[string]any{"accent": "pink"}, prefs["theme"])

	saved := env.store.ReadPreferences()
	assert.Equal(t, "sk-abcdefghijkl", saved.Credential())
	assert.Equal(t, store.MaxTemperature, saved.Temperature())

	resp, data = env.do(t, http.MethodPut, "/api/preferences/model", `{"value": 3}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "precondition", decodeError(t, data).Error.Kind)
}

func TestModels(t *testing.T) {
	env := newTestEnv(t, "")
	resp, data := env.do(t, http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Models  []string `json:"models"`
		Current string   `json:"current"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, llm.KnownModels, out.Models)
	assert.Equal(t, store.DefaultModel, out.Current)
}

func TestRedactCredential(t *testing.T) {
	assert.Equal(t, "", RedactCredential(""))
	assert.Equal(t, "*****", RedactCredential("sk-ab"))
	assert.Equal(t, "sk-...7890", RedactCredential("sk-1234567890"))
}
