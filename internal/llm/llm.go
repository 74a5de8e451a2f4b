// Package llm adapts hosted chat-completion APIs to a single Client interface.
package llm

import (
	"context"
	"net/http"
	"strings"

	"gwi.com/pixel-chat/internal/store"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// KnownModels are offered as suggestions; any model name is accepted.
var KnownModels = []string{
	"gpt-3.5-turbo",
	"gpt-4",
	"gpt-4-turbo-preview",
	"gpt-4o-mini",
	"gpt-4o",
	"gemini-1.5-flash-latest",
}

// Request is a single non-streaming completion.
type Request struct {
	Messages    []store.Message
	Model       string
	Temperature float64
	Persona     string
}

// Client sends a completion and returns the assistant text. Errors carry an
// apperr kind: invalid_credential, network, remote_rejected or malformed.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Provider() string
	Close() error
}

type Config struct {
	Provider   string
	Credential string
	Endpoint   string
	HTTPClient *http.Client
}

// Dialer builds a Client; tests substitute their own.
type Dialer func(ctx context.Context, cfg Config) (Client, error)

// New is the default Dialer.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderGemini:
		c, err := NewGeminiClient(ctx, cfg.Credential)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		c, err := NewOpenAIClient(cfg.Credential, cfg.Endpoint, cfg.HTTPClient)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// ProviderFor picks the provider that serves model.
func ProviderFor(model string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gemini") {
		return ProviderGemini
	}
	return ProviderOpenAI
}

// WithPersona prepends a system message carrying persona unless the list
// already starts with a system message. The input slice is not modified.
func WithPersona(messages []store.Message, persona string) []store.Message {
	if (len(messages) > 0 && messages[0].Role == store.RoleSystem) || persona == "" {
		return append([]store.Message(nil), messages...)
	}
	out := make([]store.Message, 0, len(messages)+1)
	out = append(out, store.Message{Role: store.RoleSystem, Content: persona})
	return append(out, messages...)
}
