package core

import (
	"context"

	"gwi.com/pixel-chat/internal/apperr"
	"gwi.com/pixel-chat/internal/llm"
	"gwi.com/pixel-chat/internal/logger"
	"gwi.com/pixel-chat/internal/store"
)

type clientKey struct {
	provider   string
	credential string
	endpoint   string
}

// LLMService owns the provider client. One client is kept per
// (provider, credential, endpoint); a change of any of them replaces it.
type LLMService struct {
	dial   llm.Dialer
	client llm.Client
	key    clientKey
}

// NewLLMService uses llm.New when dial is nil.
func NewLLMService(dial llm.Dialer) *LLMService {
	if dial == nil {
		dial = llm.New
	}
	return &LLMService{dial: dial}
}

// Complete sends messages with the model, temperature and persona from prefs
// and returns the assistant reply.
func (s *LLMService) Complete(ctx context.Context, messages []store.Message, prefs *store.Preferences) (string, error) {
	if !prefs.HasCredential() {
		return "", apperr.Precondition("no API key configured")
	}

	key := clientKey{
		provider:   llm.ProviderFor(prefs.Model()),
		credential: prefs.Credential(),
		endpoint:   prefs.Endpoint(),
	}
	client, err := s.clientFor(ctx, key)
	if err != nil {
		return "", err
	}

	reply, err := client.Complete(ctx, llm.Request{
		Messages:    messages,
		Model:       prefs.Model(),
		Temperature: prefs.Temperature(),
		Persona:     prefs.PersonaPrompt(),
	})
	if err != nil {
		if apperr.Is(err, apperr.KindInvalidCredential) {
			s.Discard()
		}
		return "", err
	}
	return reply, nil
}

func (s *LLMService) clientFor(ctx context.Context, key clientKey) (llm.Client, error) {
	if s.client != nil && s.key == key {
		return s.client, nil
	}
	s.Discard()

	client, err := s.dial(ctx, llm.Config{
		Provider:   key.provider,
		Credential: key.credential,
		Endpoint:   key.endpoint,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Backend client created", "provider", key.provider, "endpoint", key.endpoint)
	s.client = client
	s.key = key
	return client, nil
}

// Connected reports whether a client is cached.
func (s *LLMService) Connected() bool {
	return s.client != nil
}

// Discard closes and forgets the cached client.
func (s *LLMService) Discard() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		logger.Warn("Error closing backend client", "error", err)
	}
	s.client = nil
	s.key = clientKey{}
}

func (s *LLMService) Close() {
	s.Discard()
}
