package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"gwi.com/pixel-chat/internal/apperr"
	"gwi.com/pixel-chat/internal/llm"
	"gwi.com/pixel-chat/internal/logger"
	"gwi.com/pixel-chat/internal/store"
)

// Version is reported by Status. Overridden at build time.
var Version = "dev"

type ConversationSummary struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	CreatedAt        time.Time `json:"created_at"`
	MessageCount     int       `json:"message_count"`
	UserMessageCount int       `json:"user_message_count"`
	Current          bool      `json:"current"`
}

type Status struct {
	Connected     bool    `json:"connected"`
	HasCredential bool    `json:"has_credential"`
	State         State   `json:"state"`
	CurrentID     string  `json:"current_id,omitempty"`
	Title         string  `json:"title"`
	Model         string  `json:"model"`
	Provider      string  `json:"provider"`
	Temperature   float64 `json:"temperature"`
	Conversations int     `json:"conversations"`
	Version       string  `json:"version"`
}

// ChatService ties the store, the archive, the live session and the backend
// together. All methods are safe for concurrent use; Submit holds the lock
// for the whole backend round trip.
type ChatService struct {
	mu        sync.Mutex
	store     store.Store
	archive   *Archive
	prefs     *store.Preferences
	overrides map[string]string
	session   *Session
	llm       *LLMService
	now       func() time.Time
}

// NewChatService loads the archive and preferences from st.
func NewChatService(st store.Store, llmService *LLMService) *ChatService {
	if llmService == nil {
		llmService = NewLLMService(nil)
	}
	s := &ChatService{
		store:     st,
		archive:   NewArchive(st.ReadArchive()),
		prefs:     st.ReadPreferences(),
		overrides: make(map[string]string),
		session:   NewSession(),
		llm:       llmService,
		now:       time.Now,
	}
	logger.Info("Chat service ready", "conversations", s.archive.Len(), "model", s.prefs.Model())
	return s
}

// ApplyOverrides layers start-up values (from the environment) over the stored
// preferences. They are never written; a later UpdatePreference of the same
// key replaces them.
func (s *ChatService) ApplyOverrides(values map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range values {
		if v == "" {
			continue
		}
		if err := s.prefs.Clone().Set(k, v); err != nil {
			logger.Warn("Ignoring invalid override", "key", k, "error", err)
			continue
		}
		s.overrides[k] = v
		logger.Debug("Preference overridden from environment", "key", k)
	}
}

func (s *ChatService) effectivePreferences() *store.Preferences {
	p := s.prefs.Clone()
	for k, v := range s.overrides {
		_ = p.Set(k, v)
	}
	return p
}

// Submit sends text as a user turn and returns the assistant reply. On a
// backend error the user turn stays in the session and nothing is written.
// When the reply arrives but the archive cannot be written, the reply is
// returned together with the store error.
func (s *ChatService) Submit(ctx context.Context, text string) (store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return store.Message{}, apperr.Precondition("message is empty")
	}
	prefs := s.effectivePreferences()
	if !prefs.HasCredential() {
		return store.Message{}, apperr.Precondition("no API key configured; set the credential preference first")
	}

	s.session.NewMessage(store.RoleUser, text)

	reply, err := s.llm.Complete(ctx, s.session.Messages(), prefs)
	if err != nil {
		logger.Warn("Submit failed", "kind", apperr.KindOf(err), "error", err)
		return store.Message{}, err
	}
	assistant := s.session.NewMessage(store.RoleAssistant, reply)

	now := s.now()
	if s.session.CurrentID() == "" {
		s.session.SetCurrentID(newConversationID(now, s.archive.Has))
	}
	s.archive.Upsert(store.Conversation{
		ID:        s.session.CurrentID(),
		CreatedAt: store.NewTimestamp(now.UTC()),
		Messages:  s.session.Messages(),
	})

	if err := s.store.WriteArchive(s.archive.All()); err != nil {
		logger.Error("Failed to save conversation", "id", s.session.CurrentID(), "error", err)
		return assistant, err
	}
	s.session.Flush()
	logger.Debug("Conversation saved", "id", s.session.CurrentID(), "messages", s.session.Len())
	return assistant, nil
}

// NewSession starts an empty session. Nothing on disk changes.
func (s *ChatService) NewSession() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.Reset()
	s.session.Flush()
}

// LoadSession makes the archived conversation id the live session. It reports
// false and leaves the session alone when id is unknown.
func (s *ChatService) LoadSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.archive.Load(id)
	if !ok {
		logger.Debug("Conversation not found", "id", id)
		return false
	}
	s.session.Adopt(conv)
	s.session.Flush()
	return true
}

// DeleteCurrent drops the live conversation from the archive, resets the
// session and writes the archive.
func (s *ChatService) DeleteCurrent() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id := s.session.CurrentID(); id != "" {
		s.archive.Remove(id)
		logger.Info("Conversation deleted", "id", id)
	}
	s.session.Reset()
	s.session.Flush()

	return s.store.WriteArchive(s.archive.All())
}

// UpdatePreference sets key to value and writes the preferences once.
// Changing the credential or endpoint drops the cached backend client.
func (s *ChatService) UpdatePreference(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key = strings.TrimSpace(key)
	if err := s.prefs.Set(key, value); err != nil {
		return err
	}
	delete(s.overrides, key)

	if key == store.KeyCredential || key == store.KeyEndpoint {
		s.llm.Discard()
	}
	return s.store.WritePreferences(s.prefs)
}

// ListRecent summarizes up to n conversations, newest first.
func (s *ChatService) ListRecent(n int) []ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	recent := s.archive.Recent(n)
	out := make([]ConversationSummary, 0, len(recent))
	for _, c := range recent {
		users := 0
		for _, m := range c.Messages {
			if m.Role == store.RoleUser {
				users++
			}
		}
		out = append(out, ConversationSummary{
			ID:               c.ID,
			Title:            Title(c.Messages),
			CreatedAt:        c.CreatedAt.Time,
			MessageCount:     len(c.Messages),
			UserMessageCount: users,
			Current:          c.ID == s.session.CurrentID(),
		})
	}
	return out
}

func (s *ChatService) CurrentMessages() []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.session.Messages()
}

func (s *ChatService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs := s.effectivePreferences()
	return Status{
		Connected:     s.llm.Connected(),
		HasCredential: prefs.HasCredential(),
		State:         s.session.State(),
		CurrentID:     s.session.CurrentID(),
		Title:         s.session.Title(),
		Model:         prefs.Model(),
		Provider:      llm.ProviderFor(prefs.Model()),
		Temperature:   prefs.Temperature(),
		Conversations: s.archive.Len(),
		Version:       Version,
	}
}

// Preferences returns a copy of the effective preferences.
func (s *ChatService) Preferences() *store.Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.effectivePreferences()
}

func (s *ChatService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.llm.Close()
	return s.store.Close()
}
