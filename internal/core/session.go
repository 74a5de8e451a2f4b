package core

import (
	"strings"

	"github.com/rivo/uniseg"

	"gwi.com/pixel-chat/internal/store"
)

const (
	titleMaxGraphemes = 40
	emptyTitle        = "Empty conversation"
)

type State int

const (
	StateEmpty State = iota
	// StateUnsaved has messages but no id yet.
	StateUnsaved
	StateSaved
	// StateDirty is a saved session mutated since the last flush.
	StateDirty
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateUnsaved:
		return "unsaved"
	case StateSaved:
		return "saved"
	case StateDirty:
		return "dirty"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is the live conversation. Every mutation marks it dirty; Flush
// clears the flag once the archive holds the same content.
type Session struct {
	messages  []store.Message
	currentID string
	dirty     bool
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) NewMessage(role store.Role, content string) store.Message {
	m := store.Message{Role: role, Content: content}
	s.messages = append(s.messages, m)
	s.dirty = true
	return m
}

func (s *Session) Reset() {
	s.messages = nil
	s.currentID = ""
	s.dirty = true
}

// Adopt replaces the session with a copy of an archived conversation.
func (s *Session) Adopt(c store.Conversation) {
	s.messages = append([]store.Message(nil), c.Messages...)
	s.currentID = c.ID
	s.dirty = true
}

func (s *Session) SetCurrentID(id string) {
	s.currentID = id
	s.dirty = true
}

func (s *Session) Flush() {
	s.dirty = false
}

func (s *Session) Messages() []store.Message {
	return append([]store.Message{}, s.messages...)
}

func (s *Session) Len() int { return len(s.messages) }

func (s *Session) CurrentID() string { return s.currentID }

func (s *Session) Dirty() bool { return s.dirty }

func (s *Session) State() State {
	switch {
	case len(s.messages) == 0 && s.currentID == "":
		return StateEmpty
	case s.currentID == "":
		return StateUnsaved
	case s.dirty:
		return StateDirty
	default:
		return StateSaved
	}
}

func (s *Session) Title() string {
	return Title(s.messages)
}

// Title is the first user message, trimmed and cut to 40 grapheme clusters.
func Title(messages []store.Message) string {
	for _, m := range messages {
		if m.Role != store.RoleUser {
			continue
		}
		text := strings.TrimSpace(m.Content)
		if cut, truncated := truncateGraphemes(text, titleMaxGraphemes); truncated {
			return cut + "..."
		}
		return text
	}
	return emptyTitle
}

func truncateGraphemes(s string, limit int) (string, bool) {
	g := uniseg.NewGraphemes(s)
	count, end := 0, 0
	for g.Next() {
		if count == limit {
			return s[:end], true
		}
		_, end = g.Positions()
		count++
	}
	return s, false
}
