package core

import (
	"gwi.com/pixel-chat/internal/logger"
	"gwi.com/pixel-chat/internal/store"
)

// Archive is the in-memory, insertion-ordered set of saved conversations.
// Ids are unique; Upsert keeps an existing entry's slot and creation time.
type Archive struct {
	conversations []store.Conversation
}

// NewArchive builds an Archive from stored records. Entries without an id are
// dropped and a repeated id replaces the earlier entry in place.
func NewArchive(conversations []store.Conversation) *Archive {
	a := &Archive{conversations: make([]store.Conversation, 0, len(conversations))}
	for _, c := range conversations {
		if c.ID == "" {
			logger.Warn("Dropping archived conversation without an id", "messages", len(c.Messages))
			continue
		}
		if a.Has(c.ID) {
			logger.Warn("Archive contains a duplicate conversation id", "id", c.ID)
		}
		a.Upsert(c)
	}
	return a
}

func (a *Archive) index(id string) int {
	for i := range a.conversations {
		if a.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

func (a *Archive) Upsert(c store.Conversation) {
	c = c.Clone()
	if i := a.index(c.ID); i >= 0 {
		if !a.conversations[i].CreatedAt.IsZero() {
			c.CreatedAt = a.conversations[i].CreatedAt
		}
		a.conversations[i] = c
		return
	}
	a.conversations = append(a.conversations, c)
}

// Remove reports whether an entry was dropped.
func (a *Archive) Remove(id string) bool {
	i := a.index(id)
	if i < 0 {
		return false
	}
	a.conversations = append(a.conversations[:i], a.conversations[i+1:]...)
	return true
}

func (a *Archive) Load(id string) (store.Conversation, bool) {
	i := a.index(id)
	if i < 0 {
		return store.Conversation{}, false
	}
	return a.conversations[i].Clone(), true
}

func (a *Archive) Has(id string) bool {
	return a.index(id) >= 0
}

func (a *Archive) Len() int {
	return len(a.conversations)
}

// Recent returns up to n entries, newest first.
func (a *Archive) Recent(n int) []store.Conversation {
	if n <= 0 {
		return []store.Conversation{}
	}
	if n > len(a.conversations) {
		n = len(a.conversations)
	}
	out := make([]store.Conversation, 0, n)
	for i := len(a.conversations) - 1; i >= len(a.conversations)-n; i-- {
		out = append(out, a.conversations[i].Clone())
	}
	return out
}

// All returns every entry in archive order.
func (a *Archive) All() []store.Conversation {
	out := make([]store.Conversation, len(a.conversations))
	for i, c := range a.conversations {
		out[i] = c.Clone()
	}
	return out
}
