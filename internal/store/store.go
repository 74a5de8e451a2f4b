// Package store persists the conversation archive and the preferences record.
//
// Reads never fail: a missing, empty or unparseable record yields an empty
// archive or default preferences. Writes replace the whole record atomically,
// so a reader always observes a complete prior version.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gwi.com/pixel-chat/internal/apperr"
)

// Store is the durable side of a chat: one archive and one preferences record.
type Store interface {
	ReadArchive() []Conversation
	WriteArchive(conversations []Conversation) error
	ReadPreferences() *Preferences
	WritePreferences(p *Preferences) error
	Close() error
}

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Open returns the store for backend rooted at dir, creating dir if needed.
func Open(backend, dir string) (Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, apperr.Store("cannot create data directory", err)
	}

	switch strings.ToLower(backend) {
	case "", BackendJSON:
		return NewJSONStore(dir), nil
	case BackendSQLite:
		s, err := NewSQLiteStore(filepath.Join(dir, DefaultSQLiteFileName))
		if err != nil {
			return nil, apperr.Store("cannot open database", err)
		}
		return s, nil
	}
	return nil, apperr.Precondition(fmt.Sprintf("unknown storage backend %q", backend))
}
