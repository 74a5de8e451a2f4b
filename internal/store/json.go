package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gwi.com/pixel-chat/internal/apperr"
	"gwi.com/pixel-chat/internal/logger"
)

const (
	ArchiveFileName     = "conversations.json"
	PreferencesFileName = "preferences.json"
)

// renameFile is swapped in tests to simulate a crash before the final rename.
var renameFile = os.Rename

// JSONStore keeps conversations.json and preferences.json in one directory.
type JSONStore struct {
	dir string
}

func NewJSONStore(dir string) *JSONStore {
	if dir == "" {
		dir = "."
	}
	return &JSONStore{dir: dir}
}

func (s *JSONStore) ArchivePath() string {
	return filepath.Join(s.dir, ArchiveFileName)
}

func (s *JSONStore) PreferencesPath() string {
	return filepath.Join(s.dir, PreferencesFileName)
}

func (s *JSONStore) ReadArchive() []Conversation {
	data, ok := readRecord(s.ArchivePath())
	if !ok {
		return []Conversation{}
	}

	var conversations []Conversation
	if err := json.Unmarshal(data, &conversations); err != nil {
		logger.Warn("Archive is unparseable, starting empty", "path", s.ArchivePath(), "error", apperr.Parse("invalid archive", err))
		keepUnparseable(s.ArchivePath(), data)
		return []Conversation{}
	}
	if conversations == nil {
		conversations = []Conversation{}
	}
	logger.Debug("Archive loaded", "path", s.ArchivePath(), "conversations", len(conversations))
	return conversations
}

func (s *JSONStore) WriteArchive(conversations []Conversation) error {
	if conversations == nil {
		conversations = []Conversation{}
	}
	if err := writeJSONAtomic(s.ArchivePath(), conversations); err != nil {
		return apperr.Store("failed to write conversation archive", err)
	}
	logger.Debug("Archive written", "path", s.ArchivePath(), "conversations", len(conversations))
	return nil
}

func (s *JSONStore) ReadPreferences() *Preferences {
	data, ok := readRecord(s.PreferencesPath())
	if !ok {
		return NewPreferences()
	}

	p := NewPreferences()
	if err := json.Unmarshal(data, p); err != nil {
		logger.Warn("Preferences are unparseable, using defaults", "path", s.PreferencesPath(), "error", apperr.Parse("invalid preferences", err))
		return NewPreferences()
	}
	return p
}

func (s *JSONStore) WritePreferences(p *Preferences) error {
	if err := writeJSONAtomic(s.PreferencesPath(), p); err != nil {
		return apperr.Store("failed to write preferences", err)
	}
	logger.Debug("Preferences written", "path", s.PreferencesPath(), "keys", p.Keys())
	return nil
}

func (s *JSONStore) Close() error { return nil }

// readRecord returns the file contents, or false when the file is absent,
// empty or unreadable.
func readRecord(path string) ([]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Failed to read record, using defaults", "path", path, "error", err)
		}
		return nil, false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false
	}
	return data, true
}

// keepUnparseable saves a copy of a corrupt archive next to it, since the
// next successful write replaces the original.
func keepUnparseable(path string, data []byte) {
	backup := path + ".bad"
	if err := writeFileAtomic(backup, data, 0o600); err != nil {
		logger.Warn("Failed to keep a copy of the unparseable archive", "path", backup, "error", err)
		return
	}
	logger.Info("Kept a copy of the unparseable archive", "path", backup)
}

func writeJSONAtomic(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal json for %s: %w", path, err)
	}
	return writeFileAtomic(path, buf.Bytes(), 0o600)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure dir for %s: %w", path, err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file %s: %w", tmp, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp file %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temp file %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file %s: %w", tmp, err)
	}
	if err := renameFile(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	return nil
}
