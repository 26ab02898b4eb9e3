// Package rules manages the free-text trading rules and their win/loss
// statistics, persisted as a flat JSON document in the data directory.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// Store reads and writes the rule statistics document.
// The whole document is small, so every operation loads and saves it
// wholesale; the mutex keeps concurrent handler and cron access ordered.
type Store struct {
	path string
	log  zerolog.Logger
	mu   sync.Mutex
}

// NewStore creates a new rule store backed by the given JSON file
func NewStore(path string, log zerolog.Logger) *Store {
	return &Store{
		path: path,
		log:  log.With().Str("store", "rules").Logger(),
	}
}

// Load reads the document, returning defaults when the file is missing.
// A corrupt file is an error; a missing one is not.
func (s *Store) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Save writes the document wholesale
func (s *Store) Save(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(doc)
}

// Update loads the document, applies fn and saves the result only when fn
// reports a change. This is the audit pass's single write path.
func (s *Store) Update(fn func(doc *Document) (changed bool, err error)) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	changed, err := fn(doc)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := s.saveLocked(doc); err != nil {
			return nil, err
		}
	}

	return doc, nil
}

// Reset deletes the document; the next Load returns defaults
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to reset rule config: %w", err)
	}
	s.log.Warn().Msg("Rule config reset")
	return nil
}

func (s *Store) loadLocked() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return DefaultDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rule config: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rule config: %w", err)
	}
	if doc.RuleStats == nil {
		doc.RuleStats = make(map[string]Stats)
	}

	return &doc, nil
}

func (s *Store) saveLocked(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rule config: %w", err)
	}

	// Write-then-rename so a crash mid-write never leaves a corrupt document
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write rule config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace rule config: %w", err)
	}

	return nil
}
