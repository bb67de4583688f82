// Package prefs reads and writes the user's assistant preferences.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/insight-ai/insight-go/internal/schema"
)

// Preferences is the set of user-adjustable assistant settings.
type Preferences struct {
	Muted bool         `yaml:"muted"`
	Voice schema.Voice `yaml:"voice"`
	Speed float64      `yaml:"speed"`
}

// Defaults returns the preferences of a fresh install. Audio starts muted.
func Defaults() Preferences {
	return Preferences{
		Muted: true,
		Voice: schema.VoiceAlloy,
		Speed: 1.0,
	}
}

// VoiceOptions returns the voice settings sent with a completion.
func (p Preferences) VoiceOptions() schema.VoiceOptions {
	return schema.VoiceOptions{Voice: p.Voice, Speed: p.Speed}
}

// Reader is the read side of the preference store.
type Reader interface {
	Load() Preferences
}

// FileStore persists preferences as YAML. Values are re-read from disk on
// every Load and never cached.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns the stored preferences, falling back to defaults for a missing
// file, unreadable file or unset fields.
func (s *FileStore) Load() Preferences {
	p, err := s.read()
	if err != nil {
		return Defaults()
	}
	return p
}

// Save writes p to disk.
func (s *FileStore) Save(p Preferences) error {
	if p.Voice != "" && !p.Voice.Valid() {
		return fmt.Errorf("unknown voice %q", p.Voice)
	}
	if p.Speed != 0 && (p.Speed < schema.MinSpeed || p.Speed > schema.MaxSpeed) {
		return fmt.Errorf("speed must be between %g and %g", schema.MinSpeed, schema.MaxSpeed)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}

// Update applies fn to the current preferences and saves the result.
func (s *FileStore) Update(fn func(*Preferences)) (Preferences, error) {
	p := s.Load()
	fn(&p)
	return p, s.Save(p)
}

func (s *FileStore) read() (Preferences, error) {
	p := Defaults()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return p, err
	}

	var raw struct {
		Muted *bool        `yaml:"muted"`
		Voice schema.Voice `yaml:"voice"`
		Speed float64      `yaml:"speed"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return p, fmt.Errorf("decode preferences: %w", err)
	}

	if raw.Muted != nil {
		p.Muted = *raw.Muted
	}
	if raw.Voice.Valid() {
		p.Voice = raw.Voice
	}
	if raw.Speed >= schema.MinSpeed && raw.Speed <= schema.MaxSpeed {
		p.Speed = raw.Speed
	}
	return p, nil
}

// Static is an in-memory Reader.
type Static Preferences

// Load implements Reader.
func (s Static) Load() Preferences { return Preferences(s) }
