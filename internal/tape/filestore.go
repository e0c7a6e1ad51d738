package tape

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// tapeDocument is the on-disk representation of a tape. Tapes are
// human-readable YAML files so recordings can be inspected and edited by
// hand.
type tapeDocument struct {
	Name         string        `yaml:"name"`
	Interactions []Interaction `yaml:"interactions"`
}

// FileStore persists tapes as YAML files in a directory, one file per tape.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tape directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the tape directory.
func (s *FileStore) Dir() string { return s.dir }

// path maps a tape name to its file path.
func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".yaml")
}

// Load reads the tape file for name.
func (s *FileStore) Load(_ context.Context, name string) ([]Interaction, error) {
	if !validName(name) {
		return nil, ErrInvalidTapeName
	}

	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrTapeNotFound
		}
		return nil, fmt.Errorf("read tape %q: %w", name, err)
	}

	var doc tapeDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tape %q: %w", name, err)
	}
	return doc.Interactions, nil
}

// Save writes the tape file for name atomically via a temp file rename.
func (s *FileStore) Save(_ context.Context, name string, interactions []Interaction) error {
	if !validName(name) {
		return ErrInvalidTapeName
	}

	data, err := yaml.Marshal(tapeDocument{
		Name:         name,
		Interactions: interactions,
	})
	if err != nil {
		return fmt.Errorf("encode tape %q: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("write tape %q: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write tape %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write tape %q: %w", name, err)
	}

	if err := os.Rename(tmpName, s.path(name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write tape %q: %w", name, err)
	}
	return nil
}

// List returns the names of all tapes in the directory.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list tapes: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" {
			names = append(names, e.Name()[:len(e.Name())-len(ext)])
		}
	}
	return names, nil
}
