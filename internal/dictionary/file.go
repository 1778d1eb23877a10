package dictionary

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileSchema is the YAML layout of a dictionary file: a map from user ID to
// entry list, plus an optional shared list applied to every user.
type fileSchema struct {
	Shared []Entry            `yaml:"shared"`
	Users  map[string][]Entry `yaml:"users"`
}

// FileProvider implements [Provider] backed by a single YAML file. The file
// is parsed once on construction; call [FileProvider.Reload] to pick up
// edits. Safe for concurrent use.
type FileProvider struct {
	path string

	mu   sync.RWMutex
	data fileSchema
}

var _ Provider = (*FileProvider)(nil)

// NewFileProvider parses the dictionary file at path.
func NewFileProvider(path string) (*FileProvider, error) {
	p := &FileProvider{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the dictionary file from disk.
func (p *FileProvider) Reload() error {
	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("dictionary: open %q: %w", p.path, err)
	}
	defer f.Close()

	data, err := parse(f)
	if err != nil {
		return fmt.Errorf("dictionary: parse %q: %w", p.path, err)
	}

	p.mu.Lock()
	p.data = data
	p.mu.Unlock()
	return nil
}

// Load returns the shared entries followed by the user-specific ones.
// Unknown users receive only the shared list.
func (p *FileProvider) Load(_ context.Context, userID string) ([]Entry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Entry, 0, len(p.data.Shared)+len(p.data.Users[userID]))
	out = append(out, p.data.Shared...)
	out = append(out, p.data.Users[userID]...)
	return out, nil
}

func parse(r io.Reader) (fileSchema, error) {
	var s fileSchema
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if err == io.EOF {
			return fileSchema{}, nil
		}
		return fileSchema{}, err
	}
	return s, nil
}
