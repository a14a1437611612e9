package prompts

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

//go:embed defaults/*.md
var defaultComponents embed.FS

// Component is one orderable fragment of the system prompt. Defaults are
// immutable within a process lifetime; per-profile overrides patch content
// and enabled without ever adding or removing entries.
type Component struct {
	ID       string
	Name     string
	FilePath string
	Content  string
	Order    int
	Enabled  bool
	IsSystem bool
}

// Override is a sparse per-profile patch. Nil fields mean "inherit default".
type Override struct {
	Content *string
	Enabled *bool
}

type Profile struct {
	ID        string
	TenantID  string
	Name      string
	IsDefault bool
	IsActive  bool
	UpdatedAt time.Time
}

// Source loads the default component list, either from a configured
// directory of *.md files (ordered by filename) or from the embedded set
// when no directory is given. The list is cached for the process lifetime;
// Reload re-reads it.
type Source struct {
	dir string

	mu     sync.Mutex
	cached []Component
	loaded bool
}

func NewSource(dir string) *Source {
	return &Source{dir: strings.TrimSpace(dir)}
}

func (s *Source) Components() ([]Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		components, err := s.load()
		if err != nil {
			return nil, err
		}
		s.cached = components
		s.loaded = true
	}
	out := make([]Component, len(s.cached))
	copy(out, s.cached)
	return out, nil
}

func (s *Source) Reload() ([]Component, error) {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
	return s.Components()
}

func (s *Source) load() ([]Component, error) {
	if s.dir == "" {
		return loadEmbedded()
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read components dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	components := make([]Component, 0, len(names))
	for idx, name := range names {
		path := filepath.Join(s.dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read component %s: %w", name, err)
		}
		components = append(components, newComponent(name, path, string(raw), idx))
	}
	return components, nil
}

func loadEmbedded() ([]Component, error) {
	entries, err := fs.ReadDir(defaultComponents, "defaults")
	if err != nil {
		return nil, fmt.Errorf("read embedded components: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	components := make([]Component, 0, len(names))
	for idx, name := range names {
		raw, err := fs.ReadFile(defaultComponents, "defaults/"+name)
		if err != nil {
			return nil, fmt.Errorf("read embedded component %s: %w", name, err)
		}
		components = append(components, newComponent(name, "defaults/"+name, string(raw), idx))
	}
	return components, nil
}

func newComponent(name, path, raw string, order int) Component {
	return Component{
		ID:       strings.TrimSuffix(name, ".md"),
		Name:     name,
		FilePath: path,
		Content:  strings.TrimSpace(raw),
		Order:    order,
		Enabled:  true,
		IsSystem: true,
	}
}
