package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Document is the YAML form of a thesis file.
type Document struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	Template string `yaml:"template"`
}

// Load reads a thesis template from path. Files ending in .yaml or .yml are
// parsed as a Document; anything else is taken as raw template text.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "prompt: read thesis %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc Document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, eris.Wrapf(err, "prompt: parse thesis %s", path)
		}
		t, err := Parse(doc.Template)
		if err != nil {
			return nil, eris.Wrapf(err, "prompt: thesis %s", path)
		}
		t.Name = doc.Name
		t.Version = doc.Version
		return t, nil
	default:
		t, err := Parse(string(data))
		if err != nil {
			return nil, eris.Wrapf(err, "prompt: thesis %s", path)
		}
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return t, nil
	}
}

// Source holds the active template and re-reads it on demand. It is safe for
// concurrent use.
type Source struct {
	path string

	mu   sync.RWMutex
	tmpl *Template
}

// NewSource loads the template at path, or the embedded default when path is
// empty.
func NewSource(path string) (*Source, error) {
	s := &Source{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticSource wraps a fixed template. Reload is a no-op.
func NewStaticSource(t *Template) *Source {
	return &Source{tmpl: t}
}

// Current returns the active template.
func (s *Source) Current() *Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tmpl
}

// Reload re-reads the template file. On failure the previous template stays
// active and the error is returned.
func (s *Source) Reload() error {
	if s.path == "" {
		s.mu.Lock()
		if s.tmpl == nil {
			s.tmpl = Default()
		}
		s.mu.Unlock()
		return nil
	}

	t, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.tmpl = t
	s.mu.Unlock()

	zap.L().Info("prompt: thesis loaded",
		zap.String("path", s.path),
		zap.String("name", t.Name),
		zap.String("version", t.Version),
	)
	return nil
}
