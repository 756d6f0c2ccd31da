package formats

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/thiago-r-goveia/recordkit/internal/parser"
	"go.uber.org/zap"
)

//go:embed schemas/*.yaml
var builtin embed.FS

var ErrUnknownFormat = errors.New("unknown format")

// Registry holds the schemas known to the application by name. It is read
// only once loaded and safe to share between workers.
type Registry struct {
	schemas map[string]*parser.Schema
}

// NewRegistry returns a registry with the built-in formats.
func NewRegistry() (*Registry, error) {
	r := &Registry{schemas: make(map[string]*parser.Schema)}
	entries, err := fs.ReadDir(builtin, "schemas")
	if err != nil {
		return nil, fmt.Errorf("failed to list built-in schemas: %w", err)
	}
	for _, entry := range entries {
		data, err := builtin.ReadFile("schemas/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read built-in schema %s: %w", entry.Name(), err)
		}
		s, err := parser.ParseSchema(data)
		if err != nil {
			return nil, fmt.Errorf("built-in schema %s: %w", entry.Name(), err)
		}
		r.Add(s)
	}
	return r, nil
}

// LoadRegistry loads the built-in formats and then every *.yaml or *.yml
// file of dir. A file declaring the name of a built-in replaces it. An empty
// dir loads only the built-ins.
func LoadRegistry(dir string, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return r, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		s, err := parser.LoadSchema(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, exists := r.schemas[s.Name]; exists {
			logger.Info("Overriding built-in format", zap.String("format", s.Name), zap.String("file", entry.Name()))
		}
		r.Add(s)
	}
	return r, nil
}

// Add registers s, replacing any schema with the same name.
func (r *Registry) Add(s *parser.Schema) {
	r.schemas[s.Name] = s
}

func (r *Registry) Get(name string) (*parser.Schema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
	return s, nil
}

// Names returns the registered format names sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Match returns the schema whose match pattern accepts the base name of
// path. Formats are tried in name order so the result is stable.
func (r *Registry) Match(path string) (*parser.Schema, bool) {
	base := filepath.Base(path)
	for _, name := range r.Names() {
		s := r.schemas[name]
		if s.Match == "" {
			continue
		}
		if ok, err := filepath.Match(s.Match, base); err == nil && ok {
			return s, true
		}
	}
	return nil, false
}
