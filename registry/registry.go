// Package registry loads suite definitions from a directory of YAML or JSON
// documents and hands them to the execution engine.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/autoapitester/api-acceptor/types"
)

// Config contains registry configuration.
type Config struct {
	Dir string // directory containing *.yaml / *.yml / *.json suite files
	Log *zap.SugaredLogger
}

// Registry holds the loaded suite definitions.
type Registry struct {
	config Config

	mu   sync.RWMutex
	defs map[string]*types.SuiteDefinition
}

// NewRegistry creates a registry and loads every suite definition found
// under cfg.Dir. A directory with no definitions is an error: a service
// with nothing to run is misconfigured.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("suite directory is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}

	r := &Registry{config: cfg, defs: make(map[string]*types.SuiteDefinition)}
	if err := r.load(); err != nil {
		return nil, err
	}
	if len(r.defs) == 0 {
		return nil, fmt.Errorf("no suite definitions found in %s", cfg.Dir)
	}
	cfg.Log.Infow("registry loaded", "dir", cfg.Dir, "suites", len(r.defs))
	return r, nil
}

func (r *Registry) load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.config.Dir)
	if err != nil {
		return fmt.Errorf("reading suite directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		path := filepath.Join(r.config.Dir, name)
		def, err := loadDefinition(path, ext)
		if err != nil {
			return fmt.Errorf("loading suite %s: %w", name, err)
		}
		if def.Name == "" {
			def.Name = strings.TrimSuffix(name, ext)
		}
		if err := validateDefinition(def); err != nil {
			return fmt.Errorf("suite %s: %w", name, err)
		}
		if _, dup := r.defs[def.Name]; dup {
			return fmt.Errorf("duplicate suite name %q", def.Name)
		}
		r.defs[def.Name] = def
		r.config.Log.Debugw("suite loaded", "name", def.Name, "cases", len(def.TestCases))
	}
	return nil
}

func loadDefinition(path, ext string) (*types.SuiteDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def types.SuiteDefinition
	if ext == ".json" {
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}
	return &def, nil
}

func validateDefinition(def *types.SuiteDefinition) error {
	if def.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if !types.IsSupportedMethod(strings.ToUpper(def.Method)) {
		return fmt.Errorf("unsupported HTTP method %q", def.Method)
	}
	return nil
}

// Definitions returns all loaded suites, sorted by name.
func (r *Registry) Definitions() []*types.SuiteDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.SuiteDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Definition returns the suite with the given name, or nil.
func (r *Registry) Definition(name string) *types.SuiteDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defs[name]
}
