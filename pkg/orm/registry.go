package orm

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/sails/pkg/constants"
	"github.com/agentstation/sails/pkg/datastore"
	"github.com/agentstation/sails/pkg/errors"
)

// AdapterResolver returns the adapter for a named connection.
type AdapterResolver func(ctx context.Context, connection string) (datastore.Adapter, error)

// Registry is a concurrent safe map of models keyed by identity.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*Model)}
}

// Register adds a model, returning an error if its identity is taken.
func (r *Registry) Register(m *Model) error {
	if m == nil {
		return fmt.Errorf("model cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.models[m.identity]; exists {
		return errors.NewAlreadyExistsError("model", m.identity)
	}
	r.models[m.identity] = m
	return nil
}

// Get returns a model by identity and whether it exists. Identities are
// matched case-insensitively.
func (r *Registry) Get(identity string) (*Model, bool) {
	r.mu.RLock()
	m, ok := r.models[strings.ToLower(identity)]
	r.mu.RUnlock()
	return m, ok
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// List returns all models sorted by identity.
func (r *Registry) List() []*Model {
	r.mu.RLock()
	out := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].identity < out[j].identity })
	return out
}

// Check reports associations whose target model or via attribute is missing.
func (r *Registry) Check() error {
	var errs []error
	for _, m := range r.List() {
		for _, a := range m.associations {
			target, ok := r.Get(a.Target())
			if !ok {
				errs = append(errs, fmt.Errorf("%s.%s references unknown model %q", m.identity, a.Alias, a.Target()))
				continue
			}
			if a.Via != "" {
				if _, ok := target.Attribute(a.Via); !ok {
					errs = append(errs, fmt.Errorf("%s.%s is via unknown attribute %s.%s", m.identity, a.Alias, target.identity, a.Via))
				}
			}
		}
	}
	return stderrors.Join(errs...)
}

// ParseDefinition decodes a model definition from YAML or JSON. When the
// definition carries no identity, fallback is used.
func ParseDefinition(data []byte, fallback string) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, err
	}
	if def.Identity == "" {
		def.Identity = fallback
	}
	return def, nil
}

// LoadDir registers every model definition (*.yaml, *.yml, *.json) found under dir.
// The identity defaults to the file name without extension.
func (r *Registry) LoadDir(ctx context.Context, dir string, resolve AdapterResolver) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if d.IsDir() || (ext != ".yaml" && ext != ".yml" && ext != ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return errors.WrapIO("read", path, err)
		}
		def, err := ParseDefinition(data, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		if err != nil {
			return errors.WrapParse(strings.TrimPrefix(ext, "."), path, err)
		}

		connection := def.Connection
		if connection == "" {
			connection = constants.DefaultConnection
		}
		store, err := resolve(ctx, connection)
		if err != nil {
			return fmt.Errorf("model %s: %w", def.Identity, err)
		}
		m, err := NewModel(def, store)
		if err != nil {
			return fmt.Errorf("model %s: %w", path, err)
		}
		return r.Register(m)
	})
}

// LoadFixtures creates the records listed in a fixtures file, which maps
// model identities to lists of records. A missing file is not an error.
func (r *Registry) LoadFixtures(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.WrapIO("read", path, err)
	}

	var fixtures map[string][]map[string]any
	if err := yaml.Unmarshal(data, &fixtures); err != nil {
		return 0, errors.WrapParse("yaml", path, err)
	}

	identities := make([]string, 0, len(fixtures))
	for identity := range fixtures {
		identities = append(identities, identity)
	}
	sort.Strings(identities)

	created := 0
	for _, identity := range identities {
		m, ok := r.Get(identity)
		if !ok {
			return created, errors.NewNotFoundError("model", identity)
		}
		for _, values := range fixtures[identity] {
			if _, err := m.Create(ctx, values); err != nil {
				return created, fmt.Errorf("fixture %s: %w", identity, err)
			}
			created++
		}
	}
	return created, nil
}
