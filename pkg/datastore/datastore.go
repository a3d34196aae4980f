// Package datastore defines the storage adapter contract models persist through,
// along with a registry of adapter factories and a named connection manager.
//
// Adapters register themselves from an init function, the same way database/sql
// drivers do:
//
//	import _ "github.com/agentstation/sails/pkg/datastore/memory"
//
//	conns := datastore.NewConnections(map[string]datastore.ConnectionConfig{
//	    "default": {Adapter: "memory"},
//	})
//	adapter, err := conns.Get(ctx, "default")
package datastore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentstation/sails/pkg/errors"
)

// Adapter persists schemaless documents grouped by collection.
type Adapter interface {
	// Name returns the registered adapter name.
	Name() string

	// Find returns the document with the given id, or nil when there is none.
	Find(ctx context.Context, collection, id string) (map[string]any, error)

	// Update merges values into the document with the given id and returns
	// the updated documents. An empty result means nothing matched.
	Update(ctx context.Context, collection, id string, values map[string]any) ([]map[string]any, error)

	// Create stores a new document, assigning an id when values carries none.
	Create(ctx context.Context, collection string, values map[string]any) (map[string]any, error)

	// Close releases any resources held by the adapter.
	Close() error
}

// ConnectionConfig describes one named datastore connection.
type ConnectionConfig struct {
	Adapter   string `mapstructure:"adapter" yaml:"adapter" json:"adapter"`
	DSN       string `mapstructure:"dsn" yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Table     string `mapstructure:"table" yaml:"table,omitempty" json:"table,omitempty"`
	Region    string `mapstructure:"region" yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key,omitempty" json:"-"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key,omitempty" json:"-"`
}

// Factory opens an adapter for a connection.
type Factory func(ctx context.Context, cfg ConnectionConfig) (Adapter, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes an adapter factory available by name.
// It panics if Register is called twice with the same name or if factory is nil.
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if factory == nil {
		panic("datastore: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("datastore: Register called twice for adapter " + name)
	}
	factories[name] = factory
}

// Adapters returns a sorted list of the names of the registered adapters.
func Adapters() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens an adapter using the factory registered for cfg.Adapter.
func Open(ctx context.Context, cfg ConnectionConfig) (Adapter, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Adapter]
	factoriesMu.RUnlock()
	if !ok {
		return nil, errors.NewConfigError("connections",
			fmt.Sprintf("unknown adapter %q (forgotten import?)", cfg.Adapter), nil)
	}
	return factory(ctx, cfg)
}

// Connections lazily opens and caches named connections.
type Connections struct {
	mu      sync.Mutex
	configs map[string]ConnectionConfig
	open    map[string]Adapter
}

// NewConnections creates a connection manager for the given configs.
func NewConnections(configs map[string]ConnectionConfig) *Connections {
	c := &Connections{
		configs: make(map[string]ConnectionConfig, len(configs)),
		open:    make(map[string]Adapter),
	}
	for name, cfg := range configs {
		c.configs[name] = cfg
	}
	return c
}

// Get returns the adapter for the named connection, opening it on first use.
func (c *Connections) Get(ctx context.Context, name string) (Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if adapter, ok := c.open[name]; ok {
		return adapter, nil
	}
	cfg, ok := c.configs[name]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "connection", ID: name}
	}
	adapter, err := Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening connection %s: %w", name, err)
	}
	c.open[name] = adapter
	return adapter, nil
}

// Set installs an already opened adapter under a connection name.
func (c *Connections) Set(name string, adapter Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open[name] = adapter
}

// Close closes every opened adapter and returns the first error encountered.
func (c *Connections) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for name, adapter := range c.open {
		if err := adapter.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing connection %s: %w", name, err)
		}
		delete(c.open, name)
	}
	return firstErr
}
