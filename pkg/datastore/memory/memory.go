// Package memory provides an in-process datastore adapter. Documents live in a
// map guarded by a mutex and are copied on every read and write.
package memory

import (
	"context"
	"sync"

	"github.com/agentstation/sails/pkg/datastore"
	"github.com/agentstation/sails/pkg/errors"
)

// AdapterName is the name the adapter registers under.
const AdapterName = "memory"

func init() {
	datastore.Register(AdapterName, func(_ context.Context, _ datastore.ConnectionConfig) (datastore.Adapter, error) {
		return New(), nil
	})
}

// Store is an in-memory datastore.Adapter.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	closed      bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]map[string]any),
	}
}

// Name implements datastore.Adapter.
func (s *Store) Name() string { return AdapterName }

// Find implements datastore.Adapter.
func (s *Store) Find(ctx context.Context, collection, id string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.NewAdapterError(AdapterName, "find", collection, errors.ErrCanceled)
	}
	return datastore.Clone(s.collections[collection][id]), nil
}

// Update implements datastore.Adapter.
func (s *Store) Update(ctx context.Context, collection, id string, values map[string]any) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.NewAdapterError(AdapterName, "update", collection, errors.ErrCanceled)
	}

	existing, ok := s.collections[collection][id]
	if !ok {
		return []map[string]any{}, nil
	}
	updated := datastore.Merge(existing, values)
	s.collections[collection][id] = updated
	return []map[string]any{datastore.Clone(updated)}, nil
}

// Create implements datastore.Adapter.
func (s *Store) Create(ctx context.Context, collection string, values map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, key := datastore.PrepareCreate(values)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.NewAdapterError(AdapterName, "create", collection, errors.ErrCanceled)
	}

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]map[string]any)
		s.collections[collection] = docs
	}
	if _, exists := docs[key]; exists {
		return nil, errors.NewAlreadyExistsError(collection, key)
	}
	docs[key] = doc
	return datastore.Clone(doc), nil
}

// Len returns the number of documents in a collection.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Close implements datastore.Adapter.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
