package datastore

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDField is the document field holding the primary key.
const IDField = "id"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new lexically sortable document id.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// KeyOf formats an id value the way adapters key documents.
func KeyOf(id any) string {
	if id == nil {
		return ""
	}
	switch v := id.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
	}
	return fmt.Sprint(id)
}

// Clone deep copies a document so callers never share nested maps or slices
// with the store.
func Clone(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Merge applies values on top of a copy of doc, keeping doc's id.
func Merge(doc, values map[string]any) map[string]any {
	out := Clone(doc)
	if out == nil {
		out = make(map[string]any, len(values))
	}
	id, hasID := out[IDField]
	for k, v := range values {
		out[k] = cloneValue(v)
	}
	if hasID {
		out[IDField] = id
	}
	return out
}

// PrepareCreate copies values and assigns a fresh id when none is present.
// It returns the document and its key.
func PrepareCreate(values map[string]any) (map[string]any, string) {
	doc := Clone(values)
	if doc == nil {
		doc = make(map[string]any)
	}
	key := KeyOf(doc[IDField])
	if key == "" {
		key = NewID()
		doc[IDField] = key
	}
	return doc, key
}
