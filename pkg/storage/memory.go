package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// MemoryBackend is an in-memory Backend used in tests and development. All
// operations deep-copy documents so callers never share state with the
// store.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]interface{}
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		collections: make(map[string]map[string]map[string]interface{}),
	}
}

func (b *MemoryBackend) collection(name string) map[string]map[string]interface{} {
	col, ok := b.collections[name]
	if !ok {
		col = make(map[string]map[string]interface{})
		b.collections[name] = col
	}
	return col
}

// Find returns deep copies of every document matching the filter.
func (b *MemoryBackend) Find(ctx context.Context, collection string, filter map[string]interface{}) ([]map[string]interface{}, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []map[string]interface{}
	for _, doc := range b.collections[collection] {
		if matchesFilter(doc, filter) {
			out = append(out, deepCopy(doc))
		}
	}
	return out, nil
}

// FindByID returns a deep copy of the document, or (nil, nil).
func (b *MemoryBackend) FindByID(ctx context.Context, collection, id string) (map[string]interface{}, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	doc, ok := b.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return deepCopy(doc), nil
}

// InsertOne stores a new document under its _id.
func (b *MemoryBackend) InsertOne(ctx context.Context, collection string, doc map[string]interface{}) error {
	id, ok := doc[IDField].(string)
	if !ok {
		return fmt.Errorf("document has no string %s field", IDField)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.collection(collection)[id] = deepCopy(doc)
	return nil
}

// InsertIfAbsent stores the document only when its _id is unused.
func (b *MemoryBackend) InsertIfAbsent(ctx context.Context, collection string, doc map[string]interface{}) (bool, error) {
	id, ok := doc[IDField].(string)
	if !ok {
		return false, fmt.Errorf("document has no string %s field", IDField)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	col := b.collection(collection)
	if _, exists := col[id]; exists {
		return false, nil
	}
	col[id] = deepCopy(doc)
	return true, nil
}

// UpdateOne applies set and unset to an existing document.
func (b *MemoryBackend) UpdateOne(ctx context.Context, collection, id string, set map[string]interface{}, unset []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, ok := b.collections[collection][id]
	if !ok {
		return nil
	}
	for k, v := range deepCopy(set) {
		doc[k] = v
	}
	for _, k := range unset {
		delete(doc, k)
	}
	return nil
}

// DeleteOne removes the document if present.
func (b *MemoryBackend) DeleteOne(ctx context.Context, collection, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.collections[collection], id)
	return nil
}

// CountDocuments counts documents, capped at limit when limit > 0.
func (b *MemoryBackend) CountDocuments(ctx context.Context, collection string, limit int64) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := int64(len(b.collections[collection]))
	if limit > 0 && n > limit {
		n = limit
	}
	return n, nil
}

func matchesFilter(doc, filter map[string]interface{}) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func deepCopy(doc map[string]interface{}) map[string]interface{} {
	if doc == nil {
		return nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("storage: unmarshalable document: %v", err))
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("storage: document round trip failed: %v", err))
	}
	return out
}
