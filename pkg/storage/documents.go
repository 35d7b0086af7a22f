package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/digiklausur/data-gateway/pkg/dataset"
	"github.com/digiklausur/data-gateway/pkg/observability"
)

// Store adapts a Backend to the dataset model: logical keys become storage
// IDs, writes maintain created_at/updated_at and fields written as the
// empty string are removed instead of stored.
type Store struct {
	backend Backend
	log     *observability.Logger
	now     func() time.Time
}

// NewStore creates a dataset store over the given backend.
func NewStore(backend Backend, log *observability.Logger) *Store {
	return &Store{
		backend: backend,
		log:     log,
		now:     time.Now,
	}
}

// Get reads the dataset stored under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, collection string, key dataset.Key) (dataset.Dataset, error) {
	doc, err := s.backend.FindByID(ctx, collection, key.StorageID())
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	return fromStorageDoc(doc), nil
}

// Query returns every dataset matching the structured filter. Order is not
// guaranteed.
func (s *Store) Query(ctx context.Context, collection string, filter map[string]interface{}) ([]dataset.Dataset, error) {
	docs, err := s.backend.Find(ctx, collection, filter)
	if err != nil {
		return nil, err
	}
	out := make([]dataset.Dataset, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromStorageDoc(doc))
	}
	return out, nil
}

// Set creates or updates the dataset under its own key. New records get
// created_at and updated_at; existing records get updated_at refreshed and
// empty-string fields unset. Returns the dataset key.
func (s *Store) Set(ctx context.Context, collection string, ds dataset.Dataset) (dataset.Key, error) {
	key, err := ds.Key()
	if err != nil {
		return dataset.Key{}, err
	}

	doc := toStorageDoc(ds, key)
	doc[dataset.FieldUpdatedAt] = s.timestamp()

	removals := emptyFields(doc)
	for _, field := range removals {
		delete(doc, field)
	}

	existing, err := s.backend.FindByID(ctx, collection, key.StorageID())
	if err != nil {
		return dataset.Key{}, err
	}

	if existing == nil {
		doc[dataset.FieldCreatedAt] = doc[dataset.FieldUpdatedAt]
		if err := s.backend.InsertOne(ctx, collection, doc); err != nil {
			return dataset.Key{}, err
		}
		s.log.WithField("collection", collection).WithField("key", key.StorageID()).Debug("dataset created")
		return key, nil
	}

	if err := s.backend.UpdateOne(ctx, collection, key.StorageID(), doc, removals); err != nil {
		return dataset.Key{}, err
	}
	return key, nil
}

// CreateIfAbsent inserts the dataset only if its key is unused, reporting
// whether the insert happened.
func (s *Store) CreateIfAbsent(ctx context.Context, collection string, ds dataset.Dataset) (bool, error) {
	key, err := ds.Key()
	if err != nil {
		return false, err
	}

	doc := toStorageDoc(ds, key)
	doc[dataset.FieldUpdatedAt] = s.timestamp()
	doc[dataset.FieldCreatedAt] = doc[dataset.FieldUpdatedAt]
	for _, field := range emptyFields(doc) {
		delete(doc, field)
	}

	return s.backend.InsertIfAbsent(ctx, collection, doc)
}

// Delete removes the dataset under key and returns its pre-deletion state,
// or ErrNotFound when nothing was stored.
func (s *Store) Delete(ctx context.Context, collection string, key dataset.Key) (dataset.Dataset, error) {
	existing, err := s.backend.FindByID(ctx, collection, key.StorageID())
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	if err := s.backend.DeleteOne(ctx, collection, key.StorageID()); err != nil {
		return nil, err
	}
	s.log.WithField("collection", collection).WithField("key", key.StorageID()).Debug("dataset deleted")
	return fromStorageDoc(existing), nil
}

// Count counts documents in the collection, scanning at most limit when
// limit > 0.
func (s *Store) Count(ctx context.Context, collection string, limit int64) (int64, error) {
	return s.backend.CountDocuments(ctx, collection, limit)
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// toStorageDoc converts a dataset to its storage form: the key field is
// replaced by the flat _id.
func toStorageDoc(ds dataset.Dataset, key dataset.Key) map[string]interface{} {
	doc := map[string]interface{}(ds.Clone())
	delete(doc, dataset.FieldKey)
	doc[IDField] = key.StorageID()
	return doc
}

// fromStorageDoc converts a storage document back to a dataset, restoring
// the logical key from the _id.
func fromStorageDoc(doc map[string]interface{}) dataset.Dataset {
	ds := dataset.Dataset{}
	for k, v := range doc {
		if k == IDField {
			continue
		}
		ds[k] = v
	}
	if id, ok := doc[IDField].(string); ok {
		ds.SetKey(dataset.ParseStorageID(id))
	} else {
		// Non-string IDs cannot happen through this store; keep whatever
		// the engine returned rather than dropping it.
		ds[dataset.FieldKey] = fmt.Sprintf("%v", doc[IDField])
	}
	return ds
}

func emptyFields(doc map[string]interface{}) []string {
	var out []string
	for k, v := range doc {
		if s, ok := v.(string); ok && s == "" {
			out = append(out, k)
		}
	}
	return out
}
