package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates that no document exists under the requested key.
var ErrNotFound = errors.New("document not found")

// IDField is the native identifier field of the storage engine.
const IDField = "_id"

// Backend is the minimal document-engine contract the gateway depends on.
// Documents are flat JSON-style maps carrying their identifier in the _id
// field.
type Backend interface {
	// Find returns every document matching the filter. An empty filter
	// matches all documents. Result order is engine-defined.
	Find(ctx context.Context, collection string, filter map[string]interface{}) ([]map[string]interface{}, error)

	// FindByID returns the document with the given ID, or (nil, nil) when
	// none exists.
	FindByID(ctx context.Context, collection, id string) (map[string]interface{}, error)

	// InsertOne stores a new document.
	InsertOne(ctx context.Context, collection string, doc map[string]interface{}) error

	// InsertIfAbsent stores the document only if no document with its _id
	// exists, reporting whether the insert happened. The check and insert
	// are atomic.
	InsertIfAbsent(ctx context.Context, collection string, doc map[string]interface{}) (bool, error)

	// UpdateOne applies field updates and removals to the document with the
	// given ID.
	UpdateOne(ctx context.Context, collection, id string, set map[string]interface{}, unset []string) error

	// DeleteOne removes the document with the given ID. Deleting a missing
	// document is not an error.
	DeleteOne(ctx context.Context, collection, id string) error

	// CountDocuments counts documents in the collection, scanning at most
	// limit documents when limit > 0.
	CountDocuments(ctx context.Context, collection string, limit int64) (int64, error)
}

// Config for the storage backend.
type Config struct {
	Type string // "memory" or "mongo"

	// Mongo config
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Type:          "memory",
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "datagateway",
		MongoTimeout:  10 * time.Second,
	}
}
