// Package storage provides the document persistence layer for the gateway.
//
// # Overview
//
// The package is split in two levels:
//
//   - Backend: the minimal contract the gateway needs from a document
//     engine - find, insert, update (with field unset), delete, count and
//     an atomic insert-if-absent. Two implementations ship: MongoBackend
//     (production) and MemoryBackend (tests and development).
//   - Store: the dataset-level adapter. It converts between logical dataset
//     keys and storage IDs, maintains created_at/updated_at timestamps and
//     removes fields written as the empty string.
//
// # Usage
//
//	backend := storage.NewMemoryBackend()
//	store := storage.NewStore(backend, logger)
//
//	ds := dataset.New(dataset.StringKey("alice"))
//	ds["role"] = "student"
//	key, err := store.Set(ctx, "users", ds)
//
// Writes are read-then-write sequences with no transaction guard; callers
// needing exactly-once creation use CreateIfAbsent, which maps to a unique
// _id insert in Mongo.
package storage
