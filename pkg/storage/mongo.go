package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoBackend implements Backend on a MongoDB database. Document IDs map
// to the native _id field, so uniqueness of the bootstrap insert rides on
// the collection's _id index.
type MongoBackend struct {
	db *mongo.Database
}

// NewMongoBackend connects to MongoDB and verifies the connection with a
// ping.
func NewMongoBackend(ctx context.Context, cfg Config) (*MongoBackend, error) {
	opts := options.Client().ApplyURI(cfg.MongoURI)
	if cfg.MongoTimeout > 0 {
		opts = opts.SetConnectTimeout(cfg.MongoTimeout).SetServerSelectionTimeout(cfg.MongoTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("mongodb ping failed: %w", err)
	}

	return &MongoBackend{db: client.Database(cfg.MongoDatabase)}, nil
}

// Close disconnects the underlying client.
func (b *MongoBackend) Close(ctx context.Context) error {
	return b.db.Client().Disconnect(ctx)
}

// Find returns every document matching the filter.
func (b *MongoBackend) Find(ctx context.Context, collection string, filter map[string]interface{}) ([]map[string]interface{}, error) {
	query := bson.M{}
	for k, v := range filter {
		query[k] = v
	}

	cursor, err := b.db.Collection(collection).Find(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find on %q failed: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var out []map[string]interface{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding document from %q failed: %w", collection, err)
		}
		out = append(out, normalizeDocument(doc))
	}
	return out, cursor.Err()
}

// FindByID returns the document with the given _id, or (nil, nil).
func (b *MongoBackend) FindByID(ctx context.Context, collection, id string) (map[string]interface{}, error) {
	var doc bson.M
	err := b.db.Collection(collection).FindOne(ctx, bson.M{IDField: id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup of %q in %q failed: %w", id, collection, err)
	}
	return normalizeDocument(doc), nil
}

// InsertOne stores a new document.
func (b *MongoBackend) InsertOne(ctx context.Context, collection string, doc map[string]interface{}) error {
	if _, err := b.db.Collection(collection).InsertOne(ctx, bson.M(doc)); err != nil {
		return fmt.Errorf("insert into %q failed: %w", collection, err)
	}
	return nil
}

// InsertIfAbsent inserts the document, treating a duplicate-key rejection
// on _id as "already present".
func (b *MongoBackend) InsertIfAbsent(ctx context.Context, collection string, doc map[string]interface{}) (bool, error) {
	_, err := b.db.Collection(collection).InsertOne(ctx, bson.M(doc))
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert into %q failed: %w", collection, err)
	}
	return true, nil
}

// UpdateOne applies $set and $unset to the document with the given _id.
func (b *MongoBackend) UpdateOne(ctx context.Context, collection, id string, set map[string]interface{}, unset []string) error {
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = bson.M(set)
	}
	if len(unset) > 0 {
		fields := bson.M{}
		for _, f := range unset {
			fields[f] = ""
		}
		update["$unset"] = fields
	}
	if len(update) == 0 {
		return nil
	}

	if _, err := b.db.Collection(collection).UpdateOne(ctx, bson.M{IDField: id}, update); err != nil {
		return fmt.Errorf("update of %q in %q failed: %w", id, collection, err)
	}
	return nil
}

// DeleteOne removes the document with the given _id.
func (b *MongoBackend) DeleteOne(ctx context.Context, collection, id string) error {
	if _, err := b.db.Collection(collection).DeleteOne(ctx, bson.M{IDField: id}); err != nil {
		return fmt.Errorf("delete of %q from %q failed: %w", id, collection, err)
	}
	return nil
}

// CountDocuments counts documents, scanning at most limit when limit > 0.
func (b *MongoBackend) CountDocuments(ctx context.Context, collection string, limit int64) (int64, error) {
	opts := options.Count()
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	n, err := b.db.Collection(collection).CountDocuments(ctx, bson.M{}, opts)
	if err != nil {
		return 0, fmt.Errorf("count on %q failed: %w", collection, err)
	}
	return n, nil
}

// normalizeDocument rewrites driver container types (bson.D, bson.M,
// bson.A) into plain maps and slices so the rest of the gateway can treat
// documents as decoded JSON.
func normalizeDocument(doc bson.M) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.M:
		return normalizeDocument(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, x := range val {
			out[k] = normalizeValue(x)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(val))
		for _, elem := range val {
			out[elem.Key] = normalizeValue(elem.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(val))
		for i, x := range val {
			out[i] = normalizeValue(x)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, x := range val {
			out[i] = normalizeValue(x)
		}
		return out
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return v
	}
}
