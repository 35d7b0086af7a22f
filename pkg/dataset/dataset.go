package dataset

import (
	"encoding/json"
	"fmt"
)

// Reserved field names managed by the storage layer.
const (
	FieldKey       = "key"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// Dataset is a document as seen by the application: a field map that always
// carries its own key under the "key" field.
type Dataset map[string]interface{}

// New returns a dataset carrying the given key.
func New(key Key) Dataset {
	return Dataset{FieldKey: key.Value()}
}

// Key extracts and validates the dataset's key field.
func (d Dataset) Key() (Key, error) {
	v, ok := d[FieldKey]
	if !ok {
		return Key{}, fmt.Errorf("%w: dataset has no key field", ErrInvalidKey)
	}
	return KeyFromValue(v)
}

// SetKey stores the key field in its JSON-shaped form.
func (d Dataset) SetKey(key Key) {
	d[FieldKey] = key.Value()
}

// String returns v's value for field as a string, or "" if absent or not a
// string.
func (d Dataset) String(field string) string {
	s, _ := d[field].(string)
	return s
}

// Bool returns the field's value as a bool, false if absent or not a bool.
func (d Dataset) Bool(field string) bool {
	b, _ := d[field].(bool)
	return b
}

// Clone returns a deep copy made via a JSON round trip, so nested maps and
// slices are detached from the original.
func (d Dataset) Clone() Dataset {
	if d == nil {
		return nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		// Datasets originate from decoded JSON; a marshal failure means a
		// programming error upstream.
		panic(fmt.Sprintf("dataset: clone of unmarshalable dataset: %v", err))
	}
	var out Dataset
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("dataset: clone round trip failed: %v", err))
	}
	return out
}
