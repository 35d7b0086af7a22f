package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// StorageDelimiter joins the tokens of a list key into the flat ID the
// storage engine understands. The key alphabet excludes it, so joining is
// reversible.
const StorageDelimiter = ","

// ErrInvalidKey indicates a value that is not a valid dataset key.
var ErrInvalidKey = errors.New("invalid dataset key")

var keyTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Key identifies a dataset. It is either a single token or an ordered list
// of tokens. The zero Key is invalid.
type Key struct {
	parts []string
	list  bool
}

// StringKey returns a single-token key. The token is not validated; use
// KeyFromValue for untrusted input.
func StringKey(s string) Key {
	return Key{parts: []string{s}}
}

// ListKey returns an ordered list key.
func ListKey(tokens ...string) Key {
	return Key{parts: tokens, list: true}
}

// KeyFromValue converts a decoded JSON value (string, []string or
// []interface{} of strings) into a Key, validating every token.
func KeyFromValue(v interface{}) (Key, error) {
	switch val := v.(type) {
	case string:
		if !keyTokenPattern.MatchString(val) {
			return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, val)
		}
		return StringKey(val), nil
	case []string:
		return listKeyFromTokens(val)
	case []interface{}:
		tokens := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return Key{}, fmt.Errorf("%w: list element %v is not a string", ErrInvalidKey, item)
			}
			tokens = append(tokens, s)
		}
		return listKeyFromTokens(tokens)
	case Key:
		if !val.Valid() {
			return Key{}, ErrInvalidKey
		}
		return val, nil
	default:
		return Key{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidKey, v)
	}
}

func listKeyFromTokens(tokens []string) (Key, error) {
	if len(tokens) == 0 {
		return Key{}, fmt.Errorf("%w: empty list", ErrInvalidKey)
	}
	for _, tok := range tokens {
		if !keyTokenPattern.MatchString(tok) {
			return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, tok)
		}
	}
	return ListKey(tokens...), nil
}

// IsKeyValue reports whether v has the shape of a dataset key.
func IsKeyValue(v interface{}) bool {
	_, err := KeyFromValue(v)
	return err == nil
}

// ParseStorageID reconstructs a Key from its storage form. IDs containing
// the delimiter come back as list keys, everything else as string keys.
func ParseStorageID(id string) Key {
	if strings.Contains(id, StorageDelimiter) {
		return ListKey(strings.Split(id, StorageDelimiter)...)
	}
	return StringKey(id)
}

// StorageID returns the flat ID used by the storage engine.
func (k Key) StorageID() string {
	return strings.Join(k.parts, StorageDelimiter)
}

// IsList reports whether the key is an ordered token list.
func (k Key) IsList() bool { return k.list }

// Tokens returns the tokens composing the key. Single-token keys return a
// one-element slice.
func (k Key) Tokens() []string {
	out := make([]string, len(k.parts))
	copy(out, k.parts)
	return out
}

// Valid reports whether every token matches the key alphabet.
func (k Key) Valid() bool {
	if len(k.parts) == 0 {
		return false
	}
	for _, tok := range k.parts {
		if !keyTokenPattern.MatchString(tok) {
			return false
		}
	}
	return true
}

// Equal reports whether two keys have the same shape and tokens.
func (k Key) Equal(other Key) bool {
	if k.list != other.list || len(k.parts) != len(other.parts) {
		return false
	}
	for i := range k.parts {
		if k.parts[i] != other.parts[i] {
			return false
		}
	}
	return true
}

// Value returns the JSON-shaped value of the key: a string for single-token
// keys, a []string for list keys.
func (k Key) Value() interface{} {
	if k.list {
		return k.Tokens()
	}
	return k.parts[0]
}

func (k Key) String() string { return k.StorageID() }

// MarshalJSON renders the key as a string or string array.
func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Value())
}

// UnmarshalJSON accepts a string or string array.
func (k *Key) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := KeyFromValue(v)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
