package dataset

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyRoundTrip(t *testing.T) {
	cases := []Key{
		StringKey("alice"),
		StringKey("answers_q1"),
		ListKey("course1", "week2"),
		ListKey("a", "b", "c", "d"),
		ListKey("single"),
	}

	for _, k := range cases {
		got := ParseStorageID(k.StorageID())
		assert.Equal(t, k.StorageID(), got.StorageID(), "storage id must survive the round trip")
		if len(k.Tokens()) > 1 {
			assert.True(t, got.IsList())
			assert.Equal(t, k.Tokens(), got.Tokens())
		}
	}
}

func TestKeyFromValue(t *testing.T) {
	k, err := KeyFromValue("alice")
	require.NoError(t, err)
	assert.False(t, k.IsList())
	assert.Equal(t, "alice", k.StorageID())

	k, err = KeyFromValue([]interface{}{"course1", "week_2"})
	require.NoError(t, err)
	assert.True(t, k.IsList())
	assert.Equal(t, "course1,week_2", k.StorageID())

	_, err = KeyFromValue("has space")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = KeyFromValue("with,comma")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = KeyFromValue([]interface{}{})
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = KeyFromValue([]interface{}{"ok", 42})
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = KeyFromValue(nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyJSON(t *testing.T) {
	raw, err := json.Marshal(StringKey("alice"))
	require.NoError(t, err)
	assert.JSONEq(t, `"alice"`, string(raw))

	raw, err = json.Marshal(ListKey("a", "b"))
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(raw))

	var k Key
	require.NoError(t, json.Unmarshal([]byte(`["x","y"]`), &k))
	assert.True(t, k.IsList())
	assert.Equal(t, "x,y", k.StorageID())

	assert.Error(t, json.Unmarshal([]byte(`"not valid!"`), &k))
}

func TestDatasetKeyAccess(t *testing.T) {
	ds := New(StringKey("alice"))
	ds["answers"] = map[string]interface{}{"q1": map[string]interface{}{"text": "42", "hash": "h1"}}

	k, err := ds.Key()
	require.NoError(t, err)
	assert.Equal(t, "alice", k.StorageID())

	clone := ds.Clone()
	clone["answers"].(map[string]interface{})["q2"] = "changed"
	_, inOriginal := ds["answers"].(map[string]interface{})["q2"]
	assert.False(t, inOriginal, "clone must be detached from the original")
}

func TestDatasetMissingKey(t *testing.T) {
	_, err := Dataset{"field": "value"}.Key()
	assert.ErrorIs(t, err, ErrInvalidKey)
}
