package uploader

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/example/fileuploader/internal/errors"
	"github.com/example/fileuploader/internal/processors"
)

func TestResultsOrderAndUniqueness(t *testing.T) {
	r := newResults(3)
	require.NoError(t, r.record(2, Result{Key: "c", Err: appErrors.ErrNoFile}))
	require.NoError(t, r.record(0, Result{Key: "a", File: &processors.ValidatedFile{Name: "a.txt"}}))
	require.NoError(t, r.record(1, Result{Key: "b", File: &processors.ValidatedFile{Name: "b.txt"}}))
	require.Error(t, r.record(3, Result{Key: "a"}))

	assert.Equal(t, []string{"a", "b", "c"}, r.Keys())
	first, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a.txt", first.File.Name, "the first outcome is never overwritten")
}

func TestResultsMarshalJSONKeepsOrder(t *testing.T) {
	r := newResults(2)
	require.NoError(t, r.record(1, Result{Key: "z", Err: appErrors.ErrDisallowedType}))
	require.NoError(t, r.record(0, Result{Key: "y", File: &processors.ValidatedFile{Name: "y.txt", Size: 3}}))

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	s := string(raw)
	assert.Less(t, indexOf(s, `"y"`), indexOf(s, `"z"`))

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "DISALLOWED_TYPE", decoded["z"]["error"].(map[string]any)["code"])
	assert.Equal(t, "y.txt", decoded["y"]["file"].(map[string]any)["name"])
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
