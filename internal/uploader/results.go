package uploader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	appErrors "github.com/example/fileuploader/internal/errors"
	"github.com/example/fileuploader/internal/processors"
)

// Result is the outcome of one item: a committed file or a recorded error.
type Result struct {
	Key      string                    `json:"key"`
	Origin   Origin                    `json:"origin"`
	File     *processors.ValidatedFile `json:"file,omitempty"`
	Err      *appErrors.Error          `json:"error,omitempty"`
	MirrorID string                    `json:"mirror_id,omitempty"`
	Duration time.Duration             `json:"-"`

	index int
}

// OK reports whether the item was committed.
func (r Result) OK() bool {
	return r.Err == nil && r.File != nil
}

// Results maps item keys to outcomes in original item order. It is safe for
// concurrent use and never overwrites a key.
type Results struct {
	mu    sync.RWMutex
	byKey map[string]Result
}

func newResults(capacity int) *Results {
	return &Results{byKey: make(map[string]Result, capacity)}
}

func (r *Results) record(index int, res Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[res.Key]; ok {
		return fmt.Errorf("result for %q already recorded", res.Key)
	}
	res.index = index
	r.byKey[res.Key] = res
	return nil
}

// Get returns the outcome recorded for key.
func (r *Results) Get(key string) (Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.byKey[key]
	return res, ok
}

// Len returns the number of recorded outcomes.
func (r *Results) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// All returns the outcomes in original item order.
func (r *Results) All() []Result {
	r.mu.RLock()
	out := make([]Result, 0, len(r.byKey))
	for _, res := range r.byKey {
		out = append(out, res)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// Keys returns the recorded keys in original item order.
func (r *Results) Keys() []string {
	all := r.All()
	keys := make([]string, len(all))
	for i, res := range all {
		keys[i] = res.Key
	}
	return keys
}

// Files returns the committed files in order.
func (r *Results) Files() []*processors.ValidatedFile {
	var files []*processors.ValidatedFile
	for _, res := range r.All() {
		if res.OK() {
			files = append(files, res.File)
		}
	}
	return files
}

// Errors returns the recorded errors keyed by item key.
func (r *Results) Errors() map[string]*appErrors.Error {
	errs := make(map[string]*appErrors.Error)
	for _, res := range r.All() {
		if res.Err != nil {
			errs[res.Key] = res.Err
		}
	}
	return errs
}

// MarshalJSON encodes the results as an object whose keys keep item order.
func (r *Results) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, res := range r.All() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(res.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(res)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
