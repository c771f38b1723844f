package policy

import (
	"strings"
	"sync"

	appErrors "github.com/example/fileuploader/internal/errors"
)

// KeySeparator joins a multi-file field name and the index of one of its files.
const KeySeparator = "||"

// FieldOf strips the "||index" suffix of a fanned-out field key.
func FieldOf(key string) string {
	if i := strings.Index(key, KeySeparator); i >= 0 {
		return key[:i]
	}
	return key
}

// Registry maps field names to policies. The first registered policy is the
// default for fields that have no entry of their own.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]Config
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Config)}
}

// Register stores cfg for field. Registering a field again replaces its policy
// but keeps its original position.
func (r *Registry) Register(field string, cfg Config) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[field]; !ok {
		r.order = append(r.order, field)
	}
	cfg.Field = field
	r.byName[field] = cfg
	return r
}

// RegisterSpecs builds and registers each spec in order.
func (r *Registry) RegisterSpecs(specs ...Spec) error {
	for _, spec := range specs {
		cfg, err := spec.Build()
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInvalidPolicy, "invalid policy for field "+spec.Field)
		}
		r.Register(cfg.Field, cfg)
	}
	return nil
}

// Default returns the first registered policy.
func (r *Registry) Default() (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return Config{}, appErrors.ErrEmptyRegistry
	}
	return r.byName[r.order[0]], nil
}

// Get resolves the policy for a field key, falling back to Default.
func (r *Registry) Get(key string) (Config, error) {
	field := FieldOf(key)
	r.mu.RLock()
	cfg, ok := r.byName[field]
	r.mu.RUnlock()
	if ok {
		return cfg, nil
	}
	return r.Default()
}

// Fields lists registered field names in registration order.
func (r *Registry) Fields() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered fields.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
