package codec

import (
	"sort"
	"sync"

	"github.com/alxayo/svr/internal/svrerr"
)

// Registry is the process-wide table of registered encodings (spec §4.3).
// Codec packages self-register via init() calling Register on the default
// registry, the same way the teacher's hooks package registers handlers by
// name rather than by inheritance.
type Registry struct {
	mu    sync.RWMutex
	byName map[string]Encoding
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Encoding)}
}

// Default is the process-wide registry codec packages register into.
var Default = NewRegistry()

// Register adds a named encoding factory. Re-registering the same name is
// an error (it would silently change in-flight sources' codec semantics).
func (r *Registry) Register(e Encoding) error {
	if e.Name == "" {
		return svrerr.NewInvalidArgument("codec.Register", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[e.Name]; exists {
		return svrerr.NewNameInUse("codec.Register", nil)
	}
	r.byName[e.Name] = e
	return nil
}

// Get looks up an encoding by name.
func (r *Registry) Get(name string) (Encoding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e, ok
}

// Names returns the registered encoding names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Register adds e to the default registry.
func Register(e Encoding) error { return Default.Register(e) }

// Get looks up name in the default registry.
func Get(name string) (Encoding, bool) { return Default.Get(name) }
