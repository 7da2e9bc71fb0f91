package source

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/alxayo/svr/internal/svr/ids"
	"github.com/alxayo/svr/internal/svrerr"
)

// Registry is the process-wide source table (spec §9: "process-wide
// singletons with an explicit init() ordered before any network I/O").
// Streams hold only the source's name and re-resolve under this
// registry's lock rather than an owning reference (spec §5).
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*Source
	logger  *slog.Logger
}

// NewRegistry returns an empty source registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{sources: make(map[string]*Source), logger: logger}
}

// Open implements Source.open (spec §4.4).
func (r *Registry) Open(name string, kind Kind, owner *ids.ClientId, descriptor string) (*Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[name]; exists {
		return nil, svrerr.NewNameInUse("Source.open", nil)
	}
	src, err := New(name, kind, owner, descriptor, r.logger)
	if err != nil {
		return nil, err
	}
	r.sources[name] = src
	return src, nil
}

// Get resolves a source by name, the pattern streams use to re-check
// their weak reference under the registry lock before delivery.
func (r *Registry) Get(name string) (*Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// Close implements Source.close and reclaims the registry slot once the
// source has no remaining attached streams (spec §5's resource lifetime:
// destroyed only when closed and every stream has closed or orphaned).
func (r *Registry) Close(name string) error {
	r.mu.Lock()
	src, ok := r.sources[name]
	if !ok {
		r.mu.Unlock()
		return svrerr.NewNoSuchSource("Source.close", nil)
	}
	r.mu.Unlock()

	src.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	if src.HasNoAttachedStreams() {
		delete(r.sources, name)
	}
	return nil
}

// CloseOwnedBy closes every source owned by client, for disconnect-driven
// destruction (spec §3: "destruction of that client destroys the
// source").
func (r *Registry) CloseOwnedBy(client ids.ClientId) {
	r.mu.RLock()
	var owned []string
	for name, src := range r.sources {
		if src.Owner() != nil && *src.Owner() == client {
			owned = append(owned, name)
		}
	}
	r.mu.RUnlock()
	for _, name := range owned {
		r.Close(name)
	}
}

// List implements Source.getSourcesList (spec §4.4): the union of source
// names with c:/s: prefix.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sources))
	for name, src := range r.sources {
		out = append(out, src.Kind().Prefix()+name)
	}
	sort.Strings(out)
	return out
}

// Reap drops closed sources with no remaining attached streams; called
// periodically so a close() racing a slow-to-orphan stream still
// eventually reclaims (spec §8 "No leaked sources").
func (r *Registry) Reap() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for name, src := range r.sources {
		if src.Closed() && src.HasNoAttachedStreams() {
			delete(r.sources, name)
			n++
		}
	}
	return n
}

// Len reports the number of live sources, for the stats reporter (C11).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}
