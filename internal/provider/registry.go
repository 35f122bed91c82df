package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a Provider from a fully-resolved config entry. It is
// called by the registry's Get. Custom npm/script providers are built
// once by internal/customprovider and registered by cmd/root.go under a
// Factory closure that returns that already-built instance.
type Factory func(cfg Entry) (Provider, error)

// Entry is the resolved per-provider config the registry hands to a
// Factory: everything the provider needs to construct itself, already
// merged from the layered config.
type Entry struct {
	ID      string
	APIKey  string
	Model   string
	Options map[string]interface{}
}

// legacyIDs maps known legacy provider ids to their canonical replacement
//. Both Registry.Get and CanonicalID
// consult it so that old configs keep resolving after a provider rename.
var legacyIDs = map[string]string{
	"perplexity-sonar": "perplexity-sonar-pro",
	"gpt-researcher":   "openai-websearch",
	"you-search":       "exa",
}

// CanonicalID resolves a possibly-legacy id to its canonical form. Ids not
// present in the legacy table are returned unchanged.
func CanonicalID(id string) string {
	if canon, ok := legacyIDs[id]; ok {
		return canon
	}
	return id
}

// LegacyIDs returns a copy of the legacy->canonical id table, for callers
// that need to report migration warnings (internal/config).
func LegacyIDs() map[string]string {
	out := make(map[string]string, len(legacyIDs))
	for k, v := range legacyIDs {
		out[k] = v
	}
	return out
}

// registration bundles a factory with the descriptor it produces, so the
// registry can answer introspection queries (ls, doctor) without
// constructing a provider instance.
type registration struct {
	descriptor Descriptor
	factory    Factory
}

// Registry is a thread-safe id -> provider-factory map with legacy-id
// aliasing. Built-in providers self-register via
// init(); custom providers are registered explicitly by the loader after
// passing the trust gate.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]registration
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty Registry. Useful for tests that must not
// share state with the global built-in registrations.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]registration)}
}

// Register adds a provider factory under its descriptor's id. A built-in
// id collision panics (programmer error: two packages registered the same
// static id); callers that need "skip with a warning" semantics for
// dynamically-loaded custom providers should call TryRegister instead.
func (r *Registry) Register(d Descriptor, f Factory) {
	if err := r.TryRegister(d, f); err != nil {
		panic(err)
	}
}

// TryRegister is like Register but returns an error instead of panicking,
// for callers (the custom-provider loader) that must continue past a
// collision with a warning rather than crash the process: a
// custom-provider entry with a built-in id is ignored with a warning.
func (r *Registry) TryRegister(d Descriptor, f Factory) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[d.ID]; exists {
		return fmt.Errorf("provider: id %q already registered", d.ID)
	}
	r.byID[d.ID] = registration{descriptor: d, factory: f}
	return nil
}

// Has reports whether an id (built-in or custom) is currently registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[CanonicalID(id)]
	return ok
}

// Get constructs a provider instance by id, resolving legacy aliases first.
func (r *Registry) Get(id string, cfg Entry) (Provider, error) {
	canon := CanonicalID(id)
	r.mu.RLock()
	reg, exists := r.byID[canon]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("provider: unknown provider %q (registered: %v)", id, r.Names())
	}
	cfg.ID = canon
	return reg.factory(cfg)
}

// Descriptor returns the static descriptor for a registered id without
// constructing a provider, for ls/doctor/dispatch routing decisions.
func (r *Registry) Descriptor(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[CanonicalID(id)]
	return reg.descriptor, ok
}

// Names returns a sorted list of registered provider ids.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byID))
	for n := range r.byID {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns every registered descriptor, sorted by id, for the
// "ls" command and doctor's connectivity sweep.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.byID))
	for _, reg := range r.byID {
		out = append(out, reg.descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reset clears all registrations. Intended for re-initialization between
// CLI invocations in long-running test harnesses; production `librarium`
// processes never call this.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]registration)
}

// ---------------------------------------------------------------------------
// Package-level convenience functions delegating to the global registry.
// ---------------------------------------------------------------------------

func Register(d Descriptor, f Factory) { globalRegistry.Register(d, f) }

func TryRegister(d Descriptor, f Factory) error { return globalRegistry.TryRegister(d, f) }

func Get(id string, cfg Entry) (Provider, error) { return globalRegistry.Get(id, cfg) }

func Has(id string) bool { return globalRegistry.Has(id) }

func GetDescriptor(id string) (Descriptor, bool) { return globalRegistry.Descriptor(id) }

func Names() []string { return globalRegistry.Names() }

func Descriptors() []Descriptor { return globalRegistry.Descriptors() }

// Global returns the package-level registry, for callers (cmd/run.go,
// cmd/status.go) that need to pass a *Registry
// value around instead of relying on package functions.
func Global() *Registry { return globalRegistry }
