package livecmp

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Registry maps logical component names to their classes. Components are
// registered explicitly at startup; registration builds and caches the
// reflection descriptor so request-time dispatch never re-walks a type.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]*componentClass
}

// componentClass holds a registered component type: its factory, cached
// descriptor, and security mode.
type componentClass struct {
	name      string
	factory   func() Component
	desc      *classDesc
	sensitive bool
}

// NewRegistry creates an empty component registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*componentClass)}
}

// Add registers a component class under a logical name. The factory must
// return a fresh instance on every call - instances are never reused across
// requests.
//
// Panics if the name collides, the type is not a pointer to a struct
// embedding BaseComponent, or the type does not implement Renderer.
// Registration failures are programming errors, caught at startup.
//
// Returns a *ClassBuilder for optional configuration:
//
//	reg.Add("accounts.settings", NewSettings).Sensitive()
func (r *Registry) Add(name string, factory func() Component) *ClassBuilder {
	proto := factory()
	t := reflect.TypeOf(proto)

	desc, err := describeComponent(name, t)
	if err != nil {
		panic(err.Error())
	}
	if _, ok := proto.(Renderer); !ok {
		panic(fmt.Sprintf("livecmp: component %q (%T) does not implement Renderer", name, proto))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.classes[name]; exists {
		panic(fmt.Sprintf("livecmp: component name collision for %q", name))
	}

	class := &componentClass{name: name, factory: factory, desc: desc}
	r.classes[name] = class
	return &ClassBuilder{class: class}
}

// resolve looks up a class by logical name.
func (r *Registry) resolve(name string) (*componentClass, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	class, ok := r.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, name)
	}
	return class, nil
}

// Has reports whether a component class is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.classes[name]
	return ok
}

// Names returns the registered component names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classes))
	for n := range r.classes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ClassBuilder configures a registered component class.
type ClassBuilder struct {
	class *componentClass
}

// Sensitive marks the class as sensitive: its snapshots travel sealed
// (encrypted and opaque) instead of open-with-checksum.
//
// The open mode is debuggable - state is visible in the page source as
// JSON, tamper-proof via the checksum. Sealed mode makes state completely
// opaque to clients.
func (cb *ClassBuilder) Sensitive() *ClassBuilder {
	cb.class.sensitive = true
	return cb
}
