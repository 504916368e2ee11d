package synth

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// FormRegistry maps wire class names to form constructors. Form objects are
// referenced in snapshots by name only (meta["class"]); the registry is how
// hydration locates the concrete type again.
type FormRegistry struct {
	mu        sync.RWMutex
	factories map[string]func() any
	names     map[reflect.Type]string
}

// NewFormRegistry creates an empty form registry.
func NewFormRegistry() *FormRegistry {
	return &FormRegistry{
		factories: make(map[string]func() any),
		names:     make(map[reflect.Type]string),
	}
}

// Register binds a class name to a constructor. The constructor must return
// a pointer to a struct. Panics on misuse or name collision - registration
// happens at startup, not per request.
func (r *FormRegistry) Register(name string, factory func() any) {
	proto := factory()
	t := reflect.TypeOf(proto)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("synth: form %q must be constructed as a pointer to a struct, got %T", name, proto))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("synth: form class %q registered twice", name))
	}
	r.factories[name] = factory
	r.names[t] = name
}

// New constructs a fresh instance of the named class.
func (r *FormRegistry) New(name string) (any, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("synth: form class %q not found", name)
	}
	return factory(), nil
}

// NameOf returns the registered class name for a live value.
func (r *FormRegistry) NameOf(v any) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[reflect.TypeOf(v)]
	return name, ok
}

// FormSynth dehydrates registered form objects property by property and
// reconstructs them by class name at hydrate time.
type FormSynth struct {
	Base
	forms *FormRegistry
}

// NewFormSynth creates a form synth backed by the given registry.
func NewFormSynth(forms *FormRegistry) FormSynth {
	return FormSynth{forms: forms}
}

func (FormSynth) Key() string { return "form" }

func (s FormSynth) Match(v any) bool {
	_, ok := s.forms.NameOf(v)
	return ok
}

func (FormSynth) MatchKey(key string) bool { return key == "form" }

// Dehydrate collects every exported form property through a child call -
// name first, value second - and records the class name in meta.
func (s FormSynth) Dehydrate(v any, child DehydrateChild) (any, map[string]any, error) {
	name, ok := s.forms.NameOf(v)
	if !ok {
		return nil, nil, fmt.Errorf("synth: form type %T not registered", v)
	}
	if pv := reflect.ValueOf(v); pv.Kind() == reflect.Pointer && pv.IsNil() {
		return nil, map[string]any{"class": name}, nil
	}

	rv := reflect.ValueOf(v).Elem()
	rt := rv.Type()
	data := make(map[string]any)
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if f.Anonymous || !f.IsExported() {
			continue
		}
		c, err := child(f.Name, rv.Field(i).Interface())
		if err != nil {
			return nil, nil, err
		}
		data[f.Name] = c
	}
	return data, map[string]any{"class": name}, nil
}

// Hydrate constructs a fresh instance of the class named in meta and assigns
// every key present in the data, converting wire shapes into field types.
// Keys with no matching field are ignored.
func (s FormSynth) Hydrate(data any, meta map[string]any, child HydrateChild) (any, error) {
	name, ok := meta["class"].(string)
	if !ok || name == "" {
		return nil, errors.New("synth: form class name not found")
	}

	instance, err := s.forms.New(name)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return reflect.Zero(reflect.TypeOf(instance)).Interface(), nil
	}

	in, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("synth: form data is %T, want object", data)
	}
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rv := reflect.ValueOf(instance).Elem()
	for _, k := range keys {
		c, err := child(k, in[k])
		if err != nil {
			return nil, err
		}
		f := rv.FieldByName(k)
		if !f.IsValid() || !f.CanSet() {
			continue
		}
		if err := Assign(f, c); err != nil {
			return nil, fmt.Errorf("synth: form %s.%s: %w", name, k, err)
		}
	}
	return instance, nil
}
