// Package synth provides type-tagged codecs ("synths") that convert live
// component state to and from its JSON-safe wire representation.
//
// Each synth declares a short type key. Dehydrated complex values travel as
// a two-element tuple [data, meta] where meta["s"] carries the key, so the
// value can be reconstructed without any external schema.
//
// Resolution by value is first-match-wins in registration order. Overlapping
// Match predicates are allowed and intentional; registering the most specific
// synth first is the caller's responsibility.
package synth

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DehydrateChild recursively dehydrates a nested value. The property name is
// always the first argument and the value the second - child paths are
// derived from the name, so swapping the arguments corrupts path tracking.
type DehydrateChild func(name string, v any) (any, error)

// HydrateChild mirrors DehydrateChild in the hydration direction.
type HydrateChild func(name string, v any) (any, error)

// Synth is a codec for one family of values.
//
// Match is consulted when dehydrating (only the live value is known);
// MatchKey when hydrating (only the wire key is known).
type Synth interface {
	Key() string
	Match(v any) bool
	MatchKey(key string) bool
	Dehydrate(v any, child DehydrateChild) (data any, meta map[string]any, err error)
	Hydrate(data any, meta map[string]any, child HydrateChild) (any, error)
}

// Sentinel errors for synth resolution.
var (
	// ErrUnknownKey indicates a wire key with no registered synth. A key the
	// server no longer recognizes usually means version skew between the
	// client-held snapshot and the running code - this is fatal.
	ErrUnknownKey = errors.New("synth: no synthesizer registered for key")

	// ErrUnsupported indicates a live value no synth matches. Callers on the
	// dehydration path are expected to log and pass the value through rather
	// than abort.
	ErrUnsupported = errors.New("synth: property type not supported")
)

// Registry holds an ordered list of synths.
// The zero value is unusable; use NewRegistry or Default.
type Registry struct {
	synths []Synth
}

// NewRegistry creates a registry with the given synths, in order.
func NewRegistry(synths ...Synth) *Registry {
	return &Registry{synths: synths}
}

// Default returns a registry with the built-in synths: slices, maps, times,
// and form objects backed by the given form registry.
func Default(forms *FormRegistry) *Registry {
	return NewRegistry(
		TimeSynth{},
		NewFormSynth(forms),
		SliceSynth{},
		MapSynth{},
	)
}

// Register appends synths to the resolution order.
func (r *Registry) Register(synths ...Synth) {
	r.synths = append(r.synths, synths...)
}

// ByKey resolves a synth by its wire key.
func (r *Registry) ByKey(key string) (Synth, error) {
	for _, s := range r.synths {
		if s.MatchKey(key) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// ByValue resolves a synth for a live value. First match wins.
func (r *Registry) ByValue(v any) (Synth, error) {
	for _, s := range r.synths {
		if s.Match(v) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %T (%s)", ErrUnsupported, v, preview(v))
}

// preview renders v as JSON for diagnostics, best effort.
func preview(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
