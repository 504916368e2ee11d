package synth

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"time"
)

// Base is the fallback codec: it passes values through unchanged in both
// directions. It never matches by value - it must be selected explicitly.
// Concrete synths embed Base to inherit the passthrough behavior and the
// shared Get helper, overriding what they need.
type Base struct{}

// Key returns the wire key for the fallback codec.
func (Base) Key() string { return "base" }

// Match always reports false; the base synth is explicit-only.
func (Base) Match(any) bool { return false }

// MatchKey reports whether key names the base synth.
func (Base) MatchKey(key string) bool { return key == "base" }

// Dehydrate returns the value unchanged with empty meta.
func (Base) Dehydrate(v any, _ DehydrateChild) (any, map[string]any, error) {
	return v, map[string]any{}, nil
}

// Hydrate returns the data unchanged.
func (Base) Hydrate(data any, _ map[string]any, _ HydrateChild) (any, error) {
	return data, nil
}

// Get returns the element of target addressed by key. It supports map lookup,
// slice/array numeric indexing, and struct fields. Out-of-range indices and
// missing keys return nil, never panic.
func Get(target any, key string) any {
	if target == nil {
		return nil
	}

	rv := reflect.ValueOf(target)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil
		}
		return v.Interface()
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil
		}
		return rv.Index(i).Interface()
	case reflect.Struct:
		f := rv.FieldByName(key)
		if !f.IsValid() || !f.CanInterface() {
			return nil
		}
		return f.Interface()
	}
	return nil
}

// SliceSynth handles slices and arrays whose elements need recursive
// dehydration. Plain slices of primitives never reach it - the engine's
// fast path passes those through untouched.
type SliceSynth struct {
	Base
}

func (SliceSynth) Key() string { return "arr" }

func (SliceSynth) Match(v any) bool {
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func (SliceSynth) MatchKey(key string) bool { return key == "arr" }

// Dehydrate maps each index to a child call keyed by its decimal position,
// preserving order. Meta is always empty.
func (SliceSynth) Dehydrate(v any, child DehydrateChild) (any, map[string]any, error) {
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		c, err := child(strconv.Itoa(i), rv.Index(i).Interface())
		if err != nil {
			return nil, nil, err
		}
		out[i] = c
	}
	return out, map[string]any{}, nil
}

// Hydrate rebuilds the slice element by element, preserving positions.
func (SliceSynth) Hydrate(data any, _ map[string]any, child HydrateChild) (any, error) {
	if data == nil {
		return []any{}, nil
	}
	in, ok := data.([]any)
	if !ok {
		return nil, fmt.Errorf("synth: arr data is %T, want array", data)
	}
	out := make([]any, len(in))
	for i, el := range in {
		c, err := child(strconv.Itoa(i), el)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// MapSynth handles string-keyed maps whose values need recursive dehydration.
type MapSynth struct {
	Base
}

func (MapSynth) Key() string { return "map" }

func (MapSynth) Match(v any) bool {
	rt := reflect.TypeOf(v)
	return rt != nil && rt.Kind() == reflect.Map && rt.Key().Kind() == reflect.String
}

func (MapSynth) MatchKey(key string) bool { return key == "map" }

// Dehydrate visits entries in sorted key order so output is deterministic.
func (MapSynth) Dehydrate(v any, child DehydrateChild) (any, map[string]any, error) {
	rv := reflect.ValueOf(v)
	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		el := rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key()))
		c, err := child(k, el.Interface())
		if err != nil {
			return nil, nil, err
		}
		out[k] = c
	}
	return out, map[string]any{}, nil
}

func (MapSynth) Hydrate(data any, _ map[string]any, child HydrateChild) (any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	in, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("synth: map data is %T, want object", data)
	}
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(in))
	for _, k := range keys {
		c, err := child(k, in[k])
		if err != nil {
			return nil, err
		}
		out[k] = c
	}
	return out, nil
}

// isoMillis is the wire layout for timestamps: ISO-8601, millisecond
// precision, UTC with a literal Z suffix.
const isoMillis = "2006-01-02T15:04:05.000Z"

// TimeSynth round-trips time.Time values with exact millisecond fidelity,
// including the zero epoch.
type TimeSynth struct {
	Base
}

func (TimeSynth) Key() string { return "date" }

func (TimeSynth) Match(v any) bool {
	switch v.(type) {
	case time.Time, *time.Time:
		return true
	}
	return false
}

func (TimeSynth) MatchKey(key string) bool { return key == "date" }

func (TimeSynth) Dehydrate(v any, _ DehydrateChild) (any, map[string]any, error) {
	var t time.Time
	switch tv := v.(type) {
	case time.Time:
		t = tv
	case *time.Time:
		if tv == nil {
			return nil, map[string]any{}, nil
		}
		t = *tv
	}
	return t.UTC().Format(isoMillis), map[string]any{}, nil
}

func (TimeSynth) Hydrate(data any, _ map[string]any, _ HydrateChild) (any, error) {
	if data == nil {
		return time.Time{}, nil
	}
	s, ok := data.(string)
	if !ok {
		return nil, fmt.Errorf("synth: date data is %T, want string", data)
	}
	if t, err := time.Parse(isoMillis, s); err == nil {
		return t, nil
	}
	// Client-originated values may carry offsets or extra precision.
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("synth: invalid date %q: %w", s, err)
	}
	return t, nil
}
