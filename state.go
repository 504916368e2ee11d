package livecmp

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/pthm/livecmp/lib/synth"
)

// Dehydration and hydration of component state.
//
// Resolution is by runtime shape, not declared type: the same property may
// dehydrate through different synths on different cycles if its value
// changes shape. Properties are processed sequentially - synths share the
// request-scoped effects accumulator, so there is no parallelism here.

// dehydrateValue converts a live value into its wire representation.
//
// Primitives and plain composites (map[string]any, []any, typed slices and
// string-keyed maps of primitives) bypass synth lookup entirely; plain
// composites are still recursed field by field, so complex leaves buried in
// plain containers are dehydrated. Everything else resolves a synth by
// value shape; a lookup miss is logged and the value passed through raw
// rather than aborting the whole dehydration.
func (e *Engine) dehydrateValue(cctx *ComponentContext, path string, v any) any {
	if v == nil || isPrimitive(v) {
		return v
	}

	switch tv := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(tv))
		for _, k := range keys {
			out[k] = e.dehydrateValue(cctx, joinPath(path, k), tv[k])
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, el := range tv {
			out[i] = e.dehydrateValue(cctx, joinPath(path, strconv.Itoa(i)), el)
		}
		return out
	}

	if isPlainComposite(v) {
		return v
	}

	s, err := e.synths.ByValue(v)
	if err != nil {
		e.log.Warn("no synthesizer for property, passing through",
			"component", cctx.Name(), "path", path, "error", err)
		return v
	}

	child := func(name string, cv any) (any, error) {
		return e.dehydrateValue(cctx, joinPath(path, name), cv), nil
	}
	data, meta, err := s.Dehydrate(v, child)
	if err != nil {
		e.log.Warn("dehydrate failed, passing through",
			"component", cctx.Name(), "path", path, "synth", s.Key(), "error", err)
		return v
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["s"] = s.Key()
	return Tuple(data, meta)
}

// hydrateValue reconstructs a live value from its wire representation.
//
// Synthetic tuples hydrate through the synth named by their key - an
// unknown key is fatal, since it means the client holds a snapshot of a
// type this server no longer recognizes. The removal sentinel at a nested
// path is returned as-is; it is an instruction, not data.
func (e *Engine) hydrateValue(path string, v any) (any, error) {
	if s, ok := v.(string); ok && s == Removed && strings.Contains(path, ".") {
		return Removed, nil
	}

	if data, meta, ok := AsTuple(v); ok {
		key, _ := meta["s"].(string)
		s, err := e.synths.ByKey(key)
		if err != nil {
			return nil, err
		}
		child := func(name string, cv any) (any, error) {
			return e.hydrateValue(joinPath(path, name), cv)
		}
		return s.Hydrate(data, meta, child)
	}

	switch tv := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(tv))
		for _, k := range keys {
			hv, err := e.hydrateValue(joinPath(path, k), tv[k])
			if err != nil {
				return nil, err
			}
			out[k] = hv
		}
		return out, nil
	case []any:
		out := make([]any, len(tv))
		for i, el := range tv {
			hv, err := e.hydrateValue(joinPath(path, strconv.Itoa(i)), el)
			if err != nil {
				return nil, err
			}
			out[i] = hv
		}
		return out, nil
	}

	return v, nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func isPrimitive(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// isPlainComposite reports whether v is a typed container whose static
// element type is primitive - JSON-safe as-is, no recursion needed.
func isPlainComposite(v any) bool {
	t := reflect.TypeOf(v)
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return isPrimitiveKind(t.Elem().Kind())
	case reflect.Map:
		return t.Key().Kind() == reflect.String && isPrimitiveKind(t.Elem().Kind())
	}
	return false
}

func isPrimitiveKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// setProperty mutates the property at a dotted path. The removal sentinel
// against a slice element splices the index out; against a map entry it
// deletes the key.
func (e *Engine) setProperty(cctx *ComponentContext, path string, value any) error {
	segs := strings.Split(path, ".")
	fd, ok := cctx.desc().fieldIndex[segs[0]]
	if !ok {
		return fmt.Errorf("livecmp: unknown property %q on component %q", segs[0], cctx.Name())
	}

	root := cctx.desc().fieldValue(cctx.Component, fd)
	if len(segs) == 1 {
		if err := synth.Assign(root, value); err != nil {
			return fmt.Errorf("livecmp: property %q: %w", path, err)
		}
		return nil
	}

	nv, err := mutateValue(root, segs[1:], value)
	if err != nil {
		return fmt.Errorf("livecmp: property %q: %w", path, err)
	}
	root.Set(nv)
	return nil
}

// mutateValue applies the remaining path segments to cur and returns the
// value the caller must store back into cur's slot. Slices are returned as
// fresh headers so splices propagate; maps and pointers mutate in place.
func mutateValue(cur reflect.Value, segs []string, value any) (reflect.Value, error) {
	seg := segs[0]

	switch cur.Kind() {
	case reflect.Interface:
		if cur.IsNil() {
			return cur, fmt.Errorf("nil value at segment %q", seg)
		}
		return mutateValue(reflect.ValueOf(cur.Interface()), segs, value)

	case reflect.Pointer:
		if cur.IsNil() {
			return cur, fmt.Errorf("nil pointer at segment %q", seg)
		}
		nv, err := mutateValue(cur.Elem(), segs, value)
		if err != nil {
			return cur, err
		}
		cur.Elem().Set(nv)
		return cur, nil

	case reflect.Map:
		if cur.Type().Key().Kind() != reflect.String {
			return cur, fmt.Errorf("map at segment %q is not string-keyed", seg)
		}
		key := reflect.ValueOf(seg).Convert(cur.Type().Key())
		if len(segs) == 1 {
			if isRemoved(value) {
				cur.SetMapIndex(key, reflect.Value{})
				return cur, nil
			}
			ev, err := synth.Convert(value, cur.Type().Elem())
			if err != nil {
				return cur, err
			}
			cur.SetMapIndex(key, ev)
			return cur, nil
		}
		child := cur.MapIndex(key)
		if !child.IsValid() {
			return cur, fmt.Errorf("no entry %q", seg)
		}
		nv, err := mutateValue(child, segs[1:], value)
		if err != nil {
			return cur, err
		}
		if !nv.Type().AssignableTo(cur.Type().Elem()) {
			return cur, fmt.Errorf("cannot store %s into %s", nv.Type(), cur.Type().Elem())
		}
		cur.SetMapIndex(key, nv)
		return cur, nil

	case reflect.Slice:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= cur.Len() {
			return cur, fmt.Errorf("index %q out of range", seg)
		}
		if len(segs) == 1 {
			if isRemoved(value) {
				out := reflect.MakeSlice(cur.Type(), 0, cur.Len()-1)
				out = reflect.AppendSlice(out, cur.Slice(0, i))
				out = reflect.AppendSlice(out, cur.Slice(i+1, cur.Len()))
				return out, nil
			}
			ev, err := synth.Convert(value, cur.Type().Elem())
			if err != nil {
				return cur, err
			}
			cur.Index(i).Set(ev)
			return cur, nil
		}
		nv, err := mutateValue(cur.Index(i), segs[1:], value)
		if err != nil {
			return cur, err
		}
		cur.Index(i).Set(nv)
		return cur, nil

	case reflect.Struct:
		if !cur.CanAddr() {
			tmp := reflect.New(cur.Type()).Elem()
			tmp.Set(cur)
			cur = tmp
		}
		f := cur.FieldByName(seg)
		if !f.IsValid() || !f.CanSet() {
			return cur, fmt.Errorf("no settable field %q on %s", seg, cur.Type())
		}
		if len(segs) == 1 {
			if err := synth.Assign(f, value); err != nil {
				return cur, err
			}
			return cur, nil
		}
		nv, err := mutateValue(f, segs[1:], value)
		if err != nil {
			return cur, err
		}
		f.Set(nv)
		return cur, nil
	}

	return cur, fmt.Errorf("cannot descend into %s at segment %q", cur.Kind(), seg)
}

func isRemoved(v any) bool {
	s, ok := v.(string)
	return ok && s == Removed
}
