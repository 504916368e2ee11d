package synth

import (
	"fmt"
	"reflect"
)

// Assign stores v into dst, converting wire shapes (float64 numbers, []any,
// map[string]any) into dst's static type.
func Assign(dst reflect.Value, v any) error {
	if !dst.CanSet() {
		return fmt.Errorf("cannot set value of type %s", dst.Type())
	}
	converted, err := Convert(v, dst.Type())
	if err != nil {
		return err
	}
	dst.Set(converted)
	return nil
}

// Convert adapts a wire-decoded value to the target type t. JSON decoding
// collapses all numbers to float64 and all composites to []any and
// map[string]any; this restores them into whatever static shape the
// component declares.
func Convert(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type() == t || rv.Type().AssignableTo(t) {
		return rv, nil
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if isNumericKind(rv.Kind()) {
			return rv.Convert(t), nil
		}

	case reflect.String:
		if rv.Kind() == reflect.String {
			return rv.Convert(t), nil
		}

	case reflect.Bool:
		if rv.Kind() == reflect.Bool {
			return rv.Convert(t), nil
		}

	case reflect.Slice:
		in, ok := v.([]any)
		if !ok {
			break
		}
		out := reflect.MakeSlice(t, len(in), len(in))
		for i, el := range in {
			ev, err := Convert(el, t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			out.Index(i).Set(ev)
		}
		return out, nil

	case reflect.Map:
		in, ok := v.(map[string]any)
		if !ok || t.Key().Kind() != reflect.String {
			break
		}
		out := reflect.MakeMapWithSize(t, len(in))
		for k, el := range in {
			ev, err := Convert(el, t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
		}
		return out, nil

	case reflect.Struct:
		in, ok := v.(map[string]any)
		if !ok {
			break
		}
		out := reflect.New(t).Elem()
		for k, el := range in {
			f := out.FieldByName(k)
			if !f.IsValid() || !f.CanSet() {
				continue
			}
			if err := Assign(f, el); err != nil {
				return reflect.Value{}, fmt.Errorf("field %q: %w", k, err)
			}
		}
		return out, nil

	case reflect.Pointer:
		ev, err := Convert(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(t.Elem())
		out.Elem().Set(ev)
		return out, nil

	case reflect.Interface:
		if rv.Type().Implements(t) {
			return rv, nil
		}
	}

	return reflect.Value{}, fmt.Errorf("cannot convert %T to %s", v, t)
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
