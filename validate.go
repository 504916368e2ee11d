package livecmp

import (
	"fmt"
	"net/mail"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Validate checks the component's declared Rules against its current
// property values. On success the bag entries for the validated fields are
// cleared; on failure a *ValidationError carries the messages. The engine
// recovers validation errors raised inside action methods into the error
// bag and continues the call batch, so a plain
//
//	if err := c.Validate(); err != nil {
//	    return err
//	}
//
// inside an action surfaces messages to the client without aborting the
// cycle.
func (b *BaseComponent) Validate() error {
	cctx := b.requestContext()
	rp, ok := cctx.Component.(RulesProvider)
	if !ok {
		return nil
	}
	return validateFields(cctx, cctx.Component, rp.Rules(), "")
}

// validateFields runs a rule map against target's fields. Bag keys are
// prefix+field, matching the wire paths inputs bind to.
func validateFields(cctx *ComponentContext, target any, rules map[string]string, prefix string) error {
	fields := make([]string, 0, len(rules))
	for f := range rules {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	cleared := make([]string, len(fields))
	for i, f := range fields {
		cleared[i] = prefix + f
	}
	clearErrorFields(cctx, cleared...)

	bag := map[string][]string{}
	rv := reflect.ValueOf(target)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}

	for _, field := range fields {
		fv, ok := lookupField(rv, field)
		if !ok {
			bag[prefix+field] = []string{fmt.Sprintf("The %s field does not exist.", humanize(field))}
			continue
		}
		for _, rule := range strings.Split(rules[field], "|") {
			if rule == "" {
				continue
			}
			if msg := checkRule(field, fv, rule); msg != "" {
				bag[prefix+field] = append(bag[prefix+field], msg)
			}
		}
	}

	if len(bag) == 0 {
		return nil
	}
	mergeErrorBag(cctx, bag)
	return &ValidationError{Bag: bag}
}

// lookupField resolves a rule key against a struct value: Go field name
// first, then the live tag name, then the json tag name.
func lookupField(rv reflect.Value, key string) (any, bool) {
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if f.Anonymous || !f.IsExported() {
			continue
		}
		if f.Name == key || tagName(f, "live") == key || tagName(f, "json") == key {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}

func tagName(f reflect.StructField, tag string) string {
	v, ok := f.Tag.Lookup(tag)
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(v, ",")
	return name
}

func checkRule(field string, v any, rule string) string {
	name, arg, _ := strings.Cut(rule, ":")
	display := humanize(field)

	switch name {
	case "required":
		if isEmptyValue(v) {
			return fmt.Sprintf("The %s field is required.", display)
		}
	case "min":
		n, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return ""
		}
		if f, ok := asFloat(v); ok {
			if f < n {
				return fmt.Sprintf("The %s field must be at least %s.", display, arg)
			}
		} else if float64(valueLength(v)) < n {
			return fmt.Sprintf("The %s field must be at least %s characters.", display, arg)
		}
	case "max":
		n, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return ""
		}
		if f, ok := asFloat(v); ok {
			if f > n {
				return fmt.Sprintf("The %s field must not be greater than %s.", display, arg)
			}
		} else if float64(valueLength(v)) > n {
			return fmt.Sprintf("The %s field must not be greater than %s characters.", display, arg)
		}
	case "numeric":
		if _, ok := asFloat(v); !ok {
			s, isStr := v.(string)
			if !isStr {
				return fmt.Sprintf("The %s field must be a number.", display)
			}
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				return fmt.Sprintf("The %s field must be a number.", display)
			}
		}
	case "email":
		s, _ := v.(string)
		if s == "" {
			return fmt.Sprintf("The %s field must be a valid email address.", display)
		}
		if _, err := mail.ParseAddress(s); err != nil {
			return fmt.Sprintf("The %s field must be a valid email address.", display)
		}
	case "in":
		allowed := strings.Split(arg, ",")
		s := fmt.Sprintf("%v", v)
		for _, a := range allowed {
			if s == a {
				return ""
			}
		}
		return fmt.Sprintf("The selected %s is invalid.", display)
	}
	return ""
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.String:
		return strings.TrimSpace(rv.String()) == ""
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func valueLength(v any) int {
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.String:
		return len([]rune(rv.String()))
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len()
	}
	return 0
}

// humanize turns a rule key into the display name used in messages:
// "ContactEmail" and "contact_email" both read as "contact email".
func humanize(field string) string {
	var b strings.Builder
	sep := true
	for _, r := range field {
		switch {
		case r == '_' || r == '.':
			if !sep {
				b.WriteByte(' ')
			}
			sep = true
		case r >= 'A' && r <= 'Z':
			if !sep {
				b.WriteByte(' ')
			}
			b.WriteRune(r - 'A' + 'a')
			sep = false
		default:
			b.WriteRune(r)
			sep = false
		}
	}
	return b.String()
}
