package livecmp

import (
	"fmt"
	"html"
	"strings"

	"github.com/a-h/templ"
)

// Attribute helpers for templ views. Each returns a templ.Attributes map to
// spread onto an element:
//
//	<button { livecmp.Click("Increment")... }>+</button>
//	<input { livecmp.Model("Name")... } />

// Click wires a click handler to a component method. Arguments are rendered
// as a JS-style call expression.
func Click(method string, args ...any) templ.Attributes {
	return templ.Attributes{"wire:click": callExpr(method, args)}
}

// Submit wires a form submit handler to a component method.
func Submit(method string, args ...any) templ.Attributes {
	return templ.Attributes{"wire:submit": callExpr(method, args)}
}

// Model two-way binds an input to a property path, synced on change.
func Model(path string) templ.Attributes {
	return templ.Attributes{"wire:model": path}
}

// ModelLive two-way binds an input to a property path, synced per keystroke.
func ModelLive(path string) templ.Attributes {
	return templ.Attributes{"wire:model.live": path}
}

// Key marks an element with a stable identity for DOM diffing.
func Key(key string) templ.Attributes {
	return templ.Attributes{"wire:key": key}
}

// Poll re-requests the component on an interval, e.g. Poll("5s", "Refresh").
func Poll(interval string, method string) templ.Attributes {
	return templ.Attributes{fmt.Sprintf("wire:poll.%s", interval): callExpr(method, nil)}
}

func callExpr(method string, args []any) string {
	if len(args) == 0 {
		return method
	}
	parts := make([]string, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case string:
			parts[i] = "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
		default:
			parts[i] = fmt.Sprintf("%v", v)
		}
	}
	return fmt.Sprintf("%s(%s)", method, strings.Join(parts, ", "))
}

// rootAttr is one attribute to inject on the rendered root element.
type rootAttr struct {
	key   string
	value string
}

// injectRootAttributes inserts the wire attributes into the first opening
// tag of the rendered HTML. Values are attribute-escaped; the rest of the
// markup is left untouched.
func injectRootAttributes(rendered string, attrs []rootAttr) (string, error) {
	start := strings.IndexByte(rendered, '<')
	if start < 0 {
		return "", fmt.Errorf("livecmp: rendered output has no root element")
	}
	// Skip comments and doctype-ish prefixes to find a real opening tag.
	for start >= 0 && start+1 < len(rendered) && (rendered[start+1] == '!' || rendered[start+1] == '/') {
		next := strings.IndexByte(rendered[start+1:], '<')
		if next < 0 {
			return "", fmt.Errorf("livecmp: rendered output has no root element")
		}
		start += 1 + next
	}

	end := strings.IndexByte(rendered[start:], '>')
	if end < 0 {
		return "", fmt.Errorf("livecmp: unterminated root tag")
	}
	end += start

	insert := end
	if rendered[end-1] == '/' {
		insert = end - 1
	}

	var b strings.Builder
	b.WriteString(rendered[:insert])
	for _, a := range attrs {
		b.WriteByte(' ')
		b.WriteString(a.key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(a.value))
		b.WriteByte('"')
	}
	if insert != end {
		b.WriteByte(' ')
	}
	b.WriteString(rendered[insert:])
	return b.String(), nil
}
