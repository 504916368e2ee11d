package livecmp

import (
	"encoding/json"

	"github.com/pthm/livecmp/lib/encoding"
)

// Removed is the wire sentinel for "this nested entry was removed
// client-side". It is never hydrated as data: at a dotted path into a slice
// it splices the element out, and into a map it deletes the key.
const Removed = "__rm__"

// Snapshot is the wire-serializable state of one component: dehydrated
// property data, identity metadata, and an integrity checksum. For
// components registered as sensitive, the whole snapshot instead travels
// sealed (encrypted) in the Sealed field.
type Snapshot struct {
	Data     map[string]any `json:"data,omitempty"`
	Memo     *Memo          `json:"memo,omitempty"`
	Checksum string         `json:"checksum,omitempty"`
	Sealed   string         `json:"sealed,omitempty"`
}

// checksumPayload returns the canonical bytes the checksum is computed over:
// data and memo only. The checksum field itself is never part of its input.
func (s *Snapshot) checksumPayload() ([]byte, error) {
	return encoding.Canonical(struct {
		Data map[string]any `json:"data"`
		Memo *Memo          `json:"memo"`
	}{s.Data, s.Memo})
}

// Tuple wraps dehydrated data and its meta into the two-element wire form.
func Tuple(data any, meta map[string]any) []any {
	return []any{data, meta}
}

// AsTuple reports whether v has the synthetic tuple shape: a two-element
// array whose second element is an object carrying a non-empty synth key
// under "s".
//
// The shape is ambiguous by wire-format design: a legitimate two-element
// array whose second element happens to be an object with a string "s"
// field is indistinguishable from a tuple and will be misread. Kept for
// compatibility.
func AsTuple(v any) (data any, meta map[string]any, ok bool) {
	arr, isArr := v.([]any)
	if !isArr || len(arr) != 2 {
		return nil, nil, false
	}
	meta, isMap := arr[1].(map[string]any)
	if !isMap {
		return nil, nil, false
	}
	if key, isStr := meta["s"].(string); !isStr || key == "" {
		return nil, nil, false
	}
	return arr[0], meta, true
}

// Memo is the non-secret identity and routing metadata of a snapshot. It is
// not encrypted but is covered by the checksum, so clients cannot alter it.
type Memo struct {
	ID       string
	Name     string
	Path     string
	Method   string
	Children []string
	Scripts  []string
	Assets   []string
	Errors   map[string][]string
	Locale   string

	// Extra carries feature-contributed entries that are not part of the
	// fixed field set. Fixed keys in Extra are ignored on marshal.
	Extra map[string]any
}

func newMemo(id, name, path, locale string) *Memo {
	return &Memo{
		ID:       id,
		Name:     name,
		Path:     path,
		Method:   "GET",
		Children: []string{},
		Scripts:  []string{},
		Assets:   []string{},
		Errors:   map[string][]string{},
		Locale:   locale,
	}
}

var memoFixedKeys = map[string]bool{
	"id": true, "name": true, "path": true, "method": true,
	"children": true, "scripts": true, "assets": true,
	"errors": true, "locale": true,
}

// MarshalJSON emits the fixed fields merged with Extra. Keys are sorted by
// the encoder, so the output is canonical.
func (m *Memo) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"id":       m.ID,
		"name":     m.Name,
		"path":     m.Path,
		"method":   m.Method,
		"children": emptyIfNil(m.Children),
		"scripts":  emptyIfNil(m.Scripts),
		"assets":   emptyIfNil(m.Assets),
		"errors":   m.errorsOrEmpty(),
		"locale":   m.Locale,
	}
	for k, v := range m.Extra {
		if !memoFixedKeys[k] {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the fixed fields back out and keeps the rest in Extra.
func (m *Memo) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	m.ID, _ = raw["id"].(string)
	m.Name, _ = raw["name"].(string)
	m.Path, _ = raw["path"].(string)
	m.Method, _ = raw["method"].(string)
	m.Locale, _ = raw["locale"].(string)
	m.Children = toStringSlice(raw["children"])
	m.Scripts = toStringSlice(raw["scripts"])
	m.Assets = toStringSlice(raw["assets"])
	m.Errors = toErrorBag(raw["errors"])

	m.Extra = nil
	for k, v := range raw {
		if memoFixedKeys[k] {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = v
	}
	return nil
}

// SetExtra records a feature-contributed memo entry.
func (m *Memo) SetExtra(key string, v any) {
	if m.Extra == nil {
		m.Extra = make(map[string]any)
	}
	m.Extra[key] = v
}

func (m *Memo) errorsOrEmpty() map[string][]string {
	if m.Errors == nil {
		return map[string][]string{}
	}
	return m.Errors
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toStringSlice(v any) []string {
	out := []string{}
	arr, ok := v.([]any)
	if !ok {
		return out
	}
	for _, el := range arr {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toErrorBag(v any) map[string][]string {
	out := map[string][]string{}
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for field, msgs := range m {
		out[field] = toStringSlice(msgs)
	}
	return out
}
