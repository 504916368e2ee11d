package livecmp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// UpdateRequest is the wire envelope the client sends for one component:
// the prior snapshot (as it was handed out, a JSON string), the explicit
// property deltas, and the method calls to execute.
type UpdateRequest struct {
	Snapshot string       `json:"snapshot"`
	Updates  *Updates     `json:"updates"`
	Calls    []MethodCall `json:"calls"`
}

// MethodCall is one queued method invocation with positional parameters.
type MethodCall struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// ComponentUpdate is the per-component response: the fresh snapshot (again
// a JSON string) and the effects payload for this cycle.
type ComponentUpdate struct {
	Snapshot string         `json:"snapshot"`
	Effects  map[string]any `json:"effects"`
}

// UpdateResponse is the top-level response envelope.
type UpdateResponse struct {
	Components []*ComponentUpdate `json:"components"`
}

// Updates is an ordered map of dotted property paths to values. JSON
// objects carry no order guarantee, but clients send deltas in a meaningful
// sequence and updates apply in the order received - so decoding preserves
// key order.
type Updates struct {
	keys   []string
	values map[string]any
}

// NewUpdates creates an empty ordered update set.
func NewUpdates() *Updates {
	return &Updates{values: make(map[string]any)}
}

// Set appends (or overwrites, keeping original position) a path update.
func (u *Updates) Set(path string, v any) *Updates {
	if _, exists := u.values[path]; !exists {
		u.keys = append(u.keys, path)
	}
	u.values[path] = v
	return u
}

// Keys returns the paths in arrival order.
func (u *Updates) Keys() []string {
	if u == nil {
		return nil
	}
	return u.keys
}

// Get returns the value for a path.
func (u *Updates) Get(path string) any {
	return u.values[path]
}

// Len returns the number of updates.
func (u *Updates) Len() int {
	if u == nil {
		return 0
	}
	return len(u.keys)
}

// UnmarshalJSON decodes a JSON object preserving key order.
func (u *Updates) UnmarshalJSON(b []byte) error {
	u.keys = nil
	u.values = make(map[string]any)

	dec := json.NewDecoder(bytes.NewReader(b))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("livecmp: updates must be an object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("livecmp: invalid updates key %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		u.Set(key, v)
	}

	_, err = dec.Token() // closing brace
	return err
}

// MarshalJSON encodes the updates preserving arrival order.
func (u *Updates) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range u.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(u.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
