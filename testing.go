package livecmp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// TestResult holds one lifecycle cycle's output for assertions: the
// rendered HTML, the decoded snapshot, and the effects payload.
type TestResult struct {
	HTML     string
	Snapshot *Snapshot
	Effects  map[string]any
}

// HTMLContains reports whether the rendered HTML contains s.
func (r *TestResult) HTMLContains(s string) bool {
	return strings.Contains(r.HTML, s)
}

// Data returns the dehydrated value of a property from the snapshot.
func (r *TestResult) Data(name string) any {
	if r.Snapshot == nil {
		return nil
	}
	return r.Snapshot.Data[name]
}

// Errors returns the error bag carried in the snapshot memo.
func (r *TestResult) Errors() map[string][]string {
	if r.Snapshot == nil || r.Snapshot.Memo == nil {
		return map[string][]string{}
	}
	return r.Snapshot.Memo.Errors
}

// SnapshotJSON re-encodes the snapshot the way the client would hold it.
func (r *TestResult) SnapshotJSON() (string, error) {
	b, err := json.Marshal(r.Snapshot)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// TestMount mounts a component and returns its first cycle.
func (e *Engine) TestMount(name string, params map[string]any) (*TestResult, error) {
	mounted, err := e.Mount(context.Background(), name, params)
	if err != nil {
		return nil, err
	}
	return &TestResult{HTML: mounted.HTML, Snapshot: mounted.Snapshot, Effects: mounted.Effects}, nil
}

// TestUpdate replays one update cycle against a prior result's snapshot and
// returns the next cycle. Updates apply in insertion order, then calls run
// in order.
func (e *Engine) TestUpdate(prev *TestResult, updates *Updates, calls ...MethodCall) (*TestResult, error) {
	raw, err := prev.SnapshotJSON()
	if err != nil {
		return nil, err
	}
	if updates == nil {
		updates = NewUpdates()
	}

	cu, err := e.Update(context.Background(), &UpdateRequest{
		Snapshot: raw,
		Updates:  updates,
		Calls:    calls,
	})
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(cu.Snapshot), &snap); err != nil {
		return nil, fmt.Errorf("livecmp: decoding response snapshot: %w", err)
	}

	result := &TestResult{Snapshot: &snap, Effects: cu.Effects}
	if html, ok := cu.Effects["html"].(string); ok {
		result.HTML = html
	}
	return result, nil
}

// Call is shorthand for building a MethodCall in tests.
func Call(method string, params ...any) MethodCall {
	return MethodCall{Method: method, Params: params}
}
