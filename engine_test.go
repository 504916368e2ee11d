package livecmp

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/google/go-cmp/cmp"
)

func htmlView(format string, args ...any) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, format, args...)
		return err
	})
}

type counter struct {
	BaseComponent
	Count int
}

func (c *counter) Increment()    { c.Count++ }
func (c *counter) Add(n int) int { c.Count += n; return c.Count }

func (c *counter) Render(context.Context) templ.Component {
	return htmlView("<div>count: %d</div>", c.Count)
}

func newTestEngine(t *testing.T, register func(*Registry), opts ...Option) *Engine {
	t.Helper()
	reg := NewRegistry()
	register(reg)
	return New([]byte("livecmp-test-secret"), reg, opts...)
}

func counterEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return newTestEngine(t, func(reg *Registry) {
		reg.Add("counter", func() Component { return &counter{} })
	}, opts...)
}

func TestMountRendersAndStamps(t *testing.T) {
	e := counterEngine(t)

	r, err := e.TestMount("counter", nil)
	if err != nil {
		t.Fatalf("TestMount() error = %v", err)
	}

	for _, want := range []string{"count: 0", "wire:id=", "wire:snapshot=", "wire:effects="} {
		if !r.HTMLContains(want) {
			t.Errorf("HTML missing %q:\n%s", want, r.HTML)
		}
	}
	if r.Snapshot.Checksum == "" {
		t.Error("snapshot has no checksum")
	}
	if got := r.Data("Count"); got != 0 {
		t.Errorf("Count = %v, want 0", got)
	}
	if got := r.Snapshot.Memo.Name; got != "counter" {
		t.Errorf("memo name = %q, want counter", got)
	}
	if len(r.Snapshot.Memo.ID) != 21 {
		t.Errorf("memo id length = %d, want 21", len(r.Snapshot.Memo.ID))
	}
}

func TestMountUnknownComponent(t *testing.T) {
	e := counterEngine(t)
	_, err := e.TestMount("missing", nil)
	if !IsUnknownComponent(err) {
		t.Errorf("TestMount() error = %v, want unknown component", err)
	}
}

func TestMountParamsAssigned(t *testing.T) {
	e := counterEngine(t)
	r, err := e.TestMount("counter", map[string]any{"Count": 5, "Unknown": "x"})
	if err != nil {
		t.Fatalf("TestMount() error = %v", err)
	}
	if got := r.Data("Count"); got != 5 {
		t.Errorf("Count = %v, want 5", got)
	}
}

func TestUpdateCallsApplyInOrder(t *testing.T) {
	e := counterEngine(t)
	r, err := e.TestMount("counter", nil)
	if err != nil {
		t.Fatalf("TestMount() error = %v", err)
	}

	r, err = e.TestUpdate(r, nil, Call("Increment"), Call("Increment"))
	if err != nil {
		t.Fatalf("TestUpdate() error = %v", err)
	}
	if got := r.Data("Count"); got != float64(2) {
		t.Errorf("Count = %v, want 2", got)
	}
	if !r.HTMLContains("count: 2") {
		t.Errorf("HTML = %q, want count: 2", r.HTML)
	}
}

func TestUpdateIdentityStable(t *testing.T) {
	e := counterEngine(t)
	r, _ := e.TestMount("counter", nil)
	id := r.Snapshot.Memo.ID

	r, err := e.TestUpdate(r, nil, Call("Increment"))
	if err != nil {
		t.Fatalf("TestUpdate() error = %v", err)
	}
	if r.Snapshot.Memo.ID != id {
		t.Errorf("id changed across update: %q -> %q", id, r.Snapshot.Memo.ID)
	}
}

func TestUpdateDeltasBeforeCalls(t *testing.T) {
	e := counterEngine(t)
	r, _ := e.TestMount("counter", nil)

	r, err := e.TestUpdate(r, NewUpdates().Set("Count", 10), Call("Increment"))
	if err != nil {
		t.Fatalf("TestUpdate() error = %v", err)
	}
	if got := r.Data("Count"); got != float64(11) {
		t.Errorf("Count = %v, want 11 (delta applied before call)", got)
	}
}

func TestMethodReturnValues(t *testing.T) {
	e := counterEngine(t)
	r, _ := e.TestMount("counter", nil)

	r, err := e.TestUpdate(r, nil, Call("Add", 8))
	if err != nil {
		t.Fatalf("TestUpdate() error = %v", err)
	}
	returns, ok := r.Effects["returns"].([]any)
	if !ok || len(returns) != 1 {
		t.Fatalf("returns effect = %v, want one entry", r.Effects["returns"])
	}
	if returns[0] != 8 {
		t.Errorf("return = %v, want 8", returns[0])
	}
}

func TestCallCeiling(t *testing.T) {
	e := counterEngine(t, WithMaxCalls(2))
	r, _ := e.TestMount("counter", nil)

	if _, err := e.TestUpdate(r, nil, Call("Increment"), Call("Increment")); err != nil {
		t.Fatalf("TestUpdate() at ceiling error = %v", err)
	}

	_, err := e.TestUpdate(r, nil, Call("Increment"), Call("Increment"), Call("Increment"))
	if !IsTooManyCalls(err) {
		t.Fatalf("TestUpdate() error = %v, want too many calls", err)
	}
	if !strings.Contains(err.Error(), "received 3 calls, configured max is 2") {
		t.Errorf("error = %q, want call counts in message", err)
	}

	// Rejection is wholesale: no call from the oversized batch ran.
	r2, err := e.TestUpdate(r, nil)
	if err != nil {
		t.Fatalf("TestUpdate() error = %v", err)
	}
	if got := r2.Data("Count"); got != float64(0) {
		t.Errorf("Count = %v, want 0 after rejected batch", got)
	}
}

func TestUnknownMethodRejected(t *testing.T) {
	e := counterEngine(t)
	r, _ := e.TestMount("counter", nil)

	_, err := e.TestUpdate(r, nil, Call("Missing"))
	if !IsMethodNotAllowed(err) {
		t.Fatalf("TestUpdate() error = %v, want method not allowed", err)
	}
	if !strings.Contains(err.Error(), `cannot call method "Missing" on component "counter"`) {
		t.Errorf("error = %q, want method and component named", err)
	}
}

func TestLifecycleMethodsNotCallable(t *testing.T) {
	e := counterEngine(t)
	r, _ := e.TestMount("counter", nil)

	for _, method := range []string{"Render", "SkipRender", "Dispatch"} {
		if _, err := e.TestUpdate(r, nil, Call(method)); !IsMethodNotAllowed(err) {
			t.Errorf("Call(%q) error = %v, want method not allowed", method, err)
		}
	}
}

func TestTamperedSnapshotRejected(t *testing.T) {
	e := counterEngine(t)

	t.Run("data modified", func(t *testing.T) {
		r, _ := e.TestMount("counter", nil)
		r.Snapshot.Data["Count"] = 999
		if _, err := e.TestUpdate(r, nil, Call("Increment")); !IsCorruptPayload(err) {
			t.Errorf("TestUpdate() error = %v, want corrupt payload", err)
		}
	})

	t.Run("checksum flipped", func(t *testing.T) {
		r, _ := e.TestMount("counter", nil)
		sum := []byte(r.Snapshot.Checksum)
		if sum[0] == 'a' {
			sum[0] = 'b'
		} else {
			sum[0] = 'a'
		}
		r.Snapshot.Checksum = string(sum)
		if _, err := e.TestUpdate(r, nil); !IsCorruptPayload(err) {
			t.Errorf("TestUpdate() error = %v, want corrupt payload", err)
		}
	})

	t.Run("checksum stripped", func(t *testing.T) {
		r, _ := e.TestMount("counter", nil)
		r.Snapshot.Checksum = ""
		if _, err := e.TestUpdate(r, nil); !IsCorruptPayload(err) {
			t.Errorf("TestUpdate() error = %v, want corrupt payload", err)
		}
	})
}

type guarded struct {
	BaseComponent
	Owner     string         `live:",locked"`
	OwnerNote string
	Meta      map[string]any `live:",locked"`
}

func (g *guarded) Render(context.Context) templ.Component {
	return htmlView("<div>%s</div>", g.Owner)
}

func TestLockedProperties(t *testing.T) {
	e := newTestEngine(t, func(reg *Registry) {
		reg.Add("guarded", func() Component {
			return &guarded{Meta: map[string]any{"k": "v"}}
		})
	})
	r, err := e.TestMount("guarded", nil)
	if err != nil {
		t.Fatalf("TestMount() error = %v", err)
	}

	tests := []struct {
		path     string
		rejected bool
	}{
		{"Owner", true},
		{"Meta.k", true},
		{"OwnerNote", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := e.TestUpdate(r, NewUpdates().Set(tt.path, "x"))
			if tt.rejected != IsLockedProperty(err) {
				t.Errorf("update %q error = %v, rejected = %v", tt.path, err, tt.rejected)
			}
		})
	}
}

type listing struct {
	BaseComponent
	Items []string
	Tags  map[string]string
}

func (l *listing) Render(context.Context) templ.Component {
	return htmlView("<ul>%d items</ul>", len(l.Items))
}

func TestRemovalSentinel(t *testing.T) {
	e := newTestEngine(t, func(reg *Registry) {
		reg.Add("listing", func() Component {
			return &listing{
				Items: []string{"a", "b", "c"},
				Tags:  map[string]string{"x": "1", "y": "2"},
			}
		})
	})
	r, err := e.TestMount("listing", nil)
	if err != nil {
		t.Fatalf("TestMount() error = %v", err)
	}

	t.Run("slice splice", func(t *testing.T) {
		got, err := e.TestUpdate(r, NewUpdates().Set("Items.1", Removed))
		if err != nil {
			t.Fatalf("TestUpdate() error = %v", err)
		}
		if diff := cmp.Diff([]any{"a", "c"}, got.Data("Items")); diff != "" {
			t.Errorf("Items mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("map delete", func(t *testing.T) {
		got, err := e.TestUpdate(r, NewUpdates().Set("Tags.y", Removed))
		if err != nil {
			t.Fatalf("TestUpdate() error = %v", err)
		}
		if diff := cmp.Diff(map[string]any{"x": "1"}, got.Data("Tags")); diff != "" {
			t.Errorf("Tags mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("nested element update", func(t *testing.T) {
		got, err := e.TestUpdate(r, NewUpdates().Set("Items.2", "z"))
		if err != nil {
			t.Fatalf("TestUpdate() error = %v", err)
		}
		if diff := cmp.Diff([]any{"a", "b", "z"}, got.Data("Items")); diff != "" {
			t.Errorf("Items mismatch (-want +got):\n%s", diff)
		}
	})
}

// record shadows the embedded identity methods with same-named properties;
// both must register and travel as ordinary state.
type record struct {
	BaseComponent
	ID   string
	Name string
}

func (r *record) Rename(name string) { r.Name = name }

func (r *record) Render(context.Context) templ.Component {
	return htmlView("<div>%s: %s</div>", r.ID, r.Name)
}

func TestIdentityNamedProperties(t *testing.T) {
	e := newTestEngine(t, func(reg *Registry) {
		reg.Add("record", func() Component { return &record{} })
	})

	r, err := e.TestMount("record", map[string]any{"ID": "r-1", "Name": "alpha"})
	if err != nil {
		t.Fatalf("TestMount() error = %v", err)
	}
	if got := r.Data("ID"); got != "r-1" {
		t.Errorf("ID property = %v, want r-1", got)
	}
	if got := r.Data("Name"); got != "alpha" {
		t.Errorf("Name property = %v, want alpha", got)
	}
	// The memo identity is the engine-generated id, never the property.
	if r.Snapshot.Memo.ID == "r-1" || len(r.Snapshot.Memo.ID) != 21 {
		t.Errorf("memo id = %q, want generated identity", r.Snapshot.Memo.ID)
	}
	if r.Snapshot.Memo.Name != "record" {
		t.Errorf("memo name = %q, want record", r.Snapshot.Memo.Name)
	}

	r, err = e.TestUpdate(r, nil, Call("Rename", "beta"))
	if err != nil {
		t.Fatalf("TestUpdate() error = %v", err)
	}
	if got := r.Data("Name"); got != "beta" {
		t.Errorf("Name property = %v, want beta", got)
	}
}

type signup struct {
	BaseComponent
	Name string
}

func (s *signup) Rules() map[string]string {
	return map[string]string{"Name": "required|min:3"}
}

func (s *signup) Save() error { return s.Validate() }

func (s *signup) Render(context.Context) templ.Component {
	return htmlView("<form>%s</form>", s.Name)
}

func TestValidationLifecycle(t *testing.T) {
	e := newTestEngine(t, func(reg *Registry) {
		reg.Add("signup", func() Component { return &signup{} })
	})
	r, err := e.TestMount("signup", nil)
	if err != nil {
		t.Fatalf("TestMount() error = %v", err)
	}

	// Too short: the call batch survives, messages land in the bag.
	r, err = e.TestUpdate(r, NewUpdates().Set("Name", "Jo"), Call("Save"))
	if err != nil {
		t.Fatalf("TestUpdate() error = %v (validation must not fail the cycle)", err)
	}
	msgs := r.Errors()["Name"]
	if len(msgs) != 1 || !strings.Contains(msgs[0], "at least 3") {
		t.Fatalf("Errors()[Name] = %v, want min-length message", msgs)
	}

	// Valid input clears the carried-over bag entry.
	r, err = e.TestUpdate(r, NewUpdates().Set("Name", "John"), Call("Save"))
	if err != nil {
		t.Fatalf("TestUpdate() error = %v", err)
	}
	if len(r.Errors()) != 0 {
		t.Errorf("Errors() = %v, want empty after valid input", r.Errors())
	}
	if got := r.Data("Name"); got != "John" {
		t.Errorf("Name = %v, want John", got)
	}
}

type hooked struct {
	BaseComponent
	Count      int
	LastChange int
}

func (h *hooked) UpdatingCount(v int) error {
	if v > 100 {
		return fmt.Errorf("count %d out of range", v)
	}
	return nil
}

func (h *hooked) UpdatedCount(v int) { h.LastChange = v }

func (h *hooked) Render(context.Context) templ.Component {
	return htmlView("<div>%d</div>", h.Count)
}

func TestPropertyHooks(t *testing.T) {
	e := newTestEngine(t, func(reg *Registry) {
		reg.Add("hooked", func() Component { return &hooked{} })
	})
	r, _ := e.TestMount("hooked", nil)

	got, err := e.TestUpdate(r, NewUpdates().Set("Count", 7))
	if err != nil {
		t.Fatalf("TestUpdate() error = %v", err)
	}
	if got.Data("LastChange") != float64(7) {
		t.Errorf("LastChange = %v, want 7 (UpdatedCount ran)", got.Data("LastChange"))
	}

	if _, err := e.TestUpdate(r, NewUpdates().Set("Count", 101)); err == nil {
		t.Error("UpdatingCount veto did not fail the update")
	}
}

type notifier struct {
	BaseComponent
	Pings int
}

func (n *notifier) Ping() {
	n.Pings++
	n.Dispatch("pinged", map[string]any{"count": n.Pings})
}

func (n *notifier) Listeners() map[string]string {
	return map[string]string{"external": "Ping"}
}

func (n *notifier) Render(context.Context) templ.Component {
	return htmlView("<div>%d</div>", n.Pings)
}

func TestDispatchEffects(t *testing.T) {
	e := newTestEngine(t, func(reg *Registry) {
		reg.Add("notifier", func() Component { return &notifier{} })
	})
	r, _ := e.TestMount("notifier", nil)

	r, err := e.TestUpdate(r, nil, Call("Ping"))
	if err != nil {
		t.Fatalf("TestUpdate() error = %v", err)
	}
	dispatches, ok := r.Effects["dispatches"].([]any)
	if !ok || len(dispatches) != 1 {
		t.Fatalf("dispatches effect = %v, want one event", r.Effects["dispatches"])
	}
	ev, ok := dispatches[0].(Event)
	if !ok || ev.Name != "pinged" {
		t.Errorf("event = %+v, want pinged", dispatches[0])
	}
}

func TestDispatchReservedMethod(t *testing.T) {
	e := newTestEngine(t, func(reg *Registry) {
		reg.Add("notifier", func() Component { return &notifier{} })
	})
	r, _ := e.TestMount("notifier", nil)

	r, err := e.TestUpdate(r, nil, Call("__dispatch", "external"))
	if err != nil {
		t.Fatalf("TestUpdate() error = %v", err)
	}
	if got := r.Data("Pings"); got != float64(1) {
		t.Errorf("Pings = %v, want 1 (listener routed to Ping)", got)
	}

	// Events without a listener are a no-op, not an error.
	if _, err := e.TestUpdate(r, nil, Call("__dispatch", "unheard")); err != nil {
		t.Errorf("unlistened dispatch error = %v, want nil", err)
	}
}

type sider struct {
	BaseComponent
	N int
}

func (s *sider) Go() {
	s.Redirect("/home")
	s.Js("console.log('done')")
	s.PushURL("/counted")
}

func (s *sider) Quiet() {
	s.N++
	s.SkipRender()
}

func (s *sider) Render(context.Context) templ.Component {
	return htmlView("<div>%d</div>", s.N)
}

func TestSideEffects(t *testing.T) {
	e := newTestEngine(t, func(reg *Registry) {
		reg.Add("sider", func() Component { return &sider{} })
	})
	r, _ := e.TestMount("sider", nil)

	r2, err := e.TestUpdate(r, nil, Call("Go"))
	if err != nil {
		t.Fatalf("TestUpdate() error = %v", err)
	}
	if got := r2.Effects["redirect"]; got != "/home" {
		t.Errorf("redirect = %v, want /home", got)
	}
	if xjs, ok := r2.Effects["xjs"].([]any); !ok || len(xjs) != 1 {
		t.Errorf("xjs = %v, want one expression", r2.Effects["xjs"])
	}
	if diff := cmp.Diff(map[string]any{"path": "/counted"}, r2.Effects["url"]); diff != "" {
		t.Errorf("url mismatch (-want +got):\n%s", diff)
	}
}

func TestSkipRender(t *testing.T) {
	e := newTestEngine(t, func(reg *Registry) {
		reg.Add("sider", func() Component { return &sider{} })
	})
	r, _ := e.TestMount("sider", nil)

	r2, err := e.TestUpdate(r, nil, Call("Quiet"))
	if err != nil {
		t.Fatalf("TestUpdate() error = %v", err)
	}
	if _, ok := r2.Effects["html"]; ok {
		t.Error("html effect present despite SkipRender")
	}
	if got := r2.Data("N"); got != float64(1) {
		t.Errorf("N = %v, want 1 (state still advanced)", got)
	}
}

func TestSealedSnapshots(t *testing.T) {
	e := newTestEngine(t, func(reg *Registry) {
		reg.Add("counter", func() Component { return &counter{} }).Sensitive()
	})

	r, err := e.TestMount("counter", nil)
	if err != nil {
		t.Fatalf("TestMount() error = %v", err)
	}
	if r.Snapshot.Sealed == "" {
		t.Fatal("sensitive class produced an open snapshot")
	}
	if r.Snapshot.Data != nil {
		t.Errorf("sealed snapshot exposes data: %v", r.Snapshot.Data)
	}
	if strings.Contains(r.HTML, `"Count"`) {
		t.Error("sealed state visible in rendered HTML")
	}

	r, err = e.TestUpdate(r, nil, Call("Increment"))
	if err != nil {
		t.Fatalf("TestUpdate() error = %v", err)
	}
	if r.Snapshot.Sealed == "" {
		t.Error("update response snapshot not sealed")
	}
	if !r.HTMLContains("count: 1") {
		t.Errorf("HTML = %q, want count: 1", r.HTML)
	}
}
