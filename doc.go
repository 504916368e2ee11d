// Package livecmp provides server-driven reactive UI components for Go:
// components render to HTML on the server with Templ, ship their state to
// the browser as a tamper-evident snapshot, and replay client interactions
// through a hydrate/update/call/render cycle.
//
// # Core Concepts
//
// Components are plain structs embedding BaseComponent. Exported fields are
// the public properties: they travel in the snapshot, the client may update
// them, and they are restored onto a fresh instance on every request.
// Exported methods (except lifecycle hooks) are actions the client may
// invoke.
//
//	type Counter struct {
//	    livecmp.BaseComponent
//	    Count int
//	}
//
//	func (c *Counter) Increment() { c.Count++ }
//
//	func (c *Counter) Render(ctx context.Context) templ.Component {
//	    return counterView(c)
//	}
//
// Register classes once at startup and build an engine around a server-held
// secret:
//
//	reg := livecmp.NewRegistry()
//	reg.Add("counter", func() livecmp.Component { return &Counter{} })
//	engine := livecmp.New(secret, reg)
//
// # Snapshots
//
// The server keeps no session state. Each response carries a snapshot of
// the component's dehydrated properties plus a memo of metadata, signed
// with HMAC-SHA256. The client returns the snapshot verbatim with its next
// request; a failed checksum rejects the request before any state is
// touched. Classes registered with Sensitive() get sealed (encrypted)
// snapshots instead of open signed ones.
//
// Non-primitive properties cross the wire through synthesizers, which pack
// a value into JSON-safe data plus a metadata tuple and reconstruct it on
// the way back. Built-ins cover times, slices, maps, and registered form
// objects; register custom synths with WithSynth.
//
// # Updates
//
// The client posts property deltas (dotted paths, applied in order) and a
// bounded batch of method calls. Properties tagged `live:",locked"` reject
// client writes. Cross-cutting behavior (validation error bags, dispatched
// events, redirects) runs as a pipeline of features hooked into each
// lifecycle phase.
package livecmp
