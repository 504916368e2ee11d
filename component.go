package livecmp

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/a-h/templ"
)

// Component is the interface satisfied by embedding BaseComponent.
//
// Components are user structs whose exported fields are the public,
// synthesizable properties. They are constructed fresh on every request -
// either mounted or reconstructed from a snapshot - and never kept alive in
// server memory between requests; all cross-request continuity travels in
// the signed snapshot.
//
// The interface carries only the unexported base accessor, so exported
// fields named ID or Name are ordinary properties: they shadow the
// promoted identity methods on the user struct without breaking
// registration. Identity is always read through the embedded base.
//
// Example:
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
type Component interface {
	liveBase() *BaseComponent
}

// Renderer produces the component's templ output. Required on every
// registered component; called at mount and after each update unless the
// component skipped rendering.
type Renderer interface {
	Render(ctx context.Context) templ.Component
}

// Mounter receives the mount params on first render. Components without a
// Mount method get matching top-level params assigned onto same-named
// properties instead.
type Mounter interface {
	Mount(ctx context.Context, params map[string]any) error
}

// PropertyUpdating is called before each property mutation with the full
// dotted path and the incoming value. Returning an error vetoes the
// mutation and fails the update.
type PropertyUpdating interface {
	Updating(path string, value any) error
}

// PropertyUpdated is called after each property mutation.
type PropertyUpdated interface {
	Updated(path string, value any)
}

// RulesProvider declares validation rules per property, e.g.
// {"Name": "required|min:3"}. See Validate.
type RulesProvider interface {
	Rules() map[string]string
}

// ListenersProvider maps event names to method names for the reserved
// __dispatch wire method.
type ListenersProvider interface {
	Listeners() map[string]string
}

// LazyLoader handles the reserved __lazyLoad wire method.
type LazyLoader interface {
	LazyLoad(ctx context.Context) error
}

// Destroyer is notified when the component's request scope ends.
type Destroyer interface {
	Destroy(ctx context.Context)
}

// BaseComponent is embedded (by value) in user components. It carries
// identity and the per-request context binding, and exposes the side-effect
// API components call from their action methods.
type BaseComponent struct {
	id   string
	name string
	ctx  *ComponentContext
}

// ID returns the component's stable identity, generated at mount and
// preserved across every subsequent update.
func (b *BaseComponent) ID() string { return b.id }

// Name returns the component's registered logical name.
func (b *BaseComponent) Name() string { return b.name }

func (b *BaseComponent) liveBase() *BaseComponent { return b }

func (b *BaseComponent) setIdentity(id, name string) {
	b.id = id
	b.name = name
}

func (b *BaseComponent) bind(cctx *ComponentContext) {
	b.ctx = cctx
}

// requestContext returns the active request scope, panicking with ErrNoStore
// outside one. Side effects only make sense inside a lifecycle run.
func (b *BaseComponent) requestContext() *ComponentContext {
	if b.ctx == nil {
		panic(ErrNoStore)
	}
	return b.ctx
}

// Redirect instructs the client to navigate after this cycle completes.
func (b *BaseComponent) Redirect(url string) {
	cctx := b.requestContext()
	cctx.Store().Set(cctx.Component, "redirect", url)
}

// Dispatch broadcasts a browser event from this component.
func (b *BaseComponent) Dispatch(event string, params map[string]any) {
	b.dispatch(Event{Name: event, Params: params})
}

// DispatchTo targets the event at components with the given logical name.
func (b *BaseComponent) DispatchTo(component, event string, params map[string]any) {
	b.dispatch(Event{Name: event, Params: params, To: component})
}

// DispatchSelf targets the event at this component only.
func (b *BaseComponent) DispatchSelf(event string, params map[string]any) {
	b.dispatch(Event{Name: event, Params: params, Self: true})
}

func (b *BaseComponent) dispatch(ev Event) {
	cctx := b.requestContext()
	cctx.Store().Push(cctx.Component, "dispatched", ev)
}

// Js queues a JavaScript expression for evaluation on the client after the
// response is applied.
func (b *BaseComponent) Js(expr string) {
	cctx := b.requestContext()
	cctx.Store().Push(cctx.Component, "xjs", expr)
}

// SkipRender suppresses re-rendering for this cycle; the snapshot is still
// recomputed and returned.
func (b *BaseComponent) SkipRender() {
	cctx := b.requestContext()
	cctx.Store().Set(cctx.Component, "skipRender", true)
}

// PushURL updates the browser URL after this cycle completes.
func (b *BaseComponent) PushURL(path string) {
	cctx := b.requestContext()
	cctx.Store().Set(cctx.Component, "url", map[string]any{"path": path})
}

// AddError records a validation message for a field in the error bag.
func (b *BaseComponent) AddError(field, message string) {
	cctx := b.requestContext()
	bag := errorBag(cctx)
	bag[field] = append(bag[field], message)
	setErrorBag(cctx, bag)
}

// ResetErrors clears the error bag entries for the given fields, or the
// whole bag when called with no arguments.
func (b *BaseComponent) ResetErrors(fields ...string) {
	cctx := b.requestContext()
	if len(fields) == 0 {
		setErrorBag(cctx, map[string][]string{})
		return
	}
	bag := errorBag(cctx)
	for _, f := range fields {
		delete(bag, f)
	}
	setErrorBag(cctx, bag)
}

// Errors returns the current error bag.
func (b *BaseComponent) Errors() map[string][]string {
	return errorBag(b.requestContext())
}

// fieldDesc describes one public property of a component class.
type fieldDesc struct {
	name      string // wire name
	goName    string
	index     []int
	locked    bool
	modelable bool
}

// classDesc is the cached reflection descriptor for a component class,
// built once at registration. Method dispatch validates against this set
// rather than re-walking the type on every call.
type classDesc struct {
	typ        reflect.Type // pointer-to-struct
	fields     []*fieldDesc
	fieldIndex map[string]*fieldDesc
	methods    map[string]reflect.Method
	updating   map[string]reflect.Method // wire field name -> Updating<Field>
	updated    map[string]reflect.Method // wire field name -> Updated<Field>
}

// Names a user component must not use as action methods; they belong to the
// lifecycle contract.
var lifecycleMethodNames = map[string]bool{
	"Render": true, "Mount": true, "Boot": true, "Rules": true,
	"Updating": true, "Updated": true, "Listeners": true,
	"LazyLoad": true, "Destroy": true,
}

var baseMethodNames = func() map[string]bool {
	t := reflect.TypeOf(&BaseComponent{})
	names := make(map[string]bool, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		names[t.Method(i).Name] = true
	}
	return names
}()

func describeComponent(name string, t reflect.Type) (*classDesc, error) {
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("livecmp: component %q must be a pointer to a struct, got %s", name, t)
	}

	desc := &classDesc{
		typ:        t,
		fieldIndex: make(map[string]*fieldDesc),
		methods:    make(map[string]reflect.Method),
		updating:   make(map[string]reflect.Method),
		updated:    make(map[string]reflect.Method),
	}

	st := t.Elem()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if f.Anonymous || !f.IsExported() {
			continue
		}

		fd := &fieldDesc{name: f.Name, goName: f.Name, index: f.Index}
		if tag, ok := f.Tag.Lookup("live"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" && len(parts) == 1 {
				continue
			}
			if parts[0] != "" {
				fd.name = parts[0]
			}
			for _, opt := range parts[1:] {
				switch opt {
				case "locked":
					fd.locked = true
				case "modelable":
					fd.modelable = true
				}
			}
		}

		if _, dup := desc.fieldIndex[fd.name]; dup {
			return nil, fmt.Errorf("livecmp: component %q has duplicate property name %q", name, fd.name)
		}
		desc.fields = append(desc.fields, fd)
		desc.fieldIndex[fd.name] = fd
	}

	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if baseMethodNames[m.Name] || lifecycleMethodNames[m.Name] {
			continue
		}
		if fd, ok := cutHookPrefix(desc, m.Name, "Updating"); ok {
			desc.updating[fd.name] = m
			continue
		}
		if fd, ok := cutHookPrefix(desc, m.Name, "Updated"); ok {
			desc.updated[fd.name] = m
			continue
		}
		desc.methods[m.Name] = m
	}

	return desc, nil
}

// cutHookPrefix matches method names like UpdatingCount to the Count
// property. Names with the prefix but no matching property are left alone
// so they stay callable as ordinary actions.
func cutHookPrefix(desc *classDesc, methodName, prefix string) (*fieldDesc, bool) {
	rest, ok := strings.CutPrefix(methodName, prefix)
	if !ok || rest == "" {
		return nil, false
	}
	for _, fd := range desc.fields {
		if fd.goName == rest {
			return fd, true
		}
	}
	return nil, false
}

func (d *classDesc) fieldValue(c Component, fd *fieldDesc) reflect.Value {
	return reflect.ValueOf(c).Elem().FieldByIndex(fd.index)
}
