package livecmp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/pthm/livecmp/lib/encoding"
	"github.com/pthm/livecmp/lib/synth"
)

// DefaultMaxCalls is the default ceiling on method calls per update request.
const DefaultMaxCalls = 10

// Engine is the lifecycle orchestrator. It sequences mount, snapshot,
// update, and method-call dispatch, running the feature pipeline at each
// phase and the synth registry for every property crossing the wire.
//
// One Engine serves all requests; all per-request state lives in the
// ComponentContext constructed per cycle. Concurrent requests for the same
// logical component are independent - consistency comes from the client
// resubmitting a complete signed snapshot, not from server-side locking.
type Engine struct {
	registry *Registry
	synths   *synth.Registry
	forms    *synth.FormRegistry
	codec    *encoding.Codec
	log      *slog.Logger
	maxCalls int
	locale   string
	features []func() any

	// OnError is called by Handler when a cycle fails. Customize this to
	// handle errors appropriately for your application.
	OnError func(err error) (status int, body string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxCalls sets the ceiling on method calls per update request.
// Oversized batches are rejected wholesale before any call executes.
func WithMaxCalls(n int) Option {
	return func(e *Engine) { e.maxCalls = n }
}

// WithLogger sets the engine's structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithLocale sets the locale recorded in snapshot memos.
func WithLocale(locale string) Option {
	return func(e *Engine) { e.locale = locale }
}

// WithFeature appends a feature factory to the pipeline. The factory runs
// once per component per request; features run after the built-ins, in the
// order added.
func WithFeature(factory func() any) Option {
	return func(e *Engine) { e.features = append(e.features, factory) }
}

// WithSynth appends a synth to the resolution order, after the built-ins.
func WithSynth(s synth.Synth) Option {
	return func(e *Engine) { e.synths.Register(s) }
}

// New creates an engine keyed by the server-held secret. Panics if key
// material is unusable - engines are constructed at startup.
func New(key []byte, registry *Registry, opts ...Option) *Engine {
	codec, err := encoding.New(key)
	if err != nil {
		panic(fmt.Sprintf("livecmp: failed to create codec: %v", err))
	}

	forms := synth.NewFormRegistry()
	e := &Engine{
		registry: registry,
		synths:   synth.Default(forms),
		forms:    forms,
		codec:    codec,
		log:      slog.Default(),
		maxCalls: DefaultMaxCalls,
		locale:   "en",
		features: defaultFeatures(),
	}
	e.OnError = defaultOnError
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Forms returns the engine's form class registry.
func (e *Engine) Forms() *synth.FormRegistry {
	return e.forms
}

// RegisterForm binds a form class name to its constructor.
func (e *Engine) RegisterForm(name string, factory func() any) {
	e.forms.Register(name, factory)
}

// Mounted is the result of mounting a component: the rendered HTML with
// wire attributes injected on the root element, plus the snapshot and
// effects embedded in it.
type Mounted struct {
	HTML     string
	Snapshot *Snapshot
	Effects  map[string]any
}

// Mount constructs and renders a component for the first time. Identity is
// generated here and stays stable for the component's whole client-side
// lifetime.
func (e *Engine) Mount(ctx context.Context, name string, params map[string]any) (*Mounted, error) {
	class, err := e.registry.resolve(name)
	if err != nil {
		return nil, err
	}

	c := class.factory()
	c.liveBase().setIdentity(newComponentID(), name)
	cctx := e.newContext(c, class, true)
	cctx.Memo = newMemo(c.liveBase().ID(), name, "/", e.locale)
	defer e.teardown(ctx, cctx)

	if err := runBoot(cctx); err != nil {
		return nil, err
	}
	if err := runMount(cctx, params); err != nil {
		return nil, err
	}

	if m, ok := c.(Mounter); ok {
		if err := m.Mount(ctx, params); err != nil {
			return nil, err
		}
	} else {
		e.assignParams(cctx, params)
	}
	e.bindForms(cctx)

	html, err := e.renderCycle(ctx, cctx)
	if err != nil {
		return nil, err
	}

	if err := runDehydrate(cctx); err != nil {
		return nil, err
	}
	snap, err := e.snapshotFor(cctx)
	if err != nil {
		return nil, err
	}

	attrs, err := e.rootAttributes(cctx, snap)
	if err != nil {
		return nil, err
	}
	html, err = injectRootAttributes(html, attrs)
	if err != nil {
		return nil, err
	}

	return &Mounted{HTML: html, Snapshot: snap, Effects: cctx.Effects()}, nil
}

// FromSnapshot verifies an inbound snapshot and reconstructs the component
// it describes: checksum check, class resolution by memo name, a fresh
// instance forced to the memo's identity, and recursive hydration of the
// data onto its properties.
func (e *Engine) FromSnapshot(ctx context.Context, snap *Snapshot) (Component, *ComponentContext, error) {
	cctx, err := e.fromSnapshot(ctx, snap, false)
	if err != nil {
		return nil, nil, err
	}
	return cctx.Component, cctx, nil
}

func (e *Engine) fromSnapshot(_ context.Context, snap *Snapshot, sealed bool) (*ComponentContext, error) {
	cleaned := snap
	if !sealed {
		var err error
		cleaned, err = verifySnapshot(e.codec, snap)
		if err != nil {
			return nil, err
		}
	}
	if cleaned.Memo == nil || cleaned.Memo.Name == "" {
		return nil, fmt.Errorf("%w: memo missing", ErrCorruptPayload)
	}

	class, err := e.registry.resolve(cleaned.Memo.Name)
	if err != nil {
		return nil, err
	}

	c := class.factory()
	c.liveBase().setIdentity(cleaned.Memo.ID, cleaned.Memo.Name)
	cctx := e.newContext(c, class, false)
	cctx.Memo = cleaned.Memo

	keys := make([]string, 0, len(cleaned.Data))
	for k := range cleaned.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fd, ok := class.desc.fieldIndex[k]
		if !ok {
			// Not a declared property; stale or computed entries are skipped.
			continue
		}
		hv, err := e.hydrateValue(k, cleaned.Data[k])
		if err != nil {
			return nil, err
		}
		if err := synth.Assign(class.desc.fieldValue(c, fd), hv); err != nil {
			return nil, fmt.Errorf("livecmp: hydrating %s.%s: %w", cleaned.Memo.Name, k, err)
		}
	}
	e.bindForms(cctx)

	return cctx, nil
}

// ParseSnapshot decodes the snapshot JSON string handed back by a client,
// opening sealed snapshots transparently. The returned flag reports whether
// the snapshot arrived sealed (and is therefore already authenticated).
func (e *Engine) ParseSnapshot(raw string) (*Snapshot, bool, error) {
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if snap.Sealed != "" {
		var inner Snapshot
		if err := e.codec.Unseal(snap.Sealed, &inner); err != nil {
			return nil, false, wrapEncodingError(err)
		}
		return &inner, true, nil
	}
	return &snap, false, nil
}

// Update replays a client request against a freshly reconstructed
// component: verify and hydrate, apply property deltas, execute the queued
// method calls, re-render, and produce the next snapshot.
func (e *Engine) Update(ctx context.Context, req *UpdateRequest) (*ComponentUpdate, error) {
	snap, sealed, err := e.ParseSnapshot(req.Snapshot)
	if err != nil {
		return nil, err
	}

	cctx, err := e.fromSnapshot(ctx, snap, sealed)
	if err != nil {
		return nil, err
	}
	defer e.teardown(ctx, cctx)

	if err := runBoot(cctx); err != nil {
		return nil, err
	}
	if err := runHydrate(cctx, cctx.Memo); err != nil {
		return nil, err
	}

	for _, path := range req.Updates.Keys() {
		if err := e.applyUpdate(ctx, cctx, path, req.Updates.Get(path)); err != nil {
			runException(cctx, err)
			return nil, err
		}
	}

	if err := e.dispatchCalls(ctx, cctx, req.Calls); err != nil {
		runException(cctx, err)
		return nil, err
	}

	html, err := e.renderCycle(ctx, cctx)
	if err != nil {
		runException(cctx, err)
		return nil, err
	}
	if !cctx.skipRender {
		cctx.AddEffect("html", html)
	}

	if err := runDehydrate(cctx); err != nil {
		return nil, err
	}
	newSnap, err := e.snapshotFor(cctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(newSnap)
	if err != nil {
		return nil, err
	}

	return &ComponentUpdate{Snapshot: string(raw), Effects: cctx.Effects()}, nil
}

// applyUpdate runs one property delta through the full update contract:
// hydrate the incoming value, run the feature pipeline, give the
// component's updating hooks a chance to veto, mutate, then notify updated
// hooks and finishers.
func (e *Engine) applyUpdate(ctx context.Context, cctx *ComponentContext, path string, raw any) error {
	value, err := e.hydrateValue(path, raw)
	if err != nil {
		return err
	}

	// Features veto first: a locked property must reject before any
	// component hook observes the value.
	finishers, err := runUpdate(cctx, path, value)
	if err != nil {
		return err
	}

	c := cctx.Component
	if u, ok := c.(PropertyUpdating); ok {
		if err := u.Updating(path, value); err != nil {
			return err
		}
	}
	top, _, _ := strings.Cut(path, ".")
	if m, ok := cctx.desc().updating[top]; ok {
		if err := e.invokeHook(ctx, cctx, m, value); err != nil {
			return err
		}
	}

	if err := e.setProperty(cctx, path, value); err != nil {
		return err
	}

	if u, ok := c.(PropertyUpdated); ok {
		u.Updated(path, value)
	}
	if m, ok := cctx.desc().updated[top]; ok {
		if err := e.invokeHook(ctx, cctx, m, value); err != nil {
			return err
		}
	}
	applyFinishers(finishers, value)
	return nil
}

// Reserved wire methods handled by the engine itself rather than user code.
const (
	methodDispatch = "__dispatch"
	methodLazyLoad = "__lazyLoad"
)

// dispatchCalls executes the queued method batch in client order. The
// ceiling check rejects oversized batches wholesale - no call executes.
// Validation failures are recovered into the error bag and the batch
// continues; any other error aborts the remaining calls.
func (e *Engine) dispatchCalls(ctx context.Context, cctx *ComponentContext, calls []MethodCall) error {
	if len(calls) > e.maxCalls {
		return fmt.Errorf("%w: received %d calls, configured max is %d", ErrTooManyCalls, len(calls), e.maxCalls)
	}

	for _, call := range calls {
		ret, err := e.dispatchCall(ctx, cctx, call)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				mergeErrorBag(cctx, verr.Bag)
				continue
			}
			return err
		}
		cctx.Store().Push(cctx.Component, "returns", ret)
	}
	return nil
}

func (e *Engine) dispatchCall(ctx context.Context, cctx *ComponentContext, call MethodCall) (any, error) {
	switch call.Method {
	case methodDispatch:
		return e.handleDispatch(ctx, cctx, call.Params)
	case methodLazyLoad:
		return nil, e.handleLazyLoad(ctx, cctx)
	}

	m, ok := cctx.desc().methods[call.Method]
	if !ok {
		return nil, &MethodError{
			Component: cctx.Name(),
			Method:    call.Method,
			Reason:    "not a public action method",
		}
	}

	early := &EarlyReturn{}
	finishers, err := runCall(cctx, call.Method, call.Params, early)
	if err != nil {
		return nil, err
	}

	var ret any
	if early.Set {
		ret = early.Value
	} else {
		ret, err = e.invoke(ctx, cctx, m, call.Params)
		if err != nil {
			return nil, err
		}
	}

	return applyFinishers(finishers, ret), nil
}

// handleDispatch delivers a re-entrant event to the component's declared
// listener, if any. Unlistened events are a no-op, not an error.
func (e *Engine) handleDispatch(ctx context.Context, cctx *ComponentContext, params []any) (any, error) {
	if len(params) == 0 {
		return nil, &MethodError{Component: cctx.Name(), Method: methodDispatch, Reason: "missing event name"}
	}
	event, ok := params[0].(string)
	if !ok {
		return nil, &MethodError{Component: cctx.Name(), Method: methodDispatch, Reason: "event name must be a string"}
	}

	lp, ok := cctx.Component.(ListenersProvider)
	if !ok {
		return nil, nil
	}
	method, ok := lp.Listeners()[event]
	if !ok {
		return nil, nil
	}
	return e.dispatchCall(ctx, cctx, MethodCall{Method: method, Params: params[1:]})
}

func (e *Engine) handleLazyLoad(ctx context.Context, cctx *ComponentContext) error {
	if l, ok := cctx.Component.(LazyLoader); ok {
		return l.LazyLoad(ctx)
	}
	return nil
}

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// invoke calls a descriptor-validated action method with converted
// positional parameters. Methods may optionally take a leading
// context.Context and return any combination of a value and an error.
func (e *Engine) invoke(ctx context.Context, cctx *ComponentContext, m reflect.Method, params []any) (any, error) {
	mt := m.Type
	args := []reflect.Value{reflect.ValueOf(cctx.Component)}

	next := 1
	if mt.NumIn() > 1 && mt.In(1) == ctxType {
		args = append(args, reflect.ValueOf(ctx))
		next = 2
	}

	expected := mt.NumIn() - next
	if len(params) != expected {
		return nil, &MethodError{
			Component: cctx.Name(),
			Method:    m.Name,
			Reason:    fmt.Sprintf("expects %d parameters, got %d", expected, len(params)),
		}
	}
	for i, p := range params {
		av, err := synth.Convert(p, mt.In(next+i))
		if err != nil {
			return nil, &MethodError{
				Component: cctx.Name(),
				Method:    m.Name,
				Reason:    fmt.Sprintf("parameter %d: %v", i, err),
			}
		}
		args = append(args, av)
	}

	out := m.Func.Call(args)
	var ret any
	for _, o := range out {
		if o.Type() == errType {
			if !o.IsNil() {
				return nil, o.Interface().(error)
			}
			continue
		}
		if ret == nil {
			ret = o.Interface()
		}
	}
	return ret, nil
}

// invokeHook calls an Updating<Field>/Updated<Field> method: optional
// leading context, one value parameter, optional error return.
func (e *Engine) invokeHook(ctx context.Context, cctx *ComponentContext, m reflect.Method, value any) error {
	mt := m.Type
	args := []reflect.Value{reflect.ValueOf(cctx.Component)}

	next := 1
	if mt.NumIn() > 1 && mt.In(1) == ctxType {
		args = append(args, reflect.ValueOf(ctx))
		next = 2
	}
	if mt.NumIn() > next {
		av, err := synth.Convert(value, mt.In(next))
		if err != nil {
			return fmt.Errorf("livecmp: %s hook: %w", m.Name, err)
		}
		args = append(args, av)
	}

	out := m.Func.Call(args)
	for _, o := range out {
		if o.Type() == errType && !o.IsNil() {
			return o.Interface().(error)
		}
	}
	return nil
}

// renderCycle runs the render feature phase, renders the component unless
// a feature flagged the cycle as skip-render, and threads the HTML through
// the collected finishers.
func (e *Engine) renderCycle(ctx context.Context, cctx *ComponentContext) (string, error) {
	finishers, err := runRender(cctx)
	if err != nil {
		return "", err
	}
	if cctx.skipRender {
		return "", nil
	}

	r, ok := cctx.Component.(Renderer)
	if !ok {
		return "", fmt.Errorf("livecmp: component %q does not implement Renderer", cctx.Name())
	}
	var buf bytes.Buffer
	if err := r.Render(ctx).Render(ctx, &buf); err != nil {
		return "", err
	}

	html, _ := applyFinishers(finishers, buf.String()).(string)
	return html, nil
}

// snapshotFor dehydrates every public property and stamps the result.
// Sensitive classes get a sealed snapshot instead of open-with-checksum.
func (e *Engine) snapshotFor(cctx *ComponentContext) (*Snapshot, error) {
	data := make(map[string]any, len(cctx.desc().fields))
	for _, fd := range cctx.desc().fields {
		v := cctx.desc().fieldValue(cctx.Component, fd).Interface()
		data[fd.name] = e.dehydrateValue(cctx, fd.name, v)
	}

	snap := &Snapshot{Data: data, Memo: cctx.Memo}
	if cctx.class.sensitive {
		sealed, err := e.codec.Seal(snap)
		if err != nil {
			return nil, err
		}
		return &Snapshot{Sealed: sealed}, nil
	}

	sum, err := generateChecksum(e.codec, snap)
	if err != nil {
		return nil, err
	}
	snap.Checksum = sum
	return snap, nil
}

func (e *Engine) newContext(c Component, class *componentClass, mounting bool) *ComponentContext {
	cctx := &ComponentContext{
		Component: c,
		Mounting:  mounting,
		class:     class,
		store:     newStore(),
		effects:   make(map[string]any),
	}
	for _, factory := range e.features {
		cctx.features = append(cctx.features, factory())
	}
	c.liveBase().bind(cctx)
	return cctx
}

// teardown ends the component's request scope: destroy features, notify the
// component, and unbind so late store access fails loudly.
func (e *Engine) teardown(ctx context.Context, cctx *ComponentContext) {
	runDestroy(cctx)
	if d, ok := cctx.Component.(Destroyer); ok {
		d.Destroy(ctx)
	}
	cctx.Component.liveBase().bind(nil)
	cctx.store = nil
}

// assignParams is the mount fallback for components without a Mount
// method: matching top-level params are assigned onto same-named
// properties, best effort.
func (e *Engine) assignParams(cctx *ComponentContext, params map[string]any) {
	for k, v := range params {
		if strings.HasPrefix(k, "@") {
			continue
		}
		fd, ok := cctx.desc().fieldIndex[k]
		if !ok {
			continue
		}
		if err := synth.Assign(cctx.desc().fieldValue(cctx.Component, fd), v); err != nil {
			e.log.Warn("mount param not assignable, skipping",
				"component", cctx.Name(), "param", k, "error", err)
		}
	}
}

// bindForms binds every form-object property to its owning component so
// forwarding methods (Validate, error accessors) resolve.
func (e *Engine) bindForms(cctx *ComponentContext) {
	for _, fd := range cctx.desc().fields {
		v := cctx.desc().fieldValue(cctx.Component, fd)
		if v.Kind() != reflect.Pointer || v.IsNil() {
			continue
		}
		if fb, ok := v.Interface().(formBinder); ok {
			fb.bindForm(v.Interface(), cctx.Component, fd.name)
		}
	}
}

// newComponentID generates the crypto-random identity assigned at mount:
// stable for the component's whole client-held lifetime.
func newComponentID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:21]
}

// rootAttributes builds the wire attributes injected on the rendered root
// element at mount.
func (e *Engine) rootAttributes(cctx *ComponentContext, snap *Snapshot) ([]rootAttr, error) {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	effJSON, err := json.Marshal(cctx.Effects())
	if err != nil {
		return nil, err
	}

	attrs := []rootAttr{
		{"wire:id", cctx.ID()},
		{"wire:snapshot", string(snapJSON)},
		{"wire:effects", string(effJSON)},
	}

	var modelable []string
	for _, fd := range cctx.desc().fields {
		if fd.modelable {
			modelable = append(modelable, fd.name)
		}
	}
	if len(modelable) > 0 {
		attrs = append(attrs, rootAttr{"x-modelable", strings.Join(modelable, " ")})
	}
	return attrs, nil
}
