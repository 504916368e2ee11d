package livecmp

// ComponentContext carries the per-request mutable state of one component
// through a render or update cycle: the memo under construction, the effects
// accumulator, the store, and the feature instances bound to this component.
//
// A fresh context is constructed per component per request and threaded
// explicitly through every orchestrator and feature call - no ambient
// request-local state.
type ComponentContext struct {
	// Component is the live instance this context belongs to.
	Component Component

	// Mounting is true on the first render (no prior snapshot), false on
	// the update path.
	Mounting bool

	// Memo is the identity metadata for the snapshot being built or replayed.
	Memo *Memo

	class      *componentClass
	store      *Store
	features   []any
	effects    map[string]any
	skipRender bool
}

// ID returns the component's stable identity. Identity is read through the
// embedded base, so a component property named ID never shadows it.
func (c *ComponentContext) ID() string {
	return c.Component.liveBase().ID()
}

// Name returns the component's registered logical name.
func (c *ComponentContext) Name() string {
	return c.Component.liveBase().Name()
}

// Store returns the request-scoped store. Accessing the store outside an
// active request scope is a programmer error and panics with ErrNoStore.
func (c *ComponentContext) Store() *Store {
	if c == nil || c.store == nil {
		panic(ErrNoStore)
	}
	return c.store
}

// AddEffect records an entry in the effects payload for this cycle.
func (c *ComponentContext) AddEffect(key string, v any) {
	c.effects[key] = v
}

// Effects returns the accumulated effects payload.
func (c *ComponentContext) Effects() map[string]any {
	return c.effects
}

func (c *ComponentContext) desc() *classDesc {
	return c.class.desc
}
