package livecmp

// The feature pipeline: an ordered list of cross-cutting behaviors invoked
// at each lifecycle phase. One instance per feature type per component per
// request. Every phase method is optional - a feature implements only the
// phase interfaces it cares about, and phases it doesn't implement are
// skipped, never an error.
//
// Features run in registration order, uniformly across all phases. Later
// features may depend on store mutations made by earlier ones, so a phase
// runs its features sequentially, never concurrently.

// Finisher is deferred post-processing contributed by a feature for the
// update, call, or render phase. All finishers collected for a phase run in
// registration order after the phase's primary work, threading a forward
// value: a finisher may transform and return a replacement, or return nil
// to leave the incoming value untouched.
type Finisher func(forward any) any

// EarlyReturn lets a call-phase feature short-circuit method invocation:
// setting it supplies the call's return value and skips the real method.
type EarlyReturn struct {
	Set   bool
	Value any
}

// Return records an early return value.
func (er *EarlyReturn) Return(v any) {
	er.Set = true
	er.Value = v
}

// BootFeature runs once when the component's request scope is established.
type BootFeature interface {
	Boot(cctx *ComponentContext) error
}

// MountFeature runs on first render, before the component's own mount.
type MountFeature interface {
	Mount(cctx *ComponentContext, params map[string]any) error
}

// HydrateFeature runs on the update path after the component is
// reconstructed, with the prior request's memo.
type HydrateFeature interface {
	Hydrate(cctx *ComponentContext, memo *Memo) error
}

// DehydrateFeature runs before the new snapshot is computed; features fold
// their store state into the effects payload and the memo here.
type DehydrateFeature interface {
	Dehydrate(cctx *ComponentContext) error
}

// UpdateFeature runs before each property mutation. Returning an error
// rejects the mutation (e.g. locked properties).
type UpdateFeature interface {
	Update(cctx *ComponentContext, path string, value any) (Finisher, error)
}

// CallFeature runs before each method invocation and may short-circuit it.
type CallFeature interface {
	Call(cctx *ComponentContext, method string, params []any, early *EarlyReturn) (Finisher, error)
}

// RenderFeature runs before rendering; its finisher receives the rendered
// HTML and may wrap it.
type RenderFeature interface {
	Render(cctx *ComponentContext) (Finisher, error)
}

// DestroyFeature runs when the request scope ends.
type DestroyFeature interface {
	Destroy(cctx *ComponentContext)
}

// ExceptionFeature observes an error about to propagate out of the cycle.
type ExceptionFeature interface {
	Exception(cctx *ComponentContext, err error)
}

func runBoot(cctx *ComponentContext) error {
	for _, f := range cctx.features {
		if h, ok := f.(BootFeature); ok {
			if err := h.Boot(cctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func runMount(cctx *ComponentContext, params map[string]any) error {
	for _, f := range cctx.features {
		if h, ok := f.(MountFeature); ok {
			if err := h.Mount(cctx, params); err != nil {
				return err
			}
		}
	}
	return nil
}

func runHydrate(cctx *ComponentContext, memo *Memo) error {
	for _, f := range cctx.features {
		if h, ok := f.(HydrateFeature); ok {
			if err := h.Hydrate(cctx, memo); err != nil {
				return err
			}
		}
	}
	return nil
}

func runDehydrate(cctx *ComponentContext) error {
	for _, f := range cctx.features {
		if h, ok := f.(DehydrateFeature); ok {
			if err := h.Dehydrate(cctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func runUpdate(cctx *ComponentContext, path string, value any) ([]Finisher, error) {
	var finishers []Finisher
	for _, f := range cctx.features {
		if h, ok := f.(UpdateFeature); ok {
			fin, err := h.Update(cctx, path, value)
			if err != nil {
				return nil, err
			}
			if fin != nil {
				finishers = append(finishers, fin)
			}
		}
	}
	return finishers, nil
}

func runCall(cctx *ComponentContext, method string, params []any, early *EarlyReturn) ([]Finisher, error) {
	var finishers []Finisher
	for _, f := range cctx.features {
		if h, ok := f.(CallFeature); ok {
			fin, err := h.Call(cctx, method, params, early)
			if err != nil {
				return nil, err
			}
			if fin != nil {
				finishers = append(finishers, fin)
			}
		}
	}
	return finishers, nil
}

func runRender(cctx *ComponentContext) ([]Finisher, error) {
	var finishers []Finisher
	for _, f := range cctx.features {
		if h, ok := f.(RenderFeature); ok {
			fin, err := h.Render(cctx)
			if err != nil {
				return nil, err
			}
			if fin != nil {
				finishers = append(finishers, fin)
			}
		}
	}
	return finishers, nil
}

func runDestroy(cctx *ComponentContext) {
	for _, f := range cctx.features {
		if h, ok := f.(DestroyFeature); ok {
			h.Destroy(cctx)
		}
	}
}

func runException(cctx *ComponentContext, err error) {
	for _, f := range cctx.features {
		if h, ok := f.(ExceptionFeature); ok {
			h.Exception(cctx, err)
		}
	}
}

// applyFinishers threads forward through each finisher in order. A nil
// result from a finisher preserves the incoming forward value.
func applyFinishers(finishers []Finisher, forward any) any {
	for _, fin := range finishers {
		if out := fin(forward); out != nil {
			forward = out
		}
	}
	return forward
}
