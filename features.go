package livecmp

import (
	"fmt"
	"strings"
)

// Event is a dispatched browser event waiting to travel in the effects
// payload.
type Event struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
	To     string         `json:"to,omitempty"`
	Self   bool           `json:"self,omitempty"`
}

// defaultFeatures returns the built-in feature factories in their fixed
// registration order. Order is part of the contract: the locked-property
// guard must veto before anything else reacts to an update, and the error
// bag must land in the memo before the snapshot is computed.
func defaultFeatures() []func() any {
	return []func() any{
		func() any { return &lockedFeature{} },
		func() any { return &validationFeature{} },
		func() any { return &eventsFeature{} },
		func() any { return &redirectFeature{} },
		func() any { return &jsFeature{} },
		func() any { return &returnsFeature{} },
		func() any { return &urlFeature{} },
		func() any { return &skipRenderFeature{} },
	}
}

// lockedFeature rejects updates whose top-level property carries the
// `live:",locked"` tag, including nested paths under it. The rejection is
// fatal for the update - locked writes are never silently ignored.
type lockedFeature struct{}

func (lockedFeature) Update(cctx *ComponentContext, path string, _ any) (Finisher, error) {
	top, _, _ := strings.Cut(path, ".")
	if fd, ok := cctx.desc().fieldIndex[top]; ok && fd.locked {
		return nil, fmt.Errorf("%w: cannot update %q on component %q", ErrLockedProperty, path, cctx.Name())
	}
	return nil, nil
}

// validationFeature carries the error bag across the cycle: seeded from the
// prior memo at hydrate, folded back into the new memo at dehydrate.
type validationFeature struct{}

func (validationFeature) Hydrate(cctx *ComponentContext, memo *Memo) error {
	if len(memo.Errors) == 0 {
		return nil
	}
	bag := make(map[string][]string, len(memo.Errors))
	for field, msgs := range memo.Errors {
		bag[field] = append([]string(nil), msgs...)
	}
	setErrorBag(cctx, bag)
	return nil
}

func (validationFeature) Dehydrate(cctx *ComponentContext) error {
	cctx.Memo.Errors = errorBag(cctx)
	return nil
}

// eventsFeature folds dispatched events into the effects payload and turns
// @event mount params into listener wiring.
type eventsFeature struct{}

func (eventsFeature) Mount(cctx *ComponentContext, params map[string]any) error {
	listeners := map[string]any{}
	for k, v := range params {
		if name, ok := strings.CutPrefix(k, "@"); ok && name != "" {
			listeners[name] = v
		}
	}
	if len(listeners) > 0 {
		cctx.Store().Set(cctx.Component, "listeners", listeners)
	}
	return nil
}

func (eventsFeature) Dehydrate(cctx *ComponentContext) error {
	store := cctx.Store()
	if dispatched, ok := store.Get(cctx.Component, "dispatched").([]any); ok && len(dispatched) > 0 {
		cctx.AddEffect("dispatches", dispatched)
	}
	if store.Has(cctx.Component, "listeners") {
		cctx.AddEffect("listeners", store.Get(cctx.Component, "listeners"))
	}
	return nil
}

// redirectFeature folds a queued redirect into the effects payload.
type redirectFeature struct{}

func (redirectFeature) Dehydrate(cctx *ComponentContext) error {
	if cctx.Store().Has(cctx.Component, "redirect") {
		cctx.AddEffect("redirect", cctx.Store().Get(cctx.Component, "redirect"))
	}
	return nil
}

// jsFeature folds queued JavaScript expressions into the effects payload.
type jsFeature struct{}

func (jsFeature) Dehydrate(cctx *ComponentContext) error {
	if xjs, ok := cctx.Store().Get(cctx.Component, "xjs").([]any); ok && len(xjs) > 0 {
		cctx.AddEffect("xjs", xjs)
	}
	return nil
}

// returnsFeature folds method-call return values, in call order, into the
// effects payload.
type returnsFeature struct{}

func (returnsFeature) Dehydrate(cctx *ComponentContext) error {
	if cctx.Store().Has(cctx.Component, "returns") {
		cctx.AddEffect("returns", cctx.Store().Get(cctx.Component, "returns"))
	}
	return nil
}

// urlFeature folds a queued URL push into the effects payload.
type urlFeature struct{}

func (urlFeature) Dehydrate(cctx *ComponentContext) error {
	if cctx.Store().Has(cctx.Component, "url") {
		cctx.AddEffect("url", cctx.Store().Get(cctx.Component, "url"))
	}
	return nil
}

// skipRenderFeature honors a SkipRender call: the render phase is skipped
// but snapshot and effects are still produced.
type skipRenderFeature struct{}

func (skipRenderFeature) Render(cctx *ComponentContext) (Finisher, error) {
	if skip, ok := cctx.Store().GetOr(cctx.Component, "skipRender", false).(bool); ok && skip {
		cctx.skipRender = true
	}
	return nil, nil
}

// Error bag access shared by features, validation, and the component API.
// The bag lives in the store for the duration of one request.

func errorBag(cctx *ComponentContext) map[string][]string {
	bag, ok := cctx.Store().GetOr(cctx.Component, "errors", nil).(map[string][]string)
	if !ok || bag == nil {
		return map[string][]string{}
	}
	return bag
}

func setErrorBag(cctx *ComponentContext, bag map[string][]string) {
	cctx.Store().Set(cctx.Component, "errors", bag)
}

func mergeErrorBag(cctx *ComponentContext, incoming map[string][]string) {
	bag := errorBag(cctx)
	for field, msgs := range incoming {
		bag[field] = append([]string(nil), msgs...)
	}
	setErrorBag(cctx, bag)
}

func clearErrorFields(cctx *ComponentContext, fields ...string) {
	bag := errorBag(cctx)
	for _, f := range fields {
		delete(bag, f)
	}
	setErrorBag(cctx, bag)
}
