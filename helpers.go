package livecmp

import (
	"encoding/json"
	"net/http"

	"github.com/a-h/templ"
)

// HeaderLivecmp marks requests originating from the livecmp client runtime.
const HeaderLivecmp = "X-Livecmp"

// updateEnvelope is the request body of the update endpoint: one entry per
// component on the page that has pending work.
type updateEnvelope struct {
	Components []*UpdateRequest `json:"components"`
}

// Handler returns the update endpoint. The client posts snapshot + deltas +
// calls for each dirty component and receives the next snapshot and effects
// for each.
//
// Only POST requests carrying the X-Livecmp header are accepted; anything
// else is a client navigating here by hand, not the runtime.
func (e *Engine) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !IsLivecmp(r) {
			http.Error(w, "not a livecmp request", http.StatusBadRequest)
			return
		}

		var env updateEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}

		resp := &UpdateResponse{}
		for _, req := range env.Components {
			cu, err := e.Update(r.Context(), req)
			if err != nil {
				e.log.Error("component update failed", "error", err)
				status, body := e.OnError(err)
				http.Error(w, body, status)
				return
			}
			resp.Components = append(resp.Components, cu)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			e.log.Error("failed to encode update response", "error", err)
		}
	})
}

// IsLivecmp reports whether the request came from the livecmp client
// runtime.
func IsLivecmp(r *http.Request) bool {
	return r.Header.Get(HeaderLivecmp) == "true"
}

// defaultOnError maps cycle errors to HTTP responses. Tampered payloads are
// the client's fault; everything unexpected is a plain 500 with no internal
// detail leaked.
func defaultOnError(err error) (int, string) {
	switch {
	case IsCorruptPayload(err):
		return http.StatusBadRequest, "snapshot rejected"
	case IsUnknownComponent(err):
		return http.StatusNotFound, "unknown component"
	case IsMethodNotAllowed(err), IsTooManyCalls(err), IsLockedProperty(err):
		return http.StatusBadRequest, "request rejected"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// MountHandler returns a page handler that mounts the named component and
// writes it wrapped by layout. Params come from the query string.
func (e *Engine) MountHandler(name string, layout func(content string) templ.Component) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := map[string]any{}
		for k, vs := range r.URL.Query() {
			if len(vs) > 0 {
				params[k] = vs[0]
			}
		}

		mounted, err := e.Mount(r.Context(), name, params)
		if err != nil {
			e.log.Error("component mount failed", "component", name, "error", err)
			status, body := e.OnError(err)
			http.Error(w, body, status)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if layout == nil {
			_, _ = w.Write([]byte(mounted.HTML))
			return
		}
		if err := layout(mounted.HTML).Render(r.Context(), w); err != nil {
			e.log.Error("layout render failed", "component", name, "error", err)
		}
	})
}

// Raw wraps pre-rendered HTML as a templ component without re-escaping.
// Mounted output is already safe markup.
func Raw(html string) templ.Component {
	return templ.Raw(html)
}
