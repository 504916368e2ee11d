package livecmp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func postUpdate(t *testing.T, h http.Handler, body string, header bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/livecmp/update", strings.NewReader(body))
	if header {
		req.Header.Set(HeaderLivecmp, "true")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandlerGuards(t *testing.T) {
	e := counterEngine(t)
	h := e.Handler()

	t.Run("rejects GET", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/livecmp/update", nil)
		req.Header.Set(HeaderLivecmp, "true")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET status = %d, want 405", w.Code)
		}
	})

	t.Run("rejects missing header", func(t *testing.T) {
		if w := postUpdate(t, h, `{"components":[]}`, false); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		if w := postUpdate(t, h, `{not json`, true); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestHandlerRoundTrip(t *testing.T) {
	e := counterEngine(t)
	mounted, err := e.TestMount("counter", nil)
	if err != nil {
		t.Fatalf("TestMount() error = %v", err)
	}
	snapJSON, err := mounted.SnapshotJSON()
	if err != nil {
		t.Fatalf("SnapshotJSON() error = %v", err)
	}

	body := fmt.Sprintf(
		`{"components":[{"snapshot":%q,"updates":{},"calls":[{"method":"Increment","params":[]}]}]}`,
		snapJSON,
	)
	w := postUpdate(t, e.Handler(), body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp UpdateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Components) != 1 {
		t.Fatalf("components = %d, want 1", len(resp.Components))
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(resp.Components[0].Snapshot), &snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if got := snap.Data["Count"]; got != float64(1) {
		t.Errorf("Count = %v, want 1", got)
	}
	if html, ok := resp.Components[0].Effects["html"].(string); !ok || !strings.Contains(html, "count: 1") {
		t.Errorf("html effect = %v, want count: 1", resp.Components[0].Effects["html"])
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	e := counterEngine(t)
	mounted, _ := e.TestMount("counter", nil)

	t.Run("tampered snapshot is 400", func(t *testing.T) {
		mounted.Snapshot.Data["Count"] = 99
		snapJSON, _ := mounted.SnapshotJSON()
		body := fmt.Sprintf(`{"components":[{"snapshot":%q}]}`, snapJSON)
		if w := postUpdate(t, e.Handler(), body, true); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("renamed memo fails checksum first", func(t *testing.T) {
		r, _ := e.TestMount("counter", nil)
		r.Snapshot.Memo.Name = "ghost"
		snapJSON, _ := r.SnapshotJSON()
		body := fmt.Sprintf(`{"components":[{"snapshot":%q}]}`, snapJSON)
		w := postUpdate(t, e.Handler(), body, true)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400 (renamed memo fails the checksum)", w.Code)
		}
	})
}

func TestDefaultOnError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"corrupt", ErrCorruptPayload, http.StatusBadRequest},
		{"unknown component", ErrUnknownComponent, http.StatusNotFound},
		{"too many calls", ErrTooManyCalls, http.StatusBadRequest},
		{"locked", ErrLockedProperty, http.StatusBadRequest},
		{"method", &MethodError{Component: "c", Method: "m", Reason: "r"}, http.StatusBadRequest},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := defaultOnError(tt.err)
			if status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
			if strings.Contains(body, "boom") {
				t.Error("error body leaks internal detail")
			}
		})
	}
}

func TestIsLivecmp(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if IsLivecmp(req) {
		t.Error("IsLivecmp() = true without header")
	}
	req.Header.Set(HeaderLivecmp, "true")
	if !IsLivecmp(req) {
		t.Error("IsLivecmp() = false with header")
	}
}
