package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/datastream/datastream/server/internal/api"
	"github.com/datastream/datastream/server/internal/ws"
)

// --- test helpers -----------------------------------------------------------

type fakeHub struct {
	sessions     []ws.SessionInfo
	broadcasts   []string
	result       ws.Result
	broadcastErr error
	disconnected []string
}

func (f *fakeHub) Count() int                 { return len(f.sessions) }
func (f *fakeHub) Sessions() []ws.SessionInfo { return append([]ws.SessionInfo(nil), f.sessions...) }

func (f *fakeHub) Disconnect(id string) bool {
	for _, s := range f.sessions {
		if s.ID == id {
			f.disconnected = append(f.disconnected, id)
			return true
		}
	}
	return false
}

func (f *fakeHub) Broadcast(_ context.Context, v any) (ws.Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return ws.Result{}, err
	}
	f.broadcasts = append(f.broadcasts, string(data))
	return f.result, f.broadcastErr
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// --- /api/v1/health ---------------------------------------------------------

func TestHealth(t *testing.T) {
	h := api.New(&fakeHub{sessions: []ws.SessionInfo{{ID: "a"}, {ID: "b"}}})
	rr := do(t, h, http.MethodGet, "/api/v1/health", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" || resp.Sessions != 2 {
		t.Errorf("health: got %+v", resp)
	}
	if _, err := time.Parse(time.RFC3339, resp.GeneratedAt); err != nil {
		t.Errorf("generated_at %q: %v", resp.GeneratedAt, err)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	rr := do(t, api.New(&fakeHub{}), http.MethodPost, "/api/v1/health", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/sessions -------------------------------------------------------

func TestSessions_SortedOldestFirst(t *testing.T) {
	hub := &fakeHub{sessions: []ws.SessionInfo{
		{ID: "late", State: "open", ConnectedAt: t0.Add(time.Minute)},
		{ID: "early", State: "open", ConnectedAt: t0},
	}}
	rr := do(t, api.New(hub), http.MethodGet, "/api/v1/sessions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.SessionsResponse
	decode(t, rr, &resp)
	if resp.Count != 2 {
		t.Fatalf("count: got %d, want 2", resp.Count)
	}
	if resp.Sessions[0].ID != "early" || resp.Sessions[1].ID != "late" {
		t.Errorf("order: got %s, %s", resp.Sessions[0].ID, resp.Sessions[1].ID)
	}
}

func TestSessions_Empty(t *testing.T) {
	rr := do(t, api.New(&fakeHub{}), http.MethodGet, "/api/v1/sessions", "")
	var resp map[string]interface{}
	decode(t, rr, &resp)
	if list, ok := resp["sessions"].([]interface{}); !ok || len(list) != 0 {
		t.Errorf("sessions: got %v, want []", resp["sessions"])
	}
}

func TestDeleteSession(t *testing.T) {
	hub := &fakeHub{sessions: []ws.SessionInfo{{ID: "abc"}}}
	h := api.New(hub)

	rr := do(t, h, http.MethodDelete, "/api/v1/sessions/abc", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", rr.Code)
	}
	if len(hub.disconnected) != 1 || hub.disconnected[0] != "abc" {
		t.Errorf("disconnected: got %v", hub.disconnected)
	}

	rr = do(t, h, http.MethodDelete, "/api/v1/sessions/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown id: got %d, want 404", rr.Code)
	}

	rr = do(t, h, http.MethodGet, "/api/v1/sessions/abc", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET by id: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/broadcast ------------------------------------------------------

func TestBroadcast_ForwardsBody(t *testing.T) {
	hub := &fakeHub{result: ws.Result{Delivered: 2}}
	rr := do(t, api.New(hub), http.MethodPost, "/api/v1/broadcast", `{"type": "alert"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	var resp api.BroadcastResponse
	decode(t, rr, &resp)
	if resp.Delivered != 2 || resp.Failed != 0 {
		t.Errorf("response: got %+v", resp)
	}
	if len(hub.broadcasts) != 1 || hub.broadcasts[0] != `{"type":"alert"}` {
		t.Errorf("broadcasts: got %v", hub.broadcasts)
	}
}

func TestBroadcast_InvalidJSON(t *testing.T) {
	hub := &fakeHub{}
	for _, body := range []string{"", "{", "not json"} {
		rr := do(t, api.New(hub), http.MethodPost, "/api/v1/broadcast", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: got %d, want 400", body, rr.Code)
		}
	}
	if len(hub.broadcasts) != 0 {
		t.Errorf("broadcasts: got %v, want none", hub.broadcasts)
	}
}

func TestBroadcast_TooLarge(t *testing.T) {
	body := `"` + strings.Repeat("x", 2<<20) + `"`
	rr := do(t, api.New(&fakeHub{}), http.MethodPost, "/api/v1/broadcast", body)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d, want 413", rr.Code)
	}
}

// failingReader errors on the first read, like a client that drops mid-body.
type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset by peer") }

func TestBroadcast_ReadErrorIsBadRequest(t *testing.T) {
	hub := &fakeHub{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/broadcast", failingReader{})
	api.New(hub).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
	if len(hub.broadcasts) != 0 {
		t.Errorf("broadcasts: got %v, want none", hub.broadcasts)
	}
}

func TestBroadcast_MethodNotAllowed(t *testing.T) {
	rr := do(t, api.New(&fakeHub{}), http.MethodGet, "/api/v1/broadcast", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

func TestBroadcast_HubError(t *testing.T) {
	hub := &fakeHub{broadcastErr: errors.New("context canceled")}
	rr := do(t, api.New(hub), http.MethodPost, "/api/v1/broadcast", `1`)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rr.Code)
	}
}
