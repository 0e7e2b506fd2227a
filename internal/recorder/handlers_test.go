package recorder

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"backend-triplog/internal/route"

	"github.com/gofiber/fiber/v2"
)

// syncSink forwards fixes straight into the fake watch so handler tests stay
// deterministic.
type syncSink struct {
	geo  *fakeGeo
	mu   sync.Mutex
	errs []error
}

func (s *syncSink) Push(p Position) int {
	s.geo.emit(p)
	return s.geo.active()
}

func (s *syncSink) PushError(err error) int {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	for _, w := range s.geo.current() {
		w.onError(err)
	}
	return s.geo.active()
}

func newRecorderApp(f *fixture) (*fiber.App, *syncSink) {
	sink := &syncSink{geo: f.geo}
	app := fiber.New()
	RegisterRoutes(app, f.rec, sink, func(c *fiber.Ctx) error { return c.Next() })
	return app, sink
}

func post(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(http.MethodPost, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s: %v", path, err)
	}
	return resp
}

func TestRecorderHandlersLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	app, _ := newRecorderApp(f)

	if resp := post(t, app, "/recorder/start", nil); resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status: %d", resp.StatusCode)
	}
	if resp := post(t, app, "/recorder/start", nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start status: %d", resp.StatusCode)
	}
	if resp := post(t, app, "/recorder/positions", Position{Lat: 35, Lon: 139, Time: 0}); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("positions status: %d", resp.StatusCode)
	}
	if resp := post(t, app, "/recorder/pause", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status: %d", resp.StatusCode)
	}
	if resp := post(t, app, "/recorder/pause", nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("second pause status: %d", resp.StatusCode)
	}
	if resp := post(t, app, "/recorder/resume", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("resume status: %d", resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/recorder", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get status: %v", err)
	}
	var state struct {
		State route.Status `json:"state"`
		Route *route.Route `json:"route"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.State != route.StatusRecording || state.Route == nil || len(state.Route.Track) != 1 {
		t.Fatalf("unexpected state %+v", state)
	}

	resp = post(t, app, "/recorder/stop", stopRequest{Name: "Evening"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status: %d", resp.StatusCode)
	}
	var final route.Route
	if err := json.NewDecoder(resp.Body).Decode(&final); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if final.Metadata.Name != "Evening" || final.Status != route.StatusCompleted {
		t.Fatalf("unexpected final route %+v", final)
	}
	if resp := post(t, app, "/recorder/stop", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("stop without route status: %d", resp.StatusCode)
	}
}

func TestRecorderHandlersPermissionDenied(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Permissions = fakePermissions{state: PermissionDenied} })
	app, _ := newRecorderApp(f)

	resp := post(t, app, "/recorder/start", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != PermissionHelp {
		t.Fatalf("expected help text, got %q", body)
	}
}

func TestRecorderHandlersBadInput(t *testing.T) {
	f := newFixture(t, nil)
	app, sink := newRecorderApp(f)

	if resp := post(t, app, "/recorder/positions", Position{Lat: 95, Lon: 0}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}
	req := httptest.NewRequest(http.MethodPost, "/recorder/positions", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	if resp, _ := app.Test(req); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for malformed body")
	}
	if resp := post(t, app, "/recorder/errors", errorReport{}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for empty error")
	}
	if resp := post(t, app, "/recorder/errors", errorReport{Message: "signal lost"}); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("errors status: %d", resp.StatusCode)
	}
	if len(sink.errs) != 1 {
		t.Fatalf("expected forwarded error")
	}
}

func TestRecorderErrorMapping(t *testing.T) {
	cases := map[error]int{
		ErrGeolocationUnavailable: fiber.StatusServiceUnavailable,
		ErrNoFix:                  fiber.StatusNotFound,
		ErrBusy:                   fiber.StatusConflict,
		errors.New("boom"):        fiber.StatusInternalServerError,
	}
	for err, want := range cases {
		var fe *fiber.Error
		if !errors.As(recorderError(err), &fe) || fe.Code != want {
			t.Fatalf("%v: expected %d", err, want)
		}
	}
}
