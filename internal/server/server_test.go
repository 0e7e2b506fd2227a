package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-triplog/internal/auth"
	"backend-triplog/internal/config"
	"backend-triplog/internal/device"
	"backend-triplog/internal/kv"
	"backend-triplog/internal/recorder"
	"backend-triplog/internal/routestore"

	"github.com/golang-jwt/jwt/v5"
)

func newTestServer(t *testing.T) (*Server, *recorder.Recorder) {
	t.Helper()
	store := routestore.New(kv.New(kv.NewMemoryBackend()), nil)
	geo := device.NewPushGeolocator()
	rec := recorder.New(store, recorder.Deps{
		Geolocation: geo,
		Permissions: device.StaticPermissions{State: recorder.PermissionGranted},
	})
	s := NewServer(config.Config{JWTSecret: "secret", ServerPort: ":0"}, Deps{
		Store:      store,
		Recorder:   rec,
		Geolocator: geo,
		Crash:      device.NewCrashLog(nil, "test"),
	})
	t.Cleanup(s.Close)
	return s, rec
}

func bearer(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		OperatorID: "op-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + signed
}

func TestHealthRoute(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 status")
	}
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["recorder"] != "idle" {
		t.Fatalf("unexpected health body %v", body)
	}
}

func TestMetricsRoute(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.App.Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("expected metrics endpoint: %v", err)
	}
}

func TestMutatingRoutesRequireToken(t *testing.T) {
	s, rec := newTestServer(t)

	resp, err := s.App.Test(httptest.NewRequest("POST", "/recorder/start", nil))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized start")
	}

	req := httptest.NewRequest("POST", "/recorder/start", nil)
	req.Header.Set("Authorization", bearer(t, "secret"))
	resp, err = s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected started route, got %d: %v", resp.StatusCode, err)
	}
	if rec.State() != "recording" {
		t.Fatalf("unexpected recorder state %s", rec.State())
	}

	fix, _ := json.Marshal(recorder.Position{Lat: 35.0, Lon: 139.0, Time: time.Now().UnixMilli()})
	req = httptest.NewRequest("POST", "/recorder/positions", bytes.NewReader(fix))
	req.Header.Set("Content-Type", "application/json")
	resp, err = s.App.Test(req)
	if err != nil || resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected accepted fix")
	}
	var delivered map[string]int
	_ = json.NewDecoder(resp.Body).Decode(&delivered)
	if delivered["delivered"] != 1 {
		t.Fatalf("expected one watcher, got %v", delivered)
	}

	req = httptest.NewRequest("POST", "/recorder/pause", nil)
	req.Header.Set("Authorization", bearer(t, "other"))
	resp, _ = s.App.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected token from another secret to be rejected")
	}
}

func TestMountedSurfaces(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		method string
		path   string
		status int
		auth   bool
	}{
		{"GET", "/routes", http.StatusOK, false},
		{"GET", "/routes/summary", http.StatusOK, false},
		{"GET", "/sync/queue", http.StatusOK, false},
		{"GET", "/waypoints/kinds", http.StatusOK, false},
		{"GET", "/recorder", http.StatusOK, false},
		{"GET", "/device/crashes", http.StatusOK, true},
		{"POST", "/auth/login", http.StatusNotFound, false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		if tc.auth {
			req.Header.Set("Authorization", bearer(t, "secret"))
		}
		resp, err := s.App.Test(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.status, resp.StatusCode)
		}
	}
}
