package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"demoreel/internal/transport/httpapi"
)

func TestIsLoopbackRemote(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:1234", true},
		{"[::1]:80", true},
		{"::1", true},
		{"10.0.0.1:80", false},
		{"example.com:80", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := isLoopbackRemote(tc.addr); got != tc.want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", tc.addr, got, tc.want)
		}
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("DEMOREEL_TEST_BOOL", "true")
	if !envBool("DEMOREEL_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("DEMOREEL_TEST_BOOL", "nope")
	if !envBool("DEMOREEL_TEST_BOOL", true) {
		t.Fatalf("unparseable value should fall back to default")
	}
}

func TestPprof_LoopbackOnly(t *testing.T) {
	r := httpapi.NewRouter(httpapi.RouterConfig{})
	mountPprof(r)

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote status=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.RemoteAddr = "127.0.0.1:4567"
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("loopback status=%d", rec.Code)
	}
}
