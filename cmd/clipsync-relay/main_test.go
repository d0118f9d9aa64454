package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clipsync/clipsync/observability"
	"github.com/clipsync/clipsync/relay/server"
)

func TestVersionString_UsesLdflags(t *testing.T) {
	oldVersion := version
	oldCommit := commit
	oldDate := date
	t.Cleanup(func() {
		version = oldVersion
		commit = oldCommit
		date = oldDate
	})

	version = "v1.2.3"
	commit = "deadbeef"
	date = "2026-01-01T00:00:00Z"

	got := versionString()
	if !strings.Contains(got, "v1.2.3") {
		t.Fatalf("expected version in output, got %q", got)
	}
	if !strings.Contains(got, "deadbeef") {
		t.Fatalf("expected commit in output, got %q", got)
	}
	if !strings.Contains(got, "2026-01-01T00:00:00Z") {
		t.Fatalf("expected date in output, got %q", got)
	}
}

func TestRun_VersionFlag(t *testing.T) {
	oldVersion := version
	t.Cleanup(func() { version = oldVersion })
	version = "v9.9.9"

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := run([]string{"--version"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr=%q)", code, stderr.String())
	}
	if strings.TrimSpace(stdout.String()) == "" {
		t.Fatalf("expected version output")
	}
}

func TestRun_InvalidEnv(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "nope")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := run(nil, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "CHUNK_SIZE") {
		t.Fatalf("expected CHUNK_SIZE in stderr, got %q", stderr.String())
	}
}

func TestWriteReadyJSON_PrettyAndCompact(t *testing.T) {
	out := ready{
		Version:    "v1.2.3",
		Commit:     "abc",
		Date:       "2026-01-01T00:00:00Z",
		Listen:     "127.0.0.1:5050",
		HTTPURL:    "http://127.0.0.1:5050",
		PairURL:    "http://127.0.0.1:5050/pair",
		ConnectURL: "ws://127.0.0.1:5050/connect",
		HealthURL:  "http://127.0.0.1:5050/health",
	}

	var compact bytes.Buffer
	if err := writeReadyJSON(&compact, out, false); err != nil {
		t.Fatalf("write compact: %v", err)
	}
	if strings.Contains(compact.String(), "\n  \"version\"") {
		t.Fatalf("expected compact JSON output, got %q", compact.String())
	}
	var got1 ready
	if err := json.Unmarshal(compact.Bytes(), &got1); err != nil {
		t.Fatalf("parse compact JSON: %v", err)
	}

	var pretty bytes.Buffer
	if err := writeReadyJSON(&pretty, out, true); err != nil {
		t.Fatalf("write pretty: %v", err)
	}
	if !strings.Contains(pretty.String(), "\n  \"version\"") {
		t.Fatalf("expected pretty JSON output, got %q", pretty.String())
	}
	var got2 ready
	if err := json.Unmarshal(pretty.Bytes(), &got2); err != nil {
		t.Fatalf("parse pretty JSON: %v", err)
	}
}

func TestMetricsController_EnableDisable(t *testing.T) {
	t.Parallel()

	srv, err := server.New(server.DefaultConfig())
	if err != nil {
		t.Fatalf("server.New() failed: %v", err)
	}
	defer srv.Close()

	h := newSwitchHandler()
	obs := observability.NewAtomicRelayObserver()
	mc := newMetricsController(h, obs, srv)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/metrics", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before enable, got %d", rec.Code)
	}

	mc.Enable()

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after enable, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clipsync_relay_connections") {
		t.Fatalf("expected metrics body to contain the connections gauge")
	}

	mc.Disable()

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after disable, got %d", rec.Code)
	}
}
