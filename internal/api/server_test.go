package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/seantiz/ripq/internal/engine"
	"github.com/seantiz/ripq/internal/model"
	"github.com/seantiz/ripq/internal/runner"
	"github.com/seantiz/ripq/internal/store"
)

const testMasterKey = "test-master-key"

// stubRunner doubles the input into the output file unless the script is
// "fail", in which case it only writes a diagnostic. When gate is set each
// run blocks until it receives.
type stubRunner struct {
	gate chan struct{}
}

func (s *stubRunner) Run(_ context.Context, inv runner.Invocation) (runner.Outcome, error) {
	if s.gate != nil {
		<-s.gate
	}
	in, err := os.ReadFile(inv.InputPath)
	if err != nil {
		return runner.Outcome{ExitCode: -1}, err
	}
	if string(in) == "fail" {
		if inv.LogWriter != nil {
			inv.LogWriter("syntax error near 'fail'")
		}
		return runner.Outcome{ExitCode: 1, Stderr: "syntax error near 'fail'"}, nil
	}
	if err := os.WriteFile(inv.OutputPath, bytes.Repeat(in, 2), 0o644); err != nil {
		return runner.Outcome{ExitCode: -1}, err
	}
	return runner.Outcome{}, nil
}

type testServer struct {
	*Server
	store *store.SQLiteStore
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	return newTestServerWithRunner(t, &stubRunner{})
}

func newTestServerWithRunner(t *testing.T, r runner.Runner) testServer {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	artifacts, err := engine.NewArtifacts(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifacts: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	eng := engine.NewEngine(engine.Config{Concurrency: 1, Retention: time.Hour}, r, artifacts, s, logger)
	t.Cleanup(func() {
		eng.Wait()
		eng.Close()
	})

	srv := NewServer(":0", eng, s, Options{
		MasterKey:    testMasterKey,
		MaxBodyBytes: 1 << 20,
		FilesDir:     artifacts.OutputDir(),
	}, logger)
	return testServer{Server: srv, store: s}
}

// submitJob posts a script with the test credential and decodes the receipt.
func submitJob(t *testing.T, baseURL string, body any) obfuscateResponse {
	t.Helper()
	resp := postJSON(t, baseURL+"/obfuscate", testMasterKey, body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST /obfuscate status = %d, want 200: %s", resp.StatusCode, b)
	}

	var out obfuscateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	return out
}

func postJSON(t *testing.T, url, key string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	return getJSONWithKey(t, url, "", v)
}

// getJSONWithKey is getJSON with a bearer credential, for the archive routes.
func getJSONWithKey(t *testing.T, url, key string, v any) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

// waitForStatus polls GET /status/{id} until the job reaches the expected status.
func waitForStatus(t *testing.T, baseURL, id string, expected model.Status, timeout time.Duration) jobStatusResponse {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var st jobStatusResponse
		if code := getJSON(t, baseURL+"/status/"+id, &st); code != http.StatusOK {
			t.Fatalf("GET /status/%s = %d", id, code)
		}
		if st.Status == expected {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach status %q within %v", id, expected, timeout)
	return jobStatusResponse{}
}

func TestPanicRecovery(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/panic")
	if err != nil {
		t.Fatalf("GET /panic: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest("OPTIONS", ts.URL+"/obfuscate", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /obfuscate: %v", err)
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, "*")
	}
}

func TestRequestOrigin(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"direct", nil, "http://example.com"},
		{"forwarded", map[string]string{"X-Forwarded-Proto": "https", "X-Forwarded-Host": "api.lua.rip"}, "https://api.lua.rip"},
		{"proto only", map[string]string{"X-Forwarded-Proto": "https"}, "https://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "http://example.com/obfuscate", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := requestOrigin(r).BaseURL; got != tt.want {
				t.Errorf("BaseURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/jobs")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
