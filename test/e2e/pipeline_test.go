package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/ripq/internal/api"
	"github.com/seantiz/ripq/internal/engine"
	"github.com/seantiz/ripq/internal/runner"
	"github.com/seantiz/ripq/internal/store"
)

const masterKey = "e2e-key"

// engineScript stands in for the Lua engine: it prefixes the output with the
// flags it was given, sleeps on SLOW input, and refuses FAIL input.
const engineScript = `#!/bin/sh
in="$1"; out="$2"; shift 2
case "$(cat "$in")" in
  *SLOW*) sleep 1 ;;
esac
echo "flags: $*" >&2
case "$(cat "$in")" in
  *FAIL*) echo "engine: refusing input" >&2; exit 2 ;;
esac
{ echo "-- $*"; cat "$in"; } > "$out"
`

type pipeline struct {
	ts  *httptest.Server
	eng *engine.Engine
}

func newPipeline(t *testing.T, retention time.Duration) *pipeline {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	scriptPath := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(scriptPath, []byte(engineScript), 0o755); err != nil {
		t.Fatalf("write engine script: %v", err)
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	artifacts, err := engine.NewArtifacts(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifacts: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	eng := engine.NewEngine(engine.Config{Concurrency: 1, Retention: retention},
		runner.NewProcess("sh", scriptPath, ""), artifacts, db, logger)
	srv := api.NewServer(":0", eng, db, api.Options{
		MasterKey: masterKey,
		FilesDir:  artifacts.OutputDir(),
	}, logger)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		eng.Wait()
		eng.Close()
	})

	return &pipeline{ts: ts, eng: eng}
}

func (p *pipeline) submit(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, p.ts.URL+"/obfuscate", bytes.NewReader(b))
	req.Header.Set("Authorization", "Bearer "+masterKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /obfuscate: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		rb, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want 200\nbody: %s", resp.StatusCode, rb)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

// get sends the master key on every request so archive routes are readable.
func (p *pipeline) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, p.ts.URL+path, nil)
	req.Header.Set("Authorization", "Bearer "+masterKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (p *pipeline) pollStatus(t *testing.T, id, expected string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		code, job := p.get(t, "/status/"+id)
		if code != http.StatusOK {
			t.Fatalf("GET /status/%s = %d", id, code)
		}
		if job["status"] == expected {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach %q within %v", id, expected, timeout)
	return nil
}

func TestPipelineCompletesAndServesArtifact(t *testing.T) {
	p := newPipeline(t, time.Hour)

	receipt := p.submit(t, map[string]any{
		"script":  "print('hi')",
		"profile": "maximum",
		"options": map[string]any{"vm": true, "junk_yard": true},
	})
	id := receipt["job_id"].(string)

	job := p.pollStatus(t, id, "completed", 10*time.Second)
	result := job["result"].(map[string]any)
	url := result["url"].(string)

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET artifact: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	want := "-- --profile maximum --vm --junk-yard\nprint('hi')"
	if string(body) != want {
		t.Errorf("artifact = %q, want %q", body, want)
	}

	stats := result["stats"].(map[string]any)
	if stats["original_size"] != float64(len("print('hi')")) {
		t.Errorf("original_size = %v", stats["original_size"])
	}
	if stats["obfuscated_size"] != float64(len(want)) {
		t.Errorf("obfuscated_size = %v, want %d", stats["obfuscated_size"], len(want))
	}
	if r, _ := stats["ratio"].(string); !strings.HasSuffix(r, "x") {
		t.Errorf("ratio = %v, want N.NNx", stats["ratio"])
	}

	p.eng.Wait()
	code, summary := p.get(t, "/history/"+id)
	if code != http.StatusOK {
		t.Fatalf("GET /history/%s = %d", id, code)
	}
	if summary["exit_code"] != float64(0) {
		t.Errorf("exit_code = %v, want 0", summary["exit_code"])
	}
}

func TestPipelinePresetOverridesProfile(t *testing.T) {
	p := newPipeline(t, time.Hour)

	receipt := p.submit(t, map[string]any{"script": "x = 1", "profile": "luasec"})
	job := p.pollStatus(t, receipt["job_id"].(string), "completed", 10*time.Second)

	resp, err := http.Get(job["result"].(map[string]any)["url"].(string))
	if err != nil {
		t.Fatalf("GET artifact: %v", err)
	}
	defer resp.Body.Close()
	first, _ := bufio.NewReader(resp.Body).ReadString('\n')
	if first != "-- --preset-luasec\n" {
		t.Errorf("flags line = %q", first)
	}
}

func TestPipelineEngineFailure(t *testing.T) {
	p := newPipeline(t, time.Hour)

	receipt := p.submit(t, map[string]any{"script": "FAIL"})
	id := receipt["job_id"].(string)

	job := p.pollStatus(t, id, "failed", 10*time.Second)
	msg, _ := job["error"].(string)
	if !strings.Contains(msg, "engine: refusing input") {
		t.Errorf("error = %q, want engine stderr", msg)
	}
	if _, ok := job["result"]; ok {
		t.Error("failed job must not carry a result")
	}

	p.eng.Wait()
	_, summary := p.get(t, "/history/"+id)
	if summary["exit_code"] != float64(2) {
		t.Errorf("exit_code = %v, want 2", summary["exit_code"])
	}

	// The queue keeps moving after a failure.
	next := p.submit(t, map[string]any{"script": "y = 2"})
	p.pollStatus(t, next["job_id"].(string), "completed", 10*time.Second)
}

func TestPipelineSingleSlotQueues(t *testing.T) {
	p := newPipeline(t, time.Hour)

	a := p.submit(t, map[string]any{"script": "SLOW"})
	b := p.submit(t, map[string]any{"script": "z = 3"})

	if b["queue_position"] != float64(1) {
		t.Errorf("queue_position = %v, want 1", b["queue_position"])
	}

	_, jobB := p.get(t, "/status/"+b["job_id"].(string))
	if jobB["status"] != "queued" || jobB["position"] != float64(1) {
		t.Errorf("second job = %v, want queued at position 1", jobB)
	}
	_, global := p.get(t, "/status")
	queue := global["queue"].(map[string]any)
	if queue["active"] != float64(1) || queue["waiting"] != float64(1) {
		t.Errorf("queue = %v, want 1 active and 1 waiting", queue)
	}

	p.pollStatus(t, a["job_id"].(string), "completed", 10*time.Second)
	p.pollStatus(t, b["job_id"].(string), "completed", 10*time.Second)
}

func TestPipelineStreamsDiagnostics(t *testing.T) {
	p := newPipeline(t, time.Hour)

	receipt := p.submit(t, map[string]any{"script": "SLOW", "profile": "speed"})
	id := receipt["job_id"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, p.ts.URL+"/status/"+id+"/logs", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET logs: %v", err)
	}
	defer resp.Body.Close()

	var data []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if d, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
			data = append(data, d)
		}
	}

	if len(data) != 2 || data[0] != "flags: --profile speed" || data[1] != "completed" {
		t.Errorf("stream data = %v", data)
	}
}

func TestPipelinePurgesAfterRetention(t *testing.T) {
	p := newPipeline(t, 200*time.Millisecond)

	receipt := p.submit(t, map[string]any{"script": "w = 4"})
	id := receipt["job_id"].(string)
	job := p.pollStatus(t, id, "completed", 10*time.Second)
	url := job["result"].(map[string]any)["url"].(string)

	deadline := time.Now().Add(5 * time.Second)
	for {
		code, body := p.get(t, "/status/"+id)
		if code == http.StatusNotFound {
			if body["error"] != "Job not found or expired" {
				t.Errorf("error = %v", body["error"])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job was not purged")
		}
		time.Sleep(20 * time.Millisecond)
	}

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET artifact: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("artifact status = %d, want 404", resp.StatusCode)
	}
}
