package engine_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/seantiz/ripq/internal/engine"
)

func TestArtifactsLayout(t *testing.T) {
	root := t.TempDir()
	a, err := engine.NewArtifacts(root)
	if err != nil {
		t.Fatalf("NewArtifacts: %v", err)
	}

	for _, dir := range []string{a.InputDir(), a.OutputDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
	if a.InputDir() == a.OutputDir() {
		t.Error("inputs and outputs must not share a directory")
	}
	if got := a.OutputPath("abc"); got != filepath.Join(root, "output", "abc.lua") {
		t.Errorf("OutputPath = %q", got)
	}
	if engine.OutputName("abc") != "abc.lua" {
		t.Errorf("OutputName = %q, want abc.lua", engine.OutputName("abc"))
	}
}

func TestArtifactsInputRoundTrip(t *testing.T) {
	a, err := engine.NewArtifacts(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifacts: %v", err)
	}

	path, err := a.WriteInput("tok", []byte("print('x')"))
	if err != nil {
		t.Fatalf("WriteInput: %v", err)
	}
	if !strings.HasPrefix(path, a.InputDir()) {
		t.Errorf("input path %q not under %q", path, a.InputDir())
	}

	if err := a.RemoveInput("tok"); err != nil {
		t.Fatalf("RemoveInput: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("input still exists after RemoveInput: %v", err)
	}
	if err := a.RemoveInput("tok"); err != nil {
		t.Errorf("second RemoveInput should be a no-op, got %v", err)
	}
}

func TestArtifactsOutputSize(t *testing.T) {
	a, err := engine.NewArtifacts(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifacts: %v", err)
	}

	if _, ok := a.OutputSize("tok"); ok {
		t.Error("OutputSize reported a missing file as present")
	}

	if err := os.WriteFile(a.OutputPath("tok"), []byte("12345"), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}
	size, ok := a.OutputSize("tok")
	if !ok || size != 5 {
		t.Errorf("OutputSize = %d, %v; want 5, true", size, ok)
	}

	if err := a.RemoveOutput("tok"); err != nil {
		t.Fatalf("RemoveOutput: %v", err)
	}
	if _, ok := a.OutputSize("tok"); ok {
		t.Error("output still present after RemoveOutput")
	}
}

func TestArtifactsWriteInputFailsWithoutDir(t *testing.T) {
	a, err := engine.NewArtifacts(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifacts: %v", err)
	}
	if err := os.RemoveAll(a.InputDir()); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}

	if _, err := a.WriteInput("tok", []byte("x")); err == nil {
		t.Error("expected error writing into a missing directory")
	}
}
