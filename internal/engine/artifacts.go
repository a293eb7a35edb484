package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	inputSubdir  = "input"
	outputSubdir = "output"
	artifactExt  = ".lua"
)

// Artifacts manages the per-job input and output files under a work
// directory. Files are named by the job's internal token.
type Artifacts struct {
	inputDir  string
	outputDir string
}

// NewArtifacts creates the input and output directories under root.
func NewArtifacts(root string) (*Artifacts, error) {
	a := &Artifacts{
		inputDir:  filepath.Join(root, inputSubdir),
		outputDir: filepath.Join(root, outputSubdir),
	}
	for _, dir := range []string{a.inputDir, a.outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifact dir: %w", err)
		}
	}
	return a, nil
}

// OutputName is the file name of a token's output artifact.
func OutputName(token string) string {
	return token + artifactExt
}

// InputDir returns the directory holding input artifacts.
func (a *Artifacts) InputDir() string {
	return a.inputDir
}

// OutputDir returns the directory holding output artifacts.
func (a *Artifacts) OutputDir() string {
	return a.outputDir
}

// InputPath returns the input artifact path for token.
func (a *Artifacts) InputPath(token string) string {
	return filepath.Join(a.inputDir, token+artifactExt)
}

// OutputPath returns the output artifact path for token.
func (a *Artifacts) OutputPath(token string) string {
	return filepath.Join(a.outputDir, OutputName(token))
}

// WriteInput persists the script for token and returns its path.
func (a *Artifacts) WriteInput(token string, script []byte) (string, error) {
	path := a.InputPath(token)
	if err := os.WriteFile(path, script, 0o600); err != nil {
		return "", fmt.Errorf("write input: %w", err)
	}
	return path, nil
}

// OutputSize reports the size of token's output artifact and whether it exists.
func (a *Artifacts) OutputSize(token string) (int64, bool) {
	info, err := os.Stat(a.OutputPath(token))
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

// RemoveInput deletes token's input artifact if present.
func (a *Artifacts) RemoveInput(token string) error {
	return removeIfExists(a.InputPath(token))
}

// RemoveOutput deletes token's output artifact if present.
func (a *Artifacts) RemoveOutput(token string) error {
	return removeIfExists(a.OutputPath(token))
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
