// Package runner defines the boundary to the external transformation engine:
// a single-shot, file-in/file-out executable run as a subprocess.
package runner
