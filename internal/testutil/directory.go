// Package testutil provides test fixtures shared by archive packages.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Directory is a temporary directory owned by a single test. It is removed
// when the test finishes, whatever the outcome.
type Directory struct {
	t    testing.TB
	path string
}

// NewDirectory creates an empty directory scoped to t
func NewDirectory(t testing.TB) *Directory {
	t.Helper()
	return &Directory{t: t, path: t.TempDir()}
}

// Path returns the directory path
func (d *Directory) Path() string {
	return d.path
}

// Join returns a path below the directory
func (d *Directory) Join(elem ...string) string {
	return filepath.Join(append([]string{d.path}, elem...)...)
}

// Missing returns a path below the directory that does not exist yet
func (d *Directory) Missing(name string) string {
	d.t.Helper()
	p := d.Join(name)
	if _, err := os.Stat(p); err == nil {
		d.t.Fatalf("path %s unexpectedly exists", p)
	}
	return p
}

// WriteFile creates a file below the directory with the given content
func (d *Directory) WriteFile(name string, content []byte) string {
	d.t.Helper()
	p := d.Join(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		d.t.Fatalf("creating parent of %s: %v", p, err)
	}
	if err := os.WriteFile(p, content, 0o644); err != nil {
		d.t.Fatalf("writing %s: %v", p, err)
	}
	return p
}

// ReadFile returns the content of a file below the directory
func (d *Directory) ReadFile(name string) []byte {
	d.t.Helper()
	data, err := os.ReadFile(d.Join(name))
	if err != nil {
		d.t.Fatalf("reading %s: %v", name, err)
	}
	return data
}

// Subdirectory creates a nested directory and returns its path
func (d *Directory) Subdirectory(name string) string {
	d.t.Helper()
	p := d.Join(name)
	if err := os.MkdirAll(p, 0o755); err != nil {
		d.t.Fatalf("creating %s: %v", p, err)
	}
	return p
}
