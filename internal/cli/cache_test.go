package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCacheDirXDG(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg-cache")

	dir, err := cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}
	want := filepath.Join("/tmp/xdg-cache", "precinctbook")
	if dir != want {
		t.Errorf("cacheDir() = %q, want %q", dir, want)
	}
}

func TestCacheDirDefault(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "")

	dir, err := cacheDir()
	if err != nil {
		t.Fatalf("cacheDir() error: %v", err)
	}

	home, _ := os.UserHomeDir()
	want := filepath.Join(home, ".cache", "precinctbook")
	if dir != want {
		t.Errorf("cacheDir() = %q, want %q", dir, want)
	}
	if !strings.HasSuffix(dir, "precinctbook") {
		t.Errorf("cacheDir() = %q, should end with the app name", dir)
	}
}
