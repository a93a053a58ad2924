package cache

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestFileCache(t *testing.T) Cache {
	t.Helper()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache() error: %v", err)
	}
	return c
}

func TestFileCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestFileCache(t)

	if _, hit, err := c.Get(ctx, "roster:abc"); err != nil || hit {
		t.Fatalf("Get() before Set = hit %t, err %v, want miss", hit, err)
	}

	want := []byte(`{"polls":[]}`)
	if err := c.Set(ctx, "roster:abc", want, time.Hour); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, hit, err := c.Get(ctx, "roster:abc")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !hit {
		t.Fatal("Get() missed after Set()")
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Get() = %q, want %q", got, want)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := newTestFileCache(t)

	if err := c.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, hit, err := c.Get(ctx, "k"); err != nil || hit {
		t.Errorf("Get() after expiry = hit %t, err %v, want miss", hit, err)
	}
}

func TestFileCacheNoExpiry(t *testing.T) {
	ctx := context.Background()
	c := newTestFileCache(t)

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "k"); !hit {
		t.Error("zero-TTL entry expired, want permanent")
	}
}

func TestFileCacheDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestFileCache(t)

	if err := c.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("Get() hit after Delete()")
	}

	// Deleting a missing key is not an error.
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete(missing) error: %v", err)
	}
}

func TestFileCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache() error: %v", err)
	}

	if err := c.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	// Corrupt the backing file in place.
	fc := c.(*FileCache)
	if err := os.WriteFile(fc.path("k"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}

	if _, hit, err := c.Get(ctx, "k"); err != nil || hit {
		t.Errorf("Get() on corrupt entry = hit %t, err %v, want silent miss", hit, err)
	}
	if _, err := os.Stat(fc.path("k")); !os.IsNotExist(err) {
		t.Error("corrupt entry was not removed")
	}
}

func TestFileCacheSharding(t *testing.T) {
	c := newTestFileCache(t).(*FileCache)

	path := c.path("some-key")
	shard := filepath.Base(filepath.Dir(path))
	if len(shard) != 2 {
		t.Errorf("shard directory %q, want two hash characters", shard)
	}
}

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()

	if err := c.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if _, hit, err := c.Get(ctx, "k"); err != nil || hit {
		t.Errorf("NullCache Get() = hit %t, err %v, want miss", hit, err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete() error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
