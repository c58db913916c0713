package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCacheKey(t *testing.T) {
	k1 := CacheKey("https://api.leilex.com/API/LEI/?country=NL")
	k2 := CacheKey("https://api.leilex.com/API/LEI/?country=BE")

	if !strings.HasPrefix(k1, "lexruler:v1:") {
		t.Errorf("unexpected key prefix: %s", k1)
	}
	if k1 == k2 {
		t.Error("different query strings must produce different keys")
	}
	if k1 != CacheKey("https://api.leilex.com/API/LEI/?country=NL") {
		t.Error("key must be deterministic")
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok := c.Get("k")
	if !ok || string(got) != "v" {
		t.Errorf("expected v, got %q (found=%v)", got, ok)
	}

	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after delete")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	_ = c.Set("k", []byte("v"), 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to expire")
	}
}

func TestDiskCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c := NewDiskCache(dir, time.Hour)

	body := []byte(`{"records":[{"LegalName":"Van Veen B.V."}]}`)
	key := CacheKey("https://api.leilex.com/API/LEI/")

	if err := c.Set(key, body, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit")
	}
	if !bytes.Equal(got, body) {
		t.Errorf("expected %s, got %s", body, got)
	}

	if err := c.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := c.Get(key); ok {
		t.Error("expected miss after delete")
	}
}

func TestDiskCache_ExpiredEntryRemoved(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	if err := c.Set("k", []byte("v"), -time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss for expired entry")
	}
	if _, err := os.Stat(c.path("k")); !os.IsNotExist(err) {
		t.Error("expected expired file to be removed")
	}
}

func TestDiskCache_CorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	if err := os.WriteFile(c.path("k"), []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss for corrupt entry")
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	layered := NewLayeredCache(time.Minute, dir, time.Hour)

	// Populate only the disk layer, as a previous process would have
	disk := NewDiskCache(dir, time.Hour)
	if err := disk.Set("k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}

	got, ok := layered.Get("k")
	if !ok || string(got) != "v" {
		t.Fatalf("expected disk hit, got %q (found=%v)", got, ok)
	}

	if _, ok := layered.memory.Get("k"); !ok {
		t.Error("expected disk hit to be promoted to memory")
	}
}

func TestLayeredCache_SetDeleteClear(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "layers")
	layered := NewLayeredCache(time.Minute, dir, time.Hour)

	if err := layered.Set("a", []byte("1"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := layered.Delete("a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := layered.Get("a"); ok {
		t.Error("expected miss after delete")
	}

	// Deleting an absent key is not an error
	if err := layered.Delete("a"); err != nil {
		t.Errorf("Delete of missing key failed: %v", err)
	}

	_ = layered.Set("b", []byte("2"), 0)
	if err := layered.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := layered.Get("b"); ok {
		t.Error("expected miss after clear")
	}
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	body := []byte("abc")
	_ = c.Set("k", body, 0)
	body[0] = 'X'

	got, _ := c.Get("k")
	if string(got) != "abc" {
		t.Errorf("cached value changed through caller slice: %q", got)
	}

	got[1] = 'Y'
	again, _ := c.Get("k")
	if string(again) != "abc" {
		t.Errorf("cached value changed through returned slice: %q", again)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}

func TestDiskCache_ClearKeepsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	foreign := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(foreign, []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}
	_ = c.Set(CacheKey("https://example.com"), []byte("v"), 0)

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("foreign file removed: %v", err)
	}
	if _, ok := c.Get(CacheKey("https://example.com")); ok {
		t.Error("expected cache entry to be cleared")
	}
}

func TestDiskCache_ClearMissingDir(t *testing.T) {
	c := NewDiskCache(filepath.Join(t.TempDir(), "never-created"), time.Hour)
	if err := c.Clear(); err != nil {
		t.Errorf("Clear of missing dir failed: %v", err)
	}
}
