package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("NullCache.Get should always return miss")
	}
	if data != nil {
		t.Error("NullCache.Get should return nil data")
	}

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}

	if _, hit, _ = c.Get(ctx, "key"); hit {
		t.Error("NullCache should not store data")
	}

	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}

	if _, hit, err := c.Get(ctx, "nuget:Pester"); err != nil || hit {
		t.Fatalf("Get on empty cache = hit %v, err %v", hit, err)
	}

	if err := c.Set(ctx, "nuget:Pester", []byte("payload"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, hit, err := c.Get(ctx, "nuget:Pester")
	if err != nil || !hit {
		t.Fatalf("Get after Set = hit %v, err %v", hit, err)
	}
	if string(data) != "payload" {
		t.Errorf("Get = %q, want payload", data)
	}

	if err := c.Delete(ctx, "nuget:Pester"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "nuget:Pester"); hit {
		t.Error("entry should be gone after Delete")
	}
	if err := c.Delete(ctx, "nuget:Pester"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}

	if err := c.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry should miss")
	}

	if err := c.Set(ctx, "forever", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "forever"); !hit {
		t.Error("entry without ttl should hit")
	}
}

func TestFileCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := os.WriteFile(c.path("k"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Errorf("corrupt entry = hit %v, err %v; want clean miss", hit, err)
	}
}

func TestFileCacheClear(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if err := c.Set(ctx, k, []byte(k), 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if _, hit, _ := c.Get(ctx, k); hit {
			t.Errorf("%s should be cleared", k)
		}
	}
	if _, err := os.Stat(c.Dir()); err != nil {
		t.Errorf("cache dir should exist after Clear: %v", err)
	}
}

func TestNamespaced(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}

	a := NewNamespaced(backend, "a:")
	b := NewNamespaced(backend, "b:")
	if err := a.Set(ctx, "key", []byte("from a"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, hit, _ := b.Get(ctx, "key"); hit {
		t.Error("namespaces should not share keys")
	}
	if data, hit, _ := backend.Get(ctx, "a:key"); !hit || string(data) != "from a" {
		t.Errorf("backend key a:key = %q, %v", data, hit)
	}

	nested := NewNamespaced(a, "inner:")
	if nested.Prefix() != "a:inner:" {
		t.Errorf("nested Prefix() = %q, want a:inner:", nested.Prefix())
	}

	if err := a.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNamespace(t *testing.T) {
	a := Namespace("nuget", "https://www.powershellgallery.com/api/v2")
	if a != Namespace("nuget", "https://www.powershellgallery.com/api/v2/") {
		t.Error("trailing slash should not change the namespace")
	}
	if a == Namespace("nuget", "https://nuget.example.com/api/v2") {
		t.Error("different feeds should get different namespaces")
	}
	if !strings.HasPrefix(a, "nuget:") || !strings.HasSuffix(a, ":") || len(a) != len("nuget:")+12+1 {
		t.Errorf("Namespace = %q, want nuget:<12 hex>:", a)
	}
}

func TestKey(t *testing.T) {
	k1 := Key("versions", "https://feed", "Pester", true)
	k2 := Key("versions", "https://feed", "Pester", false)
	if k1 == k2 {
		t.Error("different parts should produce different keys")
	}
	if k1[:9] != "versions:" {
		t.Errorf("Key should keep prefix: %s", k1)
	}
	if keyType(k1) != "versions" {
		t.Errorf("keyType = %q", keyType(k1))
	}
}

// TestRedisCache runs against a real server when PSRESGET_TEST_REDIS is set.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("PSRESGET_TEST_REDIS")
	if addr == "" {
		t.Skip("PSRESGET_TEST_REDIS not set")
	}
	ctx := context.Background()
	c, err := NewRedisCache(ctx, RedisOptions{Addr: addr, Prefix: "psresget-test:"})
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer c.Close()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if data, hit, err := c.Get(ctx, "k"); err != nil || !hit || string(data) != "v" {
		t.Fatalf("Get = %q, %v, %v", data, hit, err)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("Clear should remove prefixed keys")
	}
}
