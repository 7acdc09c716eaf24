package fsdir

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"llmhlb/pkg/contract"
)

func newCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(&Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c
}

func TestPutGetRoundTrip(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	const text = "merged line one\nmerged line two"
	if err := c.Put(ctx, "books/alpha.txt", 3, text); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := c.Get(ctx, "books/alpha.txt", 3)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got != text {
		t.Fatalf("text mismatch: %q", got)
	}
}

func TestMissOnAbsentAndDistinctKeys(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	if _, ok, err := c.Get(ctx, "nope", 0); err != nil || ok {
		t.Fatalf("expect clean miss, ok=%v err=%v", ok, err)
	}
	if err := c.Put(ctx, "doc", 0, "zero"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.Put(ctx, "doc", 1, "one"); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, _ := c.Get(ctx, "doc", 1)
	if !ok || got != "one" {
		t.Fatalf("batch keying broken: ok=%v got=%q", ok, got)
	}
}

func TestOverwrite(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	_ = c.Put(ctx, "d", 0, "old")
	if err := c.Put(ctx, "d", 0, "new"); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, _ := c.Get(ctx, "d", 0)
	if !ok || got != "new" {
		t.Fatalf("overwrite failed: %q", got)
	}
}

func TestCorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	c, err := New(&Options{Dir: dir})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if err := c.Put(ctx, "d", 0, "fine"); err != nil {
		t.Fatalf("put: %v", err)
	}
	ents, _ := os.ReadDir(dir)
	if len(ents) != 1 {
		t.Fatalf("expect 1 entry, got %d", len(ents))
	}
	p := filepath.Join(dir, ents[0].Name())
	if err := os.WriteFile(p, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if _, ok, err := c.Get(ctx, "d", 0); err != nil || ok {
		t.Fatalf("corrupt entry must be a miss, ok=%v err=%v", ok, err)
	}
}

func TestSanitizedFilenamesNoCollision(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	// 净化后同名的两个 id 依哈希区分
	_ = c.Put(ctx, "a/b.txt", 0, "slash")
	_ = c.Put(ctx, "a_b.txt", 0, "underscore")
	got, ok, _ := c.Get(ctx, "a/b.txt", 0)
	if !ok || got != "slash" {
		t.Fatalf("collision: %q", got)
	}
}

func TestNewRequiresDir(t *testing.T) {
	if _, err := New(&Options{Dir: "  "}); err == nil {
		t.Fatalf("expect error")
	}
	if _, err := New(nil); !strings.Contains(err.Error(), "dir") {
		t.Fatalf("unexpected err: %v", err)
	}
}

var _ contract.Cache = (*Cache)(nil)
