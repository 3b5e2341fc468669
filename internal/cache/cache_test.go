package cache

import (
	"context"
	"testing"
	"time"
)

func TestCacheExpiry(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Set("k", "v")

	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("got %v %v", v, ok)
	}

	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestMemoryStoreSetNX(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	ok, err := s.SetNX(ctx, "idem", []byte("a"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("first SetNX: ok=%v err=%v", ok, err)
	}

	ok, _ = s.SetNX(ctx, "idem", []byte("b"), time.Minute)
	if ok {
		t.Fatal("second SetNX should lose")
	}

	b, found, _ := s.Get(ctx, "idem")
	if !found || string(b) != "a" {
		t.Fatalf("got %q found=%v", b, found)
	}

	_ = s.Delete(ctx, "idem")
	if _, found, _ := s.Get(ctx, "idem"); found {
		t.Fatal("expected delete to remove key")
	}
}
