package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheTTLExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	c.Set(ctx, "dashboard:summary:v1:2024-01", map[string]int{"total": 5}, 300*time.Second)

	var got map[string]int
	if !c.Get(ctx, "dashboard:summary:v1:2024-01", &got) {
		t.Fatalf("fresh entry should hit")
	}
	if got["total"] != 5 {
		t.Fatalf("got %v", got)
	}

	now = now.Add(301 * time.Second)
	if c.Get(ctx, "dashboard:summary:v1:2024-01", &got) {
		t.Fatalf("expired entry should miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry should be gone, len=%d", c.Len())
	}
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	c.Set(ctx, "dashboard:summary:v1:a", 1, time.Minute)
	c.Set(ctx, "dashboard:comparison:v1:6", 2, time.Minute)
	c.Set(ctx, "jobs:list:u1", 3, time.Minute)

	c.DeleteByPattern(ctx, "dashboard:*")

	var v int
	if c.Get(ctx, "dashboard:summary:v1:a", &v) || c.Get(ctx, "dashboard:comparison:v1:6", &v) {
		t.Fatalf("dashboard keys should be invalidated")
	}
	if !c.Get(ctx, "jobs:list:u1", &v) || v != 3 {
		t.Fatalf("unrelated key should survive")
	}
}

func TestMemoryCacheMissOnAbsent(t *testing.T) {
	c := NewMemoryCache()
	var v int
	if c.Get(context.Background(), "nope", &v) {
		t.Fatalf("absent key should miss")
	}
}
