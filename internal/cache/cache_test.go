package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestInProcess_GetSetExpiry(t *testing.T) {
	c := NewInProcess()
	ctx := context.Background()

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Fatal("expected miss on empty cache")
	}

	if err := c.Set(ctx, "k", "v", 50*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val, ok := c.Get(ctx, "k"); !ok || val != "v" {
		t.Fatalf("Get() = (%q, %v), want (v, true)", val, ok)
	}

	time.Sleep(75 * time.Millisecond)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestRedis_GetSetExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedis(client, "x402f")
	ctx := context.Background()

	if err := c.Set(ctx, "price:base", "3000.50", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val, ok := c.Get(ctx, "price:base"); !ok || val != "3000.50" {
		t.Fatalf("Get() = (%q, %v), want (3000.50, true)", val, ok)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok := c.Get(ctx, "price:base"); ok {
		t.Fatal("expected entry to expire after TTL")
	}
}
