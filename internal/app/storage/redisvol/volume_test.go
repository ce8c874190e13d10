package redisvol

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestBucketKeysAreCaseInsensitive(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	if hourKey("0xREST", at) != hourKey("0xrest", at) {
		t.Fatalf("hour buckets diverge by case: %q vs %q", hourKey("0xREST", at), hourKey("0xrest", at))
	}
	if dayKey("0xREST", at) != dayKey("0xrest", at) {
		t.Fatalf("day buckets diverge by case: %q vs %q", dayKey("0xREST", at), dayKey("0xrest", at))
	}
}

func TestVolumeIntegration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	store := New(rdb)
	ctx := context.Background()
	now := time.Now()
	tenant := "0xvol-test"

	defer rdb.Del(ctx, hourKey(tenant, now), dayKey(tenant, now))

	hour, day, err := store.Add(ctx, tenant, 1_000_000, now)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if hour != 1_000_000 || day != 1_000_000 {
		t.Fatalf("first increment wrong: %d %d", hour, day)
	}

	hour, day, err = store.Add(ctx, tenant, 500_000, now)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if hour != 1_500_000 || day != 1_500_000 {
		t.Fatalf("second increment wrong: %d %d", hour, day)
	}

	// Reset with a differently-cased address must still clear the bucket.
	if err := store.ResetDay(ctx, "0xVOL-Test", now); err != nil {
		t.Fatalf("reset: %v", err)
	}
	_, day, err = store.Add(ctx, tenant, 250_000, now)
	if err != nil {
		t.Fatalf("post-reset add: %v", err)
	}
	if day != 250_000 {
		t.Fatalf("day bucket should restart after reset: %d", day)
	}
}
