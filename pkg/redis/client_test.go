package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vendorhub/leadrouter-backend/pkg/config"
)

func configRedis(url, addr string) config.RedisConfig {
	return config.RedisConfig{URL: url, Address: addr}
}

// fakeStore is an in-memory stand-in for the redis commands the client uses.
type fakeStore struct {
	counts  map[string]int64
	expires map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		counts:  map[string]int64{},
		expires: map[string]time.Duration{},
	}
}

func (f *fakeStore) Ping(context.Context) *goredis.StatusCmd {
	return goredis.NewStatusResult("PONG", nil)
}

func (f *fakeStore) Incr(_ context.Context, key string) *goredis.IntCmd {
	f.counts[key]++
	return goredis.NewIntResult(f.counts[key], nil)
}

func (f *fakeStore) Expire(_ context.Context, key string, ttl time.Duration) *goredis.BoolCmd {
	f.expires[key] = ttl
	return goredis.NewBoolResult(true, nil)
}

func TestIncrWithTTLSetsExpiryOnlyOnFirstIncrement(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	client := &Client{store: store}
	ctx := context.Background()

	count, err := client.IncrWithTTL(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
	if store.expires["k"] != time.Minute {
		t.Fatalf("first increment must set the ttl, got %v", store.expires["k"])
	}

	store.expires["k"] = 0
	if _, err := client.IncrWithTTL(ctx, "k", time.Minute); err != nil {
		t.Fatalf("second incr: %v", err)
	}
	if store.expires["k"] != 0 {
		t.Fatal("later increments must not reset the ttl")
	}
}

func TestFixedWindowAllowBlocksAboveLimit(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	client := &Client{store: store}
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "intake:ip:10.0.0.1", 3, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed || count != int64(i) {
			t.Fatalf("attempt %d should pass, allowed=%v count=%d", i, allowed, count)
		}
	}

	allowed, count, err := client.FixedWindowAllow(ctx, "intake:ip:10.0.0.1", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed || count != 4 {
		t.Fatalf("fourth attempt must be blocked, allowed=%v count=%d", allowed, count)
	}

	// A different scope keeps its own window.
	allowed, _, err = client.FixedWindowAllow(ctx, "intake:ip:10.0.0.2", 3, time.Minute)
	if err != nil || !allowed {
		t.Fatalf("other scope should pass, allowed=%v err=%v", allowed, err)
	}
}

func TestRateLimitKeyNamespacing(t *testing.T) {
	t.Parallel()

	client := &Client{}
	if got := client.RateLimitKey("intake:ip:10.0.0.1"); got != "lr:rate_limit:intake:ip:10.0.0.1" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := client.RateLimitKey("  "); got != "lr:rate_limit" {
		t.Fatalf("blank scope should collapse, got %q", got)
	}
}

func TestOptionsFromConfigRequiresTarget(t *testing.T) {
	t.Parallel()

	if _, err := optionsFromConfig(configRedis("", "")); err == nil {
		t.Fatal("empty config must fail")
	}

	opts, err := optionsFromConfig(configRedis("", "localhost:6379"))
	if err != nil {
		t.Fatalf("address config: %v", err)
	}
	if opts.Addr != "localhost:6379" {
		t.Fatalf("unexpected addr %q", opts.Addr)
	}

	opts, err = optionsFromConfig(configRedis("redis://localhost:6380/2", ""))
	if err != nil {
		t.Fatalf("url config: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 2 {
		t.Fatalf("url should win, got addr=%q db=%d", opts.Addr, opts.DB)
	}
}
