package executor

import (
	"context"
	"time"

	"greenfloor/internal/cache"
)

// CooldownStore remembers until when a (market, kind) key is quiet.
type CooldownStore interface {
	Until(ctx context.Context, key string) (time.Time, bool, error)
	Start(ctx context.Context, key string, until time.Time) error
	Clear(ctx context.Context, key string) error
}

// CacheCooldowns keeps cooldowns in a cache.Store, memory by default or redis so
// they survive restarts.
type CacheCooldowns struct {
	Store  cache.Store
	Prefix string
	Now    func() time.Time
}

func NewMemoryCooldowns(now func() time.Time) *CacheCooldowns {
	mem := cache.NewMemoryStore()
	mem.Now = now
	return &CacheCooldowns{Store: mem, Prefix: "cooldown:", Now: now}
}

func (c *CacheCooldowns) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *CacheCooldowns) Until(ctx context.Context, key string) (time.Time, bool, error) {
	raw, ok, err := c.Store.Get(ctx, c.Prefix+key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	until, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false, nil
	}
	if !c.now().Before(until) {
		return time.Time{}, false, nil
	}
	return until, true, nil
}

func (c *CacheCooldowns) Start(ctx context.Context, key string, until time.Time) error {
	ttl := until.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	return c.Store.Set(ctx, c.Prefix+key, []byte(until.UTC().Format(time.RFC3339Nano)), ttl)
}

func (c *CacheCooldowns) Clear(ctx context.Context, key string) error {
	return c.Store.Delete(ctx, c.Prefix+key)
}
