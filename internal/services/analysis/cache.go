package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ventalink/lead-voice-service/internal/domain"
	"github.com/ventalink/lead-voice-service/pkg/redis"
)

// VerdictCache keeps the latest post-call verdict per lead in Redis so CRM
// consumers can read it without touching the conversation store.
type VerdictCache struct {
	redis redis.RedisServiceInterface
	ttl   time.Duration
}

// NewVerdictCache creates the cache. ttl bounds how long a stale verdict can
// outlive the lead's next call.
func NewVerdictCache(svc redis.RedisServiceInterface, ttl time.Duration) *VerdictCache {
	return &VerdictCache{redis: svc, ttl: ttl}
}

// Store caches the lead's verdict, replacing any previous one.
func (c *VerdictCache) Store(ctx context.Context, leadID string, a *domain.Analysis) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}
	key := c.redis.GenerateKey(redis.LEAD_ANALYSIS, leadID)
	return c.redis.SetValue(ctx, key, string(data), c.ttl)
}

// Get returns the cached verdict, or (nil, nil) when none is cached.
func (c *VerdictCache) Get(ctx context.Context, leadID string) (*domain.Analysis, error) {
	key := c.redis.GenerateKey(redis.LEAD_ANALYSIS, leadID)
	val, err := c.redis.GetValue(ctx, key)
	if err == redis.ErrKeyNotExist {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var a domain.Analysis
	if err := json.Unmarshal([]byte(val), &a); err != nil {
		return nil, fmt.Errorf("corrupt cached verdict: %w", err)
	}
	return &a, nil
}

// Invalidate drops the lead's cached verdict. Called when a new call is
// scheduled so a consumer never reads the previous call's verdict as current.
func (c *VerdictCache) Invalidate(ctx context.Context, leadID string) error {
	return c.redis.DelValue(ctx, c.redis.GenerateKey(redis.LEAD_ANALYSIS, leadID))
}
