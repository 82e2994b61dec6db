package task

import (
	"context"

	"github.com/ventalink/lead-voice-service/pkg/logger"
	"github.com/ventalink/lead-voice-service/pkg/redis"
	"go.uber.org/zap"
)

const (
	EventChannel = "leadvoice:call:events"
)

// RedisBus implements the Bus interface using Redis Pub/Sub
type RedisBus struct {
	redisSvc redis.RedisServiceInterface
}

// NewRedisBus creates a new Redis-based event bus
func NewRedisBus(redisSvc redis.RedisServiceInterface) *RedisBus {
	return &RedisBus{redisSvc: redisSvc}
}

// Publish sends a call event to the bus
func (b *RedisBus) Publish(ctx context.Context, event CallEvent) error {
	logger.Base().Debug("publishing call event",
		zap.String("type", string(event.Type)),
		zap.String("lead_id", event.LeadID))
	return b.redisSvc.Publish(ctx, EventChannel, event)
}
