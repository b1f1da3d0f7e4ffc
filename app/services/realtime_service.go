package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/utils"
)

// RealtimePublisher pushes call/campaign change events to connected clients.
// Publish failures are logged and swallowed: realtime push is best-effort and
// must never roll back the state transition that triggered it.
type RealtimePublisher interface {
	PublishCallEvent(ctx context.Context, eventType, callUUID string, payload any)
	PublishCampaignEvent(ctx context.Context, eventType, campaignUUID string, payload any)
}

// RedisRealtimePublisher implements RealtimePublisher over redis Pub/Sub.
// Clients subscribe to realtime:call:{uuid} or realtime:campaign:{uuid}.
type RedisRealtimePublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisRealtimePublisher creates a redis-backed realtime publisher
func NewRedisRealtimePublisher(client *redis.Client, prefix string) RealtimePublisher {
	if prefix == "" {
		prefix = "realtime"
	}
	return &RedisRealtimePublisher{client: client, prefix: prefix}
}

func (p *RedisRealtimePublisher) publish(ctx context.Context, channel string, event dto.RealtimeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("realtime: failed to marshal event type=%s: %v", event.Type, err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.client.Publish(pubCtx, channel, payload).Err(); err != nil {
		log.Printf("realtime: publish failed channel=%s: %v", channel, err)
	}
}

func (p *RedisRealtimePublisher) PublishCallEvent(ctx context.Context, eventType, callUUID string, payload any) {
	if callUUID == "" {
		return
	}
	p.publish(ctx, p.prefix+":call:"+callUUID, dto.RealtimeEvent{
		Type:      eventType,
		CallUUID:  callUUID,
		Payload:   payload,
		Timestamp: utils.UTCNow(),
	})
}

func (p *RedisRealtimePublisher) PublishCampaignEvent(ctx context.Context, eventType, campaignUUID string, payload any) {
	if campaignUUID == "" {
		return
	}
	p.publish(ctx, p.prefix+":campaign:"+campaignUUID, dto.RealtimeEvent{
		Type:         eventType,
		CampaignUUID: campaignUUID,
		Payload:      payload,
		Timestamp:    utils.UTCNow(),
	})
}

// NoopRealtimePublisher discards all events. Used when the cache is disabled
// and in tests.
type NoopRealtimePublisher struct{}

func NewNoopRealtimePublisher() RealtimePublisher {
	return &NoopRealtimePublisher{}
}

func (p *NoopRealtimePublisher) PublishCallEvent(context.Context, string, string, any)     {}
func (p *NoopRealtimePublisher) PublishCampaignEvent(context.Context, string, string, any) {}
