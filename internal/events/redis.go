package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"busline/internal/domain/models"
	"busline/internal/utils"

	"github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

// Channel is the pub/sub channel seat-selection clients subscribe to.
func Channel(tripID int64) string {
	return fmt.Sprintf("trip:%d:seats", tripID)
}

// RedisPublisher fans seat changes out over redis pub/sub. A nil client
// turns it into a no-op.
type RedisPublisher struct {
	Client *redis.Client
}

// NewRedisPublisher returns a publisher for addr. An empty addr disables
// publishing.
func NewRedisPublisher(addr string) *RedisPublisher {
	if addr == "" {
		return &RedisPublisher{}
	}
	return &RedisPublisher{Client: redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: publishTimeout,
		MaxRetries:  1,
	})}
}

func (p *RedisPublisher) Enabled() bool { return p != nil && p.Client != nil }

// SeatChanged never fails the caller; errors are logged.
func (p *RedisPublisher) SeatChanged(ctx context.Context, ev models.SeatEvent) {
	if !p.Enabled() {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		utils.LogEvent("", "events", "publish_failed", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Client.Publish(ctx, Channel(ev.TripID), payload).Err(); err != nil {
		utils.LogEvent("", "events", "publish_failed",
			fmt.Sprintf("trip=%d seat=%s err=%v", ev.TripID, ev.SeatID, err))
	}
}

// Ping checks the connection at startup.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.Client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	return p.Client.Close()
}
