package chatws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const DefaultRelayChannel = "fitconnect:realtime"

// RedisRelay fans hub events out to every API instance over Redis pub/sub.
// Each instance delivers its own events locally and ignores their echo.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	origin  string
	queue   chan Envelope
	ready   chan struct{}
	log     logrus.FieldLogger
}

var _ Relay = (*RedisRelay)(nil)

func NewRedisRelay(client redis.UniversalClient, channel string, log logrus.FieldLogger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		queue:   make(chan Envelope, 256),
		ready:   make(chan struct{}),
		log:     log,
	}
}

func (r *RedisRelay) Origin() string { return r.origin }

// Ready is closed once the subscription is confirmed.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

func (r *RedisRelay) Publish(env Envelope) {
	env.Origin = r.origin
	select {
	case r.queue <- env:
	default:
		r.log.WithField("event", env.Event.Type).Warn("redis relay queue full, dropping event")
	}
}

// Run subscribes to the relay channel and pumps envelopes both ways until ctx
// is cancelled.
func (r *RedisRelay) Run(ctx context.Context, hub *Hub) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	close(r.ready)
	incoming := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-r.queue:
			payload, err := json.Marshal(env)
			if err != nil {
				r.log.WithError(err).Error("encode relay envelope")
				continue
			}
			if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
				r.log.WithError(err).Warn("redis relay publish failed")
			}
		case msg, ok := <-incoming:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.WithError(err).Warn("decode relay envelope")
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			hub.DeliverRemote(env)
		}
	}
}
