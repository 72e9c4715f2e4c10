package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
)

// RelayChannel is the Redis pub/sub channel shared by all API instances.
const RelayChannel = "tally:events"

type relayMessage struct {
	Target Target          `json:"target"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisRelay fans hub frames out to every instance subscribed to the same
// Redis channel.
type RedisRelay struct {
	client  *redis.Client
	channel string
}

func NewRedisRelay(ctx context.Context, url string) (*RedisRelay, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisRelay{client: client, channel: RelayChannel}, nil
}

func (r *RedisRelay) Publish(ctx context.Context, target Target, frame []byte) error {
	payload, err := json.Marshal(relayMessage{Target: target, Frame: frame})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Run subscribes to the channel and hands every message to deliver until ctx
// is done. ready is closed once the subscription is confirmed.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}, deliver func(Target, []byte)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	log.Printf("📡 Relay subscribed to %s", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				log.Printf("Error decoding relay message: %v", err)
				continue
			}
			deliver(m.Target, m.Frame)
		}
	}
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
