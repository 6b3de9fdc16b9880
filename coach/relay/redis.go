package relay

import (
	"context"
	"strings"

	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig selects the Redis Streams backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Group    string `mapstructure:"group" yaml:"group"`
	Consumer string `mapstructure:"consumer" yaml:"consumer"`
}

func (c RedisConfig) client() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: c.Addr})
}

// NewRedisPublisher returns a watermill publisher writing to Redis Streams.
func NewRedisPublisher(cfg RedisConfig, logger zerolog.Logger) (message.Publisher, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     cfg.client(),
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, NewWatermillLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, "redis publisher")
	}
	return pub, nil
}

// NewRedisSubscriber returns a subscriber in cfg.Group. With an empty group
// every subscriber receives every frame.
func NewRedisSubscriber(cfg RedisConfig, logger zerolog.Logger) (message.Subscriber, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        cfg.client(),
		Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: cfg.Group,
		Consumer:      cfg.Consumer,
	}, NewWatermillLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, "redis subscriber")
	}
	return sub, nil
}

// EnsureGroupAtTail creates the consumer group at the end of the stream so
// a new group does not replay old conversations.
func EnsureGroupAtTail(ctx context.Context, cfg RedisConfig, topic string) error {
	if cfg.Group == "" {
		return nil
	}
	client := cfg.client()
	defer client.Close()

	err := client.XGroupCreateMkStream(ctx, topic, cfg.Group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return errors.Wrapf(err, "create group %s on %s", cfg.Group, topic)
	}
	return nil
}
