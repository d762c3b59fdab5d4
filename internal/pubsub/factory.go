package pubsub

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"flipswitch/internal/config"
	"flipswitch/internal/logger"
)

// New builds a matched publisher/subscriber pair for the configured
// transport. The memory transport shares one bus between the two sides,
// which is why they are constructed together.
func New(cfg config.BrokerConfig, redisClient *redis.Client, log logger.Logger) (Publisher, Subscriber, error) {
	switch cfg.Type {
	case "", "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("redis broker requires a redis connection")
		}
		return NewRedisPublisher(redisClient, log), NewRedisSubscriber(redisClient, log), nil
	case "kafka":
		return NewKafkaPublisher(cfg.Kafka, log), NewKafkaSubscriber(cfg.Kafka, log), nil
	case "memory":
		bus := NewMemoryBus(log)
		return bus, bus, nil
	default:
		return nil, nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
