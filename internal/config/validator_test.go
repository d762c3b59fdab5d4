package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validTestConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                8080,
			ReadTimeoutSeconds:  10,
			WriteTimeoutSeconds: 10,
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{Host: "localhost", Port: 5432},
			Redis:    RedisConfig{Host: "localhost", Port: 6379},
		},
	}
}

func TestValidateStaticValid(t *testing.T) {
	assert.NoError(t, ValidateStatic(validTestConfig()))
}

func TestValidateStaticServer(t *testing.T) {
	cfg := validTestConfig()
	cfg.Server.Port = 0
	assert.Error(t, ValidateStatic(cfg))

	cfg = validTestConfig()
	cfg.Server.Port = 70000
	assert.Error(t, ValidateStatic(cfg))

	cfg = validTestConfig()
	cfg.Server.ReadTimeoutSeconds = 0
	assert.Error(t, ValidateStatic(cfg))
}

func TestValidateStaticBroker(t *testing.T) {
	cfg := validTestConfig()
	cfg.Broker.Type = "kafka"
	assert.Error(t, ValidateStatic(cfg), "kafka without brokers must fail")

	cfg.Broker.Kafka.Brokers = []string{"localhost:9092"}
	assert.Error(t, ValidateStatic(cfg), "kafka without topic must fail")

	cfg.Broker.Kafka.Topic = "flag-events"
	assert.NoError(t, ValidateStatic(cfg))

	cfg = validTestConfig()
	cfg.Broker.Type = "rabbitmq"
	assert.Error(t, ValidateStatic(cfg))

	for _, brokerType := range []string{"", "redis", "memory"} {
		cfg = validTestConfig()
		cfg.Broker.Type = brokerType
		assert.NoError(t, ValidateStatic(cfg), "broker type %q should be accepted", brokerType)
	}
}

func TestValidateStaticDatabase(t *testing.T) {
	cfg := validTestConfig()
	cfg.Database.Postgres.Host = ""
	assert.Error(t, ValidateStatic(cfg))

	cfg = validTestConfig()
	cfg.Database.Postgres.Port = 0
	assert.Error(t, ValidateStatic(cfg))
}

func TestValidateStaticAudit(t *testing.T) {
	cfg := validTestConfig()
	cfg.Audit.Backend = "mongodb"
	assert.Error(t, ValidateStatic(cfg), "mongodb backend without uri must fail")

	cfg.Database.MongoDB.URI = "mongodb://localhost:27017"
	assert.NoError(t, ValidateStatic(cfg))

	cfg = validTestConfig()
	cfg.Audit.Backend = "dynamodb"
	assert.Error(t, ValidateStatic(cfg))
}

func TestCacheTTLDefault(t *testing.T) {
	cfg := CacheConfig{}
	assert.Equal(t, "5m0s", cfg.TTL().String())

	cfg.TTLSeconds = 60
	assert.Equal(t, "1m0s", cfg.TTL().String())
}
