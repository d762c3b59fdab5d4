package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"flipswitch/internal/config"
	"flipswitch/internal/constants"
	"flipswitch/internal/logger"
)

// Kafka transport multiplexes every tenant channel onto one topic, keyed by
// channel name. Subscribers re-filter by channel; each process consumes with
// its own group id so every instance sees every event (broadcast, not
// work-sharing).
type KafkaPublisher struct {
	writer *kafka.Writer
	logger logger.Logger
}

func NewKafkaPublisher(cfg config.KafkaConfig, log logger.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}
	return &KafkaPublisher{writer: w, logger: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, channel string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(channel),
		Value: body,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type KafkaSubscriber struct {
	cfg    config.KafkaConfig
	logger logger.Logger
}

func NewKafkaSubscriber(cfg config.KafkaConfig, log logger.Logger) *KafkaSubscriber {
	return &KafkaSubscriber{cfg: cfg, logger: log}
}

func (s *KafkaSubscriber) Subscribe(ctx context.Context, channel string, handler HandlerFunc) error {
	groupID := s.cfg.GroupID
	if groupID == "" {
		groupID = "flipswitch-" + uuid.New().String()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.cfg.Brokers,
		GroupID:  groupID,
		Topic:    s.cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to fetch kafka message: %w", err)
		}

		var env Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			s.logger.ErrorwCtx(ctx, "Dropping undecodable event", "topic", s.cfg.Topic, "error", err)
			s.commit(ctx, reader, m)
			continue
		}

		if env.Channel == channel {
			if err := handler(ctx, env); err != nil {
				s.logger.ErrorwCtx(ctx, "Event handler failed", "channel", channel, "error", err)
			}
		}

		s.commit(ctx, reader, m)
	}
}

func (s *KafkaSubscriber) commit(ctx context.Context, reader *kafka.Reader, m kafka.Message) {
	if err := reader.CommitMessages(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.ErrorwCtx(ctx, "Failed to commit kafka offset", "topic", s.cfg.Topic, "error", err)
	}
}

func (s *KafkaSubscriber) Close() error {
	return nil
}
