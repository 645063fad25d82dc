package upstream

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/SloanRudderham/tl-quotes-relay/pkg/config"
)

// KafkaSource reads raw event envelopes from a Kafka topic. Used when the
// upstream feed is staged through a broker instead of a direct socket; the
// reader handles broker reconnection itself.
type KafkaSource struct {
	feedState

	reader *kafka.Reader
	logger *zap.Logger
	events chan Event
}

func NewKafkaSource(cfg config.KafkaConfig, buffer int, logger *zap.Logger) *KafkaSource {
	if buffer <= 0 {
		buffer = 1024
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		Topic:             cfg.Topic,
		GroupID:           cfg.GroupID,
		MinBytes:          200,
		MaxBytes:          10e6,
		MaxWait:           200 * time.Millisecond,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    10 * time.Second,
	})
	return &KafkaSource{
		reader: reader,
		logger: logger,
		events: make(chan Event, buffer),
	}
}

func (s *KafkaSource) Events() <-chan Event { return s.events }

func (s *KafkaSource) Run(ctx context.Context) error {
	defer s.reader.Close()

	// Staleness is measured from boot until the first real event arrives.
	s.markEvent(time.Now())

	for {
		m, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			s.setConnectError(err)
			s.logger.Error("Kafka read error", zap.Error(err))
			continue
		}

		s.setConnected(true)
		s.markEvent(time.Now())

		select {
		case s.events <- Event{Type: typeTag(m.Value), Raw: m.Value}:
		case <-ctx.Done():
			return ctx.Err()
		default:
			s.logger.Warn("Dropping upstream event, pipeline backlog full",
				zap.String("key", string(m.Key)))
		}
	}
}
