package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"greenfloor/internal/config"
	"greenfloor/internal/models"
)

// KafkaSink streams audit events to a topic, keyed by market id.
type KafkaSink struct {
	producer *kafka.Producer
	topic    string
	logger   *zap.Logger
}

type kafkaEvent struct {
	ID        uint64          `json:"id"`
	EventType string          `json:"event_type"`
	MarketID  string          `json:"market_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
}

func NewKafkaSink(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaSink, error) {
	brokers := strings.TrimSpace(cfg.Brokers)
	if brokers == "" {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = "greenfloor.audit"
	}
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &KafkaSink{producer: producer, topic: topic, logger: logger}
	go s.deliveryReports()
	return s, nil
}

func (s *KafkaSink) deliveryReports() {
	for e := range s.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			s.logger.Warn("audit kafka delivery failed", zap.Error(m.TopicPartition.Error))
		}
	}
}

func (s *KafkaSink) Publish(_ context.Context, event models.AuditEvent) error {
	if s == nil || s.producer == nil {
		return nil
	}
	value, err := json.Marshal(kafkaEvent{
		ID:        event.ID,
		EventType: event.EventType,
		MarketID:  event.MarketID,
		Payload:   json.RawMessage(event.Payload),
		CreatedAt: event.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000Z07:00"),
	})
	if err != nil {
		return err
	}
	topic := s.topic
	return s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.MarketID),
		Value:          value,
	}, nil)
}

func (s *KafkaSink) Close() {
	if s == nil || s.producer == nil {
		return
	}
	s.producer.Flush(5000)
	s.producer.Close()
}
