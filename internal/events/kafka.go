package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// KafkaConfig holds producer settings.
type KafkaConfig struct {
	BootstrapServers string
	Topic            string
	SecurityProtocol string
	SASLMechanism    string
	SASLUsername     string
	SASLPassword     string
	Acks             string
	MaxRetries       int
	FlushTimeout     time.Duration
}

// ConfigMap converts the settings to librdkafka properties. SASL settings
// are only included when a username is set.
func (c KafkaConfig) ConfigMap() *kafka.ConfigMap {
	cm := &kafka.ConfigMap{
		"bootstrap.servers":  c.BootstrapServers,
		"acks":               c.Acks,
		"enable.idempotence": true,
		"linger.ms":          5,
		"request.timeout.ms": 30000,
	}
	if c.SecurityProtocol != "" {
		cm.SetKey("security.protocol", c.SecurityProtocol)
	}
	if c.SASLUsername != "" {
		cm.SetKey("sasl.mechanism", c.SASLMechanism)
		cm.SetKey("sasl.username", c.SASLUsername)
		cm.SetKey("sasl.password", c.SASLPassword)
	}
	return cm
}

// KafkaPublisher publishes events to a Kafka topic.
type KafkaPublisher struct {
	producer     *kafka.Producer
	topic        string
	maxRetries   int
	baseBackoff  time.Duration
	flushTimeout time.Duration
	log          *zap.Logger

	deliveries chan kafka.Event
	wg         sync.WaitGroup
	closeOnce  sync.Once

	sent   atomic.Int64
	acked  atomic.Int64
	failed atomic.Int64
}

// NewKafkaPublisher creates a producer and starts its delivery report loop.
func NewKafkaPublisher(cfg KafkaConfig, log *zap.Logger) (*KafkaPublisher, error) {
	if cfg.BootstrapServers == "" {
		return nil, errors.New("kafka bootstrap servers not configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic not configured")
	}
	if cfg.Acks == "" {
		cfg.Acks = "all"
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	p, err := kafka.NewProducer(cfg.ConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	kp := &KafkaPublisher{
		producer:     p,
		topic:        cfg.Topic,
		maxRetries:   cfg.MaxRetries,
		baseBackoff:  100 * time.Millisecond,
		flushTimeout: cfg.FlushTimeout,
		log:          log.Named("kafka"),
		deliveries:   make(chan kafka.Event, 1024),
	}

	kp.wg.Add(1)
	go kp.handleDeliveryReports()

	kp.log.Info("kafka publisher initialized",
		zap.String("topic", cfg.Topic), zap.String("servers", cfg.BootstrapServers))
	return kp, nil
}

func (kp *KafkaPublisher) handleDeliveryReports() {
	defer kp.wg.Done()

	for e := range kp.deliveries {
		m, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		if m.TopicPartition.Error != nil {
			kp.failed.Add(1)
			kp.log.Warn("delivery failed", zap.Error(m.TopicPartition.Error), zap.ByteString("key", m.Key))
			continue
		}
		kp.acked.Add(1)
	}
}

// Publish queues an event, retrying retriable errors with exponential backoff.
func (kp *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &kp.topic, Partition: kafka.PartitionAny},
		Key:            []byte(e.Key),
		Value:          value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= kp.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := kp.baseBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := kp.producer.Produce(msg, kp.deliveries)
		if err == nil {
			kp.sent.Add(1)
			return nil
		}
		lastErr = err

		var kafkaErr kafka.Error
		if errors.As(err, &kafkaErr) && !kafkaErr.IsRetriable() {
			return fmt.Errorf("non-retriable error: %w", err)
		}
	}

	kp.failed.Add(1)
	return fmt.Errorf("failed after %d retries: %w", kp.maxRetries, lastErr)
}

// Metrics returns delivery counters.
func (kp *KafkaPublisher) Metrics() map[string]int64 {
	return map[string]int64{
		"messages_sent":   kp.sent.Load(),
		"messages_acked":  kp.acked.Load(),
		"messages_failed": kp.failed.Load(),
	}
}

// Close flushes pending messages and shuts the producer down.
func (kp *KafkaPublisher) Close() error {
	kp.closeOnce.Do(func() {
		if remaining := kp.producer.Flush(int(kp.flushTimeout.Milliseconds())); remaining > 0 {
			kp.log.Warn("messages still queued after flush", zap.Int("remaining", remaining))
		}
		kp.producer.Close()
		close(kp.deliveries)
		kp.wg.Wait()

		m := kp.Metrics()
		kp.log.Info("kafka publisher closed",
			zap.Int64("sent", m["messages_sent"]),
			zap.Int64("acked", m["messages_acked"]),
			zap.Int64("failed", m["messages_failed"]))
	})
	return nil
}
