// Package notify broadcasts remediation outcomes.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/daimoniac/scorecard/internal/types"
)

// Event is one remediation outcome.
type Event struct {
	Timestamp   time.Time          `json:"timestamp"`
	Status      string             `json:"status"`
	Message     string             `json:"message"`
	User        string             `json:"user"`
	Finding     types.Finding      `json:"ncr"`
	Requirement *types.Requirement `json:"requirement,omitempty"`
	Parameters  map[string]any     `json:"parameters,omitempty"`
}

// Notifier publishes events. Callers treat errors as best effort.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Producer is the subset of *kgo.Client used by KafkaNotifier.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaNotifier publishes events as JSON records keyed by ncr id.
type KafkaNotifier struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

// NewKafkaNotifier connects a producer to brokers
func NewKafkaNotifier(brokers []string, topic string, logger *slog.Logger) (*KafkaNotifier, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, err
	}
	return NewKafkaNotifierWithProducer(client, topic, logger), nil
}

// NewKafkaNotifierWithProducer wraps an existing producer
func NewKafkaNotifierWithProducer(producer Producer, topic string, logger *slog.Logger) *KafkaNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaNotifier{producer: producer, topic: topic, logger: logger}
}

// Notify produces one record and waits for the broker acknowledgement
func (n *KafkaNotifier) Notify(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: n.topic,
		Key:   []byte(event.Finding.NCRID()),
		Value: value,
	}
	if err := n.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return err
	}
	n.logger.Info("remediation notification published",
		"topic", n.topic,
		"ncr_id", event.Finding.NCRID(),
		"status", event.Status)
	return nil
}

// Ping checks broker connectivity when the producer supports it
func (n *KafkaNotifier) Ping(ctx context.Context) error {
	if p, ok := n.producer.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close flushes and closes the producer
func (n *KafkaNotifier) Close() {
	n.producer.Close()
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier backed by logger
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the event
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	n.logger.InfoContext(ctx, "remediation outcome",
		"ncr_id", event.Finding.NCRID(),
		"user", event.User,
		"status", event.Status,
		"message", event.Message)
	return nil
}
