// Package publisher delivers recorded alerts to downstream notification and
// dashboard consumers.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"gigsafe/internal/alert/models"
)

// DefaultTopic receives one JSON record per raised alert.
const DefaultTopic = "gigsafe.alerts"

// Message is the wire form of an alert.
type Message struct {
	ID         string     `json:"id"`
	WorkerID   string     `json:"worker_id"`
	ActivityID string     `json:"activity_id"`
	Type       string     `json:"type"`
	Severity   string     `json:"severity"`
	Score      float64    `json:"score"`
	Message    string     `json:"message"`
	State      string     `json:"state"`
	RaisedAt   time.Time  `json:"raised_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func ToMessage(a models.Alert) Message {
	return Message{
		ID:         a.ID.String(),
		WorkerID:   string(a.WorkerID),
		ActivityID: string(a.ActivityID),
		Type:       string(a.Type),
		Severity:   string(a.Severity),
		Score:      a.Score,
		Message:    a.Message,
		State:      string(a.State),
		RaisedAt:   a.RaisedAt,
		ResolvedAt: a.ResolvedAt,
	}
}

// Producer is the subset of *kgo.Client used for delivery.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher produces alerts keyed by worker id so one worker's alerts
// stay ordered within a partition.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafka(producer Producer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, a models.Alert) error {
	value, err := json.Marshal(ToMessage(a))
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(a.WorkerID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "alert_type", Value: []byte(a.Type)},
			{Key: "severity", Value: []byte(a.Severity)},
		},
	}
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce alert %s: %w", a.ID, err)
	}
	return nil
}

// Noop discards alerts. Used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, models.Alert) error { return nil }
