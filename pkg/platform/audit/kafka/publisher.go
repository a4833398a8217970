// Package kafka publishes audit events to a Kafka (or Redpanda) topic.
// Security events feed SIEM pipelines from there; this publisher is wired in
// addition to, not instead of, the durable store.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "vigil/pkg/platform/audit"
)

// Publisher produces audit events to a single topic, keyed by subject so a
// subject's events land in one partition in order.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// New connects to the given brokers. The caller owns Close.
func New(brokers []string, topic string) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(1<<20),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// payload is the JSON wire form of an audit event.
type payload struct {
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	SubjectID string `json:"subject_id,omitempty"`
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
	Decision  string `json:"decision,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Severity  string `json:"severity,omitempty"`
	IP        string `json:"ip,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Emit produces one event synchronously. Callers that cannot block should
// front this with the channel worker.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	body, err := json.Marshal(payload{
		Category:  string(event.Category),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		SubjectID: event.SubjectID.String(),
		Action:    event.Action,
		Reason:    event.Reason,
		Decision:  event.Decision,
		Mode:      event.Mode,
		Severity:  string(event.Severity),
		IP:        event.IP,
		RequestID: event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.SubjectID.String()),
		Value: body,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (p *Publisher) Close() {
	p.client.Close()
}
