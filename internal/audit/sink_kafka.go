package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes finalized audit records to a Kafka topic for SIEM
// ingestion. It is write-only; querying happens against the Postgres or
// memory store.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// kafkaPayload is the JSON structure published per record. Field names are
// stable; downstream consumers deserialize by name.
type kafkaPayload struct {
	ID              string            `json:"ID"`
	OperationID     string            `json:"OperationID"`
	Kind            string            `json:"Kind"`
	PrincipalID     string            `json:"PrincipalID,omitempty"`
	Outcome         string            `json:"Outcome"`
	Reason          string            `json:"Reason,omitempty"`
	StartedAt       string            `json:"StartedAt"`
	DurationMs      int64             `json:"DurationMs"`
	IPAddress       string            `json:"IPAddress,omitempty"`
	UserAgent       string            `json:"UserAgent,omitempty"`
	RequestID       string            `json:"RequestID,omitempty"`
	ContextSnapshot map[string]string `json:"ContextSnapshot,omitempty"`
}

// NewKafkaSink connects to the brokers and ensures the topic exists before
// accepting records, so a misconfigured cluster fails at startup instead of
// at the first flush.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admin := kadm.NewClient(client)
	topics, err := admin.ListTopics(ctx, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka list topics: %w", err)
	}
	if !topics.Has(topic) {
		if _, err := admin.CreateTopic(ctx, 3, 1, nil, topic); err != nil {
			client.Close()
			return nil, fmt.Errorf("kafka create topic %s: %w", topic, err)
		}
	}

	return &KafkaSink{client: client, topic: topic}, nil
}

// Append publishes one record, keyed by record ID so downstream
// materialization stays idempotent.
func (s *KafkaSink) Append(ctx context.Context, record Record) error {
	payload := kafkaPayload{
		ID:              record.ID.String(),
		OperationID:     record.OperationID.String(),
		Kind:            record.Kind,
		PrincipalID:     record.PrincipalID,
		Outcome:         string(record.Outcome),
		Reason:          record.Reason,
		StartedAt:       record.StartedAt.Format(time.RFC3339Nano),
		DurationMs:      record.DurationMs,
		IPAddress:       record.IPAddress,
		UserAgent:       record.UserAgent,
		RequestID:       record.RequestID,
		ContextSnapshot: record.ContextSnapshot,
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(record.ID.String()),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record: %w", err)
	}
	return nil
}

// Close flushes outstanding produces and releases the client.
func (s *KafkaSink) Close() {
	s.client.Close()
}
