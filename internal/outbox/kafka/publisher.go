// Package kafka publishes outbox entries to a Kafka change feed topic.
//
// Records are keyed by tenant ID so a tenant's events land on a single
// partition and preserve commit order. Consumers deduplicate by the
// event_id field inside the envelope.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"audittrail/internal/outbox"
)

type Publisher struct {
	client *kgo.Client
	topic  string
}

// NewPublisher connects to the given brokers and ensures the feed topic
// exists. Callers own the returned publisher and must Close it.
func NewPublisher(ctx context.Context, brokers []string, topic string, partitions int32) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, topic, partitions); err != nil {
		client.Close()
		return nil, err
	}

	return &Publisher{client: client, topic: topic}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, partitions, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

// Publish produces one record per entry and waits for broker acks. Any
// failure is returned as a whole so the worker retries the full batch.
func (p *Publisher) Publish(ctx context.Context, entries []*outbox.Entry) error {
	records := make([]*kgo.Record, len(entries))
	for i, entry := range entries {
		records[i] = &kgo.Record{
			Topic: p.topic,
			Key:   []byte(entry.TenantID),
			Value: entry.Payload,
		}
	}

	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce batch: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Close()
}
