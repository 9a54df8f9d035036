//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"audittrail/internal/outbox"
	"audittrail/internal/outbox/kafka"
	"audittrail/pkg/testutil/containers"
)

type PublisherSuite struct {
	suite.Suite
	redpanda  *containers.RedpandaContainer
	publisher *kafka.Publisher
}

func TestPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupSuite() {
	s.redpanda = containers.NewRedpandaContainer(s.T())

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var err error
	s.publisher, err = kafka.NewPublisher(ctx, []string{s.redpanda.Broker}, "audit.events.test", 1)
	s.Require().NoError(err)
}

func (s *PublisherSuite) TearDownSuite() {
	s.publisher.Close()
	_ = s.redpanda.Container.Terminate(context.Background())
}

func (s *PublisherSuite) TestPublishDeliversKeyedRecords() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	entries := []*outbox.Entry{
		{ID: uuid.New(), TenantID: "acme", EventID: uuid.New(), Payload: []byte(`{"seq":1}`)},
		{ID: uuid.New(), TenantID: "acme", EventID: uuid.New(), Payload: []byte(`{"seq":2}`)},
		{ID: uuid.New(), TenantID: "globex", EventID: uuid.New(), Payload: []byte(`{"seq":3}`)},
	}
	s.Require().NoError(s.publisher.Publish(ctx, entries))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics("audit.events.test"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	byKey := map[string][]string{}
	deadline := time.Now().Add(30 * time.Second)
	for len(byKey["acme"])+len(byKey["globex"]) < len(entries) && time.Now().Before(deadline) {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(fetches.Err())
		fetches.EachRecord(func(record *kgo.Record) {
			byKey[string(record.Key)] = append(byKey[string(record.Key)], string(record.Value))
		})
	}

	s.Len(byKey["acme"], 2)
	s.Len(byKey["globex"], 1)
	// Same-key records preserve publish order on the partition.
	s.Equal([]string{`{"seq":1}`, `{"seq":2}`}, byKey["acme"])
}

func (s *PublisherSuite) TestNewPublisherToleratesExistingTopic() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	again, err := kafka.NewPublisher(ctx, []string{s.redpanda.Broker}, "audit.events.test", 1)
	s.Require().NoError(err)
	again.Close()
}
