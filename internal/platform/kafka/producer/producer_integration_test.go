//go:build integration

package producer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"medvault/internal/platform/kafka/producer"
	"medvault/pkg/testutil/containers"
)

type ProducerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestProducerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerIntegrationSuite))
}

func (s *ProducerIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())

	cfg := producer.DefaultConfig(s.kafka.Brokers)
	cfg.DeliveryTimeout = 10 * time.Second
	prod, err := producer.New(cfg, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ProducerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

// TestProduceDeliversWithHeaders verifies Produce only returns after the
// broker acknowledged the record, headers included.
func (s *ProducerIntegrationSuite) TestProduceDeliversWithHeaders() {
	ctx := context.Background()
	topic := "medvault.audit.test"
	s.Require().NoError(s.kafka.EnsureTopic(ctx, topic))

	err := s.producer.Produce(ctx, &producer.Message{
		Topic:   topic,
		Key:     []byte("patient-1"),
		Value:   []byte(`{"action":"key_released"}`),
		Headers: map[string]string{"action": "key_released"},
	})
	s.Require().NoError(err)

	record, err := s.kafka.FirstRecord(ctx, topic, 5*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == "patient-1"
	})
	s.Require().NoError(err)
	s.Require().NotNil(record)
	s.JSONEq(`{"action":"key_released"}`, string(record.Value))
	s.Require().Len(record.Headers, 1)
	s.Equal("action", record.Headers[0].Key)
	s.Equal("key_released", string(record.Headers[0].Value))
}

func (s *ProducerIntegrationSuite) TestPingAndClose() {
	ctx := context.Background()
	s.NoError(s.producer.Ping(ctx))

	prod, err := producer.New(producer.DefaultConfig(s.kafka.Brokers), nil)
	s.Require().NoError(err)
	s.Require().NoError(prod.Close())
	s.ErrorIs(prod.Produce(ctx, &producer.Message{Topic: "x"}), producer.ErrClosed)
	s.ErrorIs(prod.Ping(ctx), producer.ErrClosed)
}
