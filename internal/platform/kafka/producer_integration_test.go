//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"waterlily/internal/platform/kafka"
	"waterlily/pkg/testutil/containers"
)

type ProducerSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestProducerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerSuite))
}

func (s *ProducerSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *ProducerSuite) TestPublishAndConsume() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "waterlily.test-" + time.Now().Format("150405.000000")
	producer, err := kafka.NewProducer(s.redpanda.Brokers, topic)
	s.Require().NoError(err)
	defer producer.Close()

	s.Require().NoError(producer.EnsureTopic(ctx, 1, 1))
	s.Require().NoError(producer.EnsureTopic(ctx, 1, 1), "ensuring an existing topic is a no-op")

	err = producer.Publish(ctx, []kafka.Message{
		{Key: "42", Value: []byte(`{"n":1}`), Headers: map[string]string{"event-type": "profile.upserted"}},
		{Key: "42", Value: []byte(`{"n":2}`)},
	})
	s.Require().NoError(err)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var values []string
	for len(values) < 2 {
		fetches := consumer.PollFetches(ctx)
		s.Require().Empty(fetches.Errors())
		fetches.EachRecord(func(r *kgo.Record) {
			values = append(values, string(r.Value))
		})
	}
	s.Equal([]string{`{"n":1}`, `{"n":2}`}, values)
}
