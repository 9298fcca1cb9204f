//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"cityledger/internal/platform/kafka"
	"cityledger/pkg/platform/events"
	eventstore "cityledger/pkg/platform/events/store/memory"
	"cityledger/pkg/platform/events/relay"
	"cityledger/pkg/testutil/containers"
)

type ProducerSuite struct {
	suite.Suite
	brokers  []string
	producer *kafka.Producer
	ctx      context.Context
}

func TestProducerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerSuite))
}

func (s *ProducerSuite) SetupSuite() {
	s.ctx = context.Background()
	s.brokers = containers.GetManager().GetRedpanda(s.T()).Brokers

	p, err := kafka.NewProducer(s.brokers, "cityledger.test")
	s.Require().NoError(err)
	s.producer = p
	s.Require().NoError(p.EnsureTopic(s.ctx, 1, 1))
	s.Require().NoError(p.EnsureTopic(s.ctx, 1, 1), "second call is a no-op")
}

func (s *ProducerSuite) TearDownSuite() {
	s.producer.Close()
}

func (s *ProducerSuite) TestRelayDeliversOutboxToTopic() {
	outbox := eventstore.NewInMemoryStore()
	for _, aggregate := range []string{"1", "1", "2"} {
		e, err := events.New("org.cityledger", "DeliverPropositionEvent", aggregate, map[string]string{"prop": aggregate}, time.Now())
		s.Require().NoError(err)
		s.Require().NoError(outbox.Append(s.ctx, e))
	}

	r := relay.New(outbox, s.producer)
	n, err := r.Flush(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, n)

	pending, err := outbox.Pending(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics("cityledger.test"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	var got []*kgo.Record
	for len(got) < 3 && ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		fetches.EachRecord(func(r *kgo.Record) { got = append(got, r) })
	}
	s.Require().Len(got, 3)
	s.Equal("1", string(got[0].Key))
}
