// Package kafka publishes ledger events to a Kafka topic with franz-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"cityledger/pkg/platform/events"
)

const (
	headerEventType = "event_type"
	headerEventID   = "event_id"
	headerRequestID = "request_id"
)

// Producer implements events.Publisher. Records are keyed by aggregate ID so
// every event for one proposition lands on the same partition in order.
type Producer struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

type Option func(*options)

type options struct {
	logger      *slog.Logger
	clientID    string
	produceWait time.Duration
	extra       []kgo.Opt
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithClientID(clientID string) Option {
	return func(o *options) { o.clientID = clientID }
}

// WithClientOpts passes raw franz-go options through.
func WithClientOpts(opts ...kgo.Opt) Option {
	return func(o *options) { o.extra = append(o.extra, opts...) }
}

// NewProducer connects to brokers. The connection is lazy; EnsureTopic or the
// first Publish surfaces broker errors.
func NewProducer(brokers []string, topic string, opts ...Option) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	o := options{clientID: "cityledger", produceWait: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	kopts := append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(o.clientID),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProduceRequestTimeout(o.produceWait),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
	}, o.extra...)

	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	return &Producer{client: client, topic: topic, logger: o.logger}, nil
}

// EnsureTopic creates the topic if it does not exist.
func (p *Producer) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopic(ctx, partitions, replication, nil, p.topic)
	if err != nil {
		return fmt.Errorf("kafka: create topic %s: %w", p.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("kafka: create topic %s: %w", p.topic, resp.Err)
	}
	p.logger.InfoContext(ctx, "kafka topic ready", "topic", p.topic, "partitions", partitions)
	return nil
}

// Publish produces the batch synchronously and fails if any record failed.
func (p *Producer) Publish(ctx context.Context, batch []events.Event) error {
	if len(batch) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(batch))
	for _, e := range batch {
		rec, err := toRecord(p.topic, e)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("kafka: produce: %w", err)
	}
	return nil
}

// Ping checks broker connectivity.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Producer) Close() {
	p.client.Close()
}

func toRecord(topic string, e events.Event) (*kgo.Record, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("kafka: encode event %s: %w", e.ID, err)
	}
	return &kgo.Record{
		Topic:     topic,
		Key:       []byte(e.AggregateID),
		Value:     value,
		Timestamp: e.Timestamp,
		Headers: []kgo.RecordHeader{
			{Key: headerEventType, Value: []byte(e.Type)},
			{Key: headerEventID, Value: []byte(e.ID.String())},
			{Key: headerRequestID, Value: []byte(e.RequestID)},
		},
	}, nil
}
