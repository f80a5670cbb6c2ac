package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"proofdrop/internal/platform/config"
	"proofdrop/internal/platform/kafka"
)

// Message represents a received Kafka message.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes consumed messages. A non-nil error leaves the offset
// uncommitted; the record is fetched again after a rebalance or restart.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// Consumer is a franz-go group consumer with manual commits: offsets are
// committed only for records whose handler returned nil, giving
// at-least-once delivery.
type Consumer struct {
	client       *kgo.Client
	handler      Handler
	logger       *slog.Logger
	retryBackoff time.Duration
}

func New(cfg config.KafkaConfig, topics []string, handler Handler, logger *slog.Logger) (*Consumer, error) {
	brokers := kafka.Brokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka consumer group ID not configured")
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("no topics to consume")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	return &Consumer{
		client:       client,
		handler:      handler,
		logger:       logger,
		retryBackoff: time.Second,
	}, nil
}

// Run polls until ctx is cancelled. A failed record stops progress on its
// partition: nothing after it is committed and the partition is rewound to
// it, so it is handled again after a short backoff.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()

	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			c.client.AllowRebalance()
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if !errors.Is(err, context.Canceled) {
				c.logger.ErrorContext(ctx, "kafka fetch error",
					"topic", topic,
					"partition", partition,
					"error", err,
				)
			}
		})

		var commit []*kgo.Record
		rewind := make(map[string]map[int32]kgo.EpochOffset)
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			for _, record := range p.Records {
				if err := c.handler.Handle(ctx, toMessage(record)); err != nil {
					c.logger.WarnContext(ctx, "kafka handler failed; record will be redelivered",
						"topic", record.Topic,
						"partition", record.Partition,
						"offset", record.Offset,
						"error", err,
					)
					if rewind[record.Topic] == nil {
						rewind[record.Topic] = make(map[int32]kgo.EpochOffset)
					}
					rewind[record.Topic][record.Partition] = kgo.EpochOffset{Epoch: -1, Offset: record.Offset}
					return
				}
				commit = append(commit, record)
			}
		})

		if len(commit) > 0 {
			if err := c.client.CommitRecords(ctx, commit...); err != nil {
				c.logger.ErrorContext(ctx, "kafka commit failed", "error", err)
			}
		}
		c.client.AllowRebalance()

		if len(rewind) > 0 {
			c.client.SetOffsets(rewind)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryBackoff):
			}
		}
	}
}

// Health pings the seed brokers.
func (c *Consumer) Health(ctx context.Context) error {
	return c.client.Ping(ctx)
}

func toMessage(r *kgo.Record) *Message {
	headers := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &Message{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Value:     r.Value,
		Headers:   headers,
		Timestamp: r.Timestamp,
	}
}
