//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"proofdrop/internal/platform/config"
)

const redpandaImage = "redpandadata/redpanda:v24.2.7"

// KafkaContainer wraps a testcontainers Kafka instance.
type KafkaContainer struct {
	Container testcontainers.Container
	Brokers   string
}

// NewKafkaContainer starts a single Redpanda broker through the kafka module.
func NewKafkaContainer(t *testing.T) *KafkaContainer {
	t.Helper()

	ctx := context.Background()

	container, err := kafka.Run(ctx,
		redpandaImage,
		kafka.WithClusterID("proofdrop-test"),
	)
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}

	brokers, err := container.Brokers(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get kafka brokers: %v", err)
	}

	// Shared through Manager; Ryuk reaps it when the test binary exits.
	kc := &KafkaContainer{
		Container: container,
		Brokers:   brokers[0],
	}

	return kc
}

// Config is a KafkaConfig pointed at this broker. prefix isolates the topics
// and consumer group of one suite from the others sharing the broker.
func (k *KafkaContainer) Config(prefix string) config.KafkaConfig {
	return config.KafkaConfig{
		Brokers:            k.Brokers,
		TopicPrefix:        prefix,
		GroupID:            prefix + "-relay",
		Acks:               "all",
		Retries:            3,
		DeliveryTimeout:    10 * time.Second,
		OutboxPollInterval: 50 * time.Millisecond,
		OutboxBatchSize:    50,
		Partitions:         1,
		ReplicationFactor:  1,
	}
}

// Offsets returns the committed offsets of group, for asserting that a
// consumer did or did not commit past a record.
func (k *KafkaContainer) Offsets(ctx context.Context, group string) (kadm.OffsetResponses, error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(k.Brokers))
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return kadm.NewClient(client).FetchOffsets(ctx, group)
}

// NewConsumer returns a raw franz-go group client reading from the start.
func (k *KafkaContainer) NewConsumer(ctx context.Context, groupID string, topics ...string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(k.Brokers),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// WaitForMessage returns the first record matching match, or nil on timeout.
func (k *KafkaContainer) WaitForMessage(ctx context.Context, client *kgo.Client, timeout time.Duration, match func(*kgo.Record) bool) *kgo.Record {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			fetches := client.PollFetches(ctx)
			if fetches.IsClientClosed() {
				return nil
			}

			var found *kgo.Record
			fetches.EachRecord(func(r *kgo.Record) {
				if match(r) {
					found = r
				}
			})

			if found != nil {
				return found
			}
		}
	}
}
