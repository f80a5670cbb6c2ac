package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"proofdrop/internal/platform/config"
)

const healthTimeout = 2 * time.Second

// Brokers splits a comma-separated broker list, dropping blanks.
func Brokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// HealthChecker reports whether the cluster answers metadata requests and
// every topic the service depends on exists.
type HealthChecker struct {
	client  *kgo.Client
	admin   *kadm.Client
	topics  []string
	timeout time.Duration
}

func NewHealthChecker(cfg config.KafkaConfig, topics ...string) (*HealthChecker, error) {
	brokers := Brokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("create health client: %w", err)
	}
	return &HealthChecker{
		client:  client,
		admin:   kadm.NewClient(client),
		topics:  topics,
		timeout: healthTimeout,
	}, nil
}

func (h *HealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	details, err := h.admin.ListTopics(ctx, h.topics...)
	if err != nil {
		return fmt.Errorf("kafka metadata: %w", err)
	}
	for _, topic := range h.topics {
		d, ok := details[topic]
		if !ok {
			return fmt.Errorf("kafka topic %s missing", topic)
		}
		if d.Err != nil {
			return fmt.Errorf("kafka topic %s: %w", topic, d.Err)
		}
	}
	return nil
}

func (h *HealthChecker) Close() {
	h.client.Close()
}
