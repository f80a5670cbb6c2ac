package mailbox

import (
	"context"
	"encoding/json"
	"log/slog"

	"proofdrop/internal/platform/kafka/consumer"
	"proofdrop/internal/platform/metrics"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
)

// Inbound adapts the Kafka consumer to a Recipient. Records that can never
// succeed (undecodable, or rejected by the recipient's checks) are logged
// and committed; anything else is returned so the consumer redelivers.
type Inbound struct {
	recipient Recipient
	mailbox   domain.Address
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewInbound(recipient Recipient, mailbox domain.Address, m *metrics.Metrics, logger *slog.Logger) *Inbound {
	return &Inbound{recipient: recipient, mailbox: mailbox, metrics: m, logger: logger}
}

func (i *Inbound) Handle(ctx context.Context, msg *consumer.Message) error {
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		i.metrics.IncMessagesReceived("undecodable")
		i.logger.ErrorContext(ctx, "dropping undecodable envelope",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if env.ComputeID() != env.ID {
		i.metrics.IncMessagesReceived("id_mismatch")
		i.logger.ErrorContext(ctx, "dropping envelope with mismatched id",
			"message_id", env.ID.Hex(),
			"offset", msg.Offset,
		)
		return nil
	}

	err := i.recipient.HandleEnvelope(ctx, i.mailbox, &env)
	if err == nil {
		return nil
	}
	if permanent(err) {
		i.logger.WarnContext(ctx, "envelope rejected",
			"message_id", env.ID.Hex(),
			"origin", env.OriginDomain,
			"code", dErrors.CodeOf(err),
			"error", err,
		)
		return nil
	}
	return err
}

// permanent reports whether redelivering the same envelope would fail the
// same way.
func permanent(err error) bool {
	switch dErrors.CategoryOf(dErrors.CodeOf(err)) {
	case dErrors.CategoryCrossChain, dErrors.CategoryAuthorization, dErrors.CategoryInput:
		return true
	default:
		return false
	}
}
