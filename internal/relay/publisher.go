package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-relay/internal/audit"
	"github.com/nerrad567/gray-logic-relay/internal/auth"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/logging"
)

// BrokerPublisher sends one message to the broker.
type BrokerPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// AuditRecorder receives one entry per Submit outcome.
type AuditRecorder interface {
	Record(entry *audit.AuditLog)
}

// Command is a device command from a web client. Payload is forwarded to
// the device as JSON.
type Command struct {
	Payload json.RawMessage
}

// Publisher sends web commands to devices on a fixed topic.
//
// Every Submit makes at most one publish attempt. There is no retry, no
// deduplication and no buffering while the broker is down: the caller is
// told about the failure and may resubmit.
type Publisher struct {
	broker  BrokerPublisher
	topic   string
	qos     byte
	audit   AuditRecorder
	metrics *Metrics
	logger  *logging.Logger
}

// NewPublisher creates a Publisher for topic. A nil metrics gets a private
// counter set and a nil logger discards output.
func NewPublisher(broker BrokerPublisher, topic string, qos byte, metrics *Metrics, logger *logging.Logger) *Publisher {
	if metrics == nil {
		metrics = &Metrics{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Publisher{
		broker:  broker,
		topic:   topic,
		qos:     qos,
		metrics: metrics,
		logger:  logger.With("component", "publisher"),
	}
}

// SetAuditRecorder enables command auditing.
func (p *Publisher) SetAuditRecorder(r AuditRecorder) {
	p.audit = r
}

// Topic returns the command topic.
func (p *Publisher) Topic() string {
	return p.topic
}

// Submit publishes cmd on behalf of session.
//
// A session that did not come from the auth gate yields ErrUnauthorized and
// an empty or non-JSON payload yields ErrInvalidCommand, both before any
// broker call. Broker failures are returned wrapped, so
// errors.Is(err, mqtt.ErrNotConnected) holds during an outage.
func (p *Publisher) Submit(ctx context.Context, cmd Command, session auth.Session) error {
	if !session.Valid() {
		p.metrics.rejected.Add(1)
		p.record("", audit.OutcomeRejected, ErrUnauthorized)
		return ErrUnauthorized
	}

	var payload bytes.Buffer
	if err := json.Compact(&payload, cmd.Payload); err != nil {
		p.metrics.rejected.Add(1)
		p.record(session.UserID(), audit.OutcomeRejected, ErrInvalidCommand)
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	if err := ctx.Err(); err != nil {
		p.metrics.failed.Add(1)
		p.record(session.UserID(), audit.OutcomeFailed, err)
		p.logger.Debug("command abandoned before publish",
			"user_id", session.UserID(),
			"error", err,
		)
		return fmt.Errorf("submitting command: %w", err)
	}

	if err := p.broker.Publish(p.topic, payload.Bytes(), p.qos, false); err != nil {
		p.metrics.failed.Add(1)
		p.record(session.UserID(), audit.OutcomeFailed, err)
		p.logger.Warn("command publish failed",
			"user_id", session.UserID(),
			"topic", p.topic,
			"error", err,
		)
		return fmt.Errorf("publishing command: %w", err)
	}

	p.metrics.published.Add(1)
	p.record(session.UserID(), audit.OutcomeSuccess, nil)
	p.logger.Info("command published",
		"user_id", session.UserID(),
		"username", session.Username(),
		"topic", p.topic,
		"bytes", payload.Len(),
	)
	return nil
}

func (p *Publisher) record(userID, outcome string, err error) {
	if p.audit == nil {
		return
	}
	entry := &audit.AuditLog{
		Action:  audit.ActionCommand,
		Outcome: outcome,
		UserID:  userID,
		Topic:   p.topic,
		Source:  "api",
	}
	if err != nil {
		entry.Error = err.Error()
	}
	p.audit.Record(entry)
}
