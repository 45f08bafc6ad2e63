package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-relay/internal/audit"
	"github.com/nerrad567/gray-logic-relay/internal/auth"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
)

func TestPublisher_Submit(t *testing.T) {
	broker := &stubBroker{}
	rec := &recordingAudit{}
	metrics := &Metrics{}
	p := NewPublisher(broker, "esp8266/fromWeb", 1, metrics, nil)
	p.SetAuditRecorder(rec)

	err := p.Submit(context.Background(), Command{Payload: json.RawMessage(`{ "relay": "on" }`)}, testSession(t))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if broker.callCount() != 1 {
		t.Fatalf("publish calls = %d, want exactly 1", broker.callCount())
	}
	call := broker.calls[0]
	if call.topic != "esp8266/fromWeb" || call.payload != `{"relay":"on"}` || call.qos != 1 || call.retained {
		t.Errorf("publish = %+v, want compact payload on command topic, qos 1, not retained", call)
	}

	if got := metrics.Snapshot().CommandsPublished; got != 1 {
		t.Errorf("CommandsPublished = %d, want 1", got)
	}
	if len(rec.entries) != 1 || rec.entries[0].Outcome != audit.OutcomeSuccess || rec.entries[0].UserID != "usr-001" {
		t.Errorf("audit = %+v, want one success entry for usr-001", rec.entries)
	}
}

func TestPublisher_RepeatedSubmitsPublishEachTime(t *testing.T) {
	broker := &stubBroker{}
	p := NewPublisher(broker, "esp8266/fromWeb", 0, nil, nil)
	session := testSession(t)

	for range 3 {
		if err := p.Submit(context.Background(), Command{Payload: json.RawMessage(`{"relay":"toggle"}`)}, session); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	if broker.callCount() != 3 {
		t.Errorf("publish calls = %d, want 3", broker.callCount())
	}
}

func TestPublisher_UnauthorizedNeverPublishes(t *testing.T) {
	broker := &stubBroker{}
	rec := &recordingAudit{}
	metrics := &Metrics{}
	p := NewPublisher(broker, "esp8266/fromWeb", 0, metrics, nil)
	p.SetAuditRecorder(rec)

	payloads := []json.RawMessage{
		json.RawMessage(`{"relay":"on"}`),
		json.RawMessage(`not json`),
		nil,
	}
	for _, payload := range payloads {
		err := p.Submit(context.Background(), Command{Payload: payload}, auth.Session{})
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("Submit(%s) error = %v, want ErrUnauthorized", payload, err)
		}
	}

	if broker.callCount() != 0 {
		t.Errorf("publish calls = %d, want 0", broker.callCount())
	}
	if got := metrics.Snapshot().CommandsRejected; got != 3 {
		t.Errorf("CommandsRejected = %d, want 3", got)
	}
	for _, e := range rec.entries {
		if e.Outcome != audit.OutcomeRejected || e.UserID != "" {
			t.Errorf("audit entry = %+v, want anonymous rejection", e)
		}
	}
}

func TestPublisher_InvalidPayload(t *testing.T) {
	broker := &stubBroker{}
	p := NewPublisher(broker, "esp8266/fromWeb", 0, nil, nil)
	session := testSession(t)

	for _, payload := range []string{"", "{", "relay=on"} {
		err := p.Submit(context.Background(), Command{Payload: json.RawMessage(payload)}, session)
		if !errors.Is(err, ErrInvalidCommand) {
			t.Errorf("Submit(%q) error = %v, want ErrInvalidCommand", payload, err)
		}
	}
	if broker.callCount() != 0 {
		t.Errorf("publish calls = %d, want 0", broker.callCount())
	}
}

func TestPublisher_OutageFailsWithoutRetry(t *testing.T) {
	broker := &stubBroker{err: mqtt.ErrNotConnected}
	rec := &recordingAudit{}
	metrics := &Metrics{}
	p := NewPublisher(broker, "esp8266/fromWeb", 0, metrics, nil)
	p.SetAuditRecorder(rec)

	err := p.Submit(context.Background(), Command{Payload: json.RawMessage(`{"relay":"on"}`)}, testSession(t))
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Fatalf("Submit() error = %v, want mqtt.ErrNotConnected", err)
	}
	if broker.callCount() != 1 {
		t.Fatalf("publish calls = %d, want 1 attempt", broker.callCount())
	}

	// Broker comes back: nothing is replayed.
	broker.setErr(nil)
	if broker.callCount() != 1 {
		t.Errorf("publish calls after reconnect = %d, want still 1", broker.callCount())
	}

	if got := metrics.Snapshot().CommandsFailed; got != 1 {
		t.Errorf("CommandsFailed = %d, want 1", got)
	}
	if len(rec.entries) != 1 || rec.entries[0].Outcome != audit.OutcomeFailed || rec.entries[0].Error == "" {
		t.Errorf("audit = %+v, want one failed entry with error text", rec.entries)
	}
}

func TestPublisher_CancelledContext(t *testing.T) {
	broker := &stubBroker{}
	metrics := &Metrics{}
	rec := &recordingAudit{}
	p := NewPublisher(broker, "esp8266/fromWeb", 0, metrics, nil)
	p.SetAuditRecorder(rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Submit(ctx, Command{Payload: json.RawMessage(`{"relay":"on"}`)}, testSession(t))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Submit() error = %v, want context.Canceled", err)
	}
	if broker.callCount() != 0 {
		t.Errorf("publish calls = %d, want 0", broker.callCount())
	}
	if got := metrics.Snapshot().CommandsFailed; got != 1 {
		t.Errorf("CommandsFailed = %d, want 1", got)
	}
	if len(rec.entries) != 1 || rec.entries[0].Outcome != audit.OutcomeFailed {
		t.Errorf("audit = %+v, want one failed entry", rec.entries)
	}
}
