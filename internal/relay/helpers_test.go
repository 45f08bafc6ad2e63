package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/audit"
	"github.com/nerrad567/gray-logic-relay/internal/auth"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
)

const testSecret = "relay-test-secret-at-least-32-chars"

func defaultRoutes() []config.MQTTRouteConfig {
	return []config.MQTTRouteConfig{
		{Topic: "esp8266/client", Event: "client"},
		{Topic: "esp8266/status", Event: "status"},
	}
}

func testRouter(t *testing.T) *Router {
	t.Helper()
	table, err := NewTable(defaultRoutes())
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	r := NewRouter(table)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

// testSession returns a Session obtained through the real auth gate.
func testSession(t *testing.T) auth.Session {
	t.Helper()
	gate := auth.NewGate(testSecret, "", nil)
	token, _, err := auth.IssueToken(&auth.User{ID: "usr-001", Username: "alice"}, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	session, err := gate.VerifyToken(context.Background(), token)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	return session
}

type recordingHub struct {
	mu     sync.Mutex
	events []Event
}

func (h *recordingHub) Broadcast(ev Event) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
}

func (h *recordingHub) snapshot() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.events...)
}

type fakeSubscriber struct {
	topics   []string
	qos      []byte
	handlers map[string]mqtt.MessageHandler
	err      error
}

func (f *fakeSubscriber) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	if f.err != nil {
		return f.err
	}
	if f.handlers == nil {
		f.handlers = make(map[string]mqtt.MessageHandler)
	}
	f.topics = append(f.topics, topic)
	f.qos = append(f.qos, qos)
	f.handlers[topic] = handler
	return nil
}

type publishCall struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

// stubBroker counts every Publish call.
type stubBroker struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (b *stubBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, publishCall{topic: topic, payload: string(payload), qos: qos, retained: retained})
	return b.err
}

func (b *stubBroker) setErr(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func (b *stubBroker) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

type recordingAudit struct {
	entries []*audit.AuditLog
}

func (r *recordingAudit) Record(entry *audit.AuditLog) {
	r.entries = append(r.entries, entry)
}
