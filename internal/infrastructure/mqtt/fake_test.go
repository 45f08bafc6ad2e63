package mqtt

import (
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// fakeToken is an already-completed paho token.
type fakeToken struct {
	err  error
	done chan struct{}
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakePublish struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho stands in for the paho client so the state machine can be
// driven without a broker.
type fakePaho struct {
	mu   sync.Mutex
	opts *pahomqtt.ClientOptions

	connected    bool
	connectErrs  []error // consumed in order by Connect; empty means success
	connectCalls int

	routes     map[string]pahomqtt.MessageHandler
	subscribes []string
	replays    []map[string]byte
	published  []fakePublish
	publishErr error

	// onReplay runs inside SubscribeMultiple.
	onReplay func()
}

func newFakePaho() *fakePaho {
	return &fakePaho{routes: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool { return f.IsConnectionOpen() }

func (f *fakePaho) IsConnectionOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) Connect() pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	var err error
	if len(f.connectErrs) > 0 {
		err = f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
	}
	if err == nil {
		f.connected = true
	}
	return completedToken(err)
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := payload.([]byte)
	f.published = append(f.published, fakePublish{topic: topic, qos: qos, retained: retained, payload: b})
	return completedToken(f.publishErr)
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, topic)
	if callback != nil {
		f.routes[topic] = callback
	}
	return completedToken(nil)
}

func (f *fakePaho) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	cp := make(map[string]byte, len(filters))
	for k, v := range filters {
		cp[k] = v
		if callback != nil {
			f.routes[k] = callback
		}
	}
	f.replays = append(f.replays, cp)
	hook := f.onReplay
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return completedToken(nil)
}

func (f *fakePaho) Unsubscribe(...string) pahomqtt.Token { return completedToken(nil) }

func (f *fakePaho) AddRoute(topic string, callback pahomqtt.MessageHandler) {
	f.mu.Lock()
	f.routes[topic] = callback
	f.mu.Unlock()
}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// dropConnection simulates a transport failure reported by paho.
func (f *fakePaho) dropConnection(err error) {
	f.mu.Lock()
	f.connected = false
	handler := f.opts.OnConnectionLost
	f.mu.Unlock()
	handler(f, err)
}

// deliver invokes the route registered for topic as paho's router would.
func (f *fakePaho) deliver(t *testing.T, topic string, payload []byte) {
	t.Helper()
	f.mu.Lock()
	route, ok := f.routes[topic]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no route registered for %q", topic)
	}
	route(f, fakeMessage{topic: topic, payload: payload})
}

func (f *fakePaho) snapshot() (connectCalls int, replays []map[string]byte, published []fakePublish) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls, append([]map[string]byte(nil), f.replays...), append([]fakePublish(nil), f.published...)
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.example.com",
			Port:     8883,
			TLS:      true,
			ClientID: "relay-test",
		},
		Auth: config.MQTTAuthConfig{
			Username: "device",
			Password: "secret",
		},
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}
}

// newTestClient returns a client backed by a fakePaho with millisecond backoff.
func newTestClient(t *testing.T, cfg config.MQTTConfig) (*Client, *fakePaho) {
	t.Helper()
	fake := newFakePaho()
	c := newClient(cfg, func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
		fake.opts = opts
		return fake
	})
	c.backoff = backoff{initial: time.Millisecond, max: 4 * time.Millisecond}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // Test cleanup
	return c, fake
}

func waitForState(t *testing.T, c *Client, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("State() = %s, want %s", c.State(), want)
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}
