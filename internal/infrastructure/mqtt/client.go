package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// Client is the relay's single broker connection.
//
// It owns an explicit State and one supervisor goroutine that performs every
// reconnect with exponential backoff. After each successful connect the full
// subscription set is replayed in one SUBSCRIBE before the state becomes
// Connected, so no registered topic is ever silently missing.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - The underlying paho handle never leaves this package.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	backoff backoff

	// subscriptions is the registered interest set, replayed on every connect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	state   State
	stateMu sync.RWMutex

	onConnect     func()
	onDisconnect  func(err error)
	onStateChange func(prev, next State)
	callbackMu    sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	// lost carries connection-lost notifications from paho to the supervisor.
	lost  chan error
	fatal chan error

	reconnects atomic.Uint64

	started   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Logger is the logging surface the client needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// subscription holds subscription details for replay on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run sequentially on paho's router goroutine, so they must not
// block. A returned error is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// New creates a client for the broker described by cfg. No network activity
// happens until Start.
func New(cfg config.MQTTConfig) *Client {
	return newClient(cfg, pahomqtt.NewClient)
}

// newClient lets tests substitute the paho implementation.
func newClient(cfg config.MQTTConfig, factory func(*pahomqtt.ClientOptions) pahomqtt.Client) *Client {
	c := &Client{
		cfg:           cfg,
		options:       buildClientOptions(cfg),
		backoff:       newBackoff(cfg.Reconnect.InitialDelay, cfg.Reconnect.MaxDelay),
		subscriptions: make(map[string]subscription),
		state:         StateDisconnected,
		logger:        noopLogger{},
		lost:          make(chan error, 1),
		fatal:         make(chan error, 1),
		done:          make(chan struct{}),
	}

	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.client = factory(c.options)
	return c
}

// Start makes the first connection attempt and launches the supervisor.
//
// A failed first attempt is returned (wrapping ErrConnectionFailed) but is
// not fatal: the supervisor has already scheduled a retry. The supervisor
// runs until ctx is cancelled or Close is called.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	c.setState(StateConnecting)
	err := c.connect()
	if err != nil {
		c.setState(StateReconnecting)
		c.getLogger().Warn("initial broker connection failed, retrying",
			"broker", brokerURL(c.cfg.Broker),
			"error", err,
		)
	}

	c.wg.Add(1)
	go c.supervise(ctx, err != nil)

	return err
}

// supervise is the only goroutine that reconnects. It sleeps until the
// connection is lost, then retries with backoff until connected again, the
// attempt budget is spent, or the client stops.
func (c *Client) supervise(ctx context.Context, reconnectNow bool) {
	defer c.wg.Done()

	failures := 0
	if reconnectNow {
		failures = 1
	}

	for {
		if !reconnectNow {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case err := <-c.lost:
				c.getLogger().Warn("broker connection lost", "error", err)
				failures = 0
			}
		}
		reconnectNow = false

		for {
			if limit := c.cfg.Reconnect.MaxAttempts; limit > 0 && failures >= limit {
				c.setState(StateDisconnected)
				err := fmt.Errorf("%w: %d consecutive failures", ErrMaxAttemptsExceeded, failures)
				c.getLogger().Error("giving up on broker", "error", err)
				c.fatal <- err
				return
			}

			c.setState(StateReconnecting)
			delay := c.backoff.delay(failures)
			c.getLogger().Info("reconnecting to broker", "attempt", failures+1, "delay", delay)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-c.done:
				timer.Stop()
				return
			case <-timer.C:
			}

			c.reconnects.Add(1)
			if err := c.connect(); err != nil {
				failures++
				c.getLogger().Warn("broker reconnect failed", "attempt", failures, "error", err)
				continue
			}
			break
		}
	}
}

// connect performs one connect attempt, replays subscriptions, and moves
// to Connected only if the connection is still open afterwards.
func (c *Client) connect() error {
	// A loss signal from a previous connection is stale now.
	select {
	case <-c.lost:
	default:
	}

	if err := c.wait(c.client.Connect(), defaultConnectTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := c.restoreSubscriptions(); err != nil {
		c.client.Disconnect(0)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if !c.setStateWhen(StateConnected, c.client.IsConnectionOpen) {
		return fmt.Errorf("%w: connection lost during subscription replay", ErrConnectionFailed)
	}

	c.getLogger().Info("broker connected", "broker", brokerURL(c.cfg.Broker))

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
	return nil
}

// restoreSubscriptions sends the whole subscription set as one SUBSCRIBE.
// Handlers are already registered as routes, so the packet carries no callback.
func (c *Client) restoreSubscriptions() error {
	c.subMu.RLock()
	filters := make(map[string]byte, len(c.subscriptions))
	for topic, sub := range c.subscriptions {
		filters[topic] = sub.qos
	}
	c.subMu.RUnlock()

	if len(filters) == 0 {
		return nil
	}
	if err := c.wait(c.client.SubscribeMultiple(filters, nil), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// handleConnectionLost runs on a paho goroutine.
func (c *Client) handleConnectionLost(err error) {
	c.setStateWhen(StateReconnecting, func() bool { return c.state == StateConnected })

	select {
	case c.lost <- err:
	default:
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// wait blocks until tok completes, the timeout passes, or the client closes.
func (c *Client) wait(tok pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-c.done:
		return ErrClosed
	}
}

// Close stops the supervisor and disconnects from the broker.
// It is safe to call more than once.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()

		if c.client.IsConnectionOpen() {
			c.client.Disconnect(defaultDisconnectQuiesce)
		}
		c.setState(StateDisconnected)
	})
	return nil
}

// HealthCheck returns ErrNotConnected unless the state is Connected.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return fmt.Errorf("%w (state %s)", ErrNotConnected, c.State())
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected reports whether the state is Connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Reconnects returns how many reconnect attempts the supervisor has made.
func (c *Client) Reconnects() uint64 {
	return c.reconnects.Load()
}

// Fatal delivers ErrMaxAttemptsExceeded once if reconnect.max_attempts is
// set and exhausted. It never fires when max_attempts is 0.
func (c *Client) Fatal() <-chan error {
	return c.fatal
}

func (c *Client) setState(next State) {
	c.setStateWhen(next, nil)
}

// setStateWhen transitions to next if cond (evaluated under the state lock)
// holds, and notifies the state-change callback on an actual change.
func (c *Client) setStateWhen(next State, cond func() bool) bool {
	c.stateMu.Lock()
	if cond != nil && !cond() {
		c.stateMu.Unlock()
		return false
	}
	prev := c.state
	c.state = next
	c.stateMu.Unlock()

	if prev != next {
		c.getLogger().Debug("broker state changed", "from", prev.String(), "to", next.String())

		c.callbackMu.RLock()
		callback := c.onStateChange
		c.callbackMu.RUnlock()
		if callback != nil {
			callback(prev, next)
		}
	}
	return true
}

// SetOnConnect sets a callback invoked after every successful connect, once
// subscriptions are replayed.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback invoked when an established connection drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetOnStateChange sets a callback invoked on every state transition.
func (c *Client) SetOnStateChange(callback func(prev, next State)) {
	c.callbackMu.Lock()
	c.onStateChange = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger. A nil logger discards output.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.getLogger().Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.getLogger().Warn("MQTT handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}
