// Package mqtt manages the relay's single connection to the device broker.
//
// The Client wraps paho.mqtt.golang behind an explicit state machine:
//
//	Disconnected -> Connecting -> Connected <-> Reconnecting
//
// One supervisor goroutine owns reconnection. It waits an exponential
// backoff with jitter between attempts (reconnect.initial_delay up to
// reconnect.max_delay), and after every successful connect replays the whole
// subscription set before the state is reported Connected. paho's built-in
// auto-reconnect is disabled.
//
// # Security Considerations
//
//   - Production brokers are reached over ssl:// with TLS 1.2 or newer
//   - Username and password come from config or RELAY_MQTT_* variables
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT)
//	client.SetLogger(logger.With("component", "mqtt"))
//
//	_ = client.Subscribe("esp8266/status", 0, handler) // allowed before Start
//
//	if err := client.Start(ctx); err != nil {
//	    logger.Warn("broker unavailable, retrying", "error", err)
//	}
//	defer client.Close()
//
//	err := client.Publish("esp8266/fromWeb", []byte(`{"led":1}`), 0, false)
//	if errors.Is(err, mqtt.ErrNotConnected) {
//	    // transient; the supervisor is reconnecting
//	}
package mqtt
