package mqtt

import (
	"fmt"
)

// Subscribe registers interest in topic. It may be called in any state.
//
// Registration is idempotent: subscribing to an already registered topic is
// a no-op and keeps the first handler. The handler is installed as a paho
// route immediately; the SUBSCRIBE packet is sent now if Connected, and is
// part of the replay after every (re)connect regardless.
//
// If the live SUBSCRIBE fails the registration is kept (it will be replayed
// on the next connect) and an error wrapping ErrSubscribeFailed is returned.
//
// Example:
//
//	err := client.Subscribe("esp8266/status", 0,
//	    func(topic string, payload []byte) error {
//	        return router.Handle(topic, payload)
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	c.subMu.Lock()
	if _, exists := c.subscriptions[topic]; exists {
		c.subMu.Unlock()
		return nil
	}
	c.subscriptions[topic] = subscription{
		topic:   topic,
		qos:     qos,
		handler: handler,
	}
	c.client.AddRoute(topic, c.wrapHandler(handler))
	c.subMu.Unlock()

	if !c.IsConnected() {
		return nil
	}

	if err := c.wait(c.client.Subscribe(topic, qos, nil), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// SubscriptionCount returns the number of registered subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}
