// Package bus carries JSON messages between the controller and the
// manipulation module over MQTT.
package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Broker is the part of mqtt.Client the bus relies on.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// Client publishes and subscribes JSON payloads.
type Client struct {
	conn   Broker
	qos    byte
	logger *zap.SugaredLogger
	close  func()
}

// Dial connects to an MQTT broker.
func Dial(ctx context.Context, brokerURL, clientID string, qos byte, logger *zap.SugaredLogger) (*Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		// handlers publish replies, so they must not run on the router goroutine
		SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, errors.Wrapf(err, "MQTT connect to %s", brokerURL)
	}
	logger.Infof("bus: connected to MQTT broker at %s as %s", brokerURL, clientID)

	c := NewClient(client, qos, logger)
	c.close = func() { client.Disconnect(250) }
	return c, nil
}

// NewClient wraps an already connected broker.
func NewClient(conn Broker, qos byte, logger *zap.SugaredLogger) *Client {
	return &Client{conn: conn, qos: qos, logger: logger}
}

// Publish JSON-encodes msg and publishes it on topic.
func (c *Client) Publish(ctx context.Context, topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrapf(err, "marshal message for %s", topic)
	}
	return errors.Wrapf(wait(ctx, c.conn.Publish(topic, c.qos, false, payload)), "publish %s", topic)
}

// Subscribe delivers every payload on topic to fn until the returned cancel
// func is called.
func (c *Client) Subscribe(ctx context.Context, topic string, fn func(payload []byte)) (func(), error) {
	handler := func(_ mqtt.Client, m mqtt.Message) {
		fn(m.Payload())
	}
	if err := wait(ctx, c.conn.Subscribe(topic, c.qos, handler)); err != nil {
		return nil, errors.Wrapf(err, "subscribe %s", topic)
	}
	c.logger.Debugf("bus: subscribed to %s", topic)

	var once sync.Once
	return func() {
		once.Do(func() {
			if tok := c.conn.Unsubscribe(topic); tok.WaitTimeout(time.Second) && tok.Error() != nil {
				c.logger.Warnf("bus: unsubscribe %s: %v", topic, tok.Error())
			}
		})
	}, nil
}

// Close disconnects from the broker if the client owns the connection.
func (c *Client) Close() {
	if c.close != nil {
		c.close()
	}
}

// wait blocks until the token completes or ctx is done.
func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
