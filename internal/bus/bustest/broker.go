// Package bustest provides an in-memory MQTT broker for tests.
package bustest

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Broker routes messages between Conns by exact topic match.
type Broker struct {
	mu        sync.Mutex
	conns     []*Conn
	published map[string][][]byte
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{published: make(map[string][][]byte)}
}

// Conn returns a new client connection. It satisfies bus.Broker.
func (b *Broker) Conn() *Conn {
	c := &Conn{broker: b, subs: make(map[string]mqtt.MessageHandler)}
	b.mu.Lock()
	b.conns = append(b.conns, c)
	b.mu.Unlock()
	return c
}

// Published returns copies of every payload published on topic so far.
func (b *Broker) Published(topic string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.published[topic]))
	copy(out, b.published[topic])
	return out
}

// WaitPublished waits until at least n payloads were published on topic.
func (b *Broker) WaitPublished(topic string, n int, timeout time.Duration) [][]byte {
	deadline := time.Now().Add(timeout)
	for {
		got := b.Published(topic)
		if len(got) >= n || time.Now().After(deadline) {
			return got
		}
		time.Sleep(time.Millisecond)
	}
}

func (b *Broker) deliver(topic string, payload []byte) {
	b.mu.Lock()
	b.published[topic] = append(b.published[topic], payload)
	var handlers []mqtt.MessageHandler
	for _, c := range b.conns {
		c.mu.Lock()
		if h, ok := c.subs[topic]; ok {
			handlers = append(handlers, h)
		}
		c.mu.Unlock()
	}
	b.mu.Unlock()

	for _, h := range handlers {
		go h(nil, &Message{topic: topic, payload: payload})
	}
}

// Conn is one client's view of the broker.
type Conn struct {
	broker *Broker

	mu   sync.Mutex
	subs map[string]mqtt.MessageHandler

	// PublishErr, when set, fails every publish.
	PublishErr error
	// Drop, when set, accepts publishes without delivering them.
	Drop bool
}

// Publish implements bus.Broker.
func (c *Conn) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	if c.PublishErr != nil {
		return Done(c.PublishErr)
	}
	if c.Drop {
		return Done(nil)
	}
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = append([]byte(nil), p...)
	case string:
		data = []byte(p)
	}
	c.broker.deliver(topic, data)
	return Done(nil)
}

// Subscribe implements bus.Broker.
func (c *Conn) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	c.subs[topic] = callback
	c.mu.Unlock()
	return Done(nil)
}

// Unsubscribe implements bus.Broker.
func (c *Conn) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.subs, t)
	}
	c.mu.Unlock()
	return Done(nil)
}

// Subscribed reports whether the connection listens on topic.
func (c *Conn) Subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[topic]
	return ok
}

// Token is an already completed mqtt.Token.
type Token struct {
	err  error
	done chan struct{}
}

// Done returns a completed token carrying err.
func Done(err error) *Token {
	ch := make(chan struct{})
	close(ch)
	return &Token{err: err, done: ch}
}

func (t *Token) Wait() bool                     { return true }
func (t *Token) WaitTimeout(time.Duration) bool { return true }
func (t *Token) Done() <-chan struct{}          { return t.done }
func (t *Token) Error() error                   { return t.err }

// Message is an in-memory mqtt.Message.
type Message struct {
	topic   string
	payload []byte
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return 0 }
func (m *Message) Retained() bool    { return false }
func (m *Message) Topic() string     { return m.topic }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Payload() []byte   { return m.payload }
func (m *Message) Ack()              {}
