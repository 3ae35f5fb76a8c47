// Package messaging wraps a NATS JetStream connection as a local stand-in for
// the production SQS delayed queue, used by the admin API and integration
// tests (see pkg/queueadapter). JetStream has no native per-message delay like
// SQS's DelaySeconds, so delay is emulated with a timer that holds the
// publish until it elapses — adequate for local testing, not a production
// delivery guarantee.
package messaging

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection with JetStream enabled.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext

	mu     sync.Mutex
	timers []*time.Timer
}

// Config holds NATS connection configuration.
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// NewClient connects to NATS and opens a JetStream context.
func NewClient(cfg Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return &Client{conn: conn, js: js}, nil
}

// EnqueueDelayed publishes body to subject after delay elapses, approximating
// SQS's DelaySeconds for local testing.
func (c *Client) EnqueueDelayed(subject string, body []byte, delay time.Duration) error {
	if c.js == nil {
		return fmt.Errorf("JetStream not available")
	}

	timer := time.AfterFunc(delay, func() {
		c.js.Publish(subject, body)
	})

	c.mu.Lock()
	c.timers = append(c.timers, timer)
	c.mu.Unlock()

	return nil
}

// Subscribe subscribes to a subject via JetStream.
func (c *Client) Subscribe(subject string, handler func(msg *nats.Msg)) (*nats.Subscription, error) {
	if c.js == nil {
		return nil, fmt.Errorf("JetStream not available")
	}
	return c.js.Subscribe(subject, handler)
}

// Close stops pending delay timers and closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
	c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}
}
