package mq

import (
	"Dyvine/internal/task"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeadItem is the record parked on the dead lane for an item that could not
// be recovered.
type DeadItem struct {
	OperationID string    `json:"operation_id"`
	UserID      string    `json:"user_id"`
	ItemID      string    `json:"item_id"`
	Attempt     int       `json:"attempt"`
	Error       string    `json:"error"`
	FailedAt    time.Time `json:"failed_at"`
}

// Client is one AMQP connection with a single channel bound to a topology.
type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	topo Topology
	mu   sync.Mutex
}

// Dial connects to url and declares topo.
func Dial(url string, topo Topology) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	c := &Client{conn: conn, ch: ch, topo: topo}
	if err := topo.Declare(ch); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Topology() Topology { return c.topo }

// Closed reports whether the connection or channel has gone away.
func (c *Client) Closed() bool {
	return c.conn.IsClosed() || c.ch.IsClosed()
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Consume starts manual-ack delivery from the work lane with at most
// prefetch unacknowledged messages in flight.
func (c *Client) Consume(prefetch int) (<-chan amqp.Delivery, error) {
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	return c.ch.Consume(c.topo.Work.Queue, "", false, false, false, false, nil)
}

// PublishItem queues msg for immediate processing.
func (c *Client) PublishItem(ctx context.Context, msg task.ItemRetryMessage) error {
	p, err := itemPublishing(msg)
	if err != nil {
		return err
	}
	return c.publish(ctx, c.topo.Work, p)
}

// PublishItemRetry parks msg on the retry lane for delay.
func (c *Client) PublishItemRetry(ctx context.Context, msg task.ItemRetryMessage, delay time.Duration) error {
	p, err := itemPublishing(msg)
	if err != nil {
		return err
	}
	p.Expiration = expiration(delay)
	return c.publish(ctx, c.topo.Retry, p)
}

// PublishDeadItem records an unrecoverable item on the dead lane.
func (c *Client) PublishDeadItem(ctx context.Context, item DeadItem) error {
	body, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return c.publish(ctx, c.topo.Dead, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    messageID(item.OperationID, item.ItemID),
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (c *Client) publish(ctx context.Context, l Lane, p amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch.PublishWithContext(ctx, l.Exchange, l.RoutingKey, false, false, p)
}

func itemPublishing(msg task.ItemRetryMessage) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    messageID(msg.OperationID, msg.ItemID),
		Headers:      amqp.Table{"x-attempt": int32(msg.Attempt)},
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}, nil
}

func messageID(opID, itemID string) string {
	return opID + "/" + itemID
}

// expiration renders delay as a per-message TTL. A retry without a TTL would
// never leave the retry lane, so negative delays become zero.
func expiration(delay time.Duration) string {
	return strconv.FormatInt(max(delay, 0).Milliseconds(), 10)
}
