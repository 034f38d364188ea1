package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultPrefix names the item retry topology when none is configured.
const DefaultPrefix = "dyvine.item"

// Lane is one exchange and its bound queue.
type Lane struct {
	Exchange   string
	Queue      string
	RoutingKey string
}

// Topology names the lanes of the item retry flow. Work is consumed by the
// retry worker. Retry holds delayed messages, each dead-lettering back to
// Work when its TTL expires. Dead keeps items that ran out of attempts.
type Topology struct {
	Work  Lane
	Retry Lane
	Dead  Lane
}

// NewTopology derives every exchange and queue name from prefix.
func NewTopology(prefix string) Topology {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	lane := func(suffix string) Lane {
		return Lane{
			Exchange:   prefix + suffix + ".exchange",
			Queue:      prefix + suffix + ".queue",
			RoutingKey: "item" + suffix,
		}
	}
	return Topology{Work: lane(""), Retry: lane(".retry"), Dead: lane(".dead")}
}

// declarer is the declaring half of *amqp.Channel.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Declare creates the durable exchanges, queues and bindings. Declaring an
// existing topology with the same names is a no-op on the broker.
func (t Topology) Declare(ch declarer) error {
	for _, l := range []Lane{t.Work, t.Retry, t.Dead} {
		if err := ch.ExchangeDeclare(l.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", l.Exchange, err)
		}
		if _, err := ch.QueueDeclare(l.Queue, true, false, false, false, t.queueArgs(l)); err != nil {
			return fmt.Errorf("declare queue %s: %w", l.Queue, err)
		}
		if err := ch.QueueBind(l.Queue, l.RoutingKey, l.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", l.Queue, err)
		}
	}
	return nil
}

func (t Topology) queueArgs(l Lane) amqp.Table {
	if l != t.Retry {
		return nil
	}
	return amqp.Table{
		"x-dead-letter-exchange":    t.Work.Exchange,
		"x-dead-letter-routing-key": t.Work.RoutingKey,
	}
}
