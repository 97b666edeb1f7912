package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"

	notificationDomain "github.com/davicafu/tasknotify/internal/notification/domain"
)

const (
	DefaultExchange   = "task_events"
	DefaultQueue      = "notification_queue"
	deadLetterSuffix  = ".dlx"
	deadLetterQSuffix = ".dlq"
)

// DeadLetter configura el exchange fanout y la cola donde acaban los mensajes rechazados.
type DeadLetter struct {
	Exchange string
	Queue    string
}

// Topology es el exchange topic, la cola durable y sus bindings.
type Topology struct {
	Exchange    string
	Queue       string
	BindingKeys []string
	DeadLetter  *DeadLetter
}

// DefaultTopology: exchange "task_events", cola "notification_queue", binding "task.*".
func DefaultTopology() Topology {
	return Topology{
		Exchange:    DefaultExchange,
		Queue:       DefaultQueue,
		BindingKeys: []string{notificationDomain.RoutingKeyPrefix + ".*"},
	}
}

// WithDeadLetter activa la cola de mensajes muertos con nombres derivados.
func (t Topology) WithDeadLetter() Topology {
	t.DeadLetter = &DeadLetter{
		Exchange: t.Exchange + deadLetterSuffix,
		Queue:    t.Queue + deadLetterQSuffix,
	}
	return t
}

// Declare es idempotente mientras los parámetros coincidan con los existentes.
func (t Topology) Declare(ch Channel) error {
	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return classifyDeclareError("exchange "+t.Exchange, err)
	}

	var queueArgs amqp.Table
	if dl := t.DeadLetter; dl != nil {
		if err := ch.ExchangeDeclare(dl.Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return classifyDeclareError("exchange "+dl.Exchange, err)
		}
		if _, err := ch.QueueDeclare(dl.Queue, true, false, false, false, nil); err != nil {
			return classifyDeclareError("queue "+dl.Queue, err)
		}
		if err := ch.QueueBind(dl.Queue, "", dl.Exchange, false, nil); err != nil {
			return classifyDeclareError("binding "+dl.Queue, err)
		}
		queueArgs = amqp.Table{"x-dead-letter-exchange": dl.Exchange}
	}

	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, queueArgs); err != nil {
		return classifyDeclareError("queue "+t.Queue, err)
	}

	for _, key := range t.BindingKeys {
		if err := ch.QueueBind(t.Queue, key, t.Exchange, false, nil); err != nil {
			return classifyDeclareError("binding "+key, err)
		}
	}
	return nil
}
