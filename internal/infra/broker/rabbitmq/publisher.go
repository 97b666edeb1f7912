package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	notificationDomain "github.com/davicafu/tasknotify/internal/notification/domain"
)

// Publisher publica eventos de tarea en el exchange topic.
type Publisher struct {
	conn     *Connection
	topology Topology
	log      *zap.Logger
}

func NewPublisher(conn *Connection, topology Topology, log *zap.Logger) *Publisher {
	return &Publisher{conn: conn, topology: topology, log: log}
}

// Initialize declara exchange, cola y bindings.
func (p *Publisher) Initialize(ctx context.Context) error {
	err := p.conn.Do(ctx, func(ch Channel) error {
		return p.topology.Declare(ch)
	})
	if err != nil {
		return err
	}

	p.log.Info("✅ Topología AMQP declarada",
		zap.String("exchange", p.topology.Exchange),
		zap.String("queue", p.topology.Queue),
		zap.Strings("bindings", p.topology.BindingKeys),
		zap.Bool("dead_letter", p.topology.DeadLetter != nil),
	)
	return nil
}

// Publish envía el evento como JSON persistente con routing key "task.<kind>".
func (p *Publisher) Publish(ctx context.Context, evt notificationDomain.TaskEvent) error {
	body, err := evt.Encode()
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPublish, err)
	}
	routingKey := evt.Kind.RoutingKey()

	err = p.conn.Do(ctx, func(ch Channel) error {
		return ch.PublishWithContext(ctx, p.topology.Exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	})
	if err != nil {
		p.log.Error("❌ Error publicando evento",
			zap.String("routing_key", routingKey),
			zap.String("task_id", evt.TaskID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}

	p.log.Debug("📤 Evento publicado",
		zap.String("routing_key", routingKey),
		zap.String("task_id", evt.TaskID),
	)
	return nil
}
