package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedBus "github.com/davicafu/tasknotify/internal/shared/infra/platform/bus"
	sharedUtils "github.com/davicafu/tasknotify/internal/shared/infra/utils"
)

// Reader es lo que el adapter necesita de *kafka.Reader.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Config() kafka.ReaderConfig
	Close() error
}

var _ Reader = (*kafka.Reader)(nil)

const commitTimeout = 5 * time.Second

// ConsumerAdapter es el "oído" que escucha en Kafka y entrega cada mensaje al mismo
// handler que usa el consumidor AMQP. El offset solo se confirma tras Ack o Reject;
// un Requeue reintenta el mismo mensaje tras la espera de la política.
type ConsumerAdapter struct {
	reader  Reader
	handler sharedBus.MessageHandler
	retry   sharedUtils.RetryPolicy
	log     *zap.Logger
	done    chan struct{}
}

func NewConsumerAdapter(reader Reader, handler sharedBus.MessageHandler, retry sharedUtils.RetryPolicy, log *zap.Logger) *ConsumerAdapter {
	return &ConsumerAdapter{
		reader:  reader,
		handler: handler,
		retry:   retry,
		log:     log,
		done:    make(chan struct{}),
	}
}

// NewKafkaReader crea el reader del grupo de consumo con commit manual.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
}

// Start inicia el bucle de consumo de mensajes en una goroutine.
func (c *ConsumerAdapter) Start(ctx context.Context) {
	cfg := c.reader.Config()
	c.log.Info("🎧 Iniciando consumidor de Kafka...",
		zap.String("topic", cfg.Topic),
		zap.Strings("brokers", cfg.Brokers),
		zap.String("group_id", cfg.GroupID),
	)

	go func() {
		defer close(c.done)
		c.loop(ctx)
	}()
}

// Done se cierra cuando el bucle termina.
func (c *ConsumerAdapter) Done() <-chan struct{} {
	return c.done
}

func (c *ConsumerAdapter) loop(ctx context.Context) {
	topic := c.reader.Config().Topic
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Consumidor de Kafka detenido.", zap.String("topic", topic))
				return
			}
			c.log.Error("Error al leer mensaje de Kafka", zap.Error(err))
			if c.retry.Wait(ctx) != nil {
				return
			}
			continue
		}

		if !c.process(ctx, msg) {
			return
		}
	}
}

// process entrega el mensaje hasta obtener Ack o Reject y confirma el offset.
// Devuelve false si el contexto se cancela mientras se reintenta.
func (c *ConsumerAdapter) process(ctx context.Context, msg kafka.Message) bool {
	for attempt := 1; ; attempt++ {
		outcome := c.handler.HandleMessage(context.WithoutCancel(ctx), string(msg.Key), msg.Value)
		if outcome != sharedBus.Requeue {
			if outcome == sharedBus.Reject {
				c.log.Warn("☠️ Mensaje de Kafka descartado",
					zap.Int("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
				)
			}
			break
		}

		c.log.Warn("Reintentando mensaje de Kafka",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
		)
		if c.retry.Wait(ctx) != nil {
			// Sin commit: el grupo lo volverá a entregar.
			return false
		}
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
		c.log.Error("Error al confirmar offset de Kafka",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	}
	return true
}
