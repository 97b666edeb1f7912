package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	sharedBus "github.com/davicafu/tasknotify/internal/shared/infra/platform/bus"
	sharedUtils "github.com/davicafu/tasknotify/internal/shared/infra/utils"
)

// State es el estado observable del bucle de consumo.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateConsuming
	StateFailed
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateConsuming:
		return "CONSUMING"
	case StateFailed:
		return "FAILED"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

const (
	defaultHandlerTimeout = 10 * time.Second
	drainTimeout          = time.Second
)

// ConsumerConfig agrupa los parámetros del consumidor.
type ConsumerConfig struct {
	Tag            string
	Prefetch       int
	Retry          sharedUtils.RetryPolicy
	HandlerTimeout time.Duration
	// RequeueDelay retrasa el nack con requeue para no reentregar en caliente mientras el almacenamiento está caído.
	RequeueDelay time.Duration
}

// DefaultConsumerConfig: prefetch 1 y reintento del stream cada 5s sin límite.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Tag:            "notification-service",
		Prefetch:       1,
		Retry:          sharedUtils.RetryPolicy{Interval: 5 * time.Second},
		HandlerTimeout: defaultHandlerTimeout,
		RequeueDelay:   time.Second,
	}
}

// Consumer consume la cola con ack manual y un único worker en orden.
type Consumer struct {
	conn     *Connection
	topology Topology
	handler  sharedBus.MessageHandler
	cfg      ConsumerConfig
	log      *zap.Logger

	state atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewConsumer(conn *Connection, topology Topology, handler sharedBus.MessageHandler, cfg ConsumerConfig, log *zap.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaultHandlerTimeout
	}
	return &Consumer{
		conn:     conn,
		topology: topology,
		handler:  handler,
		cfg:      cfg,
		log:      log,
	}
}

// State devuelve el estado actual.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

func (c *Consumer) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s {
		c.log.Debug("Consumer state", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Start lanza el bucle en una goroutine. Llamarlo con el bucle ya en marcha no hace nada.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		select {
		case <-c.done:
		default:
			return
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done

	c.setState(StateStarting)
	go func() {
		defer close(done)
		c.run(runCtx)
	}()
}

// Stop cancela el bucle y espera a que termine el mensaje en vuelo, o a que expire ctx.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	default:
	}

	c.setState(StateStopping)
	cancel()

	select {
	case <-done:
		c.state.CompareAndSwap(int32(StateStopping), int32(StateStopped))
		c.log.Info("🛑 Consumidor AMQP detenido")
		return nil
	case <-ctx.Done():
		return ErrShutdownTimeout
	}
}

// Done se cierra cuando el bucle termina.
func (c *Consumer) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// run es el bucle explícito de reintentos: STARTING -> CONSUMING -> FAILED -> (espera) -> STARTING.
func (c *Consumer) run(ctx context.Context) {
	failures := 0
	for ctx.Err() == nil {
		c.setState(StateStarting)
		reached, err := c.consume(ctx)
		if ctx.Err() != nil {
			break
		}

		// Tras haber consumido con éxito, el contador vuelve a empezar.
		if reached {
			failures = 0
		}
		failures++

		c.setState(StateFailed)
		c.log.Warn("⚠️ Stream de consumo caído, reintentando",
			zap.Error(err),
			zap.Int("attempt", failures),
			zap.Duration("retry_in", c.cfg.Retry.Interval),
		)

		if c.cfg.Retry.Exhausted(failures) {
			c.log.Error("❌ Reintentos agotados, el consumidor queda en FAILED", zap.Int("attempts", failures))
			return
		}
		if err := c.cfg.Retry.Wait(ctx); err != nil {
			break
		}
	}
	c.setState(StateStopped)
}

// consume declara la topología, fija el prefetch y procesa entregas hasta que el stream
// se cierra o se cancela ctx. Devuelve si llegó a CONSUMING.
func (c *Consumer) consume(ctx context.Context) (bool, error) {
	var deliveries <-chan amqp.Delivery
	err := c.conn.Do(ctx, func(ch Channel) error {
		if err := c.topology.Declare(ch); err != nil {
			return err
		}
		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
		var err error
		deliveries, err = ch.Consume(c.topology.Queue, c.cfg.Tag, false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", c.topology.Queue, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	c.setState(StateConsuming)
	c.log.Info("🎧 Consumiendo de RabbitMQ",
		zap.String("queue", c.topology.Queue),
		zap.String("consumer_tag", c.cfg.Tag),
		zap.Int("prefetch", c.cfg.Prefetch),
	)

	for {
		select {
		case <-ctx.Done():
			c.cancelConsumer()
			c.drain(deliveries)
			return true, nil
		case d, ok := <-deliveries:
			if !ok {
				return true, ErrStreamClosed
			}
			c.handle(ctx, d)
		}
	}
}

// handle procesa una entrega. El contexto del handler no hereda la cancelación
// para que el mensaje en vuelo termine su ack/nack durante el apagado.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.HandlerTimeout)
	outcome := c.handler.HandleMessage(hctx, d.RoutingKey, d.Body)
	cancel()

	if outcome == sharedBus.Requeue && c.cfg.RequeueDelay > 0 {
		timer := time.NewTimer(c.cfg.RequeueDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()
	}

	if err := c.settle(d, outcome); err != nil {
		c.log.Warn("Error confirmando entrega",
			zap.Uint64("delivery_tag", d.DeliveryTag),
			zap.Stringer("outcome", outcome),
			zap.Error(err),
		)
	}
}

func (c *Consumer) settle(d amqp.Delivery, outcome sharedBus.Outcome) error {
	return c.conn.withLock(func() error {
		switch outcome {
		case sharedBus.Ack:
			return d.Ack(false)
		case sharedBus.Requeue:
			return d.Nack(false, true)
		case sharedBus.Reject:
			return d.Reject(false)
		default:
			return fmt.Errorf("unknown outcome %d", outcome)
		}
	})
}

func (c *Consumer) cancelConsumer() {
	err := c.conn.current(func(ch Channel) error {
		return ch.Cancel(c.cfg.Tag, false)
	})
	if err != nil && !errors.Is(err, ErrConnection) {
		c.log.Warn("Error cancelando consumidor", zap.Error(err))
	}
}

// drain devuelve a la cola lo que el broker ya hubiera entregado tras la cancelación.
func (c *Consumer) drain(deliveries <-chan amqp.Delivery) {
	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if err := c.settle(d, sharedBus.Requeue); err != nil {
				c.log.Debug("Error devolviendo entrega a la cola", zap.Error(err))
			}
		case <-timer.C:
			return
		}
	}
}
