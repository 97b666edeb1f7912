package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultHeartbeat   = 10 * time.Second
)

// Config describe cómo llegar al broker.
type Config struct {
	URL            string
	ConnectionName string
	DialTimeout    time.Duration
	Heartbeat      time.Duration
}

type dialFunc func(ctx context.Context, cfg Config) (conn, Channel, error)

// Connection gestiona una única conexión AMQP y un único canal compartidos.
// Todas las operaciones sobre el canal pasan por el mutex: declaraciones,
// publicaciones y acks nunca se ejecutan en paralelo.
type Connection struct {
	cfg  Config
	dial dialFunc
	log  *zap.Logger

	mu   sync.Mutex
	conn conn
	ch   Channel
}

// NewConnection crea el gestor sin conectar. La conexión se abre con Connect
// o, de forma perezosa, en el primer uso del canal.
func NewConnection(cfg Config, log *zap.Logger) *Connection {
	return newConnectionWithDialer(cfg, dialAMQP, log)
}

func newConnectionWithDialer(cfg Config, dial dialFunc, log *zap.Logger) *Connection {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	return &Connection{cfg: cfg, dial: dial, log: log}
}

func dialAMQP(ctx context.Context, cfg Config) (conn, Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	props := amqp.NewConnectionProperties()
	if cfg.ConnectionName != "" {
		props.SetClientConnectionName(cfg.ConnectionName)
	}

	c, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat:  cfg.Heartbeat,
		Dial:       amqp.DefaultDial(cfg.DialTimeout),
		Properties: props,
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := c.Channel()
	if err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	return c, ch, nil
}

// Connect abre la conexión y el canal si no están vivos.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.ensureLocked(ctx)
	return err
}

// Channel devuelve el canal vivo, reconectando si hace falta.
// Para operar sobre él de forma serializada usar Do.
func (c *Connection) Channel(ctx context.Context) (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureLocked(ctx)
}

// Do ejecuta fn con el canal bajo el mutex, reconectando si hace falta.
func (c *Connection) Do(ctx context.Context, fn func(ch Channel) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, err := c.ensureLocked(ctx)
	if err != nil {
		return err
	}
	return fn(ch)
}

// IsConnected indica si hay un canal abierto. No intenta reconectar.
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch != nil && !c.ch.IsClosed()
}

// Disconnect cierra canal y conexión. Es idempotente.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch == nil && c.conn == nil {
		return nil
	}
	c.closeLocked()
	c.log.Info("🔌 Desconectado de RabbitMQ")
	return nil
}

// current ejecuta fn con el canal actual sin reconectar.
func (c *Connection) current(fn func(ch Channel) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch == nil || c.ch.IsClosed() {
		return fmt.Errorf("%w: channel not open", ErrConnection)
	}
	return fn(c.ch)
}

// withLock serializa operaciones que actúan sobre el canal de forma indirecta (ack de una entrega).
func (c *Connection) withLock(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn()
}

func (c *Connection) ensureLocked(ctx context.Context) (Channel, error) {
	if c.ch != nil && !c.ch.IsClosed() {
		return c.ch, nil
	}
	// Canal o conexión caídos: se descarta todo y se vuelve a marcar.
	c.closeLocked()

	cn, ch, err := c.dial(ctx, c.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	c.conn, c.ch = cn, ch

	fields := []zap.Field{zap.String("connection_name", c.cfg.ConnectionName)}
	if uri, err := amqp.ParseURI(c.cfg.URL); err == nil {
		fields = append(fields, zap.String("host", uri.Host), zap.Int("port", uri.Port), zap.String("vhost", uri.Vhost))
	}
	c.log.Info("🐇 Conectado a RabbitMQ", fields...)
	return ch, nil
}

func (c *Connection) closeLocked() {
	if c.ch != nil && !c.ch.IsClosed() {
		if err := c.ch.Close(); err != nil {
			c.log.Debug("Error cerrando canal AMQP", zap.Error(err))
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			c.log.Debug("Error cerrando conexión AMQP", zap.Error(err))
		}
	}
	c.ch, c.conn = nil, nil
}
