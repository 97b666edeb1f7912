package rabbitmq

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type declaredQueue struct {
	name string
	args amqp.Table
}

type binding struct {
	queue, key, exchange string
}

// fakeChannel simula un canal AMQP en memoria.
type fakeChannel struct {
	mu sync.Mutex

	exchanges  map[string]string
	queues     []declaredQueue
	bindings   []binding
	published  []amqp.Publishing
	routingKey []string
	prefetch   int
	consumeTag string
	cancelled  bool
	closed     bool

	exchangeErr error
	consumeErr  error
	publishErr  error

	deliveries chan amqp.Delivery
	cancelOnce sync.Once
}

var _ Channel = (*fakeChannel)(nil)

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		exchanges:  make(map[string]string),
		deliveries: make(chan amqp.Delivery, 16),
	}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exchangeErr != nil {
		return f.exchangeErr
	}
	f.exchanges[name] = kind
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues = append(f.queues, declaredQueue{name: name, args: args})
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings = append(f.bindings, binding{queue: name, key: key, exchange: exchange})
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	if autoAck {
		return nil, errors.New("auto-ack not expected")
	}
	f.consumeTag = consumer
	return f.deliveries, nil
}

func (f *fakeChannel) Cancel(consumer string, noWait bool) error {
	f.mu.Lock()
	f.cancelled = true
	f.mu.Unlock()
	f.cancelOnce.Do(func() { close(f.deliveries) })
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	f.routingKey = append(f.routingKey, key)
	return nil
}

func (f *fakeChannel) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// breakStream simula la caída del canal: se cierra y deja de entregar.
func (f *fakeChannel) breakStream() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.cancelOnce.Do(func() { close(f.deliveries) })
}

type fakeConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fakeDialer entrega canales en orden; cuando se agotan, falla.
type fakeDialer struct {
	mu       sync.Mutex
	channels []*fakeChannel
	calls    int
	err      error
}

func (d *fakeDialer) dial(ctx context.Context, cfg Config) (conn, Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, nil, d.err
	}
	if len(d.channels) == 0 {
		return nil, nil, errors.New("connection refused")
	}
	ch := d.channels[0]
	d.channels = d.channels[1:]
	return &fakeConn{}, ch, nil
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// fakeAcknowledger registra el destino de cada entrega.
type fakeAcknowledger struct {
	mu       sync.Mutex
	acked    []uint64
	requeued []uint64
	rejected []uint64
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		a.requeued = append(a.requeued, tag)
	} else {
		a.rejected = append(a.rejected, tag)
	}
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) snapshot() (acked, requeued, rejected []uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.acked...), append([]uint64(nil), a.requeued...), append([]uint64(nil), a.rejected...)
}
