package rabbitmq

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sharedBus "github.com/davicafu/tasknotify/internal/shared/infra/platform/bus"
	sharedUtils "github.com/davicafu/tasknotify/internal/shared/infra/utils"
)

type handlerFunc func(ctx context.Context, key string, payload []byte) sharedBus.Outcome

func (f handlerFunc) HandleMessage(ctx context.Context, key string, payload []byte) sharedBus.Outcome {
	return f(ctx, key, payload)
}

func testConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Tag:            "test-consumer",
		Prefetch:       1,
		Retry:          sharedUtils.RetryPolicy{Interval: 5 * time.Millisecond},
		HandlerTimeout: time.Second,
	}
}

func newTestConsumer(handler sharedBus.MessageHandler, cfg ConsumerConfig, dialer *fakeDialer) *Consumer {
	conn := newConnectionWithDialer(Config{}, dialer.dial, zap.NewNop())
	return NewConsumer(conn, DefaultTopology(), handler, cfg, zap.NewNop())
}

func delivery(ack amqp.Acknowledger, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, RoutingKey: "task.created", Body: []byte(body)}
}

func TestConsumer_SettlesEachOutcome(t *testing.T) {
	// Arrange
	ch := newFakeChannel()
	dialer := &fakeDialer{channels: []*fakeChannel{ch}}
	outcomes := map[string]sharedBus.Outcome{"ok": sharedBus.Ack, "poison": sharedBus.Reject, "retry": sharedBus.Requeue}
	var seen []string
	handler := handlerFunc(func(ctx context.Context, key string, payload []byte) sharedBus.Outcome {
		seen = append(seen, string(payload))
		return outcomes[string(payload)]
	})
	consumer := newTestConsumer(handler, testConsumerConfig(), dialer)
	ack := &fakeAcknowledger{}

	// Act
	consumer.Start(context.Background())
	ch.deliveries <- delivery(ack, 1, "ok")
	ch.deliveries <- delivery(ack, 2, "poison")
	ch.deliveries <- delivery(ack, 3, "retry")

	// Assert
	assert.Eventually(t, func() bool {
		a, r, j := ack.snapshot()
		return len(a)+len(r)+len(j) == 3
	}, time.Second, 5*time.Millisecond)

	acked, requeued, rejected := ack.snapshot()
	assert.Equal(t, []uint64{1}, acked)
	assert.Equal(t, []uint64{3}, requeued)
	assert.Equal(t, []uint64{2}, rejected)
	assert.Equal(t, StateConsuming, consumer.State())
	assert.Equal(t, 1, ch.prefetch)
	assert.Equal(t, "test-consumer", ch.consumeTag)

	require.NoError(t, consumer.Stop(context.Background()))
	assert.Equal(t, StateStopped, consumer.State())
	assert.True(t, ch.cancelled)
	assert.Equal(t, []string{"ok", "poison", "retry"}, seen)
}

func TestConsumer_RecoversAfterStreamFailure(t *testing.T) {
	first, second := newFakeChannel(), newFakeChannel()
	dialer := &fakeDialer{channels: []*fakeChannel{first, second}}
	handler := handlerFunc(func(ctx context.Context, key string, payload []byte) sharedBus.Outcome { return sharedBus.Ack })
	consumer := newTestConsumer(handler, testConsumerConfig(), dialer)

	consumer.Start(context.Background())
	defer consumer.Stop(context.Background())

	require.Eventually(t, func() bool { return consumer.State() == StateConsuming }, time.Second, time.Millisecond)
	first.breakStream()

	assert.Eventually(t, func() bool {
		return dialer.Calls() == 2 && consumer.State() == StateConsuming
	}, time.Second, time.Millisecond)

	// La topología se vuelve a declarar en el nuevo canal.
	assert.Equal(t, amqp.ExchangeTopic, second.exchanges["task_events"])

	ack := &fakeAcknowledger{}
	second.deliveries <- delivery(ack, 7, "{}")
	assert.Eventually(t, func() bool {
		a, _, _ := ack.snapshot()
		return len(a) == 1
	}, time.Second, time.Millisecond)
}

func TestConsumer_GivesUpAfterMaxAttempts(t *testing.T) {
	dialer := &fakeDialer{}
	cfg := testConsumerConfig()
	cfg.Retry = sharedUtils.RetryPolicy{Interval: time.Millisecond, MaxAttempts: 3}
	consumer := newTestConsumer(handlerFunc(func(context.Context, string, []byte) sharedBus.Outcome { return sharedBus.Ack }), cfg, dialer)

	consumer.Start(context.Background())

	select {
	case <-consumer.Done():
	case <-time.After(time.Second):
		t.Fatal("consumer loop did not exit")
	}
	assert.Equal(t, StateFailed, consumer.State())
	assert.Equal(t, 3, dialer.Calls())
	assert.NoError(t, consumer.Stop(context.Background()))
}

func TestConsumer_StopWaitsForInFlightMessage(t *testing.T) {
	ch := newFakeChannel()
	dialer := &fakeDialer{channels: []*fakeChannel{ch}}
	started := make(chan struct{})
	release := make(chan struct{})
	handler := handlerFunc(func(ctx context.Context, key string, payload []byte) sharedBus.Outcome {
		close(started)
		<-release
		return sharedBus.Ack
	})
	consumer := newTestConsumer(handler, testConsumerConfig(), dialer)
	ack := &fakeAcknowledger{}

	consumer.Start(context.Background())
	ch.deliveries <- delivery(ack, 1, "slow")
	<-started

	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, consumer.Stop(shortCtx), ErrShutdownTimeout)

	close(release)
	require.NoError(t, consumer.Stop(context.Background()))

	acked, _, _ := ack.snapshot()
	assert.Equal(t, []uint64{1}, acked, "El mensaje en vuelo debe terminar con ack")
	assert.Equal(t, StateStopped, consumer.State())
}

func TestConsumer_StopBeforeStart(t *testing.T) {
	consumer := newTestConsumer(handlerFunc(func(context.Context, string, []byte) sharedBus.Outcome { return sharedBus.Ack }), testConsumerConfig(), &fakeDialer{})
	assert.NoError(t, consumer.Stop(context.Background()))
	assert.Equal(t, StateStopped, consumer.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "CONSUMING", StateConsuming.String())
	assert.Equal(t, "FAILED", StateFailed.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}
