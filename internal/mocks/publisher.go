package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	notificationDomain "github.com/davicafu/tasknotify/internal/notification/domain"
	sharedBus "github.com/davicafu/tasknotify/internal/shared/infra/platform/bus"
)

// MockPublisher simula el publisher de eventos de tarea.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, evt notificationDomain.TaskEvent) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

// MockPurger simula el servicio de purga usado por el worker de retención.
type MockPurger struct {
	mock.Mock
}

func (m *MockPurger) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	args := m.Called(ctx, days)
	return args.Get(0).(int64), args.Error(1)
}

// MockHandler simula un bus.MessageHandler.
type MockHandler struct {
	mock.Mock
}

func (m *MockHandler) HandleMessage(ctx context.Context, key string, payload []byte) sharedBus.Outcome {
	args := m.Called(ctx, key, payload)
	return args.Get(0).(sharedBus.Outcome)
}

var _ sharedBus.MessageHandler = (*MockHandler)(nil)
