package rabbitmq

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	ErrConnection       = errors.New("rabbitmq connection failed")
	ErrTopologyConflict = errors.New("rabbitmq topology conflict")
	ErrPublish          = errors.New("rabbitmq publish failed")
	ErrStreamClosed     = errors.New("rabbitmq delivery stream closed")
	ErrShutdownTimeout  = errors.New("consumer shutdown timed out")
)

// classifyDeclareError convierte un 406 PRECONDITION_FAILED (exchange o cola ya
// declarados con otros parámetros) en ErrTopologyConflict.
func classifyDeclareError(what string, err error) error {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && amqpErr.Code == amqp.PreconditionFailed {
		return fmt.Errorf("%w: %s: %s", ErrTopologyConflict, what, amqpErr.Reason)
	}
	return fmt.Errorf("declare %s: %w", what, err)
}
