package bus

import "context"

// Outcome es la decisión del manejador sobre un mensaje entregado por el broker.
type Outcome int

const (
	// Ack: procesado, el broker puede olvidarlo.
	Ack Outcome = iota
	// Requeue: fallo transitorio, debe volver a entregarse más tarde.
	Requeue
	// Reject: mensaje venenoso, no se reintenta.
	Reject
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// MessageHandler define la interfaz que debe cumplir cualquier consumidor de eventos.
// La semántica de la clave (routing key en AMQP, key del mensaje en Kafka) la decide el adapter.
type MessageHandler interface {
	HandleMessage(ctx context.Context, key string, payload []byte) Outcome
}
