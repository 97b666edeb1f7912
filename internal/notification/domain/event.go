package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventKind es el tipo de evento de ciclo de vida de una tarea, tal y como viaja en el campo "event_type".
type EventKind string

const (
	TaskCreated   EventKind = "task.created"
	TaskUpdated   EventKind = "task.updated"
	TaskCompleted EventKind = "task.completed"
	TaskDeleted   EventKind = "task.deleted"
)

// RoutingKeyPrefix es el prefijo común de todas las routing keys de tareas.
const RoutingKeyPrefix = "task"

var knownKinds = []EventKind{TaskCreated, TaskUpdated, TaskCompleted, TaskDeleted}

// KnownEventKinds devuelve los tipos de evento soportados.
func KnownEventKinds() []EventKind {
	return append([]EventKind(nil), knownKinds...)
}

// Name devuelve el tipo sin prefijo y en minúsculas ("completed").
func (k EventKind) Name() string {
	s := strings.ToLower(string(k))
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// RoutingKey devuelve la clave de enrutado "task.<kind>".
func (k EventKind) RoutingKey() string {
	return RoutingKeyPrefix + "." + k.Name()
}

// IsKnown indica si el tipo pertenece al conjunto cerrado actual.
func (k EventKind) IsKnown() bool {
	for _, known := range knownKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseEventKind acepta el valor de cable ("task.created"), el nombre ("created") o su forma capitalizada ("Created").
func ParseEventKind(s string) (EventKind, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), RoutingKeyPrefix+".")
	for _, k := range knownKinds {
		if k.Name() == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, s)
}

// TaskEvent es la representación de cable de un evento de tarea.
// Se trata como un valor inmutable: solo se construye con NewTaskEvent o DecodeTaskEvent.
type TaskEvent struct {
	Kind        EventKind `json:"event_type"`
	TaskID      string    `json:"task_id"`
	Description string    `json:"description"`
	IsCompleted bool      `json:"is_completed"`
	Timestamp   string    `json:"timestamp"`

	// true si el mensaje no traía timestamp y se rellenó al decodificar.
	timestampDefaulted bool
}

// NewTaskEvent construye un evento con timestamp UTC actual.
func NewTaskEvent(kind EventKind, taskID, description string, isCompleted bool) TaskEvent {
	return TaskEvent{
		Kind:        kind,
		TaskID:      taskID,
		Description: description,
		IsCompleted: isCompleted,
		Timestamp:   FormatTimestamp(time.Now()),
	}
}

// FormatTimestamp serializa un instante como ISO-8601 en UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Encode serializa el evento con exactamente los cinco campos del contrato.
func (e TaskEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeTaskEvent deserializa el cuerpo de un mensaje. Los campos extra se ignoran.
// Un cuerpo inválido o sin event_type / task_id es un mensaje venenoso (ErrMalformedEvent).
func DecodeTaskEvent(body []byte) (TaskEvent, error) {
	var evt TaskEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return TaskEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if strings.TrimSpace(string(evt.Kind)) == "" {
		return TaskEvent{}, fmt.Errorf("%w: missing event_type", ErrMalformedEvent)
	}
	if strings.TrimSpace(evt.TaskID) == "" {
		return TaskEvent{}, fmt.Errorf("%w: missing task_id", ErrMalformedEvent)
	}
	if evt.Timestamp == "" {
		evt.Timestamp = FormatTimestamp(time.Now())
		evt.timestampDefaulted = true
	}
	return evt, nil
}
