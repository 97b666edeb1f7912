package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification es el registro persistido que consulta la API.
type Notification struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"event_type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	TaskID    string    `json:"task_id"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNotification construye una notificación no leída a partir de un evento ya renderizado.
func NewNotification(id string, evt TaskEvent, r Rendered, createdAt time.Time) *Notification {
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Notification{
		ID:        id,
		Kind:      evt.Kind,
		Title:     r.Title,
		Message:   r.Message,
		TaskID:    evt.TaskID,
		Read:      false,
		CreatedAt: createdAt.UTC(),
	}
}

// MarkRead es monótono: una notificación leída nunca vuelve a no leída.
func (n *Notification) MarkRead() {
	n.Read = true
}

// notificationNamespace es el espacio UUIDv5 de los ids de notificación.
var notificationNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:tasknotify:notification"))

// NotificationID deriva el id a partir de (task_id, event_type, timestamp) tal como llegaron.
// Una reentrega del mismo evento produce el mismo id y la escritura colisiona en la misma clave.
// Si el mensaje no traía timestamp se usa la cadena vacía, no el valor rellenado al decodificar.
func NotificationID(evt TaskEvent) string {
	ts := evt.Timestamp
	if evt.timestampDefaulted {
		ts = ""
	}
	name := evt.TaskID + "\x00" + string(evt.Kind) + "\x00" + ts
	return uuid.NewSHA1(notificationNamespace, []byte(name)).String()
}

// Stats resume el estado del feed de notificaciones.
type Stats struct {
	Total  int64               `json:"total"`
	Unread int64               `json:"unread"`
	ByType map[EventKind]int64 `json:"by_type"`
}
