package domain

import (
	"time"

	shared "github.com/davicafu/tasknotify/internal/shared/domain"
)

// --- Criterios específicos para Notification ---
// Los nombres de campo coinciden con los del almacenamiento (documento o columna).

// ReadCriteria filtra por estado de lectura.
type ReadCriteria struct {
	Read bool
}

func (c ReadCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{{Field: "read", Op: shared.OpEq, Value: c.Read}}
}

// TaskIDCriteria filtra las notificaciones de una tarea.
type TaskIDCriteria struct {
	TaskID string
}

func (c TaskIDCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{{Field: "task_id", Op: shared.OpEq, Value: c.TaskID}}
}

// KindCriteria filtra por tipo de evento.
type KindCriteria struct {
	Kind EventKind
}

func (c KindCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{{Field: "event_type", Op: shared.OpEq, Value: string(c.Kind)}}
}

// CreatedBeforeCriteria selecciona lo creado estrictamente antes de 'Before'.
type CreatedBeforeCriteria struct {
	Before time.Time
}

func (c CreatedBeforeCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{{Field: "created_at", Op: shared.OpLt, Value: c.Before.UTC()}}
}
