package query

// ---------- Tipos de paginación / ordenamiento ----------

// OffsetPagination para paginación clásica (limit/skip)
type OffsetPagination struct {
	Limit  int
	Offset int
}

// Interfaz genérica para paginación. nil significa "sin paginar".
type Pagination interface{}

// Sort indica campo y dirección.
type Sort struct {
	Field string // ej. "created_at", "task_id"
	Desc  bool
}

// NewestFirst es el orden por defecto de los listados de notificaciones.
var NewestFirst = Sort{Field: "created_at", Desc: true}
