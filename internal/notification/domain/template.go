package domain

import "fmt"

// Rendered es el par título/mensaje legible para una notificación.
type Rendered struct {
	Title   string
	Message string
}

// Generate traduce un evento a su título y mensaje.
// La descripción se interpola tal cual: el destino es un campo de una respuesta JSON.
func Generate(evt TaskEvent) Rendered {
	switch evt.Kind {
	case TaskCreated:
		return render("✨ New Task Created", "Task '%s' has been created", evt.Description)
	case TaskUpdated:
		return render("✏️ Task Updated", "Task '%s' has been updated", evt.Description)
	case TaskCompleted:
		return render("✅ Task Completed", "Congratulations! Task '%s' is complete", evt.Description)
	case TaskDeleted:
		return render("🗑️ Task Deleted", "Task '%s' has been deleted", evt.Description)
	default:
		// Tipos que aún no conocemos (compatibilidad hacia adelante).
		return render("Task Event", "Event for task '%s'", evt.Description)
	}
}

func render(title, format, description string) Rendered {
	return Rendered{Title: title, Message: fmt.Sprintf(format, description)}
}
