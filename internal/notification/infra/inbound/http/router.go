package http

import (
	"github.com/gin-gonic/gin"
)

// RegisterNotificationRoutes registra las rutas HTTP del servicio.
func RegisterNotificationRoutes(r *gin.Engine, handler *NotificationHandler) {
	r.GET("/", handler.Root)
	r.GET("/health", handler.Health)
	r.GET("/readiness", handler.Readiness)
	r.GET("/stats", handler.Stats)
	r.POST("/events", handler.PublishEvent)

	notifications := r.Group("/notifications")
	{
		notifications.GET("", handler.ListNotifications)
		notifications.DELETE("", handler.PurgeNotifications)
		notifications.POST("/read-all", handler.MarkAllRead)
		notifications.GET("/task/:task_id", handler.ListByTask)
		notifications.GET("/:id", handler.GetNotification)
		notifications.POST("/:id/read", handler.MarkRead)
		notifications.DELETE("/:id", handler.DeleteNotification)
	}
}
