package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS permite peticiones cross-origin desde los orígenes indicados.
// "*" admite cualquier origen: se refleja el Origin recibido para que funcione con credenciales.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	originsSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originsSet[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		_, listed := originsSet[origin]
		if origin != "" && (allowAll || listed) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			c.Header("Access-Control-Max-Age", "86400")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
