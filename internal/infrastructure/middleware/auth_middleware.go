package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pairnet/internal/core/domain"
	"pairnet/internal/core/services"
)

func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		// Store token claims in context
		c.Set("user_id", claims.UserID)
		c.Set("event_id", claims.EventID)
		c.Next()
	}
}

// EventAccessMiddleware rejects requests whose room token was minted for a
// different event than the one addressed by the route.
func EventAccessMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		eventIDVal, exists := c.Get("event_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		tokenEvent, ok := eventIDVal.(domain.EventID)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid event context"})
			c.Abort()
			return
		}

		routeEvent := domain.EventID(c.Param("event_id"))
		if routeEvent != "" && routeEvent != tokenEvent {
			c.JSON(http.StatusForbidden, gin.H{"error": "token not valid for this event"})
			c.Abort()
			return
		}

		c.Next()
	}
}
