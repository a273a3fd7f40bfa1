package middleware

import (
	"encoding/json"
	"net/http"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// RequestMeta puts the caller's IP and user agent on the request context so
// services can stamp their audit entries.
func RequestMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ports.WithRequestMeta(c.Request.Context(), ports.RequestMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AuditDenied records every request refused with 401 or 403. Successful
// state changes are audited by the services themselves.
func AuditDenied(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status != http.StatusUnauthorized && status != http.StatusForbidden {
			return
		}

		entry := &domain.AuditLog{
			Action:       domain.AuditActionAccessDenied,
			ResourceType: "route",
			ResourceID:   c.Request.Method + " " + routeOf(c),
			IPAddress:    c.ClientIP(),
			UserAgent:    c.Request.UserAgent(),
		}
		if party, ok := CurrentParty(c); ok {
			id := party.ID
			entry.ActorID = &id
			entry.ActorRole = string(party.Role)
		}
		details, _ := json.Marshal(map[string]any{"status": status})
		entry.Details = string(details)

		auditSvc.Log(c.Request.Context(), entry)
	}
}

func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}
