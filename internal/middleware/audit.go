package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/libops/library-api/internal/models"
)

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Audit records admin catalog mutations in the ambient audit trail after the
// handler completes. Failed requests are not recorded, and a failed audit
// write never fails the request.
func Audit(writer auditWriter, logger *zap.Logger, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() >= http.StatusBadRequest {
			return
		}

		entry := &models.AuditLog{
			Action:    action,
			Resource:  resource,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		if claims, ok := ClaimsFrom(c); ok {
			entry.UserID = &claims.UserID
		}
		if id := c.Param("id"); id != "" {
			entry.ResourceID = &id
		}

		if err := writer.CreateAuditLog(c.Request.Context(), entry); err != nil {
			logger.Warn("audit log write failed",
				zap.String("action", action),
				zap.String("resource", resource),
				zap.Error(err))
		}
	}
}
