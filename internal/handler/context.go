package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/libops/library-api/internal/middleware"
	"github.com/libops/library-api/internal/service"
)

// actorFrom builds the acting identity from the authenticated claims.
func actorFrom(c *gin.Context) (service.Actor, bool) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		return service.Actor{}, false
	}
	return service.Actor{
		ID:   claims.UserID,
		Name: claims.FullName,
		Role: claims.Role,
	}, true
}
