package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetUsage reports the caller's quota position for the current period:
// tier, ceilings, consumption and remaining scan slots.
func (s *Server) GetUsage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	snap, err := s.quotaSvc.Snapshot(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": snap})
}
