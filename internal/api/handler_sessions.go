package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) requireAdminToken(c *gin.Context) {
	token := c.GetHeader("X-Admin-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
		return
	}
	c.Next()
}

// GetSessions returns the live sessions and the connection log.
func (h *Handler) GetSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"live": h.sessions.Live(),
		"log":  h.sessions.Log(),
	})
}
