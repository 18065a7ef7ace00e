package api

import (
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"bpark-backend/internal/protocol"
)

// ServeWS upgrades the request and runs the command protocol on it until the
// connection closes.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := protocol.Upgrade(c.Writer, c.Request)
	if err != nil {
		log.WithError(err).WithField("client", c.ClientIP()).Warn("Websocket upgrade failed")
		return
	}
	h.server.ServeConn(h.ctx, conn)
}
