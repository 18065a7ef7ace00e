package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type spaceView struct {
	ParkingSpace int    `json:"parking_space"`
	Status       string `json:"status"`
}

// GetSpaces returns each space's status and the current usage percentage.
// Confirmation codes and owners are left out: they are only shown to admins
// over the protocol.
func (h *Handler) GetSpaces(c *gin.Context) {
	res, err := h.engine.CurrentParking(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	usage, _ := strconv.Atoi(res.Description)
	spaces := make([]spaceView, 0, len(res.Table))
	for _, row := range res.Table {
		number, _ := strconv.Atoi(row["parking_space"])
		spaces = append(spaces, spaceView{ParkingSpace: number, Status: row["status"]})
	}
	c.JSON(http.StatusOK, gin.H{
		"usage_percent": usage,
		"spaces":        spaces,
	})
}
