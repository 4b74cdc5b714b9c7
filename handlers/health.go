package handlers

import (
	"net/http"

	"kuraos/utils"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health with the latest dependency probe.
func Health(c *gin.Context) {
	status := utils.GetHealthStatus()
	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "message": "Hi, I'm Kuraos booking"})
}
