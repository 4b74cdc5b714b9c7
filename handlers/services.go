package handlers

import (
	"net/http"

	"kuraos/models"
	"kuraos/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListServices handles GET /api/booking/services?providerId=.
func (h *BookingHandler) ListServices(c *gin.Context) {
	providerID := c.Query("providerId")
	if providerID == "" {
		utils.JSONError(c, http.StatusBadRequest, string(models.ErrValidation), "providerId is required")
		return
	}

	services, err := h.Catalog.ListServices(c.Request.Context(), providerID)
	if err != nil {
		h.Logger.Error("ListServices: failed to fetch services", zap.String("providerId", providerID), zap.Error(err))
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "services": services})
}
