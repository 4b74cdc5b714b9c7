package handlers

import (
	"context"
	"io"
	"net/http"

	"kuraos/models"
	"kuraos/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

// WebhookProcessor verifies and applies a payment provider event.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) error
}

type WebhookHandler struct {
	Processor WebhookProcessor
	Logger    *zap.Logger
}

// Stripe handles POST /api/booking/webhooks/stripe.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.JSONError(c, http.StatusRequestEntityTooLarge, string(models.ErrValidation), "webhook body too large")
		return
	}

	if err := h.Processor.Process(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		if models.KindOf(err) == models.ErrValidation {
			utils.JSONError(c, http.StatusBadRequest, string(models.ErrValidation), models.MessageOf(err))
			return
		}
		h.Logger.Error("stripe webhook processing failed", zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "InternalError", "webhook could not be processed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
