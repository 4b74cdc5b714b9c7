package handlers

import (
	"net/http"
	"time"

	"kuraos/models"
	"kuraos/services/booking"
	"kuraos/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BookingHandler exposes the reservation saga over HTTP. Every session
// endpoint answers with the uniform {ok} or {ok:false, error, message} shape
// plus the current session snapshot.
type BookingHandler struct {
	Sessions booking.SessionService
	Catalog  booking.ServiceCatalog
	TokenTTL time.Duration
	Logger   *zap.Logger
}

func NewBookingHandler(sessions booking.SessionService, catalog booking.ServiceCatalog, tokenTTL time.Duration, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{Sessions: sessions, Catalog: catalog, TokenTTL: tokenTTL, Logger: logger}
}

type sessionResponse struct {
	booking.Result
	Session booking.Snapshot `json:"session"`
}

// statusFor maps a saga error kind to an HTTP status.
func statusFor(kind models.ErrorKind) int {
	switch kind {
	case "":
		return http.StatusOK
	case models.ErrValidation:
		return http.StatusBadRequest
	case models.ErrPaymentDeclined:
		return http.StatusPaymentRequired
	case models.ErrSessionNotFound, models.ErrBookingNotFound, models.ErrServiceNotFound:
		return http.StatusNotFound
	case models.ErrSlotUnavailable, models.ErrInvalidTransition, models.ErrInFlight, models.ErrDuplicateSubmission:
		return http.StatusConflict
	case models.ErrPaymentSetup, models.ErrPaymentProcessing:
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}

func (h *BookingHandler) respond(c *gin.Context, ctrl *booking.Controller, res booking.Result) {
	if !res.OK {
		getLogger(c).Info("booking step rejected",
			zap.String("sessionId", ctrl.SessionID()),
			zap.String("kind", string(res.Error)),
			zap.String("message", res.Message),
		)
	}
	c.JSON(statusFor(res.Error), sessionResponse{Result: res, Session: ctrl.Snapshot()})
}

func (h *BookingHandler) fail(c *gin.Context, err error) {
	kind := models.KindOf(err)
	utils.JSONError(c, statusFor(kind), string(kind), models.MessageOf(err))
}

// controller resolves the session named by the bearer token.
func (h *BookingHandler) controller(c *gin.Context) (*booking.Controller, bool) {
	ctrl, err := h.Sessions.Get(c.Request.Context(), c.GetString("sessionID"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return ctrl, true
}

// StartSession handles POST /api/booking/sessions.
func (h *BookingHandler) StartSession(c *gin.Context) {
	ctrl, err := h.Sessions.Start(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	token, err := utils.GenerateSessionToken(ctrl.SessionID(), h.TokenTTL)
	if err != nil {
		h.Logger.Error("StartSession: failed to sign session token", zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "InternalError", "could not start a booking session")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"ok":        true,
		"sessionId": ctrl.SessionID(),
		"token":     token,
		"step":      ctrl.Snapshot().Step,
		"session":   ctrl.Snapshot(),
	})
}

// GetSession handles GET /api/booking/sessions/current.
func (h *BookingHandler) GetSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Result: booking.Result{OK: true}, Session: ctrl.Snapshot()})
}

// DeleteSession handles DELETE /api/booking/sessions/current. It forgets the
// wizard only; an unpaid booking is released first.
func (h *BookingHandler) DeleteSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	snap := ctrl.Snapshot()
	switch snap.Step {
	case booking.StepAwaitPayment:
		ctrl.AbandonPayment(c.Request.Context())
	case booking.StepEnterDetails:
		if snap.BookingID != "" {
			ctrl.CancelBooking(c.Request.Context())
		}
	}
	if err := h.Sessions.Forget(c.Request.Context(), snap.SessionID); err != nil {
		h.Logger.Warn("DeleteSession: failed to drop draft", zap.String("sessionId", snap.SessionID), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type selectServiceInput struct {
	ServiceID string `json:"serviceId" binding:"required"`
}

// SelectService handles POST /api/booking/sessions/current/service.
func (h *BookingHandler) SelectService(c *gin.Context) {
	var input selectServiceInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, string(models.ErrValidation), "serviceId is required")
		return
	}
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	service, err := h.Catalog.GetService(c.Request.Context(), input.ServiceID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respond(c, ctrl, ctrl.SelectService(c.Request.Context(), *service))
}

// ListSlots handles GET /api/booking/sessions/current/slots.
func (h *BookingHandler) ListSlots(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	options, res := ctrl.AvailableSlots(c.Request.Context())
	if !res.OK {
		h.respond(c, ctrl, res)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "slots": options, "session": ctrl.Snapshot()})
}

type selectSlotInput struct {
	SlotID string `json:"slotId" binding:"required"`
}

// SelectSlot handles POST /api/booking/sessions/current/slot. Only slots from
// the session's latest listing can be selected.
func (h *BookingHandler) SelectSlot(c *gin.Context) {
	var input selectSlotInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, string(models.ErrValidation), "slotId is required")
		return
	}
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	slot, found := ctrl.ListedSlot(input.SlotID)
	if !found {
		h.respond(c, ctrl, booking.Result{Error: models.ErrValidation, Message: "unknown slot; refresh the slot list"})
		return
	}
	h.respond(c, ctrl, ctrl.SelectSlot(c.Request.Context(), slot))
}

// SubmitDetails handles POST /api/booking/sessions/current/details.
func (h *BookingHandler) SubmitDetails(c *gin.Context) {
	var input booking.DetailsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, string(models.ErrValidation), "invalid details payload")
		return
	}
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	h.respond(c, ctrl, ctrl.SubmitDetails(c.Request.Context(), input))
}

// RetryPayment handles POST /api/booking/sessions/current/payment/retry.
func (h *BookingHandler) RetryPayment(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	h.respond(c, ctrl, ctrl.RetryPayment(c.Request.Context()))
}

// ConfirmPayment handles POST /api/booking/sessions/current/payment/confirm.
func (h *BookingHandler) ConfirmPayment(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	h.respond(c, ctrl, ctrl.ConfirmPayment(c.Request.Context()))
}

// AbandonPayment handles POST /api/booking/sessions/current/payment/abandon.
func (h *BookingHandler) AbandonPayment(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	h.respond(c, ctrl, ctrl.AbandonPayment(c.Request.Context()))
}

// CancelBooking handles POST /api/booking/sessions/current/cancel.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	h.respond(c, ctrl, ctrl.CancelBooking(c.Request.Context()))
}
