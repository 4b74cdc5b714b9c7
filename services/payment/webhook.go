package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"kuraos/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// BookingFinalizer is the part of the booking store that payment events drive.
type BookingFinalizer interface {
	MarkConfirmed(ctx context.Context, bookingID string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID string) error
}

// WebhookProcessor applies Stripe payment intent events to bookings. It makes
// a payment that succeeded after the user left still confirm the booking.
type WebhookProcessor struct {
	secret   string
	bookings BookingFinalizer
	logger   *zap.Logger
}

func NewWebhookProcessor(secret string, bookings BookingFinalizer, logger *zap.Logger) *WebhookProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookProcessor{secret: secret, bookings: bookings, logger: logger}
}

// Process verifies the signature and handles the event. A bad signature is a
// ValidationError; everything else is retried by Stripe when an error is returned.
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return models.WrapSagaError(models.ErrValidation, "invalid webhook signature", err)
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
	default:
		p.logger.Debug("ignoring stripe event", zap.String("type", string(event.Type)))
		return nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return models.WrapSagaError(models.ErrValidation, "malformed payment intent event", err)
	}
	bookingID := pi.Metadata["booking_id"]
	if bookingID == "" {
		p.logger.Warn("payment intent without booking id", zap.String("paymentIntent", pi.ID))
		return nil
	}
	logger := p.logger.With(zap.String("bookingId", bookingID), zap.String("paymentIntent", pi.ID))

	switch event.Type {
	case "payment_intent.succeeded":
		if _, err := p.bookings.MarkConfirmed(ctx, bookingID); err != nil {
			if models.KindOf(err) == models.ErrSlotUnavailable {
				// Paid after the reservation expired; needs a refund by an operator.
				logger.Error("payment succeeded for an expired booking", zap.Error(err))
				return nil
			}
			return fmt.Errorf("confirm booking %s: %w", bookingID, err)
		}
		logger.Info("booking confirmed by webhook")
	case "payment_intent.canceled":
		if err := p.bookings.CancelBooking(ctx, bookingID); err != nil {
			return fmt.Errorf("cancel booking %s: %w", bookingID, err)
		}
		logger.Info("booking cancelled by webhook")
	case "payment_intent.payment_failed":
		// The user may still retry with another card; the booking stays pending.
		logger.Info("payment attempt failed")
	}
	return nil
}
