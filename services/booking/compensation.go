package booking

import (
	"context"
	"errors"
	"time"

	"kuraos/models"

	"go.uber.org/zap"
)

// Compensator undoes a reservation by cancelling its booking, which releases
// the slot spot in the ledger.
type Compensator struct {
	Store   BookingStore
	Logger  *zap.Logger
	Timeout time.Duration
}

func NewCompensator(store BookingStore, logger *zap.Logger) *Compensator {
	return &Compensator{Store: store, Logger: logger, Timeout: 10 * time.Second}
}

// ReleaseBooking cancels bookingID if it is still PENDING. A cancelled,
// failed, confirmed or unknown booking is left as it is and the call succeeds. Failures are logged and returned for callers that
// care; the saga never blocks the user on them. Orphans left behind are
// reclaimed by the pending-booking expiry task.
func (c *Compensator) ReleaseBooking(ctx context.Context, bookingID string) error {
	if bookingID == "" {
		return nil
	}
	// The user may already have navigated away; the release should still run.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.Timeout)
	defer cancel()

	err := c.Store.CancelBooking(ctx, bookingID)
	if err == nil || errors.Is(err, &models.SagaError{Kind: models.ErrBookingNotFound}) {
		c.Logger.Info("booking released", zap.String("bookingId", bookingID))
		return nil
	}

	c.Logger.Error("failed to release booking; left for expiry reclamation",
		zap.String("bookingId", bookingID),
		zap.Error(err),
	)
	return err
}
