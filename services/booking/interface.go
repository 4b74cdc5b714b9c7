package booking

import (
	"context"
	"time"

	"kuraos/models"
)

// ServiceCatalog lists the services a provider offers.
type ServiceCatalog interface {
	ListServices(ctx context.Context, providerID string) ([]models.Service, error)
	GetService(ctx context.Context, serviceID string) (*models.Service, error)
}

// AvailabilityLedger is the read side of slot capacity.
type AvailabilityLedger interface {
	ListSlots(ctx context.Context, serviceID string, from, to time.Time) ([]models.Slot, error)
}

// BookingStore persists bookings. CreateBooking performs the capacity check and
// increment atomically and fails with SlotUnavailable when the slot is exhausted.
type BookingStore interface {
	CreateBooking(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID string) error
	MarkConfirmed(ctx context.Context, bookingID string) (*models.Booking, error)
}

// PaymentGateway creates and confirms payment intents.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, booking models.Booking) (*models.PaymentIntent, error)
	ConfirmPayment(ctx context.Context, clientSecret, returnURL string) error
}

// DraftStore persists the saga draft keyed by session ID.
type DraftStore interface {
	Load(ctx context.Context, sessionID string) (*models.SagaDraft, error)
	Save(ctx context.Context, draft models.SagaDraft) error
	Delete(ctx context.Context, sessionID string) error
}

// Result is the uniform outcome of a user-triggered saga operation.
type Result struct {
	OK      bool             `json:"ok"`
	Error   models.ErrorKind `json:"error,omitempty"`
	Message string           `json:"message,omitempty"`
}

func ok() Result {
	return Result{OK: true}
}

func fail(err error) Result {
	return Result{Error: models.KindOf(err), Message: models.MessageOf(err)}
}

func failWith(kind models.ErrorKind, msg string) Result {
	return Result{Error: kind, Message: msg}
}
