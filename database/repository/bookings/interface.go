package bookingRepo

import (
	"context"
	"time"

	"kuraos/database"
	catalogRepo "kuraos/database/repository/catalog"
	timeslotRepo "kuraos/database/repository/timeslot"
	"kuraos/models"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// BookingRepository is the booking record store. Creating a booking and
// reserving its slot spot happen in one transaction; so do cancellation and
// the spot release.
type BookingRepository interface {
	CreateBooking(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID string) error
	MarkConfirmed(ctx context.Context, bookingID string) (*models.Booking, error)
	ExpirePending(ctx context.Context, bookingID string) (bool, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int64) ([]string, error)
	EnsureIndexes() error
}

// ExpiryScheduler arranges for a pending booking to be reclaimed at a given time.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, bookingID string, at time.Time) error
}

type MongoBookingRepo struct {
	bookingColl *mongo.Collection
	catalog     catalogRepo.CatalogRepository
	slots       timeslotRepo.TimeSlotRepository
	logger      *zap.Logger

	// Expiry is optional; without it stale bookings are only found by the sweep.
	Expiry     ExpiryScheduler
	PendingTTL time.Duration
	Now        func() time.Time
}

// NewMongoBookingRepo constructs a BookingRepository on the application database.
func NewMongoBookingRepo(
	catalog catalogRepo.CatalogRepository,
	slots timeslotRepo.TimeSlotRepository,
	logger *zap.Logger,
) *MongoBookingRepo {
	return NewBookingRepo(database.Database(), catalog, slots, logger)
}

func NewBookingRepo(
	db *mongo.Database,
	catalog catalogRepo.CatalogRepository,
	slots timeslotRepo.TimeSlotRepository,
	logger *zap.Logger,
) *MongoBookingRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoBookingRepo{
		bookingColl: db.Collection("bookings"),
		catalog:     catalog,
		slots:       slots,
		logger:      logger,
		PendingTTL:  20 * time.Minute,
		Now:         time.Now,
	}
}
