package timeslotRepo

import (
	"context"
	"time"

	"kuraos/database"
	"kuraos/models"

	"go.mongodb.org/mongo-driver/mongo"
)

// TimeSlotRepository is the availability ledger. SpotsBooked only moves
// through ReserveSpot and ReleaseSpot, which are conditional single-document
// updates and therefore atomic per slot.
type TimeSlotRepository interface {
	CreateMany(ctx context.Context, slots []models.Slot) ([]string, error)
	GetByID(ctx context.Context, slotID string) (*models.Slot, error)
	DeleteByID(ctx context.Context, slotID string) error
	ListSlots(ctx context.Context, serviceID string, from, to time.Time) ([]models.Slot, error)
	ReserveSpot(ctx context.Context, slot models.Slot, bookingID string) error
	ReleaseSpot(ctx context.Context, slotID, bookingID string) (bool, error)
	EnsureIndexes() error
}

type mongoTimeSlotRepo struct {
	coll *mongo.Collection
}

// NewMongoTimeSlotRepo constructs a new MongoDB TimeSlotRepository.
func NewMongoTimeSlotRepo() TimeSlotRepository {
	return NewTimeSlotRepo(database.Database())
}

func NewTimeSlotRepo(db *mongo.Database) TimeSlotRepository {
	return &mongoTimeSlotRepo{
		coll: db.Collection("timeslots"),
	}
}
