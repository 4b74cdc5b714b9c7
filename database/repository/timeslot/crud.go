package timeslotRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kuraos/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (r *mongoTimeSlotRepo) CreateMany(ctx context.Context, slots []models.Slot) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	docs := make([]interface{}, len(slots))
	ids := make([]string, len(slots))
	for i, slot := range slots {
		if slot.ID == "" {
			slot.ID = uuid.New().String()
		}
		if slot.SpotsTotal <= 0 || !slot.End.After(slot.Start) {
			return nil, models.NewSagaError(models.ErrValidation, fmt.Sprintf("slot %s has no capacity or an empty interval", slot.ID))
		}
		// Whole seconds, so an RFC3339 slot start submitted at booking time
		// matches the stored instant exactly.
		slot.Start = slot.Start.UTC().Truncate(time.Second)
		slot.End = slot.End.UTC().Truncate(time.Second)
		slot.SpotsBooked = 0
		slot.BookingIDs = []string{}
		docs[i] = slot
		ids[i] = slot.ID
	}

	if _, err := r.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return nil, fmt.Errorf("failed to insert timeslots: %w", err)
	}
	return ids, nil
}

func (r *mongoTimeSlotRepo) GetByID(ctx context.Context, slotID string) (*models.Slot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var slot models.Slot
	err := r.coll.FindOne(ctx, bson.M{"id": slotID}).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewSagaError(models.ErrValidation, "slot not found")
		}
		return nil, fmt.Errorf("find timeslot error: %w", err)
	}
	return &slot, nil
}

// DeleteByID removes an unbooked slot.
func (r *mongoTimeSlotRepo) DeleteByID(ctx context.Context, slotID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"id": slotID, "spotsBooked": 0})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}
