package timeslotRepo

import (
	"context"
	"errors"
	"fmt"
	"log"

	"kuraos/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// reserveFilter matches the slot only while it still has a free spot and does
// not already hold the booking.
func reserveFilter(slot models.Slot, bookingID string) bson.M {
	return bson.M{
		"id":         slot.ID,
		"serviceId":  slot.ServiceID,
		"start":      slot.Start.UTC(),
		"bookingIds": bson.M{"$ne": bookingID},
		"$expr":      bson.M{"$lt": bson.A{"$spotsBooked", "$spotsTotal"}},
	}
}

func releaseFilter(slotID, bookingID string) bson.M {
	return bson.M{
		"id":          slotID,
		"bookingIds":  bookingID,
		"spotsBooked": bson.M{"$gt": 0},
	}
}

// ReserveSpot atomically checks spotsBooked < spotsTotal and increments it.
// ctx may be a transaction's session context. A slot without room fails with
// SlotUnavailable.
func (repo *mongoTimeSlotRepo) ReserveSpot(ctx context.Context, slot models.Slot, bookingID string) error {
	update := bson.M{
		"$inc":      bson.M{"spotsBooked": 1},
		"$addToSet": bson.M{"bookingIds": bookingID},
	}

	res, err := repo.coll.UpdateOne(ctx, reserveFilter(slot, bookingID), update)
	if err != nil {
		return fmt.Errorf("failed to reserve timeslot spot: %w", err)
	}
	if res.MatchedCount == 0 {
		return repo.explainMiss(ctx, slot)
	}
	return nil
}

// explainMiss tells a full slot apart from a request that names no real slot.
func (repo *mongoTimeSlotRepo) explainMiss(ctx context.Context, slot models.Slot) error {
	var current models.Slot
	err := repo.coll.FindOne(ctx, bson.M{"id": slot.ID}).Decode(&current)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.NewSagaError(models.ErrValidation, "slot not found")
	}
	if err != nil {
		return fmt.Errorf("failed to read timeslot: %w", err)
	}
	if current.ServiceID != slot.ServiceID || !current.Start.Equal(slot.Start) {
		return models.NewSagaError(models.ErrValidation, "slot start does not match the slot")
	}
	return models.NewSagaError(models.ErrSlotUnavailable, "this slot was just booked by someone else")
}

// ReleaseSpot gives back the spot held by bookingID. It reports false when
// the slot no longer holds the booking, so a second release is a no-op.
func (repo *mongoTimeSlotRepo) ReleaseSpot(ctx context.Context, slotID, bookingID string) (bool, error) {
	update := bson.M{
		"$inc":  bson.M{"spotsBooked": -1},
		"$pull": bson.M{"bookingIds": bookingID},
	}

	res, err := repo.coll.UpdateOne(ctx, releaseFilter(slotID, bookingID), update)
	if err != nil {
		return false, fmt.Errorf("failed to release timeslot spot: %w", err)
	}
	if res.MatchedCount == 0 {
		log.Printf("[ReleaseSpot] slot %s does not hold booking %s", slotID, bookingID)
		return false, nil
	}
	return true, nil
}
