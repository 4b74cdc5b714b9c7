package timeslotRepo

import (
	"context"
	"fmt"
	"time"

	"kuraos/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ListSlots returns the service's slots starting in [from, to), earliest first.
func (repo *mongoTimeSlotRepo) ListSlots(ctx context.Context, serviceID string, from, to time.Time) ([]models.Slot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"serviceId": serviceID,
		"start": bson.M{
			"$gte": from.UTC(),
			"$lt":  to.UTC(),
		},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "start", Value: 1}, {Key: "id", Value: 1}}).
		SetProjection(bson.M{"bookingIds": 0})

	cursor, err := repo.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch timeslots: %w", err)
	}
	defer cursor.Close(ctx)

	slots := []models.Slot{}
	if err := cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("error decoding timeslots: %w", err)
	}
	return slots, nil
}
