package bookingRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kuraos/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (repo *MongoBookingRepo) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var booking models.Booking
	err := repo.bookingColl.FindOne(ctx, bson.M{"id": bookingID}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewSagaError(models.ErrBookingNotFound, "booking not found")
		}
		return nil, fmt.Errorf("find booking error: %w", err)
	}
	return &booking, nil
}

// findByIdempotencyKey returns the live booking holding key, or nil. Cancelled
// and failed bookings drop their key.
func (repo *MongoBookingRepo) findByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var booking models.Booking
	err := repo.bookingColl.FindOne(ctx, bson.M{"idempotencyKey": key}).Decode(&booking)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find booking by idempotency key: %w", err)
	}
	return &booking, nil
}

// MarkConfirmed moves a pending booking to CONFIRMED once its payment
// succeeded. Confirming a confirmed booking returns it unchanged; a booking
// that expired or was cancelled meanwhile fails with SlotUnavailable.
func (repo *MongoBookingRepo) MarkConfirmed(ctx context.Context, bookingID string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"id": bookingID, "status": models.BookingPending}
	update := bson.M{"$set": bson.M{
		"status":    models.BookingConfirmed,
		"updatedAt": repo.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var booking models.Booking
	err := repo.bookingColl.FindOneAndUpdate(ctx, filter, update, opts).Decode(&booking)
	if err == nil {
		return &booking, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("confirm booking error: %w", err)
	}

	current, err := repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if current.Status == models.BookingConfirmed {
		return current, nil
	}
	return nil, models.NewSagaError(models.ErrSlotUnavailable,
		"the reservation expired before payment completed; the payment will be refunded")
}

// ListStalePending returns ids of bookings still PENDING that were created
// before createdBefore, oldest first.
func (repo *MongoBookingRepo) ListStalePending(ctx context.Context, createdBefore time.Time, limit int64) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"status":    models.BookingPending,
		"createdAt": bson.M{"$lt": createdBefore.UTC()},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetProjection(bson.M{"id": 1}).
		SetLimit(limit)

	cursor, err := repo.bookingColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stale bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID string `bson:"id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("error decoding stale bookings: %w", err)
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}
