package bookingRepo

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
	"go.uber.org/zap"
)

// runInTransaction executes fn inside a MongoDB transaction on a fresh session.
func (repo *MongoBookingRepo) runInTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := repo.bookingColl.Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	return mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sc.StartTransaction(); err != nil {
			return err
		}
		if err := fn(sc); err != nil {
			_ = sc.AbortTransaction(sc)
			return err
		}
		return sc.CommitTransaction(sc)
	})
}

// CreateBooking inserts a booking and reserves one spot of its slot in the
// same transaction. A request whose idempotency key matches a live booking
// returns that booking unchanged.
func (repo *MongoBookingRepo) CreateBooking(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error) {
	start, err := models.ParseSlotStart(req.SlotStart)
	if err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		if existing, err := repo.findByIdempotencyKey(ctx, req.IdempotencyKey); err != nil || existing != nil {
			return existing, err
		}
	}

	service, err := repo.catalog.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	slot, err := repo.slots.GetByID(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}
	if slot.ServiceID != service.ID {
		return nil, models.NewSagaError(models.ErrValidation, "slot does not belong to service")
	}

	now := repo.Now().UTC()
	booking := &models.Booking{
		ID:             uuid.New().String(),
		ServiceID:      service.ID,
		SlotID:         slot.ID,
		SlotStart:      start.UTC(),
		SlotEnd:        slot.End,
		Timezone:       req.Timezone,
		Contact:        req.Contact,
		Status:         models.BookingPending,
		Amount:         service.Price,
		Currency:       service.Currency,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if !service.RequiresPayment() {
		booking.Status = models.BookingConfirmed
	}

	err = repo.runInTransaction(ctx, func(sc mongo.SessionContext) error {
		if _, err := repo.bookingColl.InsertOne(sc, booking); err != nil {
			return err
		}
		reserve := models.Slot{ID: slot.ID, ServiceID: service.ID, Start: start}
		return repo.slots.ReserveSpot(sc, reserve, booking.ID)
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) && req.IdempotencyKey != "" {
			// A concurrent submission with the same key won the insert.
			if existing, findErr := repo.findByIdempotencyKey(ctx, req.IdempotencyKey); findErr == nil && existing != nil {
				return existing, nil
			}
		}
		var se *models.SagaError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, fmt.Errorf("booking transaction failed: %w", err)
	}

	repo.logger.Info("booking created",
		zap.String("bookingId", booking.ID),
		zap.String("slotId", booking.SlotID),
		zap.String("status", string(booking.Status)),
	)
	if booking.Status == models.BookingPending {
		repo.scheduleExpiry(ctx, booking)
	}
	return booking, nil
}

func (repo *MongoBookingRepo) scheduleExpiry(ctx context.Context, booking *models.Booking) {
	if repo.Expiry == nil {
		return
	}
	at := booking.CreatedAt.Add(repo.PendingTTL)
	if err := repo.Expiry.ScheduleExpiry(ctx, booking.ID, at); err != nil {
		repo.logger.Warn("failed to schedule pending expiry; sweep will reclaim it",
			zap.String("bookingId", booking.ID),
			zap.Error(err),
		)
	}
}

// transition moves a booking whose status is in from to status to, releasing
// its slot spot in the same transaction. It reports false when the booking
// exists but was not in a from status.
func (repo *MongoBookingRepo) transition(ctx context.Context, bookingID string, from []models.BookingStatus, to models.BookingStatus) (bool, error) {
	moved := false
	err := repo.runInTransaction(ctx, func(sc mongo.SessionContext) error {
		filter := transitionFilter(bookingID, from)
		update := bson.M{
			"$set":   bson.M{"status": to, "updatedAt": repo.Now().UTC()},
			"$unset": bson.M{"idempotencyKey": ""},
		}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

		var before models.Booking
		err := repo.bookingColl.FindOneAndUpdate(sc, filter, update, opts).Decode(&before)
		if errors.Is(err, mongo.ErrNoDocuments) {
			n, countErr := repo.bookingColl.CountDocuments(sc, bson.M{"id": bookingID})
			if countErr != nil {
				return countErr
			}
			if n == 0 {
				return models.NewSagaError(models.ErrBookingNotFound, "booking not found")
			}
			return nil
		}
		if err != nil {
			return err
		}

		moved = true
		_, err = repo.slots.ReleaseSpot(sc, before.SlotID, bookingID)
		return err
	})
	if err != nil {
		var se *models.SagaError
		if errors.As(err, &se) {
			return false, err
		}
		return false, fmt.Errorf("booking %s transition to %s failed: %w", bookingID, to, err)
	}
	return moved, nil
}

// cancellable lists the statuses compensation may cancel from. A CONFIRMED
// booking has been paid for and is never released by the saga.
var cancellable = []models.BookingStatus{models.BookingPending}

func transitionFilter(bookingID string, from []models.BookingStatus) bson.M {
	return bson.M{"id": bookingID, "status": bson.M{"$in": from}}
}

// CancelBooking cancels a pending booking and frees its spot. Cancelling a
// cancelled, failed or confirmed booking succeeds without effect; callers
// re-read the booking to learn which case applied.
func (repo *MongoBookingRepo) CancelBooking(ctx context.Context, bookingID string) error {
	moved, err := repo.transition(ctx, bookingID, cancellable, models.BookingCancelled)
	if err != nil {
		return err
	}
	if moved {
		repo.logger.Info("booking cancelled", zap.String("bookingId", bookingID))
	}
	return nil
}

// ExpirePending fails a booking that is still PENDING and frees its spot.
func (repo *MongoBookingRepo) ExpirePending(ctx context.Context, bookingID string) (bool, error) {
	moved, err := repo.transition(ctx, bookingID,
		[]models.BookingStatus{models.BookingPending},
		models.BookingFailed,
	)
	if err != nil {
		return false, err
	}
	if moved {
		repo.logger.Info("pending booking expired", zap.String("bookingId", bookingID))
	}
	return moved, nil
}
