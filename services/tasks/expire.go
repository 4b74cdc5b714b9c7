package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"kuraos/models"

	"github.com/hibiken/asynq"
)

const (
	TypeExpirePending = "booking:expire_pending"
	TypeSweepPending  = "booking:sweep_pending"
)

func NewExpirePendingTask(bookingID string, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(models.ExpirePendingPayload{BookingID: bookingID})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeExpirePending, b)
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		asynq.TaskID("expire:" + bookingID),
		asynq.MaxRetry(10),
	}

	return task, opts, nil
}

func NewSweepPendingTask() *asynq.Task {
	return asynq.NewTask(TypeSweepPending, nil, asynq.Unique(time.Minute))
}

// Enqueuer is the subset of *asynq.Client used to schedule tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ExpiryScheduler enqueues the reclamation of a pending booking.
type ExpiryScheduler struct {
	Client Enqueuer
}

func (s *ExpiryScheduler) ScheduleExpiry(ctx context.Context, bookingID string, at time.Time) error {
	task, opts, err := NewExpirePendingTask(bookingID, at)
	if err != nil {
		return err
	}
	_, err = s.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}
