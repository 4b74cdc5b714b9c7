package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kuraos/config"
	"kuraos/models"
	"kuraos/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// PendingReclaimer is the part of the booking store the expiry worker drives.
type PendingReclaimer interface {
	ExpirePending(ctx context.Context, bookingID string) (bool, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int64) ([]string, error)
}

func RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
}

// ExpiryWorker reclaims pending bookings whose payment never completed: one
// delayed task per booking, plus a periodic sweep for bookings whose task was
// never enqueued.
type ExpiryWorker struct {
	srv       *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    *zap.Logger
}

func NewServeMux(repo PendingReclaimer, ttl time.Duration, logger *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeExpirePending, handleExpireTask(repo, logger))
	mux.HandleFunc(tasks.TypeSweepPending, handleSweepTask(repo, ttl, time.Now, logger))
	return mux
}

// InitExpiryWorker runs the async worker and the sweep scheduler in background.
func InitExpiryWorker(repo PendingReclaimer, logger *zap.Logger) *ExpiryWorker {
	redisOpts := RedisOpt()

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			Logger: logger.Sugar(),
		},
	)
	scheduler := asynq.NewScheduler(redisOpts, &asynq.SchedulerOpts{Logger: logger.Sugar()})
	if _, err := scheduler.Register("@every 5m", tasks.NewSweepPendingTask()); err != nil {
		logger.Fatal("[ExpiryWorker] failed to register sweep", zap.Error(err))
	}

	w := &ExpiryWorker{
		srv:       srv,
		scheduler: scheduler,
		mux:       NewServeMux(repo, config.AppConfig.PendingBookingTTL, logger),
		logger:    logger,
	}

	go func() {
		logger.Info("[ExpiryWorker] starting async worker")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Start(w.mux); err != nil {
				logger.Error("[ExpiryWorker] failed to start worker",
					zap.Int("attempt", attempts),
					zap.Int("maxAttempts", maxAttempts),
					zap.Error(err),
				)
				if attempts == maxAttempts {
					logger.Fatal("[ExpiryWorker] max retry attempts reached")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second)
				continue
			}
			break
		}
		if err := scheduler.Start(); err != nil {
			logger.Error("[ExpiryWorker] failed to start sweep scheduler", zap.Error(err))
		}
	}()
	return w
}

func (w *ExpiryWorker) Shutdown() {
	w.scheduler.Shutdown()
	w.srv.Shutdown()
	w.logger.Info("[ExpiryWorker] stopped")
}

func handleExpireTask(repo PendingReclaimer, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p models.ExpirePendingPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil || p.BookingID == "" {
			logger.Error("[ExpireHandler] invalid payload", zap.ByteString("payload", task.Payload()))
			return fmt.Errorf("invalid expire payload: %w", asynq.SkipRetry)
		}

		expired, err := repo.ExpirePending(ctx, p.BookingID)
		if err != nil {
			if models.KindOf(err) == models.ErrBookingNotFound {
				return nil
			}
			logger.Warn("[ExpireHandler] expiry failed", zap.String("bookingId", p.BookingID), zap.Error(err))
			return err
		}
		if expired {
			logger.Info("[ExpireHandler] reclaimed pending booking", zap.String("bookingId", p.BookingID))
		}
		return nil
	}
}

func handleSweepTask(repo PendingReclaimer, ttl time.Duration, now func() time.Time, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		ids, err := repo.ListStalePending(ctx, now().Add(-ttl), 200)
		if err != nil {
			return err
		}

		var failed int
		for _, id := range ids {
			if _, err := repo.ExpirePending(ctx, id); err != nil {
				failed++
				logger.Warn("[SweepHandler] expiry failed", zap.String("bookingId", id), zap.Error(err))
			}
		}
		if len(ids) > 0 {
			logger.Info("[SweepHandler] swept stale pending bookings", zap.Int("found", len(ids)), zap.Int("failed", failed))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d stale bookings could not be expired", failed, len(ids))
		}
		return nil
	}
}
