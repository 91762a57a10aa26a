package cron

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	bookingRepo "sessionledger/database/repository/booking"
	"sessionledger/models"
	"sessionledger/services/booking"
	"sessionledger/services/ledger"
	"sessionledger/services/notification"
	"sessionledger/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// markerStaleAfter is how long a compensation marker may stay pending before
// the recovery sweep re-queues it. Long enough for the normal success path
// and a first round of queue retries to finish.
const markerStaleAfter = 10 * time.Minute

// Deps are the services the background worker drives.
type Deps struct {
	Orchestrator *booking.Orchestrator
	Ledger       ledger.Service
	Bookings     bookingRepo.BookingRepository
	Notifier     notification.Service
	Tasks        *tasks.Client
	Logger       *zap.Logger
}

// InitWorker starts the asynq worker and the recovery sweep in background.
func InitWorker(deps Deps) {
	srv := asynq.NewServer(
		tasks.RedisOpt(),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeCompensationResolve, handleCompensationTask(deps))
	mux.HandleFunc(tasks.TypeBookingReminder, handleReminderTask(deps))

	go runMarkerRecoverySweep(deps)

	// Start async worker with retry logic
	go func() {
		log.Println("[Worker] starting async worker...")
		const maxAttempts = 5

		for attempts := 1; attempts <= maxAttempts; attempts++ {
			if err := srv.Run(mux); err != nil {
				log.Printf("[Worker] attempt %d/%d failed to start worker: %v", attempts, maxAttempts, err)

				if attempts == maxAttempts {
					log.Fatal("[Worker] max retry attempts reached, exiting")
				}
				time.Sleep(time.Duration(attempts*2) * time.Second)
			} else {
				break
			}
		}
	}()
}

// handleCompensationTask settles one pending marker. Returning an error keeps
// the task on the queue for another attempt.
func handleCompensationTask(deps Deps) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p tasks.CompensationPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			deps.Logger.Error("invalid compensation payload", zap.Error(err))
			return err
		}

		if err := deps.Orchestrator.ResolveCompensation(ctx, p.MarkerID); err != nil {
			deps.Logger.Warn("compensation attempt failed, will retry",
				zap.String("markerID", p.MarkerID), zap.Error(err))
			return err
		}
		return nil
	}
}

// handleReminderTask pushes a session reminder to both parties, but only if
// the booking is still on the calendar when the reminder fires.
func handleReminderTask(deps Deps) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p tasks.ReminderPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			deps.Logger.Error("invalid reminder payload", zap.Error(err))
			return err
		}

		b, err := deps.Bookings.GetByID(ctx, p.BookingID)
		if err != nil {
			if errors.Is(err, bookingRepo.ErrNotFound) {
				return nil
			}
			return err
		}
		if b.Status != models.BookingConfirmed {
			return nil
		}

		data := map[string]string{
			"booking_id":   b.ID,
			"scheduled_at": b.ScheduledAt.Format(time.RFC3339),
		}
		for _, userID := range []string{b.RequesterID, b.ProviderID} {
			if err := deps.Notifier.NotifyUser(ctx, userID, notification.EventBookingReminder, data); err != nil {
				deps.Logger.Warn("reminder delivery failed",
					zap.String("bookingID", b.ID),
					zap.String("userID", userID),
					zap.Error(err))
			}
		}
		return nil
	}
}

// runMarkerRecoverySweep periodically re-queues compensation markers that
// have stayed pending too long. This is the backstop for the case where the
// process died between the ledger write and enqueueing the compensation.
func runMarkerRecoverySweep(deps Deps) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		markers, err := deps.Ledger.StalePendingMarkers(ctx, markerStaleAfter)
		cancel()
		if err != nil {
			deps.Logger.Warn("marker recovery sweep failed", zap.Error(err))
			continue
		}

		for _, m := range markers {
			if err := deps.Tasks.EnqueueCompensation(m.ID); err != nil {
				deps.Logger.Warn("failed to re-queue stale marker",
					zap.String("markerID", m.ID), zap.Error(err))
			} else {
				deps.Logger.Info("re-queued stale compensation marker",
					zap.String("markerID", m.ID),
					zap.String("bookingID", m.BookingID))
			}
		}
	}
}
