package booking

import (
	"context"
	"errors"
	"time"

	bookingRepo "sessionledger/database/repository/booking"
	"sessionledger/models"
	"sessionledger/services/ledger"
	"sessionledger/utils"

	"go.uber.org/zap"
)

// TaskEnqueuer schedules background work. The asynq-backed implementation
// lives in services/tasks.
type TaskEnqueuer interface {
	EnqueueCompensation(markerID string) error
	EnqueueReminder(bookingID string, fireAt time.Time) error
}

// Orchestrator runs the two money-moving transitions as sagas: a ledger write
// guarded by a compensation marker, followed by the lifecycle compare-and-set.
// If the second step fails, the marker is handed to the task queue so the
// ledger write is eventually reversed.
type Orchestrator struct {
	Ledger        ledger.Service
	Repo          bookingRepo.BookingRepository
	Tasks         TaskEnqueuer
	RetryAttempts int
	Logger        *zap.Logger
}

// retryLedger runs op with bounded retries, backing off only on transient
// storage failures. Business rejections surface immediately.
func (o *Orchestrator) retryLedger(op func() (*ledger.Result, error)) (*ledger.Result, error) {
	attempts := o.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	var res *ledger.Result
	var err error
	for i := 0; i < attempts; i++ {
		res, err = op()
		if err == nil || !utils.IsRejection(err, utils.RejectStorageFailure) {
			return res, err
		}
		time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
	}
	return res, err
}

// ConfirmWithDebit debits the requester and moves the booking from pending to
// confirmed. The debit carries a refund_debit marker so a failed confirmation
// gives the credits back.
func (o *Orchestrator) ConfirmWithDebit(ctx context.Context, b *models.Booking, meetingLink string) error {
	res, err := o.retryLedger(func() (*ledger.Result, error) {
		return o.Ledger.Debit(ctx, ledger.Operation{
			UserID:       b.RequesterID,
			Amount:       b.CreditsSpent,
			Reason:       models.ReasonSessionPayment,
			BookingID:    b.ID,
			CompensateAs: models.CompensationRefundDebit,
		})
	})
	if err != nil {
		return err
	}

	err = o.Repo.SetStatus(ctx, b.ID,
		[]models.BookingStatus{models.BookingPending},
		models.BookingConfirmed,
		bookingRepo.StatusUpdate{MeetingLink: meetingLink})
	if err != nil {
		o.compensate(res.Marker, "confirm commit failed", err)
		if errors.Is(err, bookingRepo.ErrStatusConflict) {
			return utils.NewRejection(utils.RejectInvalidTransition, "the booking is no longer pending")
		}
		return utils.WrapStorageFailure(err)
	}

	o.settle(ctx, res.Marker)
	return nil
}

// CancelWithRefund refunds the requester's session payment and moves a
// confirmed booking to toStatus (cancelled or no_show). The refund carries a
// redo_debit marker so a lost cancellation re-takes the credits. Pending
// bookings have no debit and are cancelled directly by the service.
func (o *Orchestrator) CancelWithRefund(ctx context.Context, b *models.Booking, cancellation *models.Cancellation, toStatus models.BookingStatus) error {
	res, err := o.retryLedger(func() (*ledger.Result, error) {
		return o.Ledger.Refund(ctx, ledger.Operation{
			BookingID:    b.ID,
			CompensateAs: models.CompensationRedoDebit,
		})
	})
	if err != nil {
		return err
	}

	err = o.Repo.SetStatus(ctx, b.ID,
		[]models.BookingStatus{models.BookingConfirmed},
		toStatus,
		bookingRepo.StatusUpdate{Cancellation: cancellation})
	if err != nil {
		o.compensate(res.Marker, "cancel commit failed", err)
		if errors.Is(err, bookingRepo.ErrStatusConflict) {
			return utils.NewRejection(utils.RejectInvalidTransition, "the booking is no longer confirmed")
		}
		return utils.WrapStorageFailure(err)
	}

	o.settle(ctx, res.Marker)
	return nil
}

// compensate queues a marker for reversal after a failed lifecycle commit.
// If even enqueueing fails, the recovery sweep will pick the pending marker
// up, so this never blocks the caller.
func (o *Orchestrator) compensate(marker *models.CompensationMarker, msg string, cause error) {
	if marker == nil {
		return
	}
	o.Logger.Error(msg,
		zap.String("bookingID", marker.BookingID),
		zap.String("markerID", marker.ID),
		zap.Error(cause))
	if err := o.Tasks.EnqueueCompensation(marker.ID); err != nil {
		o.Logger.Error("failed to enqueue compensation, recovery sweep will retry",
			zap.String("markerID", marker.ID), zap.Error(err))
	}
}

// settle marks a marker resolved after a successful commit. Best effort: a
// marker left pending is re-examined by ResolveCompensation, which checks the
// booking before reversing anything.
func (o *Orchestrator) settle(ctx context.Context, marker *models.CompensationMarker) {
	if marker == nil {
		return
	}
	if err := o.Ledger.ResolveMarker(ctx, marker.ID); err != nil {
		o.Logger.Warn("failed to resolve compensation marker",
			zap.String("markerID", marker.ID), zap.Error(err))
	}
}

// ResolveCompensation settles one pending marker, called from the task worker
// and the recovery sweep. The booking's current status decides whether the
// guarded ledger write actually needs reversing: the lifecycle commit may have
// succeeded even though the success path never resolved the marker.
func (o *Orchestrator) ResolveCompensation(ctx context.Context, markerID string) error {
	marker, err := o.Ledger.GetMarker(ctx, markerID)
	if err != nil {
		if utils.IsRejection(err, utils.RejectNotFound) {
			return nil
		}
		return err
	}
	if marker.State == models.MarkerResolved {
		return nil
	}

	b, err := o.Repo.GetByID(ctx, marker.BookingID)
	if err != nil && !errors.Is(err, bookingRepo.ErrNotFound) {
		return err
	}

	if b != nil && !o.needsReversal(marker, b) {
		return o.Ledger.ResolveMarker(ctx, markerID)
	}
	return o.Ledger.Reverse(ctx, markerID)
}

// needsReversal reports whether the marker's guarded write must be undone
// given the booking's current status.
func (o *Orchestrator) needsReversal(marker *models.CompensationMarker, b *models.Booking) bool {
	switch marker.Direction {
	case models.CompensationRefundDebit:
		// The debit stands if the confirmation actually landed.
		switch b.Status {
		case models.BookingConfirmed, models.BookingInProgress, models.BookingCompleted:
			return false
		}
		return true
	case models.CompensationRedoDebit:
		// The refund stands if the cancellation actually landed.
		switch b.Status {
		case models.BookingCancelled, models.BookingNoShow:
			return false
		}
		return true
	}
	return false
}
