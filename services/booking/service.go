package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingRepo "sessionledger/database/repository/booking"
	userRepo "sessionledger/database/repository/user"
	"sessionledger/models"
	"sessionledger/services/ledger"
	"sessionledger/services/meeting"
	"sessionledger/services/notification"
	"sessionledger/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestInput carries a requester's booking request. StartTime is
// interpreted in the provider's timezone.
type RequestInput struct {
	ProviderID      string
	RequesterID     string
	StartTime       time.Time
	DurationMinutes int
	Notes           string
}

// Service is the booking lifecycle surface: request, confirm, cancel,
// complete, feedback. Money only moves inside confirm and cancel, through
// the orchestrator.
type Service interface {
	RequestBooking(ctx context.Context, in RequestInput) (*models.Booking, error)
	ConfirmBooking(ctx context.Context, bookingID, actingUserID, meetingRef string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID, actingUserID, reason string) (*models.Booking, error)
	CompleteBooking(ctx context.Context, bookingID, actingUserID, recordingRef string) (*models.Booking, error)
	SubmitFeedback(ctx context.Context, bookingID, actingUserID string, rating int, comment string) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID, actingUserID string) (*models.Booking, error)
	ListBookings(ctx context.Context, userID string) ([]models.Booking, error)
}

// DefaultBookingService implements Service.
type DefaultBookingService struct {
	Repo         bookingRepo.BookingRepository
	Users        userRepo.UserRepository
	Conflicts    *ConflictDetector
	Orchestrator *Orchestrator
	Ledger       ledger.Service
	Notifier     notification.Service
	Meetings     meeting.Provisioner
	Tasks        TaskEnqueuer
	Locks        *utils.KeyedMutex
	CancelNotice time.Duration
	ReminderLead time.Duration
	Logger       *zap.Logger
}

func (s *DefaultBookingService) loadUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, userRepo.ErrNotFound) {
			return nil, utils.NewRejection(utils.RejectNotFound, "user not found")
		}
		return nil, utils.WrapStorageFailure(err)
	}
	return u, nil
}

func (s *DefaultBookingService) loadBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingRepo.ErrNotFound) {
			return nil, utils.NewRejection(utils.RejectNotFound, "booking not found")
		}
		return nil, utils.WrapStorageFailure(err)
	}
	return b, nil
}

// RequestBooking validates the request and creates a pending booking. No
// credits move yet; the requester only needs enough balance to cover the
// session, so an obviously unfundable request fails fast.
func (s *DefaultBookingService) RequestBooking(ctx context.Context, in RequestInput) (*models.Booking, error) {
	if in.DurationMinutes < models.MinDurationMinutes || in.DurationMinutes > models.MaxDurationMinutes {
		return nil, utils.NewRejection(utils.RejectInvalidArgument,
			fmt.Sprintf("duration must be between %d and %d minutes", models.MinDurationMinutes, models.MaxDurationMinutes))
	}
	if in.ProviderID == in.RequesterID {
		return nil, utils.NewRejection(utils.RejectInvalidArgument, "you cannot book a session with yourself")
	}

	provider, err := s.loadUser(ctx, in.ProviderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadUser(ctx, in.RequesterID); err != nil {
		return nil, err
	}

	// The provider's timezone is authoritative for scheduling.
	loc, err := time.LoadLocation(provider.Timezone)
	if err != nil {
		s.Logger.Warn("provider has invalid timezone, falling back to UTC",
			zap.String("providerID", provider.ID), zap.String("timezone", provider.Timezone))
		loc = time.UTC
	}
	start := in.StartTime.In(loc)
	if !start.After(time.Now().In(loc)) {
		return nil, utils.NewRejection(utils.RejectWindowViolation, "the session start time must be in the future")
	}

	cost := models.CreditsForDuration(in.DurationMinutes)
	balance, err := s.Ledger.Balance(ctx, in.RequesterID)
	if err != nil {
		return nil, err
	}
	if balance < cost {
		return nil, utils.NewRejection(utils.RejectInsufficientCredits,
			fmt.Sprintf("this session costs %d credits but your balance is %d", cost, balance))
	}

	b := &models.Booking{
		ID:              uuid.New().String(),
		ProviderID:      in.ProviderID,
		RequesterID:     in.RequesterID,
		Status:          models.BookingPending,
		ScheduledAt:     start,
		DurationMinutes: in.DurationMinutes,
		CreditsSpent:    cost,
		Notes:           in.Notes,
	}

	// Conflict check and insert run under the provider's lock so two
	// concurrent requests for the same window cannot both pass the check.
	s.Locks.Lock(in.ProviderID)
	defer s.Locks.Unlock(in.ProviderID)

	if err := s.Conflicts.Check(ctx, in.ProviderID, start, in.DurationMinutes, ""); err != nil {
		return nil, err
	}
	if err := s.Repo.Create(ctx, b); err != nil {
		return nil, utils.WrapStorageFailure(err)
	}

	s.Logger.Info("booking requested",
		zap.String("bookingID", b.ID),
		zap.String("providerID", b.ProviderID),
		zap.String("requesterID", b.RequesterID),
		zap.Time("scheduledAt", b.ScheduledAt),
		zap.Int("credits", b.CreditsSpent))

	s.notify(b.ProviderID, notification.EventBookingRequested, map[string]string{"booking_id": b.ID})
	return b, nil
}

// ConfirmBooking is the provider accepting a pending request: the requester
// is debited and the booking becomes confirmed. On any post-debit failure the
// compensation marker guarantees the requester gets the credits back. The
// provider may supply their own meeting reference; otherwise a room is
// provisioned after the confirm, best effort, so a provisioning outage
// degrades to a confirmed booking with no link rather than a failed confirm.
func (s *DefaultBookingService) ConfirmBooking(ctx context.Context, bookingID, actingUserID, meetingRef string) (*models.Booking, error) {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := guardConfirm(b, actingUserID); err != nil {
		return nil, err
	}

	if err := s.Orchestrator.ConfirmWithDebit(ctx, b, meetingRef); err != nil {
		return nil, err
	}
	b.Status = models.BookingConfirmed
	b.MeetingLink = meetingRef

	if b.MeetingLink == "" && s.Meetings != nil {
		link, err := s.Meetings.Provision(ctx, b.ID)
		if err != nil {
			s.Logger.Warn("meeting provisioning failed, booking confirmed without link",
				zap.String("bookingID", b.ID), zap.Error(err))
		} else if err := s.Repo.SetMeetingLink(ctx, b.ID, link); err != nil {
			s.Logger.Warn("failed to attach meeting link",
				zap.String("bookingID", b.ID), zap.Error(err))
		} else {
			b.MeetingLink = link
		}
	}

	if s.Tasks != nil && s.ReminderLead > 0 {
		fireAt := b.ScheduledAt.Add(-s.ReminderLead)
		if fireAt.After(time.Now()) {
			if err := s.Tasks.EnqueueReminder(b.ID, fireAt); err != nil {
				s.Logger.Warn("failed to schedule booking reminder",
					zap.String("bookingID", b.ID), zap.Error(err))
			}
		}
	}

	s.notify(b.RequesterID, notification.EventBookingConfirmed, map[string]string{
		"booking_id":   b.ID,
		"meeting_link": b.MeetingLink,
	})
	return b, nil
}

// CancelBooking ends a pending or confirmed booking. A pending booking is
// simply closed; a confirmed one refunds the requester first. A provider
// recording a missed session passes reason "no_show", which lands the
// booking in no_show instead of cancelled but refunds identically.
func (s *DefaultBookingService) CancelBooking(ctx context.Context, bookingID, actingUserID, reason string) (*models.Booking, error) {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := guardCancel(b, actingUserID, time.Now(), s.CancelNotice); err != nil {
		return nil, err
	}

	toStatus := models.BookingCancelled
	if reason == "no_show" {
		if actingUserID != b.ProviderID {
			return nil, utils.NewRejection(utils.RejectNotAuthorized, "only the provider can report a no-show")
		}
		toStatus = models.BookingNoShow
	}

	cancellation := &models.Cancellation{Reason: reason, ByUserID: actingUserID, At: time.Now()}

	if b.Status == models.BookingPending {
		err = s.Repo.SetStatus(ctx, b.ID,
			[]models.BookingStatus{models.BookingPending},
			models.BookingCancelled,
			bookingRepo.StatusUpdate{Cancellation: cancellation})
		if err != nil {
			if errors.Is(err, bookingRepo.ErrStatusConflict) {
				return nil, utils.NewRejection(utils.RejectInvalidTransition, "the booking is no longer pending")
			}
			return nil, utils.WrapStorageFailure(err)
		}
		toStatus = models.BookingCancelled
	} else {
		if err := s.Orchestrator.CancelWithRefund(ctx, b, cancellation, toStatus); err != nil {
			return nil, err
		}
	}

	b.Status = toStatus
	b.Cancellation = cancellation

	s.Logger.Info("booking cancelled",
		zap.String("bookingID", b.ID),
		zap.String("byUserID", actingUserID),
		zap.String("status", string(toStatus)),
		zap.String("reason", reason))

	counterparty := b.ProviderID
	if actingUserID == b.ProviderID {
		counterparty = b.RequesterID
	}
	s.notify(counterparty, notification.EventBookingCancelled, map[string]string{
		"booking_id": b.ID,
		"reason":     reason,
	})
	return b, nil
}

// CompleteBooking is the provider marking a session delivered.
func (s *DefaultBookingService) CompleteBooking(ctx context.Context, bookingID, actingUserID, recordingRef string) (*models.Booking, error) {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := guardComplete(b, actingUserID); err != nil {
		return nil, err
	}

	err = s.Repo.SetStatus(ctx, b.ID,
		[]models.BookingStatus{models.BookingConfirmed, models.BookingInProgress},
		models.BookingCompleted,
		bookingRepo.StatusUpdate{RecordingRef: recordingRef})
	if err != nil {
		if errors.Is(err, bookingRepo.ErrStatusConflict) {
			return nil, utils.NewRejection(utils.RejectInvalidTransition, "the booking can no longer be completed")
		}
		return nil, utils.WrapStorageFailure(err)
	}
	b.Status = models.BookingCompleted
	b.RecordingRef = recordingRef

	s.notify(b.RequesterID, notification.EventBookingCompleted, map[string]string{"booking_id": b.ID})
	return b, nil
}

// SubmitFeedback records a write-once rating from either party of a
// completed session.
func (s *DefaultBookingService) SubmitFeedback(ctx context.Context, bookingID, actingUserID string, rating int, comment string) (*models.Booking, error) {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := guardFeedback(b, actingUserID, rating); err != nil {
		return nil, err
	}

	fb := models.Feedback{Rating: rating, Comment: comment, At: time.Now()}
	fromRequester := actingUserID == b.RequesterID

	if err := s.Repo.SetFeedback(ctx, b.ID, fromRequester, fb); err != nil {
		switch {
		case errors.Is(err, bookingRepo.ErrFeedbackExists):
			return nil, utils.NewRejection(utils.RejectInvalidTransition, "feedback has already been submitted for this booking")
		case errors.Is(err, bookingRepo.ErrStatusConflict):
			return nil, utils.NewRejection(utils.RejectInvalidTransition, "feedback is only accepted on completed bookings")
		default:
			return nil, utils.WrapStorageFailure(err)
		}
	}

	if fromRequester {
		b.RequesterFeedback = &fb
	} else {
		b.ProviderFeedback = &fb
	}
	return b, nil
}

// GetBooking returns a booking visible to one of its parties.
func (s *DefaultBookingService) GetBooking(ctx context.Context, bookingID, actingUserID string) (*models.Booking, error) {
	b, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.IsParty(actingUserID) {
		return nil, utils.NewRejection(utils.RejectNotAuthorized, "you are not a party to this booking")
	}
	return b, nil
}

// ListBookings returns every booking the user participates in, as provider
// or requester.
func (s *DefaultBookingService) ListBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	bookings, err := s.Repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, utils.WrapStorageFailure(err)
	}
	return bookings, nil
}

// notify fires a push in the background so delivery latency never sits on
// the request path.
func (s *DefaultBookingService) notify(userID, eventType string, data map[string]string) {
	if s.Notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Notifier.NotifyUser(ctx, userID, eventType, data); err != nil {
			s.Logger.Warn("notification delivery failed",
				zap.String("userID", userID),
				zap.String("event", eventType),
				zap.Error(err))
		}
	}()
}
