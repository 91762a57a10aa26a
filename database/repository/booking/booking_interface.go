package bookingRepo

import (
	"context"
	"errors"
	"time"

	"sessionledger/models"
)

var (
	ErrNotFound = errors.New("booking not found")
	// ErrStatusConflict is returned when a compare-and-set status update
	// matched the booking but its status was no longer one of the expected
	// source states.
	ErrStatusConflict = errors.New("booking status changed concurrently")
	// ErrFeedbackExists is returned when the caller's feedback slot is
	// already populated.
	ErrFeedbackExists = errors.New("feedback already submitted")
)

// StatusUpdate carries the optional fields a lifecycle transition may attach.
type StatusUpdate struct {
	MeetingLink  string
	RecordingRef string
	Cancellation *models.Cancellation
}

// BookingRepository defines persistence operations for bookings. Status
// changes are compare-and-set: the write applies only while the booking is
// still in one of the expected source states.
type BookingRepository interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	// FindOverlapping returns active (pending/confirmed/in_progress)
	// bookings for the provider whose [scheduled_at, end_at) window
	// overlaps [start, end) under half-open semantics. excludeID, when
	// non-empty, removes a booking's own window from consideration.
	FindOverlapping(ctx context.Context, providerID string, start, end time.Time, excludeID string) ([]models.Booking, error)
	SetStatus(ctx context.Context, id string, from []models.BookingStatus, to models.BookingStatus, set StatusUpdate) error
	SetMeetingLink(ctx context.Context, id, link string) error
	// SetFeedback writes the requester's or provider's feedback slot,
	// failing with ErrFeedbackExists if it is already populated.
	SetFeedback(ctx context.Context, id string, fromRequester bool, fb models.Feedback) error
	ListByUser(ctx context.Context, userID string) ([]models.Booking, error)
}
