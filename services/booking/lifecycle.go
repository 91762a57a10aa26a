package booking

import (
	"fmt"
	"time"

	"sessionledger/models"
	"sessionledger/utils"
)

// Lifecycle guards. Each guard checks actor authorization first, then the
// current status, then any timing rule, and returns a typed rejection on the
// first violation. Guards only read; the compare-and-set write in the
// repository is what makes the transition stick.

func rejectTransition(b *models.Booking, action string) error {
	return utils.NewRejection(utils.RejectInvalidTransition,
		fmt.Sprintf("cannot %s a booking in status %q", action, b.Status))
}

func guardConfirm(b *models.Booking, actingUserID string) error {
	if actingUserID != b.ProviderID {
		return utils.NewRejection(utils.RejectNotAuthorized, "only the provider can confirm a booking")
	}
	if b.Status != models.BookingPending {
		return rejectTransition(b, "confirm")
	}
	return nil
}

func guardCancel(b *models.Booking, actingUserID string, now time.Time, noticeWindow time.Duration) error {
	if !b.IsParty(actingUserID) {
		return utils.NewRejection(utils.RejectNotAuthorized, "only a party to the booking can cancel it")
	}
	switch b.Status {
	case models.BookingPending:
		return nil
	case models.BookingConfirmed:
		if b.ScheduledAt.Sub(now) < noticeWindow {
			return utils.NewRejection(utils.RejectWindowViolation,
				fmt.Sprintf("confirmed bookings require at least %.0f hours of cancellation notice", noticeWindow.Hours()))
		}
		return nil
	default:
		return rejectTransition(b, "cancel")
	}
}

func guardComplete(b *models.Booking, actingUserID string) error {
	if actingUserID != b.ProviderID {
		return utils.NewRejection(utils.RejectNotAuthorized, "only the provider can complete a booking")
	}
	if b.Status != models.BookingConfirmed && b.Status != models.BookingInProgress {
		return rejectTransition(b, "complete")
	}
	return nil
}

func guardFeedback(b *models.Booking, actingUserID string, rating int) error {
	if !b.IsParty(actingUserID) {
		return utils.NewRejection(utils.RejectNotAuthorized, "only a party to the booking can leave feedback")
	}
	if b.Status != models.BookingCompleted {
		return rejectTransition(b, "review")
	}
	if rating < 1 || rating > 5 {
		return utils.NewRejection(utils.RejectInvalidArgument, "rating must be between 1 and 5")
	}
	existing := b.RequesterFeedback
	if actingUserID == b.ProviderID {
		existing = b.ProviderFeedback
	}
	if existing != nil {
		return utils.NewRejection(utils.RejectInvalidTransition, "feedback has already been submitted for this booking")
	}
	return nil
}
