package models

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
	BookingNoShow     BookingStatus = "no_show"
)

// ActiveStatuses are the states that still occupy the provider's time and
// therefore participate in conflict detection.
var ActiveStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingInProgress}

// Terminal reports whether no further transition is legal from s.
func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCancelled || s == BookingNoShow
}

// Duration bounds for a single session.
const (
	MinDurationMinutes = 15
	MaxDurationMinutes = 180
)

// CreditsForDuration computes the credit cost of a session:
// ceil(durationMinutes / 30). Fixed at creation and never altered.
func CreditsForDuration(durationMinutes int) int {
	return (durationMinutes + 29) / 30
}

// Cancellation records who ended a booking and why.
type Cancellation struct {
	Reason   string    `bson:"reason" json:"reason"`
	ByUserID string    `bson:"by_user_id" json:"by_user_id"`
	At       time.Time `bson:"at" json:"at"`
}

// Feedback is one party's write-once rating of a completed session.
type Feedback struct {
	Rating  int       `bson:"rating" json:"rating"` // 1–5
	Comment string    `bson:"comment,omitempty" json:"comment,omitempty"`
	At      time.Time `bson:"at" json:"at"`
}

// Booking represents a time-bound session between a provider and a requester.
type Booking struct {
	ID              string        `bson:"id" json:"id"`
	ProviderID      string        `bson:"provider_id" json:"provider_id"`
	RequesterID     string        `bson:"requester_id" json:"requester_id"`
	Status          BookingStatus `bson:"status" json:"status"`
	ScheduledAt     time.Time     `bson:"scheduled_at" json:"scheduled_at"`
	EndAt           time.Time     `bson:"end_at" json:"end_at"` // ScheduledAt + duration, denormalized for overlap queries
	DurationMinutes int           `bson:"duration_minutes" json:"duration_minutes"`
	CreditsSpent    int           `bson:"credits_spent" json:"credits_spent"` // immutable once set
	Notes           string        `bson:"notes,omitempty" json:"notes,omitempty"`
	MeetingLink     string        `bson:"meeting_link,omitempty" json:"meeting_link,omitempty"`
	RecordingRef    string        `bson:"recording_ref,omitempty" json:"recording_ref,omitempty"`

	Cancellation      *Cancellation `bson:"cancellation,omitempty" json:"cancellation,omitempty"`
	RequesterFeedback *Feedback     `bson:"requester_feedback,omitempty" json:"requester_feedback,omitempty"`
	ProviderFeedback  *Feedback     `bson:"provider_feedback,omitempty" json:"provider_feedback,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsParty reports whether userID is the provider or the requester.
func (b *Booking) IsParty(userID string) bool {
	return userID == b.ProviderID || userID == b.RequesterID
}
