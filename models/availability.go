package models

import "time"

// AvailabilityRule is a weekly recurring open window in the provider's local
// time. Minutes are counted from midnight; the window is half-open
// [StartMinute, EndMinute).
type AvailabilityRule struct {
	ID          string       `bson:"id" json:"id"`
	ProviderID  string       `bson:"provider_id" json:"provider_id"`
	Weekday     time.Weekday `bson:"weekday" json:"weekday"` // 0 = Sunday
	StartMinute int          `bson:"start_minute" json:"start_minute"`
	EndMinute   int          `bson:"end_minute" json:"end_minute"`
	IsActive    bool         `bson:"is_active" json:"is_active"`
	CreatedAt   time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updated_at"`
}

// AvailabilityException is a one-off override for a specific date. An
// IsAvailable=true exception opens an extra window; IsAvailable=false blocks
// one regardless of the weekly rules.
type AvailabilityException struct {
	ID          string    `bson:"id" json:"id"`
	ProviderID  string    `bson:"provider_id" json:"provider_id"`
	Date        string    `bson:"date" json:"date"` // "YYYY-MM-DD" in the provider's timezone
	StartMinute int       `bson:"start_minute" json:"start_minute"`
	EndMinute   int       `bson:"end_minute" json:"end_minute"`
	IsAvailable bool      `bson:"is_available" json:"is_available"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// OpenInterval is a continuous bookable time block on a given day.
type OpenInterval struct {
	Start int    `json:"start"` // Minutes from midnight
	End   int    `json:"end"`   // Minutes from midnight
	Label string `json:"label"` // e.g., "9:00 AM - 10:30 AM"
}
