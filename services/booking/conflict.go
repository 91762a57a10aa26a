package booking

import (
	"context"
	"time"

	availabilityRepo "sessionledger/database/repository/availability"
	bookingRepo "sessionledger/database/repository/booking"
	"sessionledger/models"
	"sessionledger/utils"
)

// ConflictDetector decides whether a requested window can be booked against a
// provider's calendar. Callers serialize invocations per provider so a check
// and the insert that follows it are atomic with respect to other requests.
type ConflictDetector struct {
	Availability availabilityRepo.AvailabilityRepository
	Bookings     bookingRepo.BookingRepository
}

// Check validates the requested [start, start+duration) window in the
// provider's local time. Order matters: a blocking exception wins over any
// rule, then the window must sit inside a single rule or opening exception,
// then no active booking may overlap it.
func (d *ConflictDetector) Check(ctx context.Context, providerID string, start time.Time, durationMinutes int, excludeBookingID string) error {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	date := start.Format("2006-01-02")
	startMin := start.Hour()*60 + start.Minute()
	endMin := startMin + durationMinutes

	excs, err := d.Availability.ListExceptionsForDate(ctx, providerID, date)
	if err != nil {
		return utils.WrapStorageFailure(err)
	}
	for _, e := range excs {
		if !e.IsAvailable && e.StartMinute < endMin && e.EndMinute > startMin {
			return utils.NewRejection(utils.RejectSlotTaken,
				"the provider has blocked this time")
		}
	}

	ok, err := d.withinSchedule(ctx, providerID, start, startMin, endMin, excs)
	if err != nil {
		return utils.WrapStorageFailure(err)
	}
	if !ok {
		return utils.NewRejection(utils.RejectSlotTaken,
			"the requested time is outside the provider's available hours")
	}

	overlapping, err := d.Bookings.FindOverlapping(ctx, providerID, start, end, excludeBookingID)
	if err != nil {
		return utils.WrapStorageFailure(err)
	}
	if len(overlapping) > 0 {
		return utils.NewRejection(utils.RejectSlotTaken,
			"the provider already has a booking in this window")
	}
	return nil
}

// withinSchedule reports whether [startMin, endMin) is contained in a single
// active weekly rule or a single opening exception. Windows that would cross
// midnight never fit, a rule ends at minute 1440 at the latest.
func (d *ConflictDetector) withinSchedule(ctx context.Context, providerID string, start time.Time, startMin, endMin int, excs []models.AvailabilityException) (bool, error) {
	if endMin > 24*60 {
		return false, nil
	}

	rules, err := d.Availability.ListRulesForWeekday(ctx, providerID, start.Weekday())
	if err != nil {
		return false, err
	}
	for _, r := range rules {
		if r.StartMinute <= startMin && endMin <= r.EndMinute {
			return true, nil
		}
	}
	for _, e := range excs {
		if e.IsAvailable && e.StartMinute <= startMin && endMin <= e.EndMinute {
			return true, nil
		}
	}
	return false, nil
}
