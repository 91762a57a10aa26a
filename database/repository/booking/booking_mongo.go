package bookingRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sessionledger/database"
	"sessionledger/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBookingRepo is the MongoDB-backed booking repository.
type MongoBookingRepo struct {
	coll *mongo.Collection
}

// NewMongoBookingRepo returns a repo bound to the "bookings" collection.
func NewMongoBookingRepo() *MongoBookingRepo {
	return &MongoBookingRepo{coll: database.DB().Collection("bookings")}
}

// EnsureIndexes creates the indexes backing overlap queries and user listings.
func (r *MongoBookingRepo) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "provider_id", Value: 1}, {Key: "scheduled_at", Value: 1}}},
		{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "scheduled_at", Value: -1}}},
	})
	return err
}

// Create inserts a new booking document. EndAt is derived here so overlap
// queries never have to recompute it.
func (r *MongoBookingRepo) Create(ctx context.Context, b *models.Booking) error {
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	b.EndAt = b.ScheduledAt.Add(time.Duration(b.DurationMinutes) * time.Minute)

	if _, err := r.coll.InsertOne(ctx, b); err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetByID fetches a booking by its ID.
func (r *MongoBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&b)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch booking %s: %w", id, err)
	}
	return &b, nil
}

// FindOverlapping returns active bookings whose window overlaps [start, end).
// Half-open semantics: windows that abut exactly do not overlap.
func (r *MongoBookingRepo) FindOverlapping(ctx context.Context, providerID string, start, end time.Time, excludeID string) ([]models.Booking, error) {
	filter := bson.M{
		"provider_id":  providerID,
		"status":       bson.M{"$in": models.ActiveStatuses},
		"scheduled_at": bson.M{"$lt": end},
		"end_at":       bson.M{"$gt": start},
	}
	if excludeID != "" {
		filter["id"] = bson.M{"$ne": excludeID}
	}

	cur, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query overlapping bookings: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.Booking
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode overlapping bookings: %w", err)
	}
	return out, nil
}

// SetStatus applies a compare-and-set lifecycle transition. The update only
// lands while the booking is still in one of the from states.
func (r *MongoBookingRepo) SetStatus(ctx context.Context, id string, from []models.BookingStatus, to models.BookingStatus, set StatusUpdate) error {
	update := bson.M{
		"status":     to,
		"updated_at": time.Now(),
	}
	if set.MeetingLink != "" {
		update["meeting_link"] = set.MeetingLink
	}
	if set.RecordingRef != "" {
		update["recording_ref"] = set.RecordingRef
	}
	if set.Cancellation != nil {
		update["cancellation"] = set.Cancellation
	}

	filter := bson.M{"id": id, "status": bson.M{"$in": from}}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("failed to update booking %s status: %w", id, err)
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrStatusConflict
	}
	return nil
}

// SetMeetingLink attaches a meeting link outside of a status transition
// (late provisioning after a degraded confirm).
func (r *MongoBookingRepo) SetMeetingLink(ctx context.Context, id, link string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{
		"$set": bson.M{"meeting_link": link, "updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to set meeting link for booking %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFeedback writes one party's feedback slot, guarded so a slot is only
// ever written once and only on a completed booking.
func (r *MongoBookingRepo) SetFeedback(ctx context.Context, id string, fromRequester bool, fb models.Feedback) error {
	field := "provider_feedback"
	if fromRequester {
		field = "requester_feedback"
	}

	filter := bson.M{
		"id":     id,
		"status": models.BookingCompleted,
		field:    bson.M{"$exists": false},
	}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{
		"$set": bson.M{field: fb, "updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to set feedback for booking %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		b, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != models.BookingCompleted {
			return ErrStatusConflict
		}
		return ErrFeedbackExists
	}
	return nil
}

// ListByUser returns bookings where the user is either party, newest first.
func (r *MongoBookingRepo) ListByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"provider_id": userID},
		bson.M{"requester_id": userID},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "scheduled_at", Value: -1}})

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings for user %s: %w", userID, err)
	}
	defer cur.Close(ctx)

	var out []models.Booking
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode bookings for user %s: %w", userID, err)
	}
	return out, nil
}
