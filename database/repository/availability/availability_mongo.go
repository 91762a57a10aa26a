package availabilityRepo

import (
	"context"
	"fmt"
	"time"

	"sessionledger/database"
	"sessionledger/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoAvailabilityRepo is the MongoDB-backed availability repository.
type MongoAvailabilityRepo struct {
	rules      *mongo.Collection
	exceptions *mongo.Collection
}

// NewMongoAvailabilityRepo returns a repo bound to the availability collections.
func NewMongoAvailabilityRepo() *MongoAvailabilityRepo {
	db := database.DB()
	return &MongoAvailabilityRepo{
		rules:      db.Collection("availability_rules"),
		exceptions: db.Collection("availability_exceptions"),
	}
}

// EnsureIndexes creates the availability indexes.
func (r *MongoAvailabilityRepo) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := r.rules.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "provider_id", Value: 1}, {Key: "weekday", Value: 1}},
	}); err != nil {
		return err
	}
	_, err := r.exceptions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "provider_id", Value: 1}, {Key: "date", Value: 1}},
	})
	return err
}

// UpsertRule inserts or replaces a weekly rule.
func (r *MongoAvailabilityRepo) UpsertRule(ctx context.Context, rule *models.AvailabilityRule) error {
	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	filter := bson.M{"id": rule.ID, "provider_id": rule.ProviderID}
	opts := options.Replace().SetUpsert(true)
	if _, err := r.rules.ReplaceOne(ctx, filter, rule, opts); err != nil {
		return fmt.Errorf("failed to upsert availability rule: %w", err)
	}
	return nil
}

// DeleteRule removes a rule owned by the provider.
func (r *MongoAvailabilityRepo) DeleteRule(ctx context.Context, providerID, ruleID string) error {
	res, err := r.rules.DeleteOne(ctx, bson.M{"id": ruleID, "provider_id": providerID})
	if err != nil {
		return fmt.Errorf("failed to delete availability rule %s: %w", ruleID, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRules returns all of a provider's rules, active or not.
func (r *MongoAvailabilityRepo) ListRules(ctx context.Context, providerID string) ([]models.AvailabilityRule, error) {
	return r.findRules(ctx, bson.M{"provider_id": providerID})
}

// ListRulesForWeekday returns the provider's active rules for one weekday.
func (r *MongoAvailabilityRepo) ListRulesForWeekday(ctx context.Context, providerID string, weekday time.Weekday) ([]models.AvailabilityRule, error) {
	return r.findRules(ctx, bson.M{
		"provider_id": providerID,
		"weekday":     weekday,
		"is_active":   true,
	})
}

func (r *MongoAvailabilityRepo) findRules(ctx context.Context, filter bson.M) ([]models.AvailabilityRule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "weekday", Value: 1}, {Key: "start_minute", Value: 1}})
	cur, err := r.rules.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query availability rules: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.AvailabilityRule
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode availability rules: %w", err)
	}
	return out, nil
}

// CreateException inserts a date-specific exception.
func (r *MongoAvailabilityRepo) CreateException(ctx context.Context, exc *models.AvailabilityException) error {
	exc.CreatedAt = time.Now()
	if _, err := r.exceptions.InsertOne(ctx, exc); err != nil {
		return fmt.Errorf("failed to create availability exception: %w", err)
	}
	return nil
}

// DeleteException removes an exception owned by the provider.
func (r *MongoAvailabilityRepo) DeleteException(ctx context.Context, providerID, excID string) error {
	res, err := r.exceptions.DeleteOne(ctx, bson.M{"id": excID, "provider_id": providerID})
	if err != nil {
		return fmt.Errorf("failed to delete availability exception %s: %w", excID, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExceptions returns all of a provider's exceptions.
func (r *MongoAvailabilityRepo) ListExceptions(ctx context.Context, providerID string) ([]models.AvailabilityException, error) {
	return r.findExceptions(ctx, bson.M{"provider_id": providerID})
}

// ListExceptionsForDate returns the provider's exceptions for one date.
func (r *MongoAvailabilityRepo) ListExceptionsForDate(ctx context.Context, providerID, date string) ([]models.AvailabilityException, error) {
	return r.findExceptions(ctx, bson.M{"provider_id": providerID, "date": date})
}

func (r *MongoAvailabilityRepo) findExceptions(ctx context.Context, filter bson.M) ([]models.AvailabilityException, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start_minute", Value: 1}})
	cur, err := r.exceptions.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query availability exceptions: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.AvailabilityException
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode availability exceptions: %w", err)
	}
	return out, nil
}
