package ledgerRepo

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

// MongoLedgerRepo is the MongoDB-backed ledger repository. It owns the
// credit_transactions and compensation_markers collections and is the only
// writer of the credits field on user documents.
type MongoLedgerRepo struct {
	client  *mongo.Client
	users   *mongo.Collection
	txns    *mongo.Collection
	markers *mongo.Collection
}

// NewMongoLedgerRepo returns a repo bound to the ledger collections.
func NewMongoLedgerRepo() *MongoLedgerRepo {
	db := database.DB()
	return &MongoLedgerRepo{
		client:  database.MongoClient,
		users:   db.Collection("users"),
		txns:    db.Collection("credit_transactions"),
		markers: db.Collection("compensation_markers"),
	}
}

// EnsureIndexes creates the ledger indexes.
func (r *MongoLedgerRepo) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := r.txns.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "related_booking_id", Value: 1}, {Key: "created_at", Value: 1}}},
	}); err != nil {
		return err
	}
	_, err := r.markers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	return err
}

// Apply performs the atomic ledger write described on the interface.
func (r *MongoLedgerRepo) Apply(ctx context.Context, txn *models.CreditTransaction, newMarker *models.CompensationMarker, resolveMarkerID string) error {
	sess, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	txnFn := func(sc mongo.SessionContext) error {
		if _, err := r.txns.InsertOne(sc, txn); err != nil {
			return fmt.Errorf("insert ledger transaction failed: %w", err)
		}
		if newMarker != nil {
			if _, err := r.markers.InsertOne(sc, newMarker); err != nil {
				return fmt.Errorf("insert compensation marker failed: %w", err)
			}
		}
		if resolveMarkerID != "" {
			now := time.Now()
			if _, err := r.markers.UpdateOne(sc,
				bson.M{"id": resolveMarkerID, "state": models.MarkerPending},
				bson.M{"$set": bson.M{"state": models.MarkerResolved, "resolved_at": now}},
			); err != nil {
				return fmt.Errorf("resolve compensation marker failed: %w", err)
			}
		}

		// Balance precondition guards against any write that slipped past
		// the per-user serialization in the service layer.
		res, err := r.users.UpdateOne(sc,
			bson.M{"id": txn.UserID, "credits": txn.BalanceBefore},
			bson.M{"$set": bson.M{"credits": txn.BalanceAfter, "updated_at": time.Now()}},
		)
		if err != nil {
			return fmt.Errorf("update balance failed: %w", err)
		}
		if res.MatchedCount == 0 {
			return ErrBalanceConflict
		}
		return nil
	}

	if err := mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sc.StartTransaction(); err != nil {
			return err
		}
		if err := txnFn(sc); err != nil {
			_ = sc.AbortTransaction(sc)
			return err
		}
		return sc.CommitTransaction(sc)
	}); err != nil {
		if errors.Is(err, ErrBalanceConflict) {
			return ErrBalanceConflict
		}
		return fmt.Errorf("ledger transaction failed: %w", err)
	}
	return nil
}

// Balance reads the derived balance from the user document.
func (r *MongoLedgerRepo) Balance(ctx context.Context, userID string) (int, error) {
	var doc struct {
		Credits int `bson:"credits"`
	}
	err := r.users.FindOne(ctx, bson.M{"id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to read balance for user %s: %w", userID, err)
	}
	return doc.Credits, nil
}

// ListByUser returns a user's transactions, newest first, paged.
func (r *MongoLedgerRepo) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.CreditTransaction, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cur, err := r.txns.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for user %s: %w", userID, err)
	}
	defer cur.Close(ctx)

	var out []models.CreditTransaction
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode transactions for user %s: %w", userID, err)
	}
	return out, nil
}

// ListByBooking returns every transaction tied to a booking, oldest first.
func (r *MongoLedgerRepo) ListByBooking(ctx context.Context, bookingID string) ([]models.CreditTransaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.txns.Find(ctx, bson.M{"related_booking_id": bookingID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for booking %s: %w", bookingID, err)
	}
	defer cur.Close(ctx)

	var out []models.CreditTransaction
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode transactions for booking %s: %w", bookingID, err)
	}
	return out, nil
}

// GetMarker fetches a compensation marker by ID.
func (r *MongoLedgerRepo) GetMarker(ctx context.Context, id string) (*models.CompensationMarker, error) {
	var m models.CompensationMarker
	err := r.markers.FindOne(ctx, bson.M{"id": id}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMarkerNotFound
		}
		return nil, fmt.Errorf("failed to fetch marker %s: %w", id, err)
	}
	return &m, nil
}

// ResolveMarker marks a pending marker resolved outside of a ledger write
// (used when the guarded lifecycle commit succeeded and no reversal is due).
func (r *MongoLedgerRepo) ResolveMarker(ctx context.Context, id string) error {
	now := time.Now()
	res, err := r.markers.UpdateOne(ctx,
		bson.M{"id": id, "state": models.MarkerPending},
		bson.M{"$set": bson.M{"state": models.MarkerResolved, "resolved_at": now}},
	)
	if err != nil {
		return fmt.Errorf("failed to resolve marker %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		// Already resolved or unknown; treat resolved as success.
		if _, err := r.GetMarker(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// PendingMarkers returns unresolved markers older than the given age.
func (r *MongoLedgerRepo) PendingMarkers(ctx context.Context, olderThan time.Duration) ([]models.CompensationMarker, error) {
	cutoff := time.Now().Add(-olderThan)
	cur, err := r.markers.Find(ctx, bson.M{
		"state":      models.MarkerPending,
		"created_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending markers: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.CompensationMarker
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode pending markers: %w", err)
	}
	return out, nil
}
