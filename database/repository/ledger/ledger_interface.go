package ledgerRepo

import (
	"context"
	"errors"
	"time"

	"sessionledger/models"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrMarkerNotFound = errors.New("compensation marker not found")
	// ErrBalanceConflict is returned when the balance precondition on the
	// user document no longer holds at write time. Under per-user
	// serialization this indicates a transient storage race and the
	// operation may be retried.
	ErrBalanceConflict = errors.New("balance changed concurrently")
)

// LedgerRepository persists the append-only credit ledger. Apply is the only
// write path for ledger rows and user balances.
type LedgerRepository interface {
	// Apply atomically, in one multi-document transaction:
	//   - inserts txn,
	//   - inserts newMarker when non-nil,
	//   - resolves the marker with ID resolveMarkerID when non-empty,
	//   - moves the user's balance from txn.BalanceBefore to
	//     txn.BalanceAfter, guarded by a precondition on the current
	//     balance (ErrBalanceConflict when it no longer matches).
	Apply(ctx context.Context, txn *models.CreditTransaction, newMarker *models.CompensationMarker, resolveMarkerID string) error

	Balance(ctx context.Context, userID string) (int, error)
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.CreditTransaction, error)
	// ListByBooking returns every transaction tied to a booking, oldest
	// first. The service nets payments and refunds against compensating
	// adjustments from this trail.
	ListByBooking(ctx context.Context, bookingID string) ([]models.CreditTransaction, error)

	GetMarker(ctx context.Context, id string) (*models.CompensationMarker, error)
	ResolveMarker(ctx context.Context, id string) error
	// PendingMarkers returns unresolved markers older than the given age,
	// for the recovery sweep.
	PendingMarkers(ctx context.Context, olderThan time.Duration) ([]models.CompensationMarker, error)
}
