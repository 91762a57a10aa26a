package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	ledgerRepo "sessionledger/database/repository/ledger"
	"sessionledger/models"
	"sessionledger/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memLedgerRepo is an in-memory LedgerRepository with the same atomicity
// guarantees as the mongo implementation.
type memLedgerRepo struct {
	mu       sync.Mutex
	balances map[string]int
	txns     []models.CreditTransaction
	markers  map[string]*models.CompensationMarker
}

func newMemLedgerRepo(balances map[string]int) *memLedgerRepo {
	if balances == nil {
		balances = make(map[string]int)
	}
	return &memLedgerRepo{
		balances: balances,
		markers:  make(map[string]*models.CompensationMarker),
	}
}

func (r *memLedgerRepo) Apply(_ context.Context, txn *models.CreditTransaction, newMarker *models.CompensationMarker, resolveMarkerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.balances[txn.UserID]
	if !ok {
		return ledgerRepo.ErrUserNotFound
	}
	if current != txn.BalanceBefore {
		return ledgerRepo.ErrBalanceConflict
	}

	r.txns = append(r.txns, *txn)
	if newMarker != nil {
		m := *newMarker
		r.markers[m.ID] = &m
	}
	if resolveMarkerID != "" {
		if m, ok := r.markers[resolveMarkerID]; ok {
			now := time.Now()
			m.State = models.MarkerResolved
			m.ResolvedAt = &now
		}
	}
	r.balances[txn.UserID] = txn.BalanceAfter
	return nil
}

func (r *memLedgerRepo) Balance(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[userID]
	if !ok {
		return 0, ledgerRepo.ErrUserNotFound
	}
	return b, nil
}

func (r *memLedgerRepo) ListByUser(_ context.Context, userID string, page, pageSize int) ([]models.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CreditTransaction
	for i := len(r.txns) - 1; i >= 0; i-- {
		if r.txns[i].UserID == userID {
			out = append(out, r.txns[i])
		}
	}
	return out, nil
}

func (r *memLedgerRepo) ListByBooking(_ context.Context, bookingID string) ([]models.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.CreditTransaction
	for _, t := range r.txns {
		if t.RelatedBookingID == bookingID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memLedgerRepo) GetMarker(_ context.Context, id string) (*models.CompensationMarker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.markers[id]
	if !ok {
		return nil, ledgerRepo.ErrMarkerNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *memLedgerRepo) ResolveMarker(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.markers[id]
	if !ok {
		return ledgerRepo.ErrMarkerNotFound
	}
	now := time.Now()
	m.State = models.MarkerResolved
	m.ResolvedAt = &now
	return nil
}

func (r *memLedgerRepo) PendingMarkers(_ context.Context, olderThan time.Duration) ([]models.CompensationMarker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []models.CompensationMarker
	for _, m := range r.markers {
		if m.State == models.MarkerPending && m.CreatedAt.Before(cutoff) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func newTestService(balances map[string]int) (*DefaultLedgerService, *memLedgerRepo) {
	repo := newMemLedgerRepo(balances)
	return NewDefaultLedgerService(repo, zap.NewNop()), repo
}

func TestDebitReducesBalance(t *testing.T) {
	svc, _ := newTestService(map[string]int{"alice": 10})

	res, err := svc.Debit(context.Background(), Operation{
		UserID: "alice", Amount: 3, Reason: models.ReasonSessionPayment, BookingID: "b1",
	})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Txn.BalanceBefore)
	assert.Equal(t, 7, res.Txn.BalanceAfter)
	assert.Equal(t, models.KindDebit, res.Txn.Kind)

	balance, err := svc.Balance(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 7, balance)
}

func TestDebitInsufficientBalance(t *testing.T) {
	svc, repo := newTestService(map[string]int{"alice": 2})

	_, err := svc.Debit(context.Background(), Operation{
		UserID: "alice", Amount: 3, Reason: models.ReasonSessionPayment, BookingID: "b1",
	})
	require.Error(t, err)
	assert.True(t, utils.IsRejection(err, utils.RejectInsufficientCredits))

	// A rejected debit writes no transaction row.
	assert.Empty(t, repo.txns)
	balance, _ := svc.Balance(context.Background(), "alice")
	assert.Equal(t, 2, balance)
}

func TestDebitExactBalanceSucceeds(t *testing.T) {
	svc, _ := newTestService(map[string]int{"alice": 3})

	res, err := svc.Debit(context.Background(), Operation{
		UserID: "alice", Amount: 3, Reason: models.ReasonSessionPayment, BookingID: "b1",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Txn.BalanceAfter)
}

func TestDebitUnknownUser(t *testing.T) {
	svc, _ := newTestService(nil)

	_, err := svc.Debit(context.Background(), Operation{
		UserID: "ghost", Amount: 1, Reason: models.ReasonSessionPayment,
	})
	assert.True(t, utils.IsRejection(err, utils.RejectNotFound))
}

func TestOperationValidation(t *testing.T) {
	svc, _ := newTestService(map[string]int{"alice": 10})

	for _, op := range []Operation{
		{UserID: "", Amount: 1, Reason: models.ReasonPurchase},
		{UserID: "alice", Amount: 0, Reason: models.ReasonPurchase},
		{UserID: "alice", Amount: -5, Reason: models.ReasonPurchase},
		{UserID: "alice", Amount: 1, Reason: ""},
	} {
		_, err := svc.Credit(context.Background(), op)
		assert.True(t, utils.IsRejection(err, utils.RejectInvalidArgument))
	}
}

func TestRefundRequiresDebit(t *testing.T) {
	svc, _ := newTestService(map[string]int{"alice": 10})

	_, err := svc.Refund(context.Background(), Operation{BookingID: "b1"})
	assert.True(t, utils.IsRejection(err, utils.RejectRefundWithoutDebit))
}

func TestRefundIsExactlyOnce(t *testing.T) {
	svc, _ := newTestService(map[string]int{"alice": 10})
	ctx := context.Background()

	_, err := svc.Debit(ctx, Operation{
		UserID: "alice", Amount: 4, Reason: models.ReasonSessionPayment, BookingID: "b1",
	})
	require.NoError(t, err)

	res, err := svc.Refund(ctx, Operation{BookingID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Txn.Amount)
	assert.Equal(t, models.ReasonSessionRefund, res.Txn.Reason)

	balance, _ := svc.Balance(ctx, "alice")
	assert.Equal(t, 10, balance)

	_, err = svc.Refund(ctx, Operation{BookingID: "b1"})
	assert.True(t, utils.IsRejection(err, utils.RejectAlreadyRefunded))
}

func TestDebitWritesCompensationMarker(t *testing.T) {
	svc, repo := newTestService(map[string]int{"alice": 10})

	res, err := svc.Debit(context.Background(), Operation{
		UserID:       "alice",
		Amount:       2,
		Reason:       models.ReasonSessionPayment,
		BookingID:    "b1",
		CompensateAs: models.CompensationRefundDebit,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Marker)
	assert.Equal(t, models.MarkerPending, res.Marker.State)
	assert.Equal(t, res.Txn.ID, res.Marker.LedgerTxnID)
	assert.Contains(t, repo.markers, res.Marker.ID)
}

func TestReverseRefundDebit(t *testing.T) {
	svc, repo := newTestService(map[string]int{"alice": 10})
	ctx := context.Background()

	res, err := svc.Debit(ctx, Operation{
		UserID: "alice", Amount: 2, Reason: models.ReasonSessionPayment,
		BookingID: "b1", CompensateAs: models.CompensationRefundDebit,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Reverse(ctx, res.Marker.ID))

	balance, _ := svc.Balance(ctx, "alice")
	assert.Equal(t, 10, balance)

	// The reversal is an adjustment, not a session_refund, so it cannot
	// satisfy a later refund's at-most-once check.
	last := repo.txns[len(repo.txns)-1]
	assert.Equal(t, models.ReasonAdminAdjustment, last.Reason)
	assert.Equal(t, models.KindCredit, last.Kind)

	m, err := svc.GetMarker(ctx, res.Marker.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MarkerResolved, m.State)

	// A second reverse is a no-op, not a second credit.
	require.NoError(t, svc.Reverse(ctx, res.Marker.ID))
	balance, _ = svc.Balance(ctx, "alice")
	assert.Equal(t, 10, balance)
}

func TestDebitOncePerBooking(t *testing.T) {
	svc, repo := newTestService(map[string]int{"alice": 10})
	ctx := context.Background()

	_, err := svc.Debit(ctx, Operation{
		UserID: "alice", Amount: 2, Reason: models.ReasonSessionPayment, BookingID: "b1",
	})
	require.NoError(t, err)

	// A second session payment for the same booking is rejected, leaving
	// neither a transaction row nor a balance change behind.
	_, err = svc.Debit(ctx, Operation{
		UserID: "alice", Amount: 2, Reason: models.ReasonSessionPayment, BookingID: "b1",
	})
	assert.True(t, utils.IsRejection(err, utils.RejectInvalidTransition))
	assert.Len(t, repo.txns, 1)
	balance, _ := svc.Balance(ctx, "alice")
	assert.Equal(t, 8, balance)

	// Other bookings are unaffected.
	_, err = svc.Debit(ctx, Operation{
		UserID: "alice", Amount: 2, Reason: models.ReasonSessionPayment, BookingID: "b2",
	})
	require.NoError(t, err)
}

func TestRefundAfterCompensatedConfirm(t *testing.T) {
	svc, _ := newTestService(map[string]int{"alice": 10})
	ctx := context.Background()

	// A confirm whose commit was lost: the debit is compensated away.
	res, err := svc.Debit(ctx, Operation{
		UserID: "alice", Amount: 2, Reason: models.ReasonSessionPayment,
		BookingID: "b1", CompensateAs: models.CompensationRefundDebit,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Reverse(ctx, res.Marker.ID))

	// With the payment compensated, a refund has nothing to return.
	_, err = svc.Refund(ctx, Operation{BookingID: "b1"})
	assert.True(t, utils.IsRejection(err, utils.RejectRefundWithoutDebit))

	// The retried confirm pays again, and the booking can still be
	// refunded exactly once afterwards.
	_, err = svc.Debit(ctx, Operation{
		UserID: "alice", Amount: 2, Reason: models.ReasonSessionPayment, BookingID: "b1",
	})
	require.NoError(t, err)

	refund, err := svc.Refund(ctx, Operation{BookingID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, models.ReasonSessionRefund, refund.Txn.Reason)

	balance, _ := svc.Balance(ctx, "alice")
	assert.Equal(t, 10, balance)

	_, err = svc.Refund(ctx, Operation{BookingID: "b1"})
	assert.True(t, utils.IsRejection(err, utils.RejectAlreadyRefunded))
}

func TestReverseRedoDebit(t *testing.T) {
	svc, _ := newTestService(map[string]int{"alice": 10})
	ctx := context.Background()

	_, err := svc.Debit(ctx, Operation{
		UserID: "alice", Amount: 4, Reason: models.ReasonSessionPayment, BookingID: "b1",
	})
	require.NoError(t, err)

	res, err := svc.Refund(ctx, Operation{BookingID: "b1", CompensateAs: models.CompensationRedoDebit})
	require.NoError(t, err)
	require.NotNil(t, res.Marker)

	require.NoError(t, svc.Reverse(ctx, res.Marker.ID))

	// Back to the post-debit balance, with the re-debit tagged as an
	// adjustment so the booking still has exactly one session_payment.
	balance, _ := svc.Balance(ctx, "alice")
	assert.Equal(t, 6, balance)

	txns, err := svc.Transactions(ctx, "alice", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonAdminAdjustment, txns[0].Reason)
	assert.Equal(t, models.KindDebit, txns[0].Kind)

	// The reversed refund no longer counts, so a genuine cancellation can
	// still refund the payment once.
	refund, err := svc.Refund(ctx, Operation{BookingID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, 4, refund.Txn.Amount)

	balance, _ = svc.Balance(ctx, "alice")
	assert.Equal(t, 10, balance)
}

func TestLedgerInvariants(t *testing.T) {
	svc, repo := newTestService(map[string]int{"alice": 5})
	ctx := context.Background()

	_, err := svc.Credit(ctx, Operation{UserID: "alice", Amount: 7, Reason: models.ReasonPurchase})
	require.NoError(t, err)
	_, err = svc.Debit(ctx, Operation{UserID: "alice", Amount: 3, Reason: models.ReasonSessionPayment, BookingID: "b1"})
	require.NoError(t, err)
	_, err = svc.Refund(ctx, Operation{BookingID: "b1"})
	require.NoError(t, err)

	// Replaying the ledger reconstructs the stored balance, every row links
	// before and after consistently, and no balance ever goes negative.
	replayed := 5
	for _, txn := range repo.txns {
		assert.Equal(t, replayed, txn.BalanceBefore)
		if txn.Kind == models.KindDebit {
			assert.Equal(t, txn.BalanceBefore-txn.Amount, txn.BalanceAfter)
		} else {
			assert.Equal(t, txn.BalanceBefore+txn.Amount, txn.BalanceAfter)
		}
		assert.GreaterOrEqual(t, txn.BalanceAfter, 0)
		assert.Positive(t, txn.Amount)
		replayed = txn.BalanceAfter
	}
	balance, _ := svc.Balance(ctx, "alice")
	assert.Equal(t, replayed, balance)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	svc, repo := newTestService(map[string]int{"alice": 10})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Debit(ctx, Operation{
				UserID: "alice", Amount: 1, Reason: models.ReasonSessionPayment,
			})
		}()
	}
	wg.Wait()

	balance, _ := svc.Balance(ctx, "alice")
	assert.Equal(t, 0, balance)
	assert.Len(t, repo.txns, 10)
}

func TestStalePendingMarkers(t *testing.T) {
	svc, repo := newTestService(map[string]int{"alice": 10})
	ctx := context.Background()

	res, err := svc.Debit(ctx, Operation{
		UserID: "alice", Amount: 1, Reason: models.ReasonSessionPayment,
		BookingID: "b1", CompensateAs: models.CompensationRefundDebit,
	})
	require.NoError(t, err)

	// Fresh marker is not stale yet.
	markers, err := svc.StalePendingMarkers(ctx, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, markers)

	repo.mu.Lock()
	repo.markers[res.Marker.ID].CreatedAt = time.Now().Add(-time.Hour)
	repo.mu.Unlock()

	markers, err = svc.StalePendingMarkers(ctx, time.Minute)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, res.Marker.ID, markers[0].ID)
}
