package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	ledgerRepo "sessionledger/database/repository/ledger"
	"sessionledger/models"
	"sessionledger/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Operation describes one ledger write.
type Operation struct {
	UserID    string
	Amount    int
	Reason    models.TransactionReason
	BookingID string
	// CompensateAs, when set, writes a pending compensation marker in the
	// same atomic unit as the ledger entry. The marker names the reversal
	// owed if the lifecycle commit that follows this entry never lands.
	CompensateAs models.CompensationDirection
}

// Result carries the applied transaction and the marker written with it.
type Result struct {
	Txn    *models.CreditTransaction
	Marker *models.CompensationMarker
}

// Service is the credit ledger: the only mutation path for user balances.
// All operations serialize per user; operations on different users never
// block each other.
type Service interface {
	Debit(ctx context.Context, op Operation) (*Result, error)
	Credit(ctx context.Context, op Operation) (*Result, error)
	// Refund credits back a booking's session_payment amount. The user and
	// amount are derived from the original debit. Rejected when no debit
	// exists or when the booking was already refunded.
	Refund(ctx context.Context, op Operation) (*Result, error)

	Balance(ctx context.Context, userID string) (int, error)
	Transactions(ctx context.Context, userID string, page, pageSize int) ([]models.CreditTransaction, error)

	GetMarker(ctx context.Context, markerID string) (*models.CompensationMarker, error)
	ResolveMarker(ctx context.Context, markerID string) error
	// Reverse applies the reversal a pending marker calls for and resolves
	// the marker in the same atomic unit. Safe to retry: a resolved marker
	// is a no-op.
	Reverse(ctx context.Context, markerID string) error
	StalePendingMarkers(ctx context.Context, olderThan time.Duration) ([]models.CompensationMarker, error)
}

// DefaultLedgerService implements Service.
type DefaultLedgerService struct {
	Repo   ledgerRepo.LedgerRepository
	Locks  *utils.KeyedMutex
	Logger *zap.Logger
}

// NewDefaultLedgerService wires a ledger service with its own lock set.
func NewDefaultLedgerService(repo ledgerRepo.LedgerRepository, logger *zap.Logger) *DefaultLedgerService {
	return &DefaultLedgerService{Repo: repo, Locks: utils.NewKeyedMutex(), Logger: logger}
}

func validateOperation(op Operation) error {
	if op.UserID == "" {
		return utils.NewRejection(utils.RejectInvalidArgument, "ledger operation requires a user ID")
	}
	if op.Amount <= 0 {
		return utils.NewRejection(utils.RejectInvalidArgument, "ledger amount must be a positive integer")
	}
	if op.Reason == "" {
		return utils.NewRejection(utils.RejectInvalidArgument, "ledger operation requires a reason")
	}
	return nil
}

func classifyRepoErr(err error) error {
	if errors.Is(err, ledgerRepo.ErrUserNotFound) {
		return utils.NewRejection(utils.RejectNotFound, "user not found")
	}
	return utils.WrapStorageFailure(err)
}

// bookingState is the net per-booking view of the append-only ledger. A
// session payment or refund counts as outstanding until a compensating
// admin_adjustment row written by Reverse cancels it out.
type bookingState struct {
	outstandingPayment bool
	outstandingRefund  bool
	lastPayment        *models.CreditTransaction
}

func (s *DefaultLedgerService) loadBookingState(ctx context.Context, bookingID string) (bookingState, error) {
	txns, err := s.Repo.ListByBooking(ctx, bookingID)
	if err != nil {
		return bookingState{}, utils.WrapStorageFailure(err)
	}
	var st bookingState
	var payments, refunds, reversedPayments, reversedRefunds int
	for i := range txns {
		t := &txns[i]
		switch {
		case t.Kind == models.KindDebit && t.Reason == models.ReasonSessionPayment:
			payments++
			st.lastPayment = t
		case t.Kind == models.KindCredit && t.Reason == models.ReasonSessionRefund:
			refunds++
		case t.Kind == models.KindCredit && t.Reason == models.ReasonAdminAdjustment:
			reversedPayments++
		case t.Kind == models.KindDebit && t.Reason == models.ReasonAdminAdjustment:
			reversedRefunds++
		}
	}
	st.outstandingPayment = payments > reversedPayments
	st.outstandingRefund = refunds > reversedRefunds
	return st, nil
}

// Debit removes credits from a user, rejecting when the balance is
// insufficient. A session payment additionally requires that the booking has
// no outstanding payment already, so two confirms racing on the same booking
// charge at most once. No transaction row is written for a rejected debit.
func (s *DefaultLedgerService) Debit(ctx context.Context, op Operation) (*Result, error) {
	if err := validateOperation(op); err != nil {
		return nil, err
	}

	s.Locks.Lock(op.UserID)
	defer s.Locks.Unlock(op.UserID)

	if op.Reason == models.ReasonSessionPayment && op.BookingID != "" {
		st, err := s.loadBookingState(ctx, op.BookingID)
		if err != nil {
			return nil, err
		}
		if st.outstandingPayment {
			return nil, utils.NewRejection(utils.RejectInvalidTransition,
				"a session payment is already outstanding for this booking")
		}
	}

	balance, err := s.Repo.Balance(ctx, op.UserID)
	if err != nil {
		return nil, classifyRepoErr(err)
	}
	if op.Amount > balance {
		return nil, utils.NewRejection(utils.RejectInsufficientCredits,
			fmt.Sprintf("balance %d is insufficient for a debit of %d", balance, op.Amount))
	}

	return s.apply(ctx, op, models.KindDebit, balance, balance-op.Amount)
}

// Credit adds credits to a user.
func (s *DefaultLedgerService) Credit(ctx context.Context, op Operation) (*Result, error) {
	if err := validateOperation(op); err != nil {
		return nil, err
	}

	s.Locks.Lock(op.UserID)
	defer s.Locks.Unlock(op.UserID)

	balance, err := s.Repo.Balance(ctx, op.UserID)
	if err != nil {
		return nil, classifyRepoErr(err)
	}

	return s.apply(ctx, op, models.KindCredit, balance, balance+op.Amount)
}

// Refund reverses a booking's outstanding session payment, once. A refund
// that was itself reversed by compensation does not count against the
// at-most-once rule.
func (s *DefaultLedgerService) Refund(ctx context.Context, op Operation) (*Result, error) {
	if op.BookingID == "" {
		return nil, utils.NewRejection(utils.RejectInvalidArgument, "refund requires a booking ID")
	}

	st, err := s.loadBookingState(ctx, op.BookingID)
	if err != nil {
		return nil, err
	}
	if st.lastPayment == nil {
		return nil, utils.NewRejection(utils.RejectRefundWithoutDebit,
			"no session payment exists for this booking")
	}
	userID := st.lastPayment.UserID

	s.Locks.Lock(userID)
	defer s.Locks.Unlock(userID)

	// Re-read under the lock: a concurrent refund may have landed.
	st, err = s.loadBookingState(ctx, op.BookingID)
	if err != nil {
		return nil, err
	}
	if st.outstandingRefund {
		return nil, utils.NewRejection(utils.RejectAlreadyRefunded,
			"this booking has already been refunded")
	}
	if !st.outstandingPayment {
		return nil, utils.NewRejection(utils.RejectRefundWithoutDebit,
			"the session payment for this booking was reversed")
	}

	balance, err := s.Repo.Balance(ctx, userID)
	if err != nil {
		return nil, classifyRepoErr(err)
	}

	refundOp := Operation{
		UserID:       userID,
		Amount:       st.lastPayment.Amount,
		Reason:       models.ReasonSessionRefund,
		BookingID:    op.BookingID,
		CompensateAs: op.CompensateAs,
	}
	return s.apply(ctx, refundOp, models.KindCredit, balance, balance+st.lastPayment.Amount)
}

// apply builds the transaction row (and optional marker) and writes them
// through the repository's atomic path. Callers hold the user's lock.
func (s *DefaultLedgerService) apply(ctx context.Context, op Operation, kind models.TransactionKind, before, after int) (*Result, error) {
	txn := &models.CreditTransaction{
		ID:               uuid.New().String(),
		UserID:           op.UserID,
		Kind:             kind,
		Amount:           op.Amount,
		Reason:           op.Reason,
		RelatedBookingID: op.BookingID,
		BalanceBefore:    before,
		BalanceAfter:     after,
		CreatedAt:        time.Now(),
	}

	var marker *models.CompensationMarker
	if op.CompensateAs != "" {
		marker = &models.CompensationMarker{
			ID:          uuid.New().String(),
			BookingID:   op.BookingID,
			UserID:      op.UserID,
			Amount:      op.Amount,
			Direction:   op.CompensateAs,
			LedgerTxnID: txn.ID,
			State:       models.MarkerPending,
			CreatedAt:   time.Now(),
		}
	}

	if err := s.Repo.Apply(ctx, txn, marker, ""); err != nil {
		return nil, classifyRepoErr(err)
	}

	s.Logger.Info("ledger entry applied",
		zap.String("txnID", txn.ID),
		zap.String("userID", txn.UserID),
		zap.String("kind", string(kind)),
		zap.String("reason", string(op.Reason)),
		zap.Int("amount", op.Amount),
		zap.Int("balanceAfter", after))

	return &Result{Txn: txn, Marker: marker}, nil
}

// Balance returns the user's current balance.
func (s *DefaultLedgerService) Balance(ctx context.Context, userID string) (int, error) {
	balance, err := s.Repo.Balance(ctx, userID)
	if err != nil {
		return 0, classifyRepoErr(err)
	}
	return balance, nil
}

// Transactions returns a page of the user's ledger history, newest first.
func (s *DefaultLedgerService) Transactions(ctx context.Context, userID string, page, pageSize int) ([]models.CreditTransaction, error) {
	txns, err := s.Repo.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, utils.WrapStorageFailure(err)
	}
	return txns, nil
}

// GetMarker fetches a compensation marker.
func (s *DefaultLedgerService) GetMarker(ctx context.Context, markerID string) (*models.CompensationMarker, error) {
	m, err := s.Repo.GetMarker(ctx, markerID)
	if err != nil {
		if errors.Is(err, ledgerRepo.ErrMarkerNotFound) {
			return nil, utils.NewRejection(utils.RejectNotFound, "compensation marker not found")
		}
		return nil, utils.WrapStorageFailure(err)
	}
	return m, nil
}

// ResolveMarker settles a marker whose guarded commit succeeded.
func (s *DefaultLedgerService) ResolveMarker(ctx context.Context, markerID string) error {
	if err := s.Repo.ResolveMarker(ctx, markerID); err != nil {
		return utils.WrapStorageFailure(err)
	}
	return nil
}

// Reverse applies the reversal a pending marker calls for. The reversal row
// and the marker resolution land in one atomic repository write, so a retry
// after a partial failure can never double-apply.
func (s *DefaultLedgerService) Reverse(ctx context.Context, markerID string) error {
	m, err := s.GetMarker(ctx, markerID)
	if err != nil {
		return err
	}
	if m.State == models.MarkerResolved {
		return nil
	}

	s.Locks.Lock(m.UserID)
	defer s.Locks.Unlock(m.UserID)

	balance, err := s.Repo.Balance(ctx, m.UserID)
	if err != nil {
		return classifyRepoErr(err)
	}

	txn := &models.CreditTransaction{
		ID:               uuid.New().String(),
		UserID:           m.UserID,
		RelatedBookingID: m.BookingID,
		Amount:           m.Amount,
		BalanceBefore:    balance,
		CreatedAt:        time.Now(),
	}

	switch m.Direction {
	case models.CompensationRefundDebit:
		// The debit took but its booking never reached confirmed. Tagged as
		// an adjustment, not a session_refund, so a retried confirm can pay
		// again and a later genuine cancellation still gets its one refund.
		txn.Kind = models.KindCredit
		txn.Reason = models.ReasonAdminAdjustment
		txn.BalanceAfter = balance + m.Amount
	case models.CompensationRedoDebit:
		// The refund took but the cancellation never persisted. Tagged as
		// an adjustment so the booking keeps exactly one session_payment.
		if m.Amount > balance {
			return utils.NewRejection(utils.RejectInsufficientCredits,
				"compensating debit exceeds current balance, manual resolution required")
		}
		txn.Kind = models.KindDebit
		txn.Reason = models.ReasonAdminAdjustment
		txn.BalanceAfter = balance - m.Amount
	default:
		return fmt.Errorf("unknown compensation direction %q", m.Direction)
	}

	if err := s.Repo.Apply(ctx, txn, nil, m.ID); err != nil {
		return classifyRepoErr(err)
	}

	s.Logger.Warn("compensation applied",
		zap.String("markerID", m.ID),
		zap.String("bookingID", m.BookingID),
		zap.String("direction", string(m.Direction)),
		zap.Int("amount", m.Amount))
	return nil
}

// StalePendingMarkers lists unresolved markers older than the given age.
func (s *DefaultLedgerService) StalePendingMarkers(ctx context.Context, olderThan time.Duration) ([]models.CompensationMarker, error) {
	markers, err := s.Repo.PendingMarkers(ctx, olderThan)
	if err != nil {
		return nil, utils.WrapStorageFailure(err)
	}
	return markers, nil
}
