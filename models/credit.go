package models

import "time"

// TransactionKind is the accounting side of a ledger entry.
type TransactionKind string

const (
	KindDebit  TransactionKind = "debit"
	KindCredit TransactionKind = "credit"
)

// TransactionReason is the business reason for a ledger entry.
type TransactionReason string

const (
	ReasonSignupBonus     TransactionReason = "signup_bonus"
	ReasonSessionPayment  TransactionReason = "session_payment"
	ReasonSessionRefund   TransactionReason = "session_refund"
	ReasonAdminAdjustment TransactionReason = "admin_adjustment"
	ReasonPurchase        TransactionReason = "purchase"
	ReasonPayout          TransactionReason = "payout"
)

// CreditTransaction is one immutable row of the append-only credit ledger.
// Invariant: BalanceAfter = BalanceBefore - Amount for a debit and
// BalanceBefore + Amount for a credit, and BalanceAfter is never negative.
// Rows are never mutated or deleted; corrections are new admin_adjustment rows.
type CreditTransaction struct {
	ID               string            `bson:"id" json:"id"`
	UserID           string            `bson:"user_id" json:"user_id"`
	Kind             TransactionKind   `bson:"kind" json:"kind"`
	Amount           int               `bson:"amount" json:"amount"` // always positive
	Reason           TransactionReason `bson:"reason" json:"reason"`
	RelatedBookingID string            `bson:"related_booking_id,omitempty" json:"related_booking_id,omitempty"`
	BalanceBefore    int               `bson:"balance_before" json:"balance_before"`
	BalanceAfter     int               `bson:"balance_after" json:"balance_after"`
	CreatedAt        time.Time         `bson:"created_at" json:"created_at"`
}

// CompensationDirection names the reversal a pending marker calls for.
type CompensationDirection string

const (
	// CompensationRefundDebit reverses a debit whose booking never reached
	// confirmed.
	CompensationRefundDebit CompensationDirection = "refund_debit"
	// CompensationRedoDebit re-applies a debit after a refund whose
	// cancellation never persisted.
	CompensationRedoDebit CompensationDirection = "redo_debit"
)

// Marker states.
const (
	MarkerPending  = "pending"
	MarkerResolved = "resolved"
)

// CompensationMarker is the durable record written alongside a ledger entry
// that may need reversing if the subsequent lifecycle commit fails. Resolved
// markers are kept for audit.
type CompensationMarker struct {
	ID          string                `bson:"id" json:"id"`
	BookingID   string                `bson:"booking_id" json:"booking_id"`
	UserID      string                `bson:"user_id" json:"user_id"`
	Amount      int                   `bson:"amount" json:"amount"`
	Direction   CompensationDirection `bson:"direction" json:"direction"`
	LedgerTxnID string                `bson:"ledger_txn_id" json:"ledger_txn_id"`
	State       string                `bson:"state" json:"state"`
	CreatedAt   time.Time             `bson:"created_at" json:"created_at"`
	ResolvedAt  *time.Time            `bson:"resolved_at,omitempty" json:"resolved_at,omitempty"`
}
