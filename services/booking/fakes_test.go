package booking

import (
	"context"
	"sync"
	"time"

	availabilityRepo "sessionledger/database/repository/availability"
	bookingRepo "sessionledger/database/repository/booking"
	userRepo "sessionledger/database/repository/user"
	"sessionledger/models"
	"sessionledger/services/ledger"
	"sessionledger/utils"

	"github.com/google/uuid"
)

// --- availability repository fake ---

type memAvailRepo struct {
	mu    sync.Mutex
	rules []models.AvailabilityRule
	excs  []models.AvailabilityException
}

func (r *memAvailRepo) UpsertRule(_ context.Context, rule *models.AvailabilityRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].ID == rule.ID {
			r.rules[i] = *rule
			return nil
		}
	}
	r.rules = append(r.rules, *rule)
	return nil
}

func (r *memAvailRepo) DeleteRule(_ context.Context, providerID, ruleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].ID == ruleID && r.rules[i].ProviderID == providerID {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return nil
		}
	}
	return availabilityRepo.ErrNotFound
}

func (r *memAvailRepo) ListRules(_ context.Context, providerID string) ([]models.AvailabilityRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AvailabilityRule
	for _, rule := range r.rules {
		if rule.ProviderID == providerID {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *memAvailRepo) ListRulesForWeekday(_ context.Context, providerID string, weekday time.Weekday) ([]models.AvailabilityRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AvailabilityRule
	for _, rule := range r.rules {
		if rule.ProviderID == providerID && rule.Weekday == weekday && rule.IsActive {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *memAvailRepo) CreateException(_ context.Context, exc *models.AvailabilityException) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.excs = append(r.excs, *exc)
	return nil
}

func (r *memAvailRepo) DeleteException(_ context.Context, providerID, excID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.excs {
		if r.excs[i].ID == excID && r.excs[i].ProviderID == providerID {
			r.excs = append(r.excs[:i], r.excs[i+1:]...)
			return nil
		}
	}
	return availabilityRepo.ErrNotFound
}

func (r *memAvailRepo) ListExceptions(_ context.Context, providerID string) ([]models.AvailabilityException, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AvailabilityException
	for _, e := range r.excs {
		if e.ProviderID == providerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memAvailRepo) ListExceptionsForDate(_ context.Context, providerID, date string) ([]models.AvailabilityException, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AvailabilityException
	for _, e := range r.excs {
		if e.ProviderID == providerID && e.Date == date {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- booking repository fake ---

type memBookingRepo struct {
	mu       sync.Mutex
	bookings map[string]*models.Booking
	// failSetStatus, when set, makes the next SetStatus call fail with this
	// error and then clears itself.
	failSetStatus error
}

func newMemBookingRepo() *memBookingRepo {
	return &memBookingRepo{bookings: make(map[string]*models.Booking)}
}

func (r *memBookingRepo) Create(_ context.Context, b *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.EndAt = b.ScheduledAt.Add(time.Duration(b.DurationMinutes) * time.Minute)
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	copied := *b
	r.bookings[b.ID] = &copied
	return nil
}

func (r *memBookingRepo) GetByID(_ context.Context, id string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, bookingRepo.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (r *memBookingRepo) FindOverlapping(_ context.Context, providerID string, start, end time.Time, excludeID string) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for _, b := range r.bookings {
		if b.ProviderID != providerID || b.ID == excludeID {
			continue
		}
		active := false
		for _, s := range models.ActiveStatuses {
			if b.Status == s {
				active = true
				break
			}
		}
		if !active {
			continue
		}
		if b.ScheduledAt.Before(end) && b.EndAt.After(start) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memBookingRepo) SetStatus(_ context.Context, id string, from []models.BookingStatus, to models.BookingStatus, set bookingRepo.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSetStatus != nil {
		err := r.failSetStatus
		r.failSetStatus = nil
		return err
	}
	b, ok := r.bookings[id]
	if !ok {
		return bookingRepo.ErrNotFound
	}
	matched := false
	for _, s := range from {
		if b.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return bookingRepo.ErrStatusConflict
	}
	b.Status = to
	if set.MeetingLink != "" {
		b.MeetingLink = set.MeetingLink
	}
	if set.RecordingRef != "" {
		b.RecordingRef = set.RecordingRef
	}
	if set.Cancellation != nil {
		b.Cancellation = set.Cancellation
	}
	b.UpdatedAt = time.Now()
	return nil
}

func (r *memBookingRepo) SetMeetingLink(_ context.Context, id, link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return bookingRepo.ErrNotFound
	}
	b.MeetingLink = link
	return nil
}

func (r *memBookingRepo) SetFeedback(_ context.Context, id string, fromRequester bool, fb models.Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return bookingRepo.ErrNotFound
	}
	if b.Status != models.BookingCompleted {
		return bookingRepo.ErrStatusConflict
	}
	if fromRequester {
		if b.RequesterFeedback != nil {
			return bookingRepo.ErrFeedbackExists
		}
		b.RequesterFeedback = &fb
	} else {
		if b.ProviderFeedback != nil {
			return bookingRepo.ErrFeedbackExists
		}
		b.ProviderFeedback = &fb
	}
	return nil
}

func (r *memBookingRepo) ListByUser(_ context.Context, userID string) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for _, b := range r.bookings {
		if b.IsParty(userID) {
			out = append(out, *b)
		}
	}
	return out, nil
}

// --- user repository fake ---

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUserRepo(users ...*models.User) *memUserRepo {
	r := &memUserRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) Create(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return userRepo.ErrDuplicateEmail
		}
	}
	r.users[u.ID] = u
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, userRepo.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, userRepo.ErrNotFound
}

func (r *memUserRepo) UpdateFCMToken(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return userRepo.ErrNotFound
	}
	u.FCMToken = token
	return nil
}

// --- ledger service fake ---

type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]int
	txns     []models.CreditTransaction
	markers  map[string]*models.CompensationMarker
	// debitErr, when set, fails the next Debit with this error.
	debitErr error
}

func newFakeLedger(balances map[string]int) *fakeLedger {
	if balances == nil {
		balances = make(map[string]int)
	}
	return &fakeLedger{balances: balances, markers: make(map[string]*models.CompensationMarker)}
}

func (l *fakeLedger) record(op ledger.Operation, kind models.TransactionKind, before, after int) *ledger.Result {
	txn := models.CreditTransaction{
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
	l.txns = append(l.txns, txn)
	l.balances[op.UserID] = after

	res := &ledger.Result{Txn: &txn}
	if op.CompensateAs != "" {
		m := &models.CompensationMarker{
			ID:          uuid.New().String(),
			BookingID:   op.BookingID,
			UserID:      op.UserID,
			Amount:      op.Amount,
			Direction:   op.CompensateAs,
			LedgerTxnID: txn.ID,
			State:       models.MarkerPending,
			CreatedAt:   time.Now(),
		}
		l.markers[m.ID] = m
		res.Marker = m
	}
	return res
}

// bookingState nets a booking's rows the way the real service does: payments
// and refunds stand until a compensating adjustment cancels them. Callers
// hold l.mu.
func (l *fakeLedger) bookingState(bookingID string) (outstandingPayment, outstandingRefund bool, lastPayment *models.CreditTransaction) {
	var payments, refunds, reversedPayments, reversedRefunds int
	for i := range l.txns {
		t := &l.txns[i]
		if t.RelatedBookingID != bookingID {
			continue
		}
		switch {
		case t.Kind == models.KindDebit && t.Reason == models.ReasonSessionPayment:
			payments++
			lastPayment = t
		case t.Kind == models.KindCredit && t.Reason == models.ReasonSessionRefund:
			refunds++
		case t.Kind == models.KindCredit && t.Reason == models.ReasonAdminAdjustment:
			reversedPayments++
		case t.Kind == models.KindDebit && t.Reason == models.ReasonAdminAdjustment:
			reversedRefunds++
		}
	}
	return payments > reversedPayments, refunds > reversedRefunds, lastPayment
}

func (l *fakeLedger) Debit(_ context.Context, op ledger.Operation) (*ledger.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.debitErr != nil {
		err := l.debitErr
		l.debitErr = nil
		return nil, err
	}
	if op.Reason == models.ReasonSessionPayment && op.BookingID != "" {
		if outstanding, _, _ := l.bookingState(op.BookingID); outstanding {
			return nil, utils.NewRejection(utils.RejectInvalidTransition,
				"a session payment is already outstanding for this booking")
		}
	}
	balance := l.balances[op.UserID]
	if op.Amount > balance {
		return nil, utils.NewRejection(utils.RejectInsufficientCredits, "insufficient credits")
	}
	return l.record(op, models.KindDebit, balance, balance-op.Amount), nil
}

func (l *fakeLedger) Credit(_ context.Context, op ledger.Operation) (*ledger.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balances[op.UserID]
	return l.record(op, models.KindCredit, balance, balance+op.Amount), nil
}

func (l *fakeLedger) Refund(_ context.Context, op ledger.Operation) (*ledger.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	outstandingPayment, outstandingRefund, debit := l.bookingState(op.BookingID)
	if outstandingRefund {
		return nil, utils.NewRejection(utils.RejectAlreadyRefunded, "already refunded")
	}
	if debit == nil || !outstandingPayment {
		return nil, utils.NewRejection(utils.RejectRefundWithoutDebit, "no debit")
	}
	balance := l.balances[debit.UserID]
	refundOp := ledger.Operation{
		UserID:       debit.UserID,
		Amount:       debit.Amount,
		Reason:       models.ReasonSessionRefund,
		BookingID:    op.BookingID,
		CompensateAs: op.CompensateAs,
	}
	return l.record(refundOp, models.KindCredit, balance, balance+debit.Amount), nil
}

func (l *fakeLedger) Balance(_ context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *fakeLedger) Transactions(_ context.Context, userID string, _, _ int) ([]models.CreditTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.CreditTransaction
	for _, t := range l.txns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (l *fakeLedger) GetMarker(_ context.Context, markerID string) (*models.CompensationMarker, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.markers[markerID]
	if !ok {
		return nil, utils.NewRejection(utils.RejectNotFound, "marker not found")
	}
	copied := *m
	return &copied, nil
}

func (l *fakeLedger) ResolveMarker(_ context.Context, markerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.markers[markerID]; ok {
		m.State = models.MarkerResolved
	}
	return nil
}

func (l *fakeLedger) Reverse(ctx context.Context, markerID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.markers[markerID]
	if !ok || m.State == models.MarkerResolved {
		return nil
	}
	balance := l.balances[m.UserID]
	op := ledger.Operation{UserID: m.UserID, Amount: m.Amount, BookingID: m.BookingID, Reason: models.ReasonAdminAdjustment}
	if m.Direction == models.CompensationRefundDebit {
		l.record(op, models.KindCredit, balance, balance+m.Amount)
	} else {
		l.record(op, models.KindDebit, balance, balance-m.Amount)
	}
	m.State = models.MarkerResolved
	return nil
}

func (l *fakeLedger) StalePendingMarkers(_ context.Context, olderThan time.Duration) ([]models.CompensationMarker, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []models.CompensationMarker
	for _, m := range l.markers {
		if m.State == models.MarkerPending && m.CreatedAt.Before(cutoff) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (l *fakeLedger) pendingMarkerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.markers {
		if m.State == models.MarkerPending {
			n++
		}
	}
	return n
}

// --- task queue, notifier, meeting fakes ---

type fakeTasks struct {
	mu            sync.Mutex
	compensations []string
	reminders     map[string]time.Time
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{reminders: make(map[string]time.Time)}
}

func (t *fakeTasks) EnqueueCompensation(markerID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.compensations = append(t.compensations, markerID)
	return nil
}

func (t *fakeTasks) EnqueueReminder(bookingID string, fireAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reminders[bookingID] = fireAt
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) NotifyUser(_ context.Context, userID, eventType string, _ map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, userID+":"+eventType)
	return nil
}

type fakeMeetings struct {
	provisionErr error
}

func (m *fakeMeetings) Provision(_ context.Context, bookingID string) (string, error) {
	if m.provisionErr != nil {
		return "", m.provisionErr
	}
	return "https://meet.test/room/" + bookingID, nil
}
