package payment

import (
	"context"
	"fmt"
	"strconv"

	"sessionledger/config"
	"sessionledger/models"
	"sessionledger/services/ledger"
	"sessionledger/utils"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"go.uber.org/zap"
)

// PurchaseIntent is what the client needs to collect payment for a credit
// top-up.
type PurchaseIntent struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	Credits      int    `json:"credits"`
	AmountCents  int64  `json:"amount_cents"`
}

// Service sells credits for real money through Stripe. The credits only land
// on the ledger once Stripe reports the payment succeeded.
type Service interface {
	CreatePurchase(ctx context.Context, userID string, credits int) (*PurchaseIntent, error)
	ConfirmPurchase(ctx context.Context, userID, intentID string) (*models.CreditTransaction, error)
}

// StripePaymentService implements Service against the Stripe API.
type StripePaymentService struct {
	Ledger ledger.Service
	Logger *zap.Logger
}

func NewStripePaymentService(l ledger.Service, logger *zap.Logger) *StripePaymentService {
	stripe.Key = config.AppConfig.StripeKey
	return &StripePaymentService{Ledger: l, Logger: logger}
}

// CreatePurchase opens a payment intent for the requested number of credits.
func (s *StripePaymentService) CreatePurchase(_ context.Context, userID string, credits int) (*PurchaseIntent, error) {
	if credits <= 0 || credits > 1000 {
		return nil, utils.NewRejection(utils.RejectInvalidArgument, "credits must be between 1 and 1000")
	}

	amount := int64(credits) * int64(config.AppConfig.CreditPriceCents)
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("user_id", userID)
	params.AddMetadata("credits", strconv.Itoa(credits))

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	s.Logger.Info("credit purchase started",
		zap.String("userID", userID),
		zap.String("intentID", pi.ID),
		zap.Int("credits", credits))

	return &PurchaseIntent{
		IntentID:     pi.ID,
		ClientSecret: pi.ClientSecret,
		Credits:      credits,
		AmountCents:  amount,
	}, nil
}

// ConfirmPurchase verifies the payment with Stripe and credits the ledger.
// TODO: replace the client-driven confirm with a Stripe webhook and record
// processed intent IDs so a replayed confirmation cannot double-credit.
func (s *StripePaymentService) ConfirmPurchase(ctx context.Context, userID, intentID string) (*models.CreditTransaction, error) {
	pi, err := paymentintent.Get(intentID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payment intent %s: %w", intentID, err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, utils.NewRejection(utils.RejectInvalidArgument, "the payment has not completed")
	}
	if pi.Metadata["user_id"] != userID {
		return nil, utils.NewRejection(utils.RejectNotAuthorized, "this payment belongs to a different account")
	}
	credits, err := strconv.Atoi(pi.Metadata["credits"])
	if err != nil || credits <= 0 {
		return nil, utils.NewRejection(utils.RejectInvalidArgument, "the payment is missing a valid credit amount")
	}

	res, err := s.Ledger.Credit(ctx, ledger.Operation{
		UserID: userID,
		Amount: credits,
		Reason: models.ReasonPurchase,
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("credit purchase settled",
		zap.String("userID", userID),
		zap.String("intentID", intentID),
		zap.Int("credits", credits))
	return res.Txn, nil
}
