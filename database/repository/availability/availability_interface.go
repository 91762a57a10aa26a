package availabilityRepo

import (
	"context"
	"errors"
	"time"

	"sessionledger/models"
)

var ErrNotFound = errors.New("availability entry not found")

// AvailabilityRepository persists weekly rules and date-specific exceptions.
type AvailabilityRepository interface {
	UpsertRule(ctx context.Context, rule *models.AvailabilityRule) error
	DeleteRule(ctx context.Context, providerID, ruleID string) error
	ListRules(ctx context.Context, providerID string) ([]models.AvailabilityRule, error)
	// ListRulesForWeekday returns only active rules.
	ListRulesForWeekday(ctx context.Context, providerID string, weekday time.Weekday) ([]models.AvailabilityRule, error)

	CreateException(ctx context.Context, exc *models.AvailabilityException) error
	DeleteException(ctx context.Context, providerID, excID string) error
	ListExceptions(ctx context.Context, providerID string) ([]models.AvailabilityException, error)
	ListExceptionsForDate(ctx context.Context, providerID, date string) ([]models.AvailabilityException, error)
}
