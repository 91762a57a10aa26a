package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	availabilityRepo "sessionledger/database/repository/availability"
	"sessionledger/models"
	"sessionledger/utils"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Service manages a provider's recurring availability rules and date-specific
// exceptions, and answers the day question: which time blocks are open.
type Service interface {
	OpenIntervals(ctx context.Context, providerID string, day time.Time) ([]models.OpenInterval, error)
	UpsertRule(ctx context.Context, rule *models.AvailabilityRule) error
	DeleteRule(ctx context.Context, providerID, ruleID string) error
	ListRules(ctx context.Context, providerID string) ([]models.AvailabilityRule, error)
	AddException(ctx context.Context, exc *models.AvailabilityException) error
	DeleteException(ctx context.Context, providerID, excID string) error
	ListExceptions(ctx context.Context, providerID string) ([]models.AvailabilityException, error)
}

// DefaultAvailabilityService is the production implementation. Computed day
// availability is cached in redis under a per-provider version so any rule or
// exception write invalidates all cached days at once.
type DefaultAvailabilityService struct {
	Repo     availabilityRepo.AvailabilityRepository
	Cache    *redis.Client
	CacheTTL time.Duration
	Logger   *zap.Logger
}

const minutesPerDay = 24 * 60

func validWindow(start, end int) bool {
	return start >= 0 && end <= minutesPerDay && start < end
}

// OpenIntervals returns the merged open blocks for a provider-local day:
// active weekly rules plus opening exceptions, minus blocking exceptions.
func (s *DefaultAvailabilityService) OpenIntervals(ctx context.Context, providerID string, day time.Time) ([]models.OpenInterval, error) {
	date := day.Format("2006-01-02")

	if cached, ok := s.cacheGet(ctx, providerID, date); ok {
		return cached, nil
	}

	rules, err := s.Repo.ListRulesForWeekday(ctx, providerID, day.Weekday())
	if err != nil {
		return nil, utils.WrapStorageFailure(err)
	}
	excs, err := s.Repo.ListExceptionsForDate(ctx, providerID, date)
	if err != nil {
		return nil, utils.WrapStorageFailure(err)
	}

	var open, blocked []interval
	for _, r := range rules {
		open = append(open, interval{start: r.StartMinute, end: r.EndMinute})
	}
	for _, e := range excs {
		if e.IsAvailable {
			open = append(open, interval{start: e.StartMinute, end: e.EndMinute})
		} else {
			blocked = append(blocked, interval{start: e.StartMinute, end: e.EndMinute})
		}
	}

	result := toOpenIntervals(subtractIntervals(mergeIntervals(open), blocked))
	s.cacheSet(ctx, providerID, date, result)
	return result, nil
}

// UpsertRule validates and stores a weekly rule.
func (s *DefaultAvailabilityService) UpsertRule(ctx context.Context, rule *models.AvailabilityRule) error {
	if rule.Weekday < time.Sunday || rule.Weekday > time.Saturday {
		return utils.NewRejection(utils.RejectInvalidArgument, "weekday must be between 0 (Sunday) and 6 (Saturday)")
	}
	if !validWindow(rule.StartMinute, rule.EndMinute) {
		return utils.NewRejection(utils.RejectInvalidArgument, "rule window must satisfy 0 <= start < end <= 1440")
	}
	if err := s.Repo.UpsertRule(ctx, rule); err != nil {
		return utils.WrapStorageFailure(err)
	}
	s.invalidate(ctx, rule.ProviderID)
	return nil
}

// DeleteRule removes a weekly rule.
func (s *DefaultAvailabilityService) DeleteRule(ctx context.Context, providerID, ruleID string) error {
	if err := s.Repo.DeleteRule(ctx, providerID, ruleID); err != nil {
		if err == availabilityRepo.ErrNotFound {
			return utils.NewRejection(utils.RejectNotFound, "availability rule not found")
		}
		return utils.WrapStorageFailure(err)
	}
	s.invalidate(ctx, providerID)
	return nil
}

// ListRules returns all of a provider's weekly rules.
func (s *DefaultAvailabilityService) ListRules(ctx context.Context, providerID string) ([]models.AvailabilityRule, error) {
	rules, err := s.Repo.ListRules(ctx, providerID)
	if err != nil {
		return nil, utils.WrapStorageFailure(err)
	}
	return rules, nil
}

// AddException validates and stores a date-specific override.
func (s *DefaultAvailabilityService) AddException(ctx context.Context, exc *models.AvailabilityException) error {
	if _, err := time.Parse("2006-01-02", exc.Date); err != nil {
		return utils.NewRejection(utils.RejectInvalidArgument, "exception date must be formatted YYYY-MM-DD")
	}
	if !validWindow(exc.StartMinute, exc.EndMinute) {
		return utils.NewRejection(utils.RejectInvalidArgument, "exception window must satisfy 0 <= start < end <= 1440")
	}
	if err := s.Repo.CreateException(ctx, exc); err != nil {
		return utils.WrapStorageFailure(err)
	}
	s.invalidate(ctx, exc.ProviderID)
	return nil
}

// DeleteException removes a date-specific override.
func (s *DefaultAvailabilityService) DeleteException(ctx context.Context, providerID, excID string) error {
	if err := s.Repo.DeleteException(ctx, providerID, excID); err != nil {
		if err == availabilityRepo.ErrNotFound {
			return utils.NewRejection(utils.RejectNotFound, "availability exception not found")
		}
		return utils.WrapStorageFailure(err)
	}
	s.invalidate(ctx, providerID)
	return nil
}

// ListExceptions returns all of a provider's exceptions.
func (s *DefaultAvailabilityService) ListExceptions(ctx context.Context, providerID string) ([]models.AvailabilityException, error) {
	excs, err := s.Repo.ListExceptions(ctx, providerID)
	if err != nil {
		return nil, utils.WrapStorageFailure(err)
	}
	return excs, nil
}

// --- day cache ---

func (s *DefaultAvailabilityService) cacheKey(ctx context.Context, providerID, date string) string {
	ver, err := s.Cache.Get(ctx, "avail_ver:"+providerID).Result()
	if err != nil {
		ver = "0"
	}
	return fmt.Sprintf("avail:%s:%s:%s", providerID, ver, date)
}

func (s *DefaultAvailabilityService) cacheGet(ctx context.Context, providerID, date string) ([]models.OpenInterval, bool) {
	if s.Cache == nil {
		return nil, false
	}
	raw, err := s.Cache.Get(ctx, s.cacheKey(ctx, providerID, date)).Result()
	if err != nil {
		return nil, false
	}
	var out []models.OpenInterval
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false
	}
	return out, true
}

func (s *DefaultAvailabilityService) cacheSet(ctx context.Context, providerID, date string, intervals []models.OpenInterval) {
	if s.Cache == nil {
		return
	}
	raw, err := json.Marshal(intervals)
	if err != nil {
		return
	}
	ttl := s.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if err := s.Cache.Set(ctx, s.cacheKey(ctx, providerID, date), raw, ttl).Err(); err != nil && s.Logger != nil {
		s.Logger.Warn("availability cache set failed", zap.String("providerID", providerID), zap.Error(err))
	}
}

// invalidate bumps the provider's cache version, orphaning every cached day.
func (s *DefaultAvailabilityService) invalidate(ctx context.Context, providerID string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Incr(ctx, "avail_ver:"+providerID).Err(); err != nil && s.Logger != nil {
		s.Logger.Warn("availability cache invalidation failed", zap.String("providerID", providerID), zap.Error(err))
	}
}
