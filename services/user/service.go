package user

import (
	"context"
	"errors"
	"time"

	"sessionledger/config"
	userRepo "sessionledger/database/repository/user"
	"sessionledger/models"
	"sessionledger/services/ledger"
	"sessionledger/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const tokenLifetime = 72 * time.Hour

// RegisterInput carries a new account's details.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Timezone string
}

// AuthResult bundles the authenticated user with their session token.
type AuthResult struct {
	User  *models.User
	Token string
}

// Service manages accounts and sessions. New accounts receive a signup bonus
// through the ledger so the very first balance is already auditable.
type Service interface {
	Register(ctx context.Context, in RegisterInput) (*AuthResult, error)
	Authenticate(ctx context.Context, email, password string) (*AuthResult, error)
	Logout(ctx context.Context, token string) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdateFCMToken(ctx context.Context, id, token string) error
}

// DefaultUserService implements Service.
type DefaultUserService struct {
	Repo   userRepo.UserRepository
	Ledger ledger.Service
	Logger *zap.Logger
}

// Register creates an account, grants the signup bonus, and issues a token.
func (s *DefaultUserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if in.Email == "" || in.Password == "" {
		return nil, utils.NewRejection(utils.RejectInvalidArgument, "email and password are required")
	}
	if len(in.Password) < 8 {
		return nil, utils.NewRejection(utils.RejectInvalidArgument, "password must be at least 8 characters")
	}
	tz := in.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, utils.NewRejection(utils.RejectInvalidArgument, "timezone must be a valid IANA name, e.g. Europe/Berlin")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &models.User{
		ID:           uuid.New().String(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Timezone:     tz,
	}
	if err := s.Repo.Create(ctx, u); err != nil {
		if errors.Is(err, userRepo.ErrDuplicateEmail) {
			return nil, utils.NewRejection(utils.RejectInvalidArgument, "this email is already registered")
		}
		return nil, utils.WrapStorageFailure(err)
	}

	if bonus := config.AppConfig.SignupBonusCredits; bonus > 0 {
		if _, err := s.Ledger.Credit(ctx, ledger.Operation{
			UserID: u.ID,
			Amount: bonus,
			Reason: models.ReasonSignupBonus,
		}); err != nil {
			// The account exists; losing the bonus is recoverable by an
			// admin adjustment, so we log instead of failing registration.
			s.Logger.Error("failed to grant signup bonus",
				zap.String("userID", u.ID), zap.Error(err))
		} else {
			u.Credits = bonus
		}
	}

	token, err := utils.GenerateToken(u.ID, u.Email, tokenLifetime)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("user registered", zap.String("userID", u.ID))
	return &AuthResult{User: u, Token: token}, nil
}

// Authenticate verifies credentials and issues a fresh token.
func (s *DefaultUserService) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	u, err := s.Repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userRepo.ErrNotFound) {
			return nil, utils.NewRejection(utils.RejectNotAuthorized, "invalid email or password")
		}
		return nil, utils.WrapStorageFailure(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, utils.NewRejection(utils.RejectNotAuthorized, "invalid email or password")
	}

	token, err := utils.GenerateToken(u.ID, u.Email, tokenLifetime)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Token: token}, nil
}

// Logout revokes a token by caching its hash until the token would have
// expired anyway.
func (s *DefaultUserService) Logout(ctx context.Context, token string) error {
	cache := utils.GetAuthCacheClient()
	return cache.Set(ctx, "revoked:"+utils.HashToken(token), "1", tokenLifetime).Err()
}

// GetByID returns a user profile.
func (s *DefaultUserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, userRepo.ErrNotFound) {
			return nil, utils.NewRejection(utils.RejectNotFound, "user not found")
		}
		return nil, utils.WrapStorageFailure(err)
	}
	return u, nil
}

// UpdateFCMToken stores the user's push notification device token.
func (s *DefaultUserService) UpdateFCMToken(ctx context.Context, id, token string) error {
	if err := s.Repo.UpdateFCMToken(ctx, id, token); err != nil {
		if errors.Is(err, userRepo.ErrNotFound) {
			return utils.NewRejection(utils.RejectNotFound, "user not found")
		}
		return utils.WrapStorageFailure(err)
	}
	return nil
}
