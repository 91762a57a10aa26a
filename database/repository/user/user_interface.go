package userRepo

import (
	"context"
	"errors"

	"sessionledger/models"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserRepository defines persistence operations for user accounts. The
// credits field on a user document is written only by the ledger repository.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateFCMToken(ctx context.Context, id, token string) error
}
