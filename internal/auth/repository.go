package auth

import (
	"context"

	"github.com/surapp/backend/internal/models"
	"github.com/surapp/backend/internal/store"
)

// Repository handles user persistence.
type Repository struct {
	store store.Store
}

// NewRepository creates an auth repository.
func NewRepository(st store.Store) *Repository {
	return &Repository{store: st}
}

// GetByUsername returns a user by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u *models.User
	err := r.store.View(ctx, func(rd store.Reader) error {
		var err error
		u, err = rd.GetUserByUsername(ctx, username)
		return err
	})
	return u, err
}

// Create inserts a new user. A taken username yields store.ErrDuplicate.
func (r *Repository) Create(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	u := &models.User{Username: username, Email: email, Password: passwordHash}
	err := r.store.Update(ctx, func(tx store.Tx) error {
		return tx.InsertUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}
