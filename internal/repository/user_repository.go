package repository

import (
	"context"

	"github.com/sistec/helpdesk-api/internal/domain"
)

// UserRepository reads user accounts. Account management lives elsewhere.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

type userRepository struct {
	db DBTX
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	const query = `
        SELECT id, name, email, access_level, active, created_at
        FROM users WHERE id=$1`
	var user domain.User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.AccessLevel,
		&user.Active,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}
