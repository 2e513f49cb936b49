// Package users holds the minimal user surface the order pipeline needs.
// Registration and login live elsewhere; this service only resolves the
// authenticated username to its stored record.
package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/retailcore/go-order-settlement/internal/apperr"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type User struct {
	ID        string
	Username  string
	Email     string
	Role      string
	CreatedAt time.Time
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := r.DB.QueryRow(ctx, `
		SELECT id, username, email, role, created_at FROM users WHERE username=$1`, username,
	).Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.NotFound("user not found: %s", username)
	}
	if err != nil {
		return User{}, apperr.Transient(err, "get user")
	}
	return u, nil
}
