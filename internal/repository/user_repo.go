package repository

import (
	"context"
	"database/sql"
	"errors"

	"parkhere/internal/apperrors"
	"parkhere/internal/db"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type UserRepository struct {
	DB *sql.DB
}

func NewUserRepository(database *sql.DB) *UserRepository {
	return &UserRepository{DB: database}
}

func (r *UserRepository) CreateUser(ctx context.Context, u *db.User) error {
	u.ID = uuid.NewString()
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO users (id, email, name, phone, password_hash)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		u.ID, u.Email, u.Name, u.Phone, u.PasswordHash,
	).Scan(&u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apperrors.Conflict("email already registered")
		}
		return translateDBError(err)
	}
	return nil
}

func (r *UserRepository) User(ctx context.Context, id string) (*db.User, error) {
	return r.userBy(ctx, `id = $1`, id)
}

func (r *UserRepository) UserByEmail(ctx context.Context, email string) (*db.User, error) {
	return r.userBy(ctx, `email = $1`, email)
}

func (r *UserRepository) userBy(ctx context.Context, where string, arg interface{}) (*db.User, error) {
	var u db.User
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, email, name, phone, password_hash, is_admin, created_at
		 FROM users WHERE `+where, arg,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("user")
	}
	if err != nil {
		return nil, translateDBError(err)
	}
	return &u, nil
}
