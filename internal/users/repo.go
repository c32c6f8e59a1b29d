package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Create(ctx context.Context, u *User) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO users(id, email, password_hash, full_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.PasswordHash, u.FullName, u.CreatedAt, u.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanOne(ctx, `SELECT id, email, password_hash, full_name, created_at, updated_at
	                       FROM users WHERE email=$1`, email)
}

func (r *Repo) GetByID(ctx context.Context, id string) (*User, error) {
	return r.scanOne(ctx, `SELECT id, email, password_hash, full_name, created_at, updated_at
	                       FROM users WHERE id=$1`, id)
}

func (r *Repo) scanOne(ctx context.Context, q string, arg any) (*User, error) {
	var u User
	err := r.DB.QueryRow(ctx, q, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
