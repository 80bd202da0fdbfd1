package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Clark-Hu/pokedex-ratings/internal/apperrors"
	"github.com/Clark-Hu/pokedex-ratings/internal/domain"
)

// UsersRepository stores the local user records.
type UsersRepository struct {
	db Querier
}

// Ensure creates the user if missing and reports whether it was created.
func (r *UsersRepository) Ensure(ctx context.Context, userID string) (domain.User, bool, error) {
	const insert = `
        INSERT INTO users (id)
        VALUES ($1)
        ON CONFLICT (id) DO NOTHING
        RETURNING id, created_at
    `
	var user domain.User
	err := r.db.QueryRow(ctx, insert, userID).Scan(&user.ID, &user.CreatedAt)
	if err == nil {
		return user, true, nil
	}
	if err = mapError(err); !errors.Is(err, ErrNotFound) {
		return domain.User{}, false, err
	}

	user, err = r.Get(ctx, userID)
	if err != nil {
		return domain.User{}, false, err
	}
	return user, false, nil
}

// Get fetches a user by id.
func (r *UsersRepository) Get(ctx context.Context, userID string) (domain.User, error) {
	var user domain.User
	if err := r.db.QueryRow(ctx, `SELECT id, created_at FROM users WHERE id = $1`, userID).Scan(&user.ID, &user.CreatedAt); err != nil {
		return domain.User{}, mapError(err)
	}
	return user, nil
}

// Lock takes FOR NO KEY UPDATE on the user row, which conflicts with other membership
// writers but not with the FOR KEY SHARE lock that rating inserts take via the FK.
func (r *UsersRepository) Lock(ctx context.Context, userID string) (domain.User, error) {
	var user domain.User
	err := r.db.QueryRow(ctx, `SELECT id, created_at FROM users WHERE id = $1 FOR NO KEY UPDATE`, userID).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return domain.User{}, mapError(err)
	}
	return user, nil
}

// LockForDelete takes FOR UPDATE on the user row. It conflicts with the FOR KEY SHARE
// lock of rating inserts, so no new rating can reference the user until the
// transaction ends.
func (r *UsersRepository) LockForDelete(ctx context.Context, userID string) (domain.User, error) {
	var user domain.User
	err := r.db.QueryRow(ctx, `SELECT id, created_at FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return domain.User{}, mapError(err)
	}
	return user, nil
}

// Delete removes the user row. Ratings and favorites must already be gone; rows
// still referencing the user yield ErrConflict.
func (r *UsersRepository) Delete(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
			return fmt.Errorf("%w: user %q is still referenced: %w", apperrors.ErrConflict, userID, err)
		}
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
