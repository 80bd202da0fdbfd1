package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// FavoritesRepository stores the favorites relation.
type FavoritesRepository struct {
	db Querier
}

// Toggle removes the favorite if present, otherwise adds it, and reports whether the
// pokemon is a favorite afterwards. Callers serialize per user (see Tx.LockUser).
func (r *FavoritesRepository) Toggle(ctx context.Context, userID string, number int) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM favorites WHERE user_id = $1 AND pokedex_number = $2`, userID, number)
	if err != nil {
		return false, mapError(err)
	}
	if tag.RowsAffected() > 0 {
		return false, nil
	}

	const insert = `
        INSERT INTO favorites (user_id, pokedex_number)
        VALUES ($1, $2)
        ON CONFLICT (user_id, pokedex_number) DO NOTHING
    `
	if _, err := r.db.Exec(ctx, insert, userID, number); err != nil {
		return false, mapError(err)
	}
	return true, nil
}

// List returns the user's favorite pokedex numbers in ascending order.
func (r *FavoritesRepository) List(ctx context.Context, userID string) ([]int, error) {
	rows, err := r.db.Query(ctx, `SELECT pokedex_number FROM favorites WHERE user_id = $1 ORDER BY pokedex_number`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

// DeleteAll drops every favorite of a user.
func (r *FavoritesRepository) DeleteAll(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM favorites WHERE user_id = $1`, userID); err != nil {
		return mapError(err)
	}
	return nil
}
