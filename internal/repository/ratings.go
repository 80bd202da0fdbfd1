package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/pokedex-ratings/internal/domain"
)

// RatingsRepository is the rating ledger: one row per (user, pokemon).
type RatingsRepository struct {
	db Querier
}

// Get retrieves a rating for a specific user/pokemon combination.
func (r *RatingsRepository) Get(ctx context.Context, userID, pokemonID string) (domain.Rating, error) {
	const query = `
        SELECT r.user_id, r.pokemon_id, p.pokedex_number, r.rating, r.created_at, r.updated_at
        FROM ratings r
        JOIN pokemons p ON p.id = r.pokemon_id
        WHERE r.user_id = $1 AND r.pokemon_id = $2
    `
	rating, err := scanRating(r.db.QueryRow(ctx, query, userID, pokemonID))
	if err != nil {
		return domain.Rating{}, mapError(err)
	}
	return rating, nil
}

// Insert creates a ledger row. A missing user surfaces as ErrNotFound.
func (r *RatingsRepository) Insert(ctx context.Context, rating domain.Rating) (domain.Rating, error) {
	const query = `
        INSERT INTO ratings (user_id, pokemon_id, rating)
        VALUES ($1, $2, $3)
        RETURNING created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query, rating.UserID, rating.PokemonID, rating.Value).Scan(
		&rating.CreatedAt,
		&rating.UpdatedAt,
	)
	if err != nil {
		return domain.Rating{}, fmt.Errorf("insert rating: %w", mapError(err))
	}
	return rating, nil
}

// Update overwrites the value of an existing ledger row.
func (r *RatingsRepository) Update(ctx context.Context, rating domain.Rating) (domain.Rating, error) {
	const query = `
        UPDATE ratings
        SET rating = $3, updated_at = now()
        WHERE user_id = $1 AND pokemon_id = $2
        RETURNING created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query, rating.UserID, rating.PokemonID, rating.Value).Scan(
		&rating.CreatedAt,
		&rating.UpdatedAt,
	)
	if err != nil {
		return domain.Rating{}, fmt.Errorf("update rating: %w", mapError(err))
	}
	return rating, nil
}

// Delete removes a ledger row.
func (r *RatingsRepository) Delete(ctx context.Context, userID, pokemonID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM ratings WHERE user_id = $1 AND pokemon_id = $2`, userID, pokemonID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns the user's ratings ordered by pokedex number.
func (r *RatingsRepository) ListByUser(ctx context.Context, userID string) ([]domain.Rating, error) {
	const query = `
        SELECT r.user_id, r.pokemon_id, p.pokedex_number, r.rating, r.created_at, r.updated_at
        FROM ratings r
        JOIN pokemons p ON p.id = r.pokemon_id
        WHERE r.user_id = $1
        ORDER BY p.pokedex_number
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	results := make([]domain.Rating, 0)
	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rating)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Totals scans the ledger of one pokemon.
func (r *RatingsRepository) Totals(ctx context.Context, pokemonID string) (float64, int64, error) {
	const query = `
        SELECT COALESCE(SUM(rating), 0)::float8 AS total,
               COUNT(*)::int8 AS count
        FROM ratings
        WHERE pokemon_id = $1
    `
	var (
		sum   float64
		count int64
	)
	if err := r.db.QueryRow(ctx, query, pokemonID).Scan(&sum, &count); err != nil {
		return 0, 0, fmt.Errorf("ledger totals: %w", mapError(err))
	}
	return sum, count, nil
}

// CountByUser counts the ledger rows owned by a user.
func (r *RatingsRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM ratings WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

func scanRating(row pgx.Row) (domain.Rating, error) {
	var rating domain.Rating
	err := row.Scan(
		&rating.UserID,
		&rating.PokemonID,
		&rating.PokedexNumber,
		&rating.Value,
		&rating.CreatedAt,
		&rating.UpdatedAt,
	)
	if err != nil {
		return domain.Rating{}, err
	}
	return rating, nil
}
