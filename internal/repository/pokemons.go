package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Clark-Hu/pokedex-ratings/internal/apperrors"
	"github.com/Clark-Hu/pokedex-ratings/internal/domain"
)

// PokemonRepository persists the per-pokemon rating aggregates.
type PokemonRepository struct {
	db Querier
}

const pokemonColumns = `
    id,
    pokedex_number,
    rating,
    number_of_votes,
    version,
    created_at,
    updated_at
`

// Get fetches an aggregate without locking it.
func (r *PokemonRepository) Get(ctx context.Context, number int) (domain.Pokemon, error) {
	query := fmt.Sprintf(`SELECT %s FROM pokemons WHERE pokedex_number = $1`, pokemonColumns)
	pokemon, err := scanPokemon(r.db.QueryRow(ctx, query, number))
	if err != nil {
		return domain.Pokemon{}, mapError(err)
	}
	return pokemon, nil
}

// Lock fetches an aggregate with SELECT ... FOR UPDATE. Must run inside a transaction.
func (r *PokemonRepository) Lock(ctx context.Context, number int) (domain.Pokemon, error) {
	query := fmt.Sprintf(`SELECT %s FROM pokemons WHERE pokedex_number = $1 FOR UPDATE`, pokemonColumns)
	pokemon, err := scanPokemon(r.db.QueryRow(ctx, query, number))
	if err != nil {
		return domain.Pokemon{}, mapError(err)
	}
	return pokemon, nil
}

// LockOrCreate inserts an empty aggregate when absent and then locks it. If a
// concurrent transaction deletes the row between the two statements the caller gets
// ErrConflict and should retry the whole transaction.
func (r *PokemonRepository) LockOrCreate(ctx context.Context, number int) (domain.Pokemon, error) {
	const insert = `
        INSERT INTO pokemons (id, pokedex_number)
        VALUES ($1, $2)
        ON CONFLICT (pokedex_number) DO NOTHING
    `
	if _, err := r.db.Exec(ctx, insert, uuid.NewString(), number); err != nil {
		return domain.Pokemon{}, fmt.Errorf("create pokemon %d: %w", number, mapError(err))
	}

	pokemon, err := r.Lock(ctx, number)
	if errors.Is(err, ErrNotFound) {
		return domain.Pokemon{}, fmt.Errorf("lock pokemon %d: row deleted concurrently: %w", number, apperrors.ErrConflict)
	}
	if err != nil {
		return domain.Pokemon{}, fmt.Errorf("lock pokemon %d: %w", number, err)
	}
	return pokemon, nil
}

// Save writes the aggregate's summary and bumps its version.
func (r *PokemonRepository) Save(ctx context.Context, pokemon domain.Pokemon) (domain.Pokemon, error) {
	query := fmt.Sprintf(`
        UPDATE pokemons
        SET rating = $2,
            number_of_votes = $3,
            version = version + 1,
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, pokemonColumns)

	row := r.db.QueryRow(ctx, query, pokemon.ID, pokemon.Rating, pokemon.NumberOfVotes)
	saved, err := scanPokemon(row)
	if err != nil {
		return domain.Pokemon{}, mapError(err)
	}
	return saved, nil
}

// Delete removes an aggregate. Ledger rows must already be gone.
func (r *PokemonRepository) Delete(ctx context.Context, pokemonID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM pokemons WHERE id = $1`, pokemonID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Summaries returns the aggregates for the given pokedex numbers. Numbers without an
// aggregate are absent from the map.
func (r *PokemonRepository) Summaries(ctx context.Context, numbers []int) (map[int]domain.Summary, error) {
	result := make(map[int]domain.Summary, len(numbers))
	if len(numbers) == 0 {
		return result, nil
	}

	const query = `
        SELECT pokedex_number, rating, number_of_votes
        FROM pokemons
        WHERE pokedex_number = ANY($1)
    `
	rows, err := r.db.Query(ctx, query, numbers)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			number  int
			summary domain.Summary
		)
		if err := rows.Scan(&number, &summary.Rating, &summary.NumberOfVotes); err != nil {
			return nil, err
		}
		result[number] = summary
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Numbers lists the pokedex numbers of every stored aggregate in ascending order.
func (r *PokemonRepository) Numbers(ctx context.Context) ([]int, error) {
	rows, err := r.db.Query(ctx, `SELECT pokedex_number FROM pokemons ORDER BY pokedex_number`)
	if err != nil {
		return nil, mapError(err)
	}
	numbers, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, err
	}
	return numbers, nil
}

func scanPokemon(row pgx.Row) (domain.Pokemon, error) {
	var pokemon domain.Pokemon
	err := row.Scan(
		&pokemon.ID,
		&pokemon.PokedexNumber,
		&pokemon.Rating,
		&pokemon.NumberOfVotes,
		&pokemon.Version,
		&pokemon.CreatedAt,
		&pokemon.UpdatedAt,
	)
	if err != nil {
		return domain.Pokemon{}, err
	}
	return pokemon, nil
}
