package repository

import (
	"context"

	"github.com/Clark-Hu/pokedex-ratings/internal/domain"
)

// Tx is the unit of work a rating mutation runs in. Every method observes and
// produces state private to the transaction until InTx commits it.
type Tx interface {
	// LockOrCreatePokemon returns the aggregate for number, creating an empty one if
	// needed, and holds its row lock until the transaction ends.
	LockOrCreatePokemon(ctx context.Context, number int) (domain.Pokemon, error)
	// LockPokemon locks an existing aggregate; ErrNotFound if the pokemon has no votes.
	LockPokemon(ctx context.Context, number int) (domain.Pokemon, error)
	SavePokemon(ctx context.Context, pokemon domain.Pokemon) (domain.Pokemon, error)
	DeletePokemon(ctx context.Context, pokemonID string) error

	GetRating(ctx context.Context, userID, pokemonID string) (domain.Rating, error)
	InsertRating(ctx context.Context, rating domain.Rating) (domain.Rating, error)
	UpdateRating(ctx context.Context, rating domain.Rating) (domain.Rating, error)
	DeleteRating(ctx context.Context, userID, pokemonID string) error
	LedgerTotals(ctx context.Context, pokemonID string) (sum float64, count int64, err error)
	CountUserRatings(ctx context.Context, userID string) (int64, error)

	// LockUser serializes per-user membership changes without blocking rating inserts.
	LockUser(ctx context.Context, userID string) (domain.User, error)
	// LockUserForDelete takes the exclusive user lock, which waits for in-flight
	// rating inserts referencing the user and blocks new ones.
	LockUserForDelete(ctx context.Context, userID string) (domain.User, error)
	// DeleteUser returns ErrConflict while ratings or favorites still reference the user.
	DeleteUser(ctx context.Context, userID string) error
	ToggleFavorite(ctx context.Context, userID string, number int) (bool, error)
	DeleteFavorites(ctx context.Context, userID string) error
}

// Store is the persistence contract of the rating service: transactional writes plus
// the read models served outside a transaction.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error

	EnsureUser(ctx context.Context, userID string) (domain.User, bool, error)
	GetUser(ctx context.Context, userID string) (domain.User, error)
	Summaries(ctx context.Context, numbers []int) (map[int]domain.Summary, error)
	UserRatings(ctx context.Context, userID string) ([]domain.Rating, error)
	Favorites(ctx context.Context, userID string) ([]int, error)
	PokedexNumbers(ctx context.Context) ([]int, error)
}
