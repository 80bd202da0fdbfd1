package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/pokedex-ratings/internal/apperrors"
	"github.com/Clark-Hu/pokedex-ratings/internal/domain"
	"github.com/Clark-Hu/pokedex-ratings/internal/store"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = apperrors.ErrNotFound

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository aggregates all domain-specific repositories and implements Store on
// PostgreSQL.
type Repository struct {
	pool          *pgxpool.Pool
	Pokemon       *PokemonRepository
	Ratings       *RatingsRepository
	FavoritesRepo *FavoritesRepository
	Users         *UsersRepository
}

var _ Store = (*Repository)(nil)

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:          pool,
		Pokemon:       &PokemonRepository{db: pool},
		Ratings:       &RatingsRepository{db: pool},
		FavoritesRepo: &FavoritesRepository{db: pool},
		Users:         &UsersRepository{db: pool},
	}
}

// InTx runs fn inside a READ COMMITTED transaction. Row locks taken through Tx are held
// until commit or rollback; any error from fn rolls everything back.
func (r *Repository) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapError(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(newTxScope(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapError(err))
	}
	return nil
}

func (r *Repository) EnsureUser(ctx context.Context, userID string) (domain.User, bool, error) {
	return r.Users.Ensure(ctx, userID)
}

func (r *Repository) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return r.Users.Get(ctx, userID)
}

func (r *Repository) Summaries(ctx context.Context, numbers []int) (map[int]domain.Summary, error) {
	return r.Pokemon.Summaries(ctx, numbers)
}

func (r *Repository) UserRatings(ctx context.Context, userID string) ([]domain.Rating, error) {
	return r.Ratings.ListByUser(ctx, userID)
}

func (r *Repository) Favorites(ctx context.Context, userID string) ([]int, error) {
	return r.FavoritesRepo.List(ctx, userID)
}

func (r *Repository) PokedexNumbers(ctx context.Context) ([]int, error) {
	return r.Pokemon.Numbers(ctx)
}

// txScope binds the repositories to one pgx transaction.
type txScope struct {
	pokemon   *PokemonRepository
	ratings   *RatingsRepository
	favorites *FavoritesRepository
	users     *UsersRepository
}

func newTxScope(tx pgx.Tx) *txScope {
	return &txScope{
		pokemon:   &PokemonRepository{db: tx},
		ratings:   &RatingsRepository{db: tx},
		favorites: &FavoritesRepository{db: tx},
		users:     &UsersRepository{db: tx},
	}
}

func (t *txScope) LockOrCreatePokemon(ctx context.Context, number int) (domain.Pokemon, error) {
	return t.pokemon.LockOrCreate(ctx, number)
}

func (t *txScope) LockPokemon(ctx context.Context, number int) (domain.Pokemon, error) {
	return t.pokemon.Lock(ctx, number)
}

func (t *txScope) SavePokemon(ctx context.Context, pokemon domain.Pokemon) (domain.Pokemon, error) {
	return t.pokemon.Save(ctx, pokemon)
}

func (t *txScope) DeletePokemon(ctx context.Context, pokemonID string) error {
	return t.pokemon.Delete(ctx, pokemonID)
}

func (t *txScope) GetRating(ctx context.Context, userID, pokemonID string) (domain.Rating, error) {
	return t.ratings.Get(ctx, userID, pokemonID)
}

func (t *txScope) InsertRating(ctx context.Context, rating domain.Rating) (domain.Rating, error) {
	return t.ratings.Insert(ctx, rating)
}

func (t *txScope) UpdateRating(ctx context.Context, rating domain.Rating) (domain.Rating, error) {
	return t.ratings.Update(ctx, rating)
}

func (t *txScope) DeleteRating(ctx context.Context, userID, pokemonID string) error {
	return t.ratings.Delete(ctx, userID, pokemonID)
}

func (t *txScope) LedgerTotals(ctx context.Context, pokemonID string) (float64, int64, error) {
	return t.ratings.Totals(ctx, pokemonID)
}

func (t *txScope) CountUserRatings(ctx context.Context, userID string) (int64, error) {
	return t.ratings.CountByUser(ctx, userID)
}

func (t *txScope) LockUser(ctx context.Context, userID string) (domain.User, error) {
	return t.users.Lock(ctx, userID)
}

func (t *txScope) LockUserForDelete(ctx context.Context, userID string) (domain.User, error) {
	return t.users.LockForDelete(ctx, userID)
}

func (t *txScope) DeleteUser(ctx context.Context, userID string) error {
	return t.users.Delete(ctx, userID)
}

func (t *txScope) ToggleFavorite(ctx context.Context, userID string, number int) (bool, error) {
	return t.favorites.Toggle(ctx, userID, number)
}

func (t *txScope) DeleteFavorites(ctx context.Context, userID string) error {
	return t.favorites.DeleteAll(ctx, userID)
}

// SQLSTATE codes translated into the shared error taxonomy.
const (
	codeForeignKeyViolation  = "23503"
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %w", apperrors.ErrNotFound, err)
		case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %w", apperrors.ErrConflict, err)
		}
	}
	return err
}
