package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Clark-Hu/pokedex-ratings/internal/apperrors"
	"github.com/Clark-Hu/pokedex-ratings/internal/domain"
)

// MemoryStore is an in-memory Store for development and tests. Transactions are
// serialized by a single mutex and run against a copy of the state that replaces the
// live state only when fn succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

var _ Store = (*MemoryStore)(nil)

type ratingKey struct {
	userID    string
	pokemonID string
}

type memoryState struct {
	users     map[string]domain.User
	pokemons  map[int]domain.Pokemon // pokedex number -> aggregate
	ratings   map[ratingKey]domain.Rating
	favorites map[string]map[int]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memoryState{
		users:     make(map[string]domain.User),
		pokemons:  make(map[int]domain.Pokemon),
		ratings:   make(map[ratingKey]domain.Rating),
		favorites: make(map[string]map[int]struct{}),
	}}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		users:     make(map[string]domain.User, len(s.users)),
		pokemons:  make(map[int]domain.Pokemon, len(s.pokemons)),
		ratings:   make(map[ratingKey]domain.Rating, len(s.ratings)),
		favorites: make(map[string]map[int]struct{}, len(s.favorites)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.pokemons {
		c.pokemons[k] = v
	}
	for k, v := range s.ratings {
		c.ratings[k] = v
	}
	for user, set := range s.favorites {
		cp := make(map[int]struct{}, len(set))
		for n := range set {
			cp[n] = struct{}{}
		}
		c.favorites[user] = cp
	}
	return c
}

func (s *memoryState) pokemonByID(pokemonID string) (domain.Pokemon, bool) {
	for _, p := range s.pokemons {
		if p.ID == pokemonID {
			return p, true
		}
	}
	return domain.Pokemon{}, false
}

// InTx runs fn against a private copy of the state and publishes it on success.
func (m *MemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	staged := m.state.clone()
	if err := fn(&memoryTx{state: staged}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

func (m *MemoryStore) EnsureUser(_ context.Context, userID string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user, ok := m.state.users[userID]; ok {
		return user, false, nil
	}
	user := domain.User{ID: userID, CreatedAt: time.Now().UTC()}
	m.state.users[userID] = user
	return user, true, nil
}

func (m *MemoryStore) GetUser(_ context.Context, userID string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.state.users[userID]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

func (m *MemoryStore) Summaries(_ context.Context, numbers []int) (map[int]domain.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[int]domain.Summary, len(numbers))
	for _, n := range numbers {
		if p, ok := m.state.pokemons[n]; ok {
			result[n] = p.Summary
		}
	}
	return result, nil
}

func (m *MemoryStore) UserRatings(_ context.Context, userID string) ([]domain.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]domain.Rating, 0)
	for key, rating := range m.state.ratings {
		if key.userID == userID {
			results = append(results, rating)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].PokedexNumber < results[j].PokedexNumber })
	return results, nil
}

func (m *MemoryStore) Favorites(_ context.Context, userID string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	numbers := make([]int, 0, len(m.state.favorites[userID]))
	for n := range m.state.favorites[userID] {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers, nil
}

func (m *MemoryStore) PokedexNumbers(_ context.Context) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	numbers := make([]int, 0, len(m.state.pokemons))
	for n := range m.state.pokemons {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers, nil
}

// memoryTx mirrors the constraints the PostgreSQL schema enforces.
type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) LockOrCreatePokemon(_ context.Context, number int) (domain.Pokemon, error) {
	if p, ok := t.state.pokemons[number]; ok {
		return p, nil
	}
	now := time.Now().UTC()
	p := domain.Pokemon{ID: uuid.NewString(), PokedexNumber: number, CreatedAt: now, UpdatedAt: now}
	t.state.pokemons[number] = p
	return p, nil
}

func (t *memoryTx) LockPokemon(_ context.Context, number int) (domain.Pokemon, error) {
	p, ok := t.state.pokemons[number]
	if !ok {
		return domain.Pokemon{}, ErrNotFound
	}
	return p, nil
}

func (t *memoryTx) SavePokemon(_ context.Context, pokemon domain.Pokemon) (domain.Pokemon, error) {
	current, ok := t.state.pokemons[pokemon.PokedexNumber]
	if !ok || current.ID != pokemon.ID {
		return domain.Pokemon{}, ErrNotFound
	}
	current.Summary = pokemon.Summary
	current.Version++
	current.UpdatedAt = time.Now().UTC()
	t.state.pokemons[current.PokedexNumber] = current
	return current, nil
}

func (t *memoryTx) DeletePokemon(_ context.Context, pokemonID string) error {
	p, ok := t.state.pokemonByID(pokemonID)
	if !ok {
		return ErrNotFound
	}
	for key := range t.state.ratings {
		if key.pokemonID == pokemonID {
			return fmt.Errorf("delete pokemon %d: ledger rows still reference it", p.PokedexNumber)
		}
	}
	delete(t.state.pokemons, p.PokedexNumber)
	return nil
}

func (t *memoryTx) GetRating(_ context.Context, userID, pokemonID string) (domain.Rating, error) {
	rating, ok := t.state.ratings[ratingKey{userID: userID, pokemonID: pokemonID}]
	if !ok {
		return domain.Rating{}, ErrNotFound
	}
	return rating, nil
}

func (t *memoryTx) InsertRating(_ context.Context, rating domain.Rating) (domain.Rating, error) {
	if _, ok := t.state.users[rating.UserID]; !ok {
		return domain.Rating{}, fmt.Errorf("insert rating: user %q: %w", rating.UserID, ErrNotFound)
	}
	p, ok := t.state.pokemonByID(rating.PokemonID)
	if !ok {
		return domain.Rating{}, fmt.Errorf("insert rating: pokemon %q: %w", rating.PokemonID, ErrNotFound)
	}
	key := ratingKey{userID: rating.UserID, pokemonID: rating.PokemonID}
	if _, exists := t.state.ratings[key]; exists {
		return domain.Rating{}, fmt.Errorf("insert rating: duplicate (%s, %s)", rating.UserID, rating.PokemonID)
	}
	now := time.Now().UTC()
	rating.PokedexNumber = p.PokedexNumber
	rating.CreatedAt = now
	rating.UpdatedAt = now
	t.state.ratings[key] = rating
	return rating, nil
}

func (t *memoryTx) UpdateRating(_ context.Context, rating domain.Rating) (domain.Rating, error) {
	key := ratingKey{userID: rating.UserID, pokemonID: rating.PokemonID}
	current, ok := t.state.ratings[key]
	if !ok {
		return domain.Rating{}, fmt.Errorf("update rating: %w", ErrNotFound)
	}
	current.Value = rating.Value
	current.UpdatedAt = time.Now().UTC()
	t.state.ratings[key] = current
	return current, nil
}

func (t *memoryTx) DeleteRating(_ context.Context, userID, pokemonID string) error {
	key := ratingKey{userID: userID, pokemonID: pokemonID}
	if _, ok := t.state.ratings[key]; !ok {
		return ErrNotFound
	}
	delete(t.state.ratings, key)
	return nil
}

func (t *memoryTx) LedgerTotals(_ context.Context, pokemonID string) (float64, int64, error) {
	var (
		sum   float64
		count int64
	)
	for key, rating := range t.state.ratings {
		if key.pokemonID == pokemonID {
			sum += rating.Value
			count++
		}
	}
	return sum, count, nil
}

func (t *memoryTx) CountUserRatings(_ context.Context, userID string) (int64, error) {
	var count int64
	for key := range t.state.ratings {
		if key.userID == userID {
			count++
		}
	}
	return count, nil
}

func (t *memoryTx) LockUser(_ context.Context, userID string) (domain.User, error) {
	user, ok := t.state.users[userID]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

func (t *memoryTx) LockUserForDelete(ctx context.Context, userID string) (domain.User, error) {
	return t.LockUser(ctx, userID)
}

func (t *memoryTx) DeleteUser(_ context.Context, userID string) error {
	if _, ok := t.state.users[userID]; !ok {
		return ErrNotFound
	}
	for key := range t.state.ratings {
		if key.userID == userID {
			return fmt.Errorf("%w: user %q is still referenced by ratings", apperrors.ErrConflict, userID)
		}
	}
	if len(t.state.favorites[userID]) > 0 {
		return fmt.Errorf("%w: user %q is still referenced by favorites", apperrors.ErrConflict, userID)
	}
	delete(t.state.users, userID)
	return nil
}

func (t *memoryTx) ToggleFavorite(_ context.Context, userID string, number int) (bool, error) {
	if _, ok := t.state.users[userID]; !ok {
		return false, ErrNotFound
	}
	set := t.state.favorites[userID]
	if _, ok := set[number]; ok {
		delete(set, number)
		return false, nil
	}
	if set == nil {
		set = make(map[int]struct{})
		t.state.favorites[userID] = set
	}
	set[number] = struct{}{}
	return true, nil
}

func (t *memoryTx) DeleteFavorites(_ context.Context, userID string) error {
	delete(t.state.favorites, userID)
	return nil
}
