package rating

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/pokedex-ratings/internal/apperrors"
	"github.com/Clark-Hu/pokedex-ratings/internal/domain"
	"github.com/Clark-Hu/pokedex-ratings/internal/repository"
	"github.com/Clark-Hu/pokedex-ratings/internal/retry"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []Change
	err     error
}

func (p *recordingPublisher) PublishRatingChanged(_ context.Context, change Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return p.err
}

// conflictingStore fails the first n transactions with ErrConflict.
type conflictingStore struct {
	repository.Store
	remaining atomic.Int32
}

func (s *conflictingStore) InTx(ctx context.Context, fn func(repository.Tx) error) error {
	if s.remaining.Add(-1) >= 0 {
		return fmt.Errorf("simulated serialization failure: %w", apperrors.ErrConflict)
	}
	return s.Store.InTx(ctx, fn)
}

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func newTestService(t *testing.T, users ...string) (*Service, *repository.MemoryStore) {
	t.Helper()
	st := repository.NewMemoryStore()
	svc := NewService(st, nil, fastRetry(), nil)
	for _, u := range users {
		_, _, err := svc.RegisterUser(context.Background(), u)
		require.NoError(t, err)
	}
	return svc, st
}

// assertConsistent checks the stored aggregate against the ledger.
func assertConsistent(t *testing.T, st repository.Store, number int) {
	t.Helper()
	err := st.InTx(context.Background(), func(tx repository.Tx) error {
		pokemon, err := tx.LockPokemon(context.Background(), number)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		sum, count, err := tx.LedgerTotals(context.Background(), pokemon.ID)
		if err != nil {
			return err
		}
		assert.Greater(t, count, int64(0), "aggregate row present with no ledger entries")
		assert.False(t, pokemon.Drifted(sum, count), "aggregate %+v vs ledger sum=%v count=%d", pokemon.Summary, sum, count)
		return nil
	})
	require.NoError(t, err)
}

func TestService_TwoUserScenario(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t, "A", "B")

	res, err := svc.Rate(ctx, "A", 25, 4)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 4.0, res.EntityRating)
	assert.EqualValues(t, 1, res.NumberOfVotes)
	require.NotNil(t, res.UserRating)
	assert.Equal(t, 4.0, *res.UserRating)

	res, err = svc.Rate(ctx, "B", 25, 2)
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.EntityRating)
	assert.EqualValues(t, 2, res.NumberOfVotes)

	res, err = svc.Rate(ctx, "A", 25, 0)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, 1.0, res.EntityRating)
	assert.EqualValues(t, 2, res.NumberOfVotes)

	// A's zero is still a vote once B leaves.
	res, err = svc.Unrate(ctx, "B", 25)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.EntityRating)
	assert.EqualValues(t, 1, res.NumberOfVotes)
	assert.Nil(t, res.UserRating)
	assertConsistent(t, st, 25)

	res, err = svc.Unrate(ctx, "A", 25)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.NumberOfVotes)

	summaries, err := svc.Summaries(ctx, []int{25})
	require.NoError(t, err)
	assert.Equal(t, domain.Summary{}, summaries[25])

	numbers, err := st.PokedexNumbers(ctx)
	require.NoError(t, err)
	assert.Empty(t, numbers, "aggregate row must be deleted with its last vote")
}

func TestService_RateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t, "A", "B")

	_, err := svc.Rate(ctx, "B", 7, 1)
	require.NoError(t, err)
	first, err := svc.Rate(ctx, "A", 7, 3.5)
	require.NoError(t, err)
	second, err := svc.Rate(ctx, "A", 7, 3.5)
	require.NoError(t, err)

	assert.Equal(t, first.NumberOfVotes, second.NumberOfVotes)
	assert.InDelta(t, first.EntityRating, second.EntityRating, 1e-12)
	assert.False(t, second.Created)
	assertConsistent(t, st, 7)
}

func TestService_RateUnrateRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, "A", "B", "C")

	_, err := svc.Rate(ctx, "A", 1, 2.25)
	require.NoError(t, err)
	_, err = svc.Rate(ctx, "B", 1, 4.75)
	require.NoError(t, err)
	before, err := svc.Summaries(ctx, []int{1})
	require.NoError(t, err)

	_, err = svc.Rate(ctx, "C", 1, 5)
	require.NoError(t, err)
	_, err = svc.Unrate(ctx, "C", 1)
	require.NoError(t, err)

	after, err := svc.Summaries(ctx, []int{1})
	require.NoError(t, err)
	assert.Equal(t, before[1].NumberOfVotes, after[1].NumberOfVotes)
	assert.InDelta(t, before[1].Rating, after[1].Rating, 1e-12)
}

func TestService_RateBoundaries(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t, "A")

	for _, v := range []float64{0, 5} {
		_, err := svc.Rate(ctx, "A", 10, v)
		assert.NoError(t, err, "rating %v", v)
	}
	for _, v := range []float64{5.01, -0.01, math.NaN(), math.Inf(1)} {
		_, err := svc.Rate(ctx, "A", 11, v)
		assert.ErrorIs(t, err, apperrors.ErrValidation, "rating %v", v)
	}
	_, err := svc.Rate(ctx, "A", 0, 3)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = svc.Rate(ctx, "", 1, 3)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	numbers, err := st.PokedexNumbers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{10}, numbers, "rejected ratings must not create aggregates")
}

func TestService_RateUnknownUser(t *testing.T) {
	svc, st := newTestService(t)

	_, err := svc.Rate(context.Background(), "ghost", 3, 2)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	numbers, err := st.PokedexNumbers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, numbers)
}

func TestService_UnrateErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, "A", "B")

	_, err := svc.Unrate(ctx, "A", 42)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "no aggregate")

	_, err = svc.Rate(ctx, "B", 42, 3)
	require.NoError(t, err)
	_, err = svc.Unrate(ctx, "A", 42)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "no ledger entry for A")

	summaries, err := svc.Summaries(ctx, []int{42})
	require.NoError(t, err)
	assert.EqualValues(t, 1, summaries[42].NumberOfVotes)
}

func TestService_ConcurrentFirstRatings(t *testing.T) {
	ctx := context.Background()
	const n = 50

	users := make([]string, n)
	for i := range users {
		users[i] = fmt.Sprintf("trainer-%02d", i)
	}
	svc, st := newTestService(t, users...)

	var (
		wg       sync.WaitGroup
		expected float64
	)
	errs := make(chan error, n)
	for i, u := range users {
		value := float64(i%11) / 2
		expected += value
		wg.Add(1)
		go func(u string, v float64) {
			defer wg.Done()
			_, err := svc.Rate(ctx, u, 150, v)
			errs <- err
		}(u, value)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	summaries, err := svc.Summaries(ctx, []int{150})
	require.NoError(t, err)
	assert.EqualValues(t, n, summaries[150].NumberOfVotes)
	assert.InDelta(t, expected/n, summaries[150].Rating, 1e-9)
	assertConsistent(t, st, 150)
}

func TestService_RetriesConflicts(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	_, _, err := mem.EnsureUser(ctx, "A")
	require.NoError(t, err)

	st := &conflictingStore{Store: mem}
	st.remaining.Store(2)
	svc := NewService(st, nil, fastRetry(), nil)

	res, err := svc.Rate(ctx, "A", 9, 4)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.NumberOfVotes)

	st.remaining.Store(10)
	_, err = svc.Rate(ctx, "A", 9, 1)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	summaries, err := svc.Summaries(ctx, []int{9})
	require.NoError(t, err)
	assert.Equal(t, 4.0, summaries[9].Rating, "exhausted retries must not apply the rating")
}

func TestService_ToggleFavoriteAlternates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, "A")

	for i := 0; i < 6; i++ {
		fav, err := svc.ToggleFavorite(ctx, "A", 25)
		require.NoError(t, err)
		assert.Equal(t, i%2 == 0, fav, "toggle %d", i)
	}

	_, err := svc.ToggleFavorite(ctx, "ghost", 25)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = svc.ToggleFavorite(ctx, "A", -1)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestService_Membership(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, "A")

	_, err := svc.Rate(ctx, "A", 25, 5)
	require.NoError(t, err)
	_, err = svc.Rate(ctx, "A", 4, 3)
	require.NoError(t, err)
	_, err = svc.ToggleFavorite(ctx, "A", 7)
	require.NoError(t, err)

	m, err := svc.Membership(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 25}, m.Rated)
	assert.Equal(t, []int{7}, m.Favorites)

	_, err = svc.Unrate(ctx, "A", 4)
	require.NoError(t, err)
	m, err = svc.Membership(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []int{25}, m.Rated)

	_, err = svc.Membership(ctx, "ghost")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestService_Summaries(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, "A")

	_, err := svc.Rate(ctx, "A", 1, 2)
	require.NoError(t, err)

	got, err := svc.Summaries(ctx, []int{1, 4, 1})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, domain.Summary{Rating: 2, NumberOfVotes: 1}, got[1])
	assert.Equal(t, domain.Summary{}, got[4])

	empty, err := svc.Summaries(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	tooMany := make([]int, MaxBatchKeys+1)
	for i := range tooMany {
		tooMany[i] = i + 1
	}
	_, err = svc.Summaries(ctx, tooMany)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.Summaries(ctx, []int{3, 0})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestService_RegisterUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, created, err := svc.RegisterUser(ctx, "A")
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = svc.RegisterUser(ctx, "A")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestService_PublishesCommittedChanges(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	st := repository.NewMemoryStore()
	_, _, err := st.EnsureUser(ctx, "A")
	require.NoError(t, err)
	svc := NewService(st, pub, fastRetry(), nil)

	_, err = svc.Rate(ctx, "A", 25, 4)
	require.NoError(t, err, "publish failures must not fail the rating")
	_, err = svc.Unrate(ctx, "A", 25)
	require.NoError(t, err)
	_, err = svc.Rate(ctx, "A", 25, 9)
	require.Error(t, err)

	require.Len(t, pub.changes, 2)
	rated, removed := pub.changes[0], pub.changes[1]
	assert.Equal(t, 25, rated.PokedexNumber)
	require.NotNil(t, rated.UserRating)
	assert.Equal(t, 4.0, *rated.UserRating)
	assert.EqualValues(t, 1, rated.Summary.NumberOfVotes)
	assert.Nil(t, removed.UserRating)
	assert.EqualValues(t, 0, removed.Summary.NumberOfVotes)
}
