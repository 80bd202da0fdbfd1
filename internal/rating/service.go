// Package rating keeps each pokemon's mean rating and vote count consistent with the
// rating ledger as users rate, re-rate and un-rate.
package rating

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Clark-Hu/pokedex-ratings/internal/apperrors"
	"github.com/Clark-Hu/pokedex-ratings/internal/domain"
	"github.com/Clark-Hu/pokedex-ratings/internal/repository"
	"github.com/Clark-Hu/pokedex-ratings/internal/retry"
)

// MaxBatchKeys bounds a single Summaries lookup.
const MaxBatchKeys = 200

// Result describes the aggregate after a rating mutation. UserRating is nil after
// an unrate.
type Result struct {
	PokedexNumber int
	EntityRating  float64
	NumberOfVotes int64
	UserRating    *float64
	Created       bool
}

// Change is emitted after a rating mutation commits.
type Change struct {
	UserID        string
	PokedexNumber int
	UserRating    *float64
	Summary       domain.Summary
	OccurredAt    time.Time
}

// Publisher receives committed rating changes. Delivery is best effort.
type Publisher interface {
	PublishRatingChanged(ctx context.Context, change Change) error
}

type noopPublisher struct{}

func (noopPublisher) PublishRatingChanged(context.Context, Change) error { return nil }

// Service implements rating, un-rating, favorites and the batch aggregate lookup.
type Service struct {
	store     repository.Store
	publisher Publisher
	retry     *retry.Config
	logger    *zap.Logger
}

// NewService wires the service. A nil publisher disables change events, a nil retry
// config uses retry.DefaultConfig and a nil logger discards output.
func NewService(store repository.Store, publisher Publisher, retryCfg *retry.Config, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		retry:     retryCfg,
		logger:    logger,
	}
}

// Rate records value as userID's rating of the pokemon, inserting or replacing the
// ledger entry and updating the aggregate in the same transaction.
func (s *Service) Rate(ctx context.Context, userID string, number int, value float64) (Result, error) {
	if err := validateUser(userID); err != nil {
		return Result{}, err
	}
	if err := domain.ValidatePokedexNumber(number); err != nil {
		return Result{}, err
	}
	if err := domain.ValidateRating(value); err != nil {
		return Result{}, err
	}

	var result Result
	err := retry.DoIfRetryable(ctx, s.retry, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			pokemon, err := tx.LockOrCreatePokemon(ctx, number)
			if err != nil {
				return err
			}

			existing, err := tx.GetRating(ctx, userID, pokemon.ID)
			switch {
			case errors.Is(err, apperrors.ErrNotFound):
				if _, err := tx.InsertRating(ctx, domain.Rating{
					UserID:        userID,
					PokemonID:     pokemon.ID,
					PokedexNumber: number,
					Value:         value,
				}); err != nil {
					return err
				}
				pokemon.Summary = pokemon.Summary.Insert(value)
				result.Created = true
			case err != nil:
				return err
			default:
				previous := existing.Value
				existing.Value = value
				if _, err := tx.UpdateRating(ctx, existing); err != nil {
					return err
				}
				pokemon.Summary = pokemon.Summary.Replace(previous, value)
				result.Created = false
			}

			saved, err := tx.SavePokemon(ctx, pokemon)
			if err != nil {
				return err
			}
			result.PokedexNumber = number
			result.EntityRating = saved.Rating
			result.NumberOfVotes = saved.NumberOfVotes
			return nil
		})
	})
	if err != nil {
		return Result{}, fmt.Errorf("rate pokemon %d: %w", number, err)
	}
	result.UserRating = &value

	s.logger.Debug("rating recorded",
		zap.String("user_id", userID),
		zap.Int("pokedex_number", number),
		zap.Float64("rating", value),
		zap.Bool("created", result.Created),
		zap.Int64("votes", result.NumberOfVotes),
	)
	s.publish(ctx, userID, result)
	return result, nil
}

// Unrate removes userID's rating of the pokemon. The aggregate row is deleted once
// its last vote is removed.
func (s *Service) Unrate(ctx context.Context, userID string, number int) (Result, error) {
	if err := validateUser(userID); err != nil {
		return Result{}, err
	}
	if err := domain.ValidatePokedexNumber(number); err != nil {
		return Result{}, err
	}

	var result Result
	err := retry.DoIfRetryable(ctx, s.retry, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			pokemon, err := tx.LockPokemon(ctx, number)
			if err != nil {
				return fmt.Errorf("pokemon %d has no ratings: %w", number, err)
			}
			existing, err := tx.GetRating(ctx, userID, pokemon.ID)
			if err != nil {
				return fmt.Errorf("user %q has not rated pokemon %d: %w", userID, number, err)
			}
			if err := tx.DeleteRating(ctx, userID, pokemon.ID); err != nil {
				return err
			}

			pokemon.Summary = pokemon.Summary.Remove(existing.Value)
			result.PokedexNumber = number
			if pokemon.Summary.Empty() {
				result.EntityRating, result.NumberOfVotes = 0, 0
				return tx.DeletePokemon(ctx, pokemon.ID)
			}
			saved, err := tx.SavePokemon(ctx, pokemon)
			if err != nil {
				return err
			}
			result.EntityRating = saved.Rating
			result.NumberOfVotes = saved.NumberOfVotes
			return nil
		})
	})
	if err != nil {
		return Result{}, fmt.Errorf("unrate pokemon %d: %w", number, err)
	}

	s.logger.Debug("rating removed",
		zap.String("user_id", userID),
		zap.Int("pokedex_number", number),
		zap.Int64("votes", result.NumberOfVotes),
	)
	s.publish(ctx, userID, result)
	return result, nil
}

// ToggleFavorite flips the pokemon's membership in the user's favorites and reports
// the new state.
func (s *Service) ToggleFavorite(ctx context.Context, userID string, number int) (bool, error) {
	if err := validateUser(userID); err != nil {
		return false, err
	}
	if err := domain.ValidatePokedexNumber(number); err != nil {
		return false, err
	}

	var isFavorite bool
	err := retry.DoIfRetryable(ctx, s.retry, func() error {
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			if _, err := tx.LockUser(ctx, userID); err != nil {
				return fmt.Errorf("user %q: %w", userID, err)
			}
			var err error
			isFavorite, err = tx.ToggleFavorite(ctx, userID, number)
			return err
		})
	})
	if err != nil {
		return false, fmt.Errorf("toggle favorite %d: %w", number, err)
	}
	return isFavorite, nil
}

// Summaries returns the aggregate of each requested pokemon. Duplicate numbers
// collapse and pokemon nobody rated map to the zero Summary.
func (s *Service) Summaries(ctx context.Context, numbers []int) (map[int]domain.Summary, error) {
	unique := make([]int, 0, len(numbers))
	seen := make(map[int]struct{}, len(numbers))
	for _, n := range numbers {
		if err := domain.ValidatePokedexNumber(n); err != nil {
			return nil, err
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		unique = append(unique, n)
	}
	if len(unique) > MaxBatchKeys {
		return nil, fmt.Errorf("%w: at most %d pokedex numbers per lookup, got %d", apperrors.ErrValidation, MaxBatchKeys, len(unique))
	}

	result := make(map[int]domain.Summary, len(unique))
	if len(unique) == 0 {
		return result, nil
	}
	found, err := s.store.Summaries(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}
	for _, n := range unique {
		result[n] = found[n]
	}
	return result, nil
}

// Membership returns the pokemon the user has rated and favorited, both ordered by
// pokedex number.
func (s *Service) Membership(ctx context.Context, userID string) (domain.Membership, error) {
	if err := validateUser(userID); err != nil {
		return domain.Membership{}, err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return domain.Membership{}, fmt.Errorf("user %q: %w", userID, err)
	}
	ratings, err := s.store.UserRatings(ctx, userID)
	if err != nil {
		return domain.Membership{}, fmt.Errorf("load rated set: %w", err)
	}
	favorites, err := s.store.Favorites(ctx, userID)
	if err != nil {
		return domain.Membership{}, fmt.Errorf("load favorites: %w", err)
	}

	rated := make([]int, 0, len(ratings))
	for _, r := range ratings {
		rated = append(rated, r.PokedexNumber)
	}
	return domain.Membership{UserID: userID, Rated: rated, Favorites: favorites}, nil
}

// RegisterUser provisions the user row for an authenticated identity. It is
// idempotent; created reports whether the row was new.
func (s *Service) RegisterUser(ctx context.Context, userID string) (domain.User, bool, error) {
	if err := validateUser(userID); err != nil {
		return domain.User{}, false, err
	}
	user, created, err := s.store.EnsureUser(ctx, userID)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("register user %q: %w", userID, err)
	}
	if created {
		s.logger.Info("user registered", zap.String("user_id", userID))
	}
	return user, created, nil
}

func (s *Service) publish(ctx context.Context, userID string, result Result) {
	change := Change{
		UserID:        userID,
		PokedexNumber: result.PokedexNumber,
		UserRating:    result.UserRating,
		Summary:       domain.Summary{Rating: result.EntityRating, NumberOfVotes: result.NumberOfVotes},
		OccurredAt:    time.Now().UTC(),
	}
	if err := s.publisher.PublishRatingChanged(ctx, change); err != nil {
		s.logger.Warn("publish rating change failed",
			zap.String("user_id", userID),
			zap.Int("pokedex_number", result.PokedexNumber),
			zap.Error(err),
		)
	}
}

func validateUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", apperrors.ErrValidation)
	}
	return nil
}
