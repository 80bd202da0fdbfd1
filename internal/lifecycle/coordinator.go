// Package lifecycle removes a deleted user's footprint from the rating subsystem.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Clark-Hu/pokedex-ratings/internal/apperrors"
	"github.com/Clark-Hu/pokedex-ratings/internal/rating"
	"github.com/Clark-Hu/pokedex-ratings/internal/repository"
	"github.com/Clark-Hu/pokedex-ratings/internal/retry"
)

// Unrater is the single-entity removal primitive the cascade is built on.
type Unrater interface {
	Unrate(ctx context.Context, userID string, number int) (rating.Result, error)
}

// Coordinator runs the user deletion cascade. Each rating is removed in its own
// transaction and the user row goes last, so an interrupted cascade can simply be
// run again.
type Coordinator struct {
	store   repository.Store
	ratings Unrater
	retry   *retry.Config
	logger  *zap.Logger
}

func NewCoordinator(store repository.Store, ratings Unrater, retryCfg *retry.Config, logger *zap.Logger) *Coordinator {
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: store, ratings: ratings, retry: retryCfg, logger: logger}
}

// OnUserDeleted removes every rating of userID, recomputing each affected
// aggregate, then deletes the user's favorites and the user.
func (c *Coordinator) OnUserDeleted(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", apperrors.ErrValidation)
	}
	if _, err := c.store.GetUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user %q: %w", userID, err)
	}

	var removed int
	err := retry.DoIfRetryable(ctx, c.retry, func() error {
		n, err := c.cascade(ctx, userID)
		removed += n
		return err
	})
	if err != nil {
		return err
	}

	c.logger.Info("user deleted",
		zap.String("user_id", userID),
		zap.Int("ratings_removed", removed),
	)
	return nil
}

// cascade removes the ratings currently in the ledger and then the user, returning
// how many ratings this pass removed. Ratings inserted while it runs make the final
// step fail with ErrConflict, and the caller runs the cascade again.
func (c *Coordinator) cascade(ctx context.Context, userID string) (int, error) {
	ratings, err := c.store.UserRatings(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user %q: list ratings: %w", userID, err)
	}

	total := len(ratings)
	removed := 0
	for i, r := range ratings {
		if err := ctx.Err(); err != nil {
			return removed, fmt.Errorf("delete user %q: cancelled after %d of %d ratings: %w", userID, i, total, err)
		}
		_, err := c.ratings.Unrate(ctx, userID, r.PokedexNumber)
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			c.logger.Error("user deletion cascade aborted",
				zap.String("user_id", userID),
				zap.Int("pokedex_number", r.PokedexNumber),
				zap.Int("removed", removed),
				zap.Int("total", total),
				zap.Error(err),
			)
			return removed, fmt.Errorf("delete user %q: removed %d of %d ratings, pokemon %d failed: %w",
				userID, removed, total, r.PokedexNumber, err)
		}
		removed++
	}

	err = c.store.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockUserForDelete(ctx, userID); err != nil {
			return err
		}
		remaining, err := tx.CountUserRatings(ctx, userID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return fmt.Errorf("%w: %d ratings added during deletion", apperrors.ErrConflict, remaining)
		}
		if err := tx.DeleteFavorites(ctx, userID); err != nil {
			return err
		}
		return tx.DeleteUser(ctx, userID)
	})
	if err != nil {
		return removed, fmt.Errorf("delete user %q: %w", userID, err)
	}
	return removed, nil
}
