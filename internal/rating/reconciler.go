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

// Reconciler re-derives aggregates from the ledger, correcting accumulated
// floating-point drift from the incremental updates.
type Reconciler struct {
	store  repository.Store
	retry  *retry.Config
	logger *zap.Logger
}

// ReconcileReport summarizes a ReconcileAll pass.
type ReconcileReport struct {
	Checked   int
	Corrected int
}

func NewReconciler(store repository.Store, retryCfg *retry.Config, logger *zap.Logger) *Reconciler {
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, retry: retryCfg, logger: logger}
}

// ReconcileOne recomputes a single aggregate under its row lock. It reports whether
// the stored aggregate was rewritten or deleted.
func (r *Reconciler) ReconcileOne(ctx context.Context, number int) (bool, error) {
	if err := domain.ValidatePokedexNumber(number); err != nil {
		return false, err
	}

	var changed bool
	err := retry.DoIfRetryable(ctx, r.retry, func() error {
		changed = false
		return r.store.InTx(ctx, func(tx repository.Tx) error {
			pokemon, err := tx.LockPokemon(ctx, number)
			if err != nil {
				return err
			}
			sum, count, err := tx.LedgerTotals(ctx, pokemon.ID)
			if err != nil {
				return err
			}
			if !pokemon.Drifted(sum, count) {
				return nil
			}

			r.logger.Info("aggregate drift corrected",
				zap.Int("pokedex_number", number),
				zap.Float64("stored_rating", pokemon.Rating),
				zap.Int64("stored_votes", pokemon.NumberOfVotes),
				zap.Float64("ledger_sum", sum),
				zap.Int64("ledger_count", count),
			)
			changed = true
			if count == 0 {
				return tx.DeletePokemon(ctx, pokemon.ID)
			}
			pokemon.Summary = domain.SummaryFromTotals(sum, count)
			_, err = tx.SavePokemon(ctx, pokemon)
			return err
		})
	})
	if err != nil {
		return false, fmt.Errorf("reconcile pokemon %d: %w", number, err)
	}
	return changed, nil
}

// ReconcileAll walks every stored aggregate. Aggregates deleted concurrently are
// skipped; any other failure stops the pass.
func (r *Reconciler) ReconcileAll(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	numbers, err := r.store.PokedexNumbers(ctx)
	if err != nil {
		return report, fmt.Errorf("list aggregates: %w", err)
	}
	for _, number := range numbers {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		changed, err := r.ReconcileOne(ctx, number)
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return report, err
		}
		report.Checked++
		if changed {
			report.Corrected++
		}
	}
	return report, nil
}

// Run reconciles on every tick until ctx is cancelled. A non-positive interval
// disables the loop.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		r.logger.Info("aggregate reconciliation disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := r.ReconcileAll(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				r.logger.Error("aggregate reconciliation failed", zap.Error(err))
				continue
			}
			r.logger.Info("aggregate reconciliation finished",
				zap.Int("checked", report.Checked),
				zap.Int("corrected", report.Corrected),
			)
		}
	}
}
