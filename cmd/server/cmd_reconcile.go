package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Clark-Hu/pokedex-ratings/internal/rating"
	"github.com/Clark-Hu/pokedex-ratings/internal/repository"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [pokedex-number]",
		Short: "Recompute rating aggregates from the ledger",
		Long:  "Recomputes one aggregate when a pokedex number is given, otherwise every stored aggregate.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			st, err := openStore(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer st.Close()

			reconciler := rating.NewReconciler(repository.New(st), retryConfig(), logger.Named("reconciler"))

			if len(args) == 1 {
				number, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid pokedex number %q", args[0])
				}
				changed, err := reconciler.ReconcileOne(cmd.Context(), number)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pokemon %d corrected=%t\n", number, changed)
				return nil
			}

			report, err := reconciler.ReconcileAll(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("reconciliation finished",
				zap.Int("checked", report.Checked),
				zap.Int("corrected", report.Corrected),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "checked=%d corrected=%d\n", report.Checked, report.Corrected)
			return nil
		},
	}
}
