package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Clark-Hu/pokedex-ratings/internal/lifecycle"
	"github.com/Clark-Hu/pokedex-ratings/internal/rating"
	"github.com/Clark-Hu/pokedex-ratings/internal/repository"
)

// deleteUserCmd runs or resumes the deletion cascade for one user.
func deleteUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-user <user-id>",
		Short: "Delete a user, removing their ratings and favorites",
		Args:  cobra.ExactArgs(1),
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

			repo := repository.New(st)
			svc := rating.NewService(repo, nil, retryConfig(), logger.Named("rating"))
			coord := lifecycle.NewCoordinator(repo, svc, retryConfig(), logger.Named("lifecycle"))
			if err := coord.OnUserDeleted(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s deleted\n", args[0])
			return nil
		},
	}
}
