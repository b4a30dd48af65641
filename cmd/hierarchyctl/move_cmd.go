package main

import (
	"context"

	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/models"
	"catalog-hierarchy/services"

	"github.com/spf13/cobra"
)

func newMoveCmd(opts *globalOptions) *cobra.Command {
	var parentID string

	cmd := &cobra.Command{
		Use:   "move <node-id>",
		Short: "Move a node and its subtree under another parent",
		Long:  "Move a node and its subtree under --parent. Without --parent the node becomes a root. Lock conflicts are retried with backoff.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), opts, func(ctx context.Context, m *services.HierarchyManager) error {
				result, err := apperrors.ExecuteWithResult(ctx, apperrors.MutationRetryConfig(),
					func() (*models.MoveResult, error) {
						return m.Move(ctx, args[0], optionalID(parentID))
					})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), result)
				}
				writeMoveResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&parentID, "parent", "", "new parent id (empty promotes to root)")
	return cmd
}
