package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/models"
	"catalog-hierarchy/services"

	"github.com/spf13/cobra"
)

func newValidateCmd(opts *globalOptions) *cobra.Command {
	var failOnAnomaly bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Report path, depth, orphan, cycle and sort-order anomalies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), opts, func(ctx context.Context, m *services.HierarchyManager) error {
				report, err := m.ValidateForest(ctx)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					if err := printJSON(cmd.OutOrStdout(), report); err != nil {
						return err
					}
				} else {
					writeValidationReport(cmd.OutOrStdout(), report)
				}
				if failOnAnomaly && len(report.Anomalies) > 0 {
					return fmt.Errorf("%d anomalies found", len(report.Anomalies))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failOnAnomaly, "fail", false, "exit non-zero when anomalies are found")
	return cmd
}

func newRepairCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Validate the forest and rewrite every repairable anomaly",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), opts, func(ctx context.Context, m *services.HierarchyManager) error {
				retryer := apperrors.NewRetryer(apperrors.MutationRetryConfig())
				var report *models.RepairReport
				err := retryer.Execute(ctx, func() error {
					var err error
					report, err = m.Repair(ctx, nil)
					return err
				})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), report)
				}
				writeRepairReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
}

func newResolveOrphanCmd(opts *globalOptions) *cobra.Command {
	var (
		action   string
		parentID string
	)

	cmd := &cobra.Command{
		Use:   "resolve-orphan <node-id>",
		Short: "Reparent or delete a node whose parent no longer exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolution := models.OrphanResolution{
				Action:      models.OrphanAction(action),
				NewParentID: optionalID(parentID),
			}
			return withManager(cmd.Context(), opts, func(ctx context.Context, m *services.HierarchyManager) error {
				retryer := apperrors.NewRetryer(apperrors.MutationRetryConfig())
				var result *models.MoveResult
				err := retryer.Execute(ctx, func() error {
					var err error
					result, err = m.ResolveOrphan(ctx, args[0], resolution)
					return err
				})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return printJSON(cmd.OutOrStdout(), result)
				}
				if resolution.Action == models.OrphanActionDelete {
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
					return nil
				}
				writeMoveResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", string(models.OrphanActionReparent), "reparent or delete")
	cmd.Flags().StringVar(&parentID, "parent", "", "new parent id for reparent (empty promotes to root)")
	return cmd
}

func writeValidationReport(w io.Writer, report *models.ValidationReport) {
	fmt.Fprintf(w, "checked %d nodes in %s\n", report.NodesTotal, report.Duration)
	if len(report.Anomalies) == 0 {
		fmt.Fprintln(w, "no anomalies")
		return
	}

	kinds := make([]string, 0, len(report.CountByKind))
	for kind := range report.CountByKind {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(w, "  %-22s %d\n", kind, report.CountByKind[models.AnomalyKind(kind)])
	}
	for _, a := range report.Anomalies {
		fmt.Fprintf(w, "%s %s: expected %q, actual %q\n", a.Kind, a.NodeID, a.Expected, a.Actual)
	}
}

func writeRepairReport(w io.Writer, report *models.RepairReport) {
	fmt.Fprintf(w, "repaired %d rows in %s\n", report.RepairedCount, report.Duration)
	for _, u := range report.Unrepairable {
		fmt.Fprintf(w, "unrepairable %s %s: %s\n", u.Anomaly.Kind, u.Anomaly.NodeID, u.Reason)
	}
}

func writeMoveResult(w io.Writer, result *models.MoveResult) {
	fmt.Fprintf(w, "%s now at %s\n", result.Node.ID, result.Node.MaterializedPath)
	for _, c := range result.Changes {
		fmt.Fprintf(w, "  %s -> %s\n", c.OldPath, c.NewPath)
	}
}
