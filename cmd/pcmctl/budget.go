package main

import (
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pcm/internal/budget"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

func newBudgetCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect and repair project budgets",
	}

	var projectID int64
	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute spent amounts from approved expenses",
		Long:  "Recompute spent_amount from approved expenses and raise any alert the corrected spend crosses. Without --project every live budget is reconciled.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := e.config()
			if err != nil {
				return err
			}
			pool, err := e.pool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			thresholds, err := cfg.Thresholds()
			if err != nil {
				return err
			}
			svc := budget.NewService(budget.NewRepository(pool), shared.NewAuditLogger(pool), budget.ServiceConfig{
				Defaults: thresholds,
				Logger:   e.logger,
			})

			if projectID > 0 {
				result, err := svc.Reconcile(ctx, projectID)
				if err != nil {
					return err
				}
				return e.printJSON([]budget.ReconcileResult{result})
			}
			results, err := svc.ReconcileAll(ctx)
			if results == nil {
				results = []budget.ReconcileResult{}
			}
			if printErr := e.printJSON(results); printErr != nil {
				return printErr
			}
			return err
		},
	}
	reconcile.Flags().Int64Var(&projectID, "project", 0, "reconcile a single project")

	cmd.AddCommand(reconcile)
	return cmd
}
