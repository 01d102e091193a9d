package main

import (
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pcm/internal/billing"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

func newInvoiceCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Invoice numbering helpers",
	}

	var year int
	preview := &cobra.Command{
		Use:   "preview-number",
		Short: "Show the number the next invoice of a year would receive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := e.config(); err != nil {
				return err
			}
			pool, err := e.pool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := billing.NewService(billing.NewRepository(pool), shared.NewAuditLogger(pool), billing.ServiceConfig{Logger: e.logger})
			number, err := svc.PreviewNumber(ctx, year)
			if err != nil {
				return err
			}
			return e.printJSON(map[string]string{"invoice_number": number})
		},
	}
	preview.Flags().IntVar(&year, "year", 0, "invoice year (defaults to the current year)")

	cmd.AddCommand(preview)
	return cmd
}
