package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pcm/internal/seed"
)

func newSeedCmd(e *env) *cobra.Command {
	var (
		file   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load users, clients, projects and budgets from a YAML fixture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fh, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open fixture: %w", err)
			}
			defer func() { _ = fh.Close() }()

			fixture, err := seed.Load(fh)
			if err != nil {
				return err
			}
			if dryRun {
				return e.printJSON(seed.Summary{
					Users:    len(fixture.Users),
					Clients:  len(fixture.Clients),
					Projects: len(fixture.Projects),
					Budgets:  len(fixture.Budgets),
				})
			}

			pool, err := e.pool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			summary, err := seed.Apply(cmd.Context(), pool, fixture)
			if err != nil {
				return err
			}
			return e.printJSON(summary)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "fixture path")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the fixture without writing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
