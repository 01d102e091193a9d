package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pcm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pcm/migrations"
)

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded schema migrations that have not run yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pool, err := e.pool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
				name TEXT PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`); err != nil {
				return fmt.Errorf("ensure schema_migrations: %w", err)
			}

			names, err := migrations.Names()
			if err != nil {
				return err
			}
			applied := []string{}
			for _, name := range names {
				ran, err := applyMigration(ctx, pool, name)
				if err != nil {
					return err
				}
				if ran {
					applied = append(applied, name)
				}
			}
			return e.printJSON(map[string][]string{"applied": applied})
		},
	}
}

func applyMigration(ctx context.Context, pool db.Beginner, name string) (bool, error) {
	body, err := migrations.Files.ReadFile(name)
	if err != nil {
		return false, err
	}
	ran := false
	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return nil
		}
		if _, err := tx.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			return err
		}
		ran = true
		return nil
	})
	return ran, err
}
