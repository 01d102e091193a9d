package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pcm/internal/app"
	"github.com/odyssey-erp/odyssey-pcm/internal/platform/db"
)

// env carries what every subcommand needs. Config and the pool load lazily so
// `--help` and offline commands never touch the network.
type env struct {
	out        io.Writer
	loadConfig func() (*app.Config, error)
	cfg        *app.Config
	logger     *slog.Logger
}

func (e *env) config() (*app.Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	e.cfg = cfg
	e.logger = app.NewLogger(cfg)
	return cfg, nil
}

func (e *env) pool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	return db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
}

func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd(out io.Writer) *cobra.Command {
	return newRootCmdWithEnv(&env{out: out, loadConfig: app.LoadConfig})
}

func newRootCmdWithEnv(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "pcmctl",
		Short:         "Operate the Odyssey project-control service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(e.out)
	root.AddCommand(
		newTokenCmd(e),
		newBudgetCmd(e),
		newInvoiceCmd(e),
		newJobsCmd(e),
		newSeedCmd(e),
		newMigrateCmd(e),
	)
	return root
}
