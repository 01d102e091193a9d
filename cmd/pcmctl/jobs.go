package main

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pcm/jobs"
)

// jobsCLI wraps manual management helpers for Asynq jobs.
type jobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

func newJobsCLI(redisAddr string) (*jobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &jobsCLI{client: client, inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *jobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

type enqueuedTask struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Queue string `json:"queue"`
}

type queueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

func (c *jobsCLI) inspectQueue() (queueStats, error) {
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return queueStats{}, err
	}
	stats := queueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = int(info.Pending)
		stats.Active = int(info.Active)
		stats.Scheduled = int(info.Scheduled)
		stats.Retry = int(info.Retry)
		stats.Archived = int(info.Archived)
	}
	return stats, nil
}

type scheduledTask struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	NextRunAt time.Time `json:"next_run_at"`
}

func (c *jobsCLI) listScheduled(size int) ([]scheduledTask, error) {
	if size <= 0 {
		size = 10
	}
	infos, err := c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil {
		return nil, err
	}
	out := make([]scheduledTask, 0, len(infos))
	for _, info := range infos {
		out = append(out, scheduledTask{ID: info.ID, Type: info.Type, NextRunAt: info.NextProcessAt})
	}
	return out, nil
}

func newJobsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Enqueue and inspect background jobs",
	}

	open := func() (*jobsCLI, error) {
		cfg, err := e.config()
		if err != nil {
			return nil, err
		}
		return newJobsCLI(cfg.RedisAddr)
	}

	var projectID int64
	enqueue := &cobra.Command{
		Use:   "enqueue-reconcile",
		Short: "Queue a budget reconciliation for the worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = cli.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			info, err := cli.client.EnqueueReconcile(ctx, projectID)
			if err != nil {
				return err
			}
			return e.printJSON(enqueuedTask{ID: info.ID, Type: info.Type, Queue: info.Queue})
		},
	}
	enqueue.Flags().Int64Var(&projectID, "project", 0, "reconcile a single project (0 reconciles every budget)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = cli.Close() }()
			s, err := cli.inspectQueue()
			if err != nil {
				return err
			}
			return e.printJSON(s)
		},
	}

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = cli.Close() }()
			tasks, err := cli.listScheduled(size)
			if err != nil {
				return err
			}
			return e.printJSON(tasks)
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "page size")

	cmd.AddCommand(enqueue, stats, scheduled)
	return cmd
}
