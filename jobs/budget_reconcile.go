package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pcm/internal/budget"
	jobmetrics "github.com/odyssey-erp/odyssey-pcm/internal/jobs"
)

const (
	// TaskBudgetReconcile recomputes budget spend from approved expenses.
	TaskBudgetReconcile = "budget:reconcile"
)

// BudgetReconcilePayload scopes a reconciliation run. A zero ProjectID
// reconciles every live budget.
type BudgetReconcilePayload struct {
	ProjectID int64 `json:"project_id,omitempty"`
}

// Reconciler describes the budget operations the job drives.
type Reconciler interface {
	Reconcile(ctx context.Context, projectID int64) (budget.ReconcileResult, error)
	ReconcileAll(ctx context.Context) ([]budget.ReconcileResult, error)
}

// BudgetReconcileJob repairs drift between persisted spend and approved expenses.
type BudgetReconcileJob struct {
	Service Reconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewBudgetReconcileJob constructs the job handler.
func NewBudgetReconcileJob(service Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *BudgetReconcileJob {
	return &BudgetReconcileJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewBudgetReconcileTask creates an Asynq task for reconciling budgets.
func NewBudgetReconcileTask(projectID int64) (*asynq.Task, error) {
	if projectID < 0 {
		projectID = 0
	}
	body, err := json.Marshal(BudgetReconcilePayload{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBudgetReconcile, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// Handle executes the reconcile job.
func (j *BudgetReconcileJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("budget reconcile: dependencies not configured")
	}
	var payload BudgetReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.ProjectID < 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskBudgetReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	var results []budget.ReconcileResult
	if payload.ProjectID > 0 {
		res, err := j.Service.Reconcile(ctx, payload.ProjectID)
		if errors.Is(err, budget.ErrNotFound) {
			j.log().Warn("no budget to reconcile", slog.Int64("project_id", payload.ProjectID))
			return resultErr
		}
		if err != nil {
			resultErr = err
			j.log().Error("reconcile budget", slog.Int64("project_id", payload.ProjectID), slog.Any("error", err))
			return resultErr
		}
		results = append(results, res)
	} else {
		var err error
		results, err = j.Service.ReconcileAll(ctx)
		if err != nil {
			resultErr = err
			j.log().Error("reconcile budgets", slog.Int("reconciled", len(results)), slog.Any("error", err))
		}
	}

	repaired := 0
	for _, res := range results {
		if !res.Repaired() {
			continue
		}
		repaired++
		j.log().Warn("repaired budget spend",
			slog.Int64("project_id", res.ProjectID),
			slog.String("previous", res.Previous.StringFixed(2)),
			slog.String("recomputed", res.Recomputed.StringFixed(2)))
	}
	j.metrics().AddRepairs(repaired)
	j.log().Info("reconciled budgets", slog.Int("budgets", len(results)), slog.Int("repaired", repaired), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *BudgetReconcileJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *BudgetReconcileJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBudgetReconcile))
	}
	return slog.Default().With(slog.String("job", TaskBudgetReconcile))
}

func (j *BudgetReconcileJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *BudgetReconcileJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
