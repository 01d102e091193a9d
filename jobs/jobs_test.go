package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pcm/internal/budget"
	jobmetrics "github.com/odyssey-erp/odyssey-pcm/internal/jobs"
	"github.com/odyssey-erp/odyssey-pcm/internal/notify"
)

type fakeReconciler struct {
	single  map[int64]budget.ReconcileResult
	all     []budget.ReconcileResult
	allErr  error
	calls   []int64
	allRuns int
}

func (f *fakeReconciler) Reconcile(_ context.Context, projectID int64) (budget.ReconcileResult, error) {
	f.calls = append(f.calls, projectID)
	res, ok := f.single[projectID]
	if !ok {
		return budget.ReconcileResult{}, budget.ErrNotFound
	}
	return res, nil
}

func (f *fakeReconciler) ReconcileAll(context.Context) ([]budget.ReconcileResult, error) {
	f.allRuns++
	return f.all, f.allErr
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func drift(projectID int64, previous, recomputed string) budget.ReconcileResult {
	p, r := decimal.RequireFromString(previous), decimal.RequireFromString(recomputed)
	return budget.ReconcileResult{ProjectID: projectID, Previous: p, Recomputed: r, Drift: r.Sub(p)}
}

func TestBudgetReconcileAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	fake := &fakeReconciler{all: []budget.ReconcileResult{
		drift(1, "100", "100"),
		drift(2, "100", "150"),
		drift(3, "90", "80"),
	}}
	job := NewBudgetReconcileJob(fake, nil, jobmetrics.NewMetrics(reg))

	task, err := NewBudgetReconcileTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, 1, fake.allRuns)
	require.Equal(t, 2.0, counterValue(t, reg, "odyssey_budget_reconcile_repairs_total"))
	require.Equal(t, 1.0, counterValue(t, reg, "odyssey_jobs_total"))
}

func TestBudgetReconcileSingleProject(t *testing.T) {
	reg := prometheus.NewRegistry()
	fake := &fakeReconciler{single: map[int64]budget.ReconcileResult{7: drift(7, "10", "12")}}
	job := NewBudgetReconcileJob(fake, nil, jobmetrics.NewMetrics(reg))

	task, err := NewBudgetReconcileTask(7)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []int64{7}, fake.calls)
	require.Equal(t, 1.0, counterValue(t, reg, "odyssey_budget_reconcile_repairs_total"))

	missing, err := NewBudgetReconcileTask(8)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), missing))
}

func TestBudgetReconcilePartialFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	fake := &fakeReconciler{all: []budget.ReconcileResult{drift(1, "1", "2")}, allErr: errors.New("project 2: deadlock")}
	job := NewBudgetReconcileJob(fake, nil, jobmetrics.NewMetrics(reg))

	task, err := NewBudgetReconcileTask(0)
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
	require.Equal(t, 1.0, counterValue(t, reg, "odyssey_budget_reconcile_repairs_total"))
	require.Equal(t, 1.0, counterValue(t, reg, "odyssey_jobs_failures_total"))
}

func TestBudgetReconcileBadPayload(t *testing.T) {
	job := NewBudgetReconcileJob(&fakeReconciler{}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), asynq.NewTask(TaskBudgetReconcile, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestAlertEmailJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := NewAlertEmailJob(nil, jobmetrics.NewMetrics(reg))

	task, err := notify.NewAlertEmailTask(notify.AlertEmailPayload{
		To:      []string{"finance@example.com"},
		Subject: "[Warning] project 4 budget alert",
		Event:   notify.AlertEvent{AlertID: 1, ProjectID: 4, AlertType: "Warning"},
	})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1.0, counterValue(t, reg, "odyssey_budget_alert_emails_total"))

	empty, err := notify.NewAlertEmailTask(notify.AlertEmailPayload{Event: notify.AlertEvent{AlertType: "Critical"}})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), empty), asynq.SkipRetry)
	require.Equal(t, 1.0, counterValue(t, reg, "odyssey_jobs_failures_total"))

	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(notify.TaskAlertEmail, []byte("nope"))), asynq.SkipRetry)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, QueueDefault, body.Queue)
}
