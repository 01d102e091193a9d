package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pcm/internal/jobs"
	"github.com/odyssey-erp/odyssey-pcm/internal/notify"
)

// QueueDefault is the default queue name for background jobs.
const QueueDefault = notify.QueueDefault

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AlertEmailJob delivers queued budget alert e-mails. Delivery is a logged
// stub until an SMTP relay is configured.
type AlertEmailJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAlertEmailJob constructs the job handler.
func NewAlertEmailJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *AlertEmailJob {
	return &AlertEmailJob{Logger: logger, Metrics: metrics}
}

// Handle processes notify.TaskAlertEmail tasks.
func (j *AlertEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload notify.AlertEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(notify.TaskAlertEmail)
	if len(payload.To) == 0 {
		j.metrics().AlertDelivered(payload.Event.AlertType, false)
		j.log().Warn("alert email without recipients", slog.Int64("alert_id", payload.Event.AlertID))
		return tracker.End(asynq.SkipRetry)
	}
	j.log().Info("send alert email",
		slog.String("to", strings.Join(payload.To, ",")),
		slog.String("subject", payload.Subject),
		slog.Int64("project_id", payload.Event.ProjectID),
		slog.String("message", payload.Event.Message))
	j.metrics().AlertDelivered(payload.Event.AlertType, true)
	return tracker.End(nil)
}

func (j *AlertEmailJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AlertEmailJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", notify.TaskAlertEmail))
	}
	return slog.Default().With(slog.String("job", notify.TaskAlertEmail))
}
