// Package notify fans budget alert events out to external collaborators.
// Delivery is best effort and happens after the owning transaction commits.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// AlertEvent describes a newly raised budget alert.
type AlertEvent struct {
	AlertID         int64     `json:"alert_id"`
	BudgetID        int64     `json:"budget_id"`
	ProjectID       int64     `json:"project_id"`
	AlertType       string    `json:"alert_type"`
	ThresholdAmount string    `json:"threshold_amount"`
	CurrentAmount   string    `json:"current_amount"`
	PercentageUsed  string    `json:"percentage_used"`
	Message         string    `json:"message"`
	RaisedAt        time.Time `json:"raised_at"`
}

// Notifier receives budget alert events.
type Notifier interface {
	BudgetAlertRaised(ctx context.Context, event AlertEvent) error
}

// Noop discards every event.
type Noop struct{}

// BudgetAlertRaised implements Notifier.
func (Noop) BudgetAlertRaised(context.Context, AlertEvent) error { return nil }

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

// BudgetAlertRaised implements Notifier.
func (m Multi) BudgetAlertRaised(ctx context.Context, event AlertEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.BudgetAlertRaised(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Deliver sends every event and logs failures instead of returning them.
func Deliver(ctx context.Context, n Notifier, logger *slog.Logger, events ...AlertEvent) {
	if n == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, event := range events {
		if err := n.BudgetAlertRaised(ctx, event); err != nil {
			logger.Warn("budget alert notification failed",
				slog.Int64("alert_id", event.AlertID),
				slog.Int64("project_id", event.ProjectID),
				slog.String("alert_type", event.AlertType),
				slog.Any("error", err))
		}
	}
}

// Subject returns the bus subject of an alert type, e.g. pcm.budget.alert.warning.
func Subject(alertType string) string {
	return subjectPrefix + strings.ToLower(alertType)
}

const subjectPrefix = "pcm.budget.alert."
