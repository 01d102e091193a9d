package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// TaskAlertEmail delivers a budget alert e-mail.
	TaskAlertEmail = "budget:alert_email"
	// QueueDefault is the queue alert e-mails are placed on.
	QueueDefault = "default"
)

// AlertEmailPayload is the task body of TaskAlertEmail.
type AlertEmailPayload struct {
	To      []string   `json:"to"`
	Subject string     `json:"subject"`
	Event   AlertEvent `json:"event"`
}

// NewAlertEmailTask builds the asynq task for an alert e-mail.
func NewAlertEmailTask(payload AlertEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAlertEmail, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EmailNotifier queues an alert e-mail for the worker.
type EmailNotifier struct {
	client     Enqueuer
	recipients []string
}

// NewEmailNotifier builds an EmailNotifier. Without recipients it does nothing.
func NewEmailNotifier(client Enqueuer, recipients []string) *EmailNotifier {
	return &EmailNotifier{client: client, recipients: recipients}
}

// BudgetAlertRaised implements Notifier.
func (n *EmailNotifier) BudgetAlertRaised(ctx context.Context, event AlertEvent) error {
	if n == nil || n.client == nil || len(n.recipients) == 0 {
		return nil
	}
	task, err := NewAlertEmailTask(AlertEmailPayload{
		To:      n.recipients,
		Subject: fmt.Sprintf("[%s] project %d budget alert", event.AlertType, event.ProjectID),
		Event:   event,
	})
	if err != nil {
		return err
	}
	if _, err := n.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue alert email: %w", err)
	}
	return nil
}
