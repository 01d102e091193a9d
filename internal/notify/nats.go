package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Publisher is the slice of *nats.Conn used for alert events.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes alert events as JSON on pcm.budget.alert.<type>.
type NATSNotifier struct {
	pub Publisher
}

// NewNATSNotifier wraps a publisher.
func NewNATSNotifier(pub Publisher) *NATSNotifier {
	return &NATSNotifier{pub: pub}
}

// Connect dials NATS with a named connection.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name("odyssey-pcm"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}

// BudgetAlertRaised implements Notifier.
func (n *NATSNotifier) BudgetAlertRaised(ctx context.Context, event AlertEvent) error {
	if n == nil || n.pub == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	subject := Subject(event.AlertType)
	if err := n.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
