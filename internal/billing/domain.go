// Package billing rolls approved time entries up into client billing runs and
// invoices.
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// UnknownClientName labels billing results for unknown clients.
const UnknownClientName = "Unknown client"

// Client is the billed party.
type Client struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// BillableEntry is an approved time entry joined with its project's rate.
type BillableEntry struct {
	EntryID     int64
	ProjectID   int64
	ProjectName string
	HourlyRate  decimal.Decimal
	Hours       decimal.Decimal
}

// LineItem is the billed total of one project.
type LineItem struct {
	ProjectID   int64           `json:"project_id"`
	ProjectName string          `json:"project_name"`
	HourlyRate  decimal.Decimal `json:"hourly_rate"`
	TotalHours  decimal.Decimal `json:"total_hours"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	EntryCount  int             `json:"entry_count"`
}

// ClientBilling is the result of a billing run.
type ClientBilling struct {
	ClientID        int64           `json:"client_id"`
	ClientName      string          `json:"client_name"`
	PeriodFrom      time.Time       `json:"period_from"`
	PeriodTo        time.Time       `json:"period_to"`
	Items           []LineItem      `json:"items"`
	TotalHours      decimal.Decimal `json:"total_hours"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	EntriesInvoiced int             `json:"entries_invoiced"`
}

// Invoice is an immutable billing document.
type Invoice struct {
	ID            int64           `json:"id"`
	ClientID      int64           `json:"client_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PeriodFrom    time.Time       `json:"period_from"`
	PeriodTo      time.Time       `json:"period_to"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	ClientID int64
	Year     int
	Page     shared.Page
}

// PeriodRequest is the wire form of a billing period.
type PeriodRequest struct {
	ClientID int64  `json:"client_id" validate:"required,gt=0"`
	From     string `json:"from" validate:"required,datetime=2006-01-02"`
	To       string `json:"to" validate:"required,datetime=2006-01-02"`
}

func validatePeriod(clientID int64, from, to time.Time) error {
	if clientID <= 0 {
		return shared.NewValidationError("client_id", "must be a positive integer")
	}
	if from.IsZero() || to.IsZero() {
		return shared.NewValidationError("period", "from and to are required")
	}
	if from.After(to) {
		return shared.NewValidationError("period", "from must not be after to")
	}
	return nil
}

var (
	// ErrClientNotFound occurs when invoicing an unknown client.
	ErrClientNotFound = fmt.Errorf("client %w", shared.ErrNotFound)
	// ErrInvoiceNotFound occurs when an invoice id is unknown.
	ErrInvoiceNotFound = fmt.Errorf("invoice %w", shared.ErrNotFound)
)
