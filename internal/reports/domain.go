// Package reports builds read-only financial, productivity and status rollups
// over time entries, expenses and budgets, and keeps saved report snapshots.
package reports

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// Type names a report kind.
type Type string

const (
	TypeFinancial     Type = "financial"
	TypeProductivity  Type = "productivity"
	TypeProjectStatus Type = "project_status"
	TypeTimeEntries   Type = "time_entries"
	TypeClient        Type = "client"
)

// ParseType validates a report type.
func ParseType(raw string) (Type, error) {
	switch t := Type(raw); t {
	case TypeFinancial, TypeProductivity, TypeProjectStatus, TypeTimeEntries, TypeClient:
		return t, nil
	default:
		return "", shared.NewValidationError("type", "unknown report type")
	}
}

// BandNoBudget marks projects without a live budget.
const BandNoBudget = "NoBudget"

// BandHealthy marks budgets below the warning threshold.
const BandHealthy = "Healthy"

// ProjectRow is a project joined with its client and live budget.
type ProjectRow struct {
	ProjectID     int64
	ProjectName   string
	ProjectStatus string
	ClientID      int64
	ClientName    string
	HourlyRate    decimal.Decimal
	BudgetID      *int64
	TotalBudget   decimal.Decimal
	SpentAmount   decimal.Decimal
	Warning       decimal.Decimal
	Critical      decimal.Decimal
}

// EntryRow is a time entry with its project's current rate.
type EntryRow struct {
	ID          int64
	ProjectID   int64
	ProjectName string
	DeveloperID string
	WorkDate    time.Time
	Hours       decimal.Decimal
	Status      string
	HourlyRate  decimal.Decimal
}

// Period bounds a report; zero values leave the side open.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (p Period) validate() error {
	if !p.From.IsZero() && !p.To.IsZero() && p.From.After(p.To) {
		return shared.NewValidationError("period", "from must not be after to")
	}
	return nil
}

func (p Period) key() string {
	return dateToken(p.From) + ":" + dateToken(p.To)
}

func (p Period) contains(t time.Time) bool {
	if !p.From.IsZero() && t.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && t.After(p.To) {
		return false
	}
	return true
}

func dateToken(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}

// FinancialFilter scopes the financial report.
type FinancialFilter struct {
	Period
	ClientID int64 `json:"client_id,omitempty"`
}

// FinancialRow is one project's money position.
type FinancialRow struct {
	ProjectID        int64           `json:"project_id"`
	ProjectName      string          `json:"project_name"`
	ClientName       string          `json:"client_name"`
	Budget           decimal.Decimal `json:"budget"`
	Spent            decimal.Decimal `json:"spent"`
	Remaining        decimal.Decimal `json:"remaining"`
	PercentageUsed   decimal.Decimal `json:"percentage_used"`
	BillableHours    decimal.Decimal `json:"billable_hours"`
	BillableAmount   decimal.Decimal `json:"billable_amount"`
	ApprovedExpenses decimal.Decimal `json:"approved_expenses"`
}

// FinancialTotals sums the financial rows.
type FinancialTotals struct {
	Budget           decimal.Decimal `json:"budget"`
	Spent            decimal.Decimal `json:"spent"`
	Remaining        decimal.Decimal `json:"remaining"`
	BillableHours    decimal.Decimal `json:"billable_hours"`
	BillableAmount   decimal.Decimal `json:"billable_amount"`
	ApprovedExpenses decimal.Decimal `json:"approved_expenses"`
}

// FinancialReport is budget versus billing per project.
type FinancialReport struct {
	Filter FinancialFilter `json:"filter"`
	Rows   []FinancialRow  `json:"rows"`
	Totals FinancialTotals `json:"totals"`
}

// DeveloperProductivity summarises one developer's logged time.
type DeveloperProductivity struct {
	DeveloperID    string          `json:"developer_id"`
	TotalHours     decimal.Decimal `json:"total_hours"`
	ApprovedHours  decimal.Decimal `json:"approved_hours"`
	PendingHours   decimal.Decimal `json:"pending_hours"`
	RejectedHours  decimal.Decimal `json:"rejected_hours"`
	EntryCount     int             `json:"entry_count"`
	ProjectCount   int             `json:"project_count"`
	ActiveDays     int             `json:"active_days"`
	AvgHoursPerDay decimal.Decimal `json:"avg_hours_per_day"`
}

// ProductivityReport lists developers by total hours.
type ProductivityReport struct {
	Period     Period                  `json:"period"`
	Developers []DeveloperProductivity `json:"developers"`
	TotalHours decimal.Decimal         `json:"total_hours"`
}

// ProjectStatusRow is the health snapshot of one project.
type ProjectStatusRow struct {
	ProjectID      int64           `json:"project_id"`
	ProjectName    string          `json:"project_name"`
	Status         string          `json:"status"`
	TotalBudget    decimal.Decimal `json:"total_budget"`
	Spent          decimal.Decimal `json:"spent"`
	PercentageUsed decimal.Decimal `json:"percentage_used"`
	Band           string          `json:"band"`
	OpenAlerts     int             `json:"open_alerts"`
	HoursLogged    decimal.Decimal `json:"hours_logged"`
}

// ProjectStatusReport covers every live project.
type ProjectStatusReport struct {
	Projects []ProjectStatusRow `json:"projects"`
}

// TimeEntryFilter scopes the time entry report.
type TimeEntryFilter struct {
	Period
	ProjectID   int64  `json:"project_id,omitempty"`
	DeveloperID string `json:"developer_id,omitempty"`
}

// StatusBucket counts entries in one status.
type StatusBucket struct {
	Status string          `json:"status"`
	Count  int             `json:"count"`
	Hours  decimal.Decimal `json:"hours"`
}

// ProjectBucket counts entries of one project.
type ProjectBucket struct {
	ProjectID   int64           `json:"project_id"`
	ProjectName string          `json:"project_name"`
	Count       int             `json:"count"`
	Hours       decimal.Decimal `json:"hours"`
}

// TimeEntryReport is the status and project breakdown of logged time.
type TimeEntryReport struct {
	Filter     TimeEntryFilter `json:"filter"`
	ByStatus   []StatusBucket  `json:"by_status"`
	ByProject  []ProjectBucket `json:"by_project"`
	TotalCount int             `json:"total_count"`
	TotalHours decimal.Decimal `json:"total_hours"`
}

// ClientProject is one project of a client report.
type ClientProject struct {
	ProjectID      int64           `json:"project_id"`
	ProjectName    string          `json:"project_name"`
	Hours          decimal.Decimal `json:"hours"`
	BillableAmount decimal.Decimal `json:"billable_amount"`
}

// InvoiceTotals aggregates a client's invoices in a period.
type InvoiceTotals struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// ClientReport summarises work and invoicing for one client.
type ClientReport struct {
	ClientID      int64           `json:"client_id"`
	ClientName    string          `json:"client_name"`
	Period        Period          `json:"period"`
	Projects      []ClientProject `json:"projects"`
	TotalHours    decimal.Decimal `json:"total_hours"`
	TotalBillable decimal.Decimal `json:"total_billable"`
	InvoiceCount  int             `json:"invoice_count"`
	TotalInvoiced decimal.Decimal `json:"total_invoiced"`
}

// UnknownClientName labels client reports for unknown clients.
const UnknownClientName = "Unknown client"

// SavedReport is a stored report snapshot.
type SavedReport struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Type      Type            `json:"type"`
	Filters   json.RawMessage `json:"filters"`
	Result    json.RawMessage `json:"result"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
	IsDeleted bool            `json:"-"`
}

// SaveInput is the payload for storing a snapshot.
type SaveInput struct {
	Name    string          `json:"name" validate:"required,max=200"`
	Type    string          `json:"type" validate:"required"`
	Filters json.RawMessage `json:"filters"`
	Result  json.RawMessage `json:"result" validate:"required"`
}

// ErrSavedNotFound occurs when a saved report id is unknown.
var ErrSavedNotFound = fmt.Errorf("saved report %w", shared.ErrNotFound)
