// Package budget keeps per-project budgets, derives spend summaries and raises
// threshold alerts when approved spend crosses configured bands.
package budget

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// UnknownProjectName labels summaries for projects without a live budget.
const UnknownProjectName = "Unknown project"

var hundred = decimal.NewFromInt(100)

// AlertType enumerates alert bands.
type AlertType string

const (
	AlertWarning  AlertType = "Warning"
	AlertCritical AlertType = "Critical"
	AlertExceeded AlertType = "Exceeded"
)

// IsValid checks if the alert type is known.
func (t AlertType) IsValid() bool {
	switch t {
	case AlertWarning, AlertCritical, AlertExceeded:
		return true
	default:
		return false
	}
}

// ProjectBudget is the financial ceiling of one project.
type ProjectBudget struct {
	ID                int64               `json:"id"`
	ProjectID         int64               `json:"project_id"`
	TotalBudget       decimal.Decimal     `json:"total_budget"`
	LaborBudget       decimal.NullDecimal `json:"labor_budget"`
	MaterialBudget    decimal.NullDecimal `json:"material_budget"`
	OtherBudget       decimal.NullDecimal `json:"other_budget"`
	SpentAmount       decimal.Decimal     `json:"spent_amount"`
	WarningThreshold  decimal.Decimal     `json:"warning_threshold"`
	CriticalThreshold decimal.Decimal     `json:"critical_threshold"`
	IsDeleted         bool                `json:"is_deleted"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// RemainingAmount is total minus spent; negative once overspent.
func (b ProjectBudget) RemainingAmount() decimal.Decimal {
	return b.TotalBudget.Sub(b.SpentAmount)
}

// PercentageUsed is spent/total*100, or zero when the budget total is zero.
func (b ProjectBudget) PercentageUsed() decimal.Decimal {
	if !b.TotalBudget.IsPositive() {
		return decimal.Zero
	}
	return b.SpentAmount.Div(b.TotalBudget).Mul(hundred)
}

// Thresholds returns the budget's alert fractions.
func (b ProjectBudget) Thresholds() Thresholds {
	return Thresholds{Warning: b.WarningThreshold, Critical: b.CriticalThreshold}
}

// BudgetAlert records that spend crossed a band.
type BudgetAlert struct {
	ID              int64           `json:"id"`
	ProjectBudgetID int64           `json:"project_budget_id"`
	ProjectID       int64           `json:"project_id"`
	AlertType       AlertType       `json:"alert_type"`
	ThresholdAmount decimal.Decimal `json:"threshold_amount"`
	CurrentAmount   decimal.Decimal `json:"current_amount"`
	PercentageUsed  decimal.Decimal `json:"percentage_used"`
	Message         string          `json:"message"`
	IsAcknowledged  bool            `json:"is_acknowledged"`
	AcknowledgedBy  *string         `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time      `json:"acknowledged_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Thresholds holds the warning/critical fractions of a budget.
type Thresholds struct {
	Warning  decimal.Decimal `json:"warning"`
	Critical decimal.Decimal `json:"critical"`
}

// DefaultThresholds mirrors the stock 75%/90% bands.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: decimal.RequireFromString("0.75"), Critical: decimal.RequireFromString("0.90")}
}

// Validate ensures both fractions are in [0,1] and critical is not below warning.
func (t Thresholds) Validate() error {
	one := decimal.NewFromInt(1)
	if t.Warning.IsNegative() || t.Warning.GreaterThan(one) {
		return shared.NewValidationError("warning_threshold", "must be between 0 and 1")
	}
	if t.Critical.IsNegative() || t.Critical.GreaterThan(one) {
		return shared.NewValidationError("critical_threshold", "must be between 0 and 1")
	}
	if t.Critical.LessThan(t.Warning) {
		return shared.NewValidationError("critical_threshold", "must not be below warning_threshold")
	}
	return nil
}

// ExpenseLine is the slice of an expense the aggregator needs.
type ExpenseLine struct {
	ID       int64
	Category string
	Status   string
	Amount   decimal.Decimal
}

// Expense status and category names as stored.
const (
	expenseApproved = "Approved"
	expensePending  = "Pending"
	expenseRejected = "Rejected"

	categoryLabor     = "Labor"
	categoryMaterials = "Materials"
)

// CategorySpend compares a category allowance with approved spend.
type CategorySpend struct {
	Budget decimal.NullDecimal `json:"budget"`
	Spent  decimal.Decimal     `json:"spent"`
}

// Summary is the derived financial view of a project budget.
type Summary struct {
	ProjectID         int64           `json:"project_id"`
	ProjectName       string          `json:"project_name"`
	BudgetID          int64           `json:"budget_id"`
	TotalBudget       decimal.Decimal `json:"total_budget"`
	TotalSpent        decimal.Decimal `json:"total_spent"`
	Remaining         decimal.Decimal `json:"remaining"`
	PercentageUsed    decimal.Decimal `json:"percentage_used"`
	WarningThreshold  decimal.Decimal `json:"warning_threshold"`
	CriticalThreshold decimal.Decimal `json:"critical_threshold"`
	Labor             CategorySpend   `json:"labor"`
	Materials         CategorySpend   `json:"materials"`
	Other             CategorySpend   `json:"other"`
	ExpenseCount      int             `json:"expense_count"`
	PendingCount      int             `json:"pending_count"`
	ApprovedCount     int             `json:"approved_count"`
	RejectedCount     int             `json:"rejected_count"`
	HasWarningAlert   bool            `json:"has_warning_alert"`
	HasCriticalAlert  bool            `json:"has_critical_alert"`
	HasExceededBudget bool            `json:"has_exceeded_budget"`
	ComputedSpent     decimal.Decimal `json:"computed_spent"`
	Drift             decimal.Decimal `json:"drift"`
}

// Forecast projects how long the remaining budget lasts at the current pace.
type Forecast struct {
	ProjectID            int64           `json:"project_id"`
	BurnRate             decimal.Decimal `json:"burn_rate"`
	EstimatedDaysLeft    *int            `json:"estimated_days_until_exhausted"`
	DaysSinceBudgetStart int             `json:"days_since_budget_start"`
}

// ReconcileResult reports the outcome of a spent-amount repair.
type ReconcileResult struct {
	ProjectID  int64           `json:"project_id"`
	BudgetID   int64           `json:"budget_id"`
	Previous   decimal.Decimal `json:"previous"`
	Recomputed decimal.Decimal `json:"recomputed"`
	Drift      decimal.Decimal `json:"drift"`
	Alert      *BudgetAlert    `json:"alert,omitempty"`
}

// Repaired reports whether the persisted spend was corrected.
func (r ReconcileResult) Repaired() bool {
	return !r.Drift.IsZero()
}

// CreateInput captures budget creation input.
type CreateInput struct {
	ProjectID         int64               `json:"project_id" validate:"required,gt=0"`
	TotalBudget       decimal.Decimal     `json:"total_budget"`
	LaborBudget       decimal.NullDecimal `json:"labor_budget"`
	MaterialBudget    decimal.NullDecimal `json:"material_budget"`
	OtherBudget       decimal.NullDecimal `json:"other_budget"`
	WarningThreshold  *decimal.Decimal    `json:"warning_threshold,omitempty"`
	CriticalThreshold *decimal.Decimal    `json:"critical_threshold,omitempty"`
}

// Validate ensures amounts are non-negative.
func (in CreateInput) Validate() error {
	if in.ProjectID <= 0 {
		return shared.NewValidationError("project_id", "must be a positive integer")
	}
	if in.TotalBudget.IsNegative() {
		return shared.NewValidationError("total_budget", "must not be negative")
	}
	return validateCategoryBudgets(in.LaborBudget, in.MaterialBudget, in.OtherBudget)
}

// UpdateInput captures partial budget changes.
type UpdateInput struct {
	TotalBudget       *decimal.Decimal    `json:"total_budget,omitempty"`
	LaborBudget       decimal.NullDecimal `json:"labor_budget"`
	MaterialBudget    decimal.NullDecimal `json:"material_budget"`
	OtherBudget       decimal.NullDecimal `json:"other_budget"`
	WarningThreshold  *decimal.Decimal    `json:"warning_threshold,omitempty"`
	CriticalThreshold *decimal.Decimal    `json:"critical_threshold,omitempty"`
}

// Validate ensures amounts are non-negative.
func (in UpdateInput) Validate() error {
	if in.TotalBudget != nil && in.TotalBudget.IsNegative() {
		return shared.NewValidationError("total_budget", "must not be negative")
	}
	return validateCategoryBudgets(in.LaborBudget, in.MaterialBudget, in.OtherBudget)
}

func validateCategoryBudgets(values ...decimal.NullDecimal) error {
	names := []string{"labor_budget", "material_budget", "other_budget"}
	for i, v := range values {
		if v.Valid && v.Decimal.IsNegative() {
			return shared.NewValidationError(names[i], "must not be negative")
		}
	}
	return nil
}

var (
	// ErrNotFound occurs when the project has no live budget.
	ErrNotFound = fmt.Errorf("budget %w", shared.ErrNotFound)
	// ErrAlertNotFound occurs when an alert id is unknown.
	ErrAlertNotFound = fmt.Errorf("budget alert %w", shared.ErrNotFound)
	// ErrAlreadyExists occurs when a project already has a live budget.
	ErrAlreadyExists = fmt.Errorf("%w: project already has a budget", shared.ErrDuplicate)
	// ErrAlreadyAcknowledged occurs on a second acknowledgement.
	ErrAlreadyAcknowledged = fmt.Errorf("%w: alert already acknowledged", shared.ErrConflict)
)
