// Package expenses stores project expenses and runs their approval workflow.
package expenses

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// Category classifies an expense.
type Category string

const (
	CategoryLabor     Category = "Labor"
	CategoryMaterials Category = "Materials"
	CategoryTravel    Category = "Travel"
	CategoryEquipment Category = "Equipment"
	CategorySoftware  Category = "Software"
	CategoryOther     Category = "Other"
)

var categories = []Category{CategoryLabor, CategoryMaterials, CategoryTravel, CategoryEquipment, CategorySoftware, CategoryOther}

// ParseCategory maps a case-insensitive name onto a Category.
func ParseCategory(raw string) (Category, error) {
	for _, c := range categories {
		if strings.EqualFold(strings.TrimSpace(raw), string(c)) {
			return c, nil
		}
	}
	return "", shared.NewValidationError("category", fmt.Sprintf("unknown category %q", raw))
}

// Status enumerates expense approval states.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// ParseStatus maps a case-insensitive name onto a Status.
func ParseStatus(raw string) (Status, error) {
	for _, s := range []Status{StatusPending, StatusApproved, StatusRejected} {
		if strings.EqualFold(strings.TrimSpace(raw), string(s)) {
			return s, nil
		}
	}
	return "", shared.NewValidationError("status", fmt.Sprintf("unknown status %q", raw))
}

// CanEdit reports whether the expense may still be updated or deleted.
func (s Status) CanEdit() bool {
	return s == StatusPending
}

// CanDecide reports whether the expense may be approved or rejected.
func (s Status) CanDecide() bool {
	return s == StatusPending
}

// Expense is a cost incurred against a project.
type Expense struct {
	ID              int64           `json:"id"`
	ProjectID       int64           `json:"project_id"`
	Category        Category        `json:"category"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	ExpenseDate     time.Time       `json:"expense_date"`
	Status          Status          `json:"status"`
	ReceiptPath     *string         `json:"receipt_path,omitempty"`
	SubmittedBy     string          `json:"submitted_by"`
	ApprovedBy      *string         `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	IsDeleted       bool            `json:"is_deleted"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// CreateInput captures a new expense.
type CreateInput struct {
	ProjectID   int64           `json:"project_id" validate:"required,gt=0"`
	Category    string          `json:"category" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=2000"`
	ExpenseDate string          `json:"expense_date" validate:"required,datetime=2006-01-02"`
	ReceiptPath *string         `json:"receipt_path,omitempty" validate:"omitempty,max=500"`
}

// UpdateInput captures changes to a pending expense.
type UpdateInput struct {
	Category    *string          `json:"category,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=2000"`
	ExpenseDate *string          `json:"expense_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ReceiptPath *string          `json:"receipt_path,omitempty" validate:"omitempty,max=500"`
}

// ListFilter narrows expense listings.
type ListFilter struct {
	ProjectID   int64
	Status      Status
	Category    Category
	SubmittedBy string
	From        time.Time
	To          time.Time
	Page        shared.Page
}

const dateLayout = "2006-01-02"

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, shared.NewValidationError(field, "must be YYYY-MM-DD")
	}
	return t, nil
}

func validateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return shared.NewValidationError("amount", "must not be negative")
	}
	return nil
}

var (
	// ErrNotFound occurs when the expense does not exist or was deleted.
	ErrNotFound = fmt.Errorf("expense %w", shared.ErrNotFound)
	// ErrCannotEdit occurs when a non-pending expense is updated or deleted.
	ErrCannotEdit = fmt.Errorf("%w: only pending expenses can be changed", shared.ErrConflict)
	// ErrCannotApprove occurs when a decided expense is approved or rejected again.
	ErrCannotApprove = fmt.Errorf("%w: expense is not pending", shared.ErrConflict)
	// ErrNotOwner occurs when a non-manager edits someone else's expense.
	ErrNotOwner = fmt.Errorf("%w: expense belongs to another user", shared.ErrForbidden)
)
