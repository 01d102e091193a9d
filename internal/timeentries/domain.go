// Package timeentries stores developer time entries and their approval
// workflow.
package timeentries

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// Status enumerates time entry states.
type Status string

const (
	StatusSubmitted Status = "Submitted"
	StatusApproved  Status = "Approved"
	StatusRejected  Status = "Rejected"
	StatusInvoiced  Status = "Invoiced"
)

// ParseStatus maps a case-insensitive name onto a Status.
func ParseStatus(raw string) (Status, error) {
	for _, s := range []Status{StatusSubmitted, StatusApproved, StatusRejected, StatusInvoiced} {
		if strings.EqualFold(strings.TrimSpace(raw), string(s)) {
			return s, nil
		}
	}
	return "", shared.NewValidationError("status", fmt.Sprintf("unknown status %q", raw))
}

// CanEdit reports whether the entry may be updated or deleted.
func (s Status) CanEdit() bool {
	return s == StatusSubmitted || s == StatusRejected
}

// CanDecide reports whether the entry awaits approval.
func (s Status) CanDecide() bool {
	return s == StatusSubmitted
}

// MaxHoursPerEntry caps a single entry to one calendar day.
var MaxHoursPerEntry = decimal.NewFromInt(24)

// TimeEntry is a developer's hours against a project on a date.
type TimeEntry struct {
	ID          int64           `json:"id"`
	ProjectID   int64           `json:"project_id"`
	DeveloperID string          `json:"developer_id"`
	TaskID      *int64          `json:"task_id,omitempty"`
	WorkDate    time.Time       `json:"work_date"`
	Hours       decimal.Decimal `json:"hours"`
	Description string          `json:"description"`
	Status      Status          `json:"status"`
	IsInvoiced  bool            `json:"is_invoiced"`
	ApprovedBy  *string         `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time      `json:"approved_at,omitempty"`
	IsDeleted   bool            `json:"is_deleted"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Editable reports whether the entry is still in an editable state.
func (e TimeEntry) Editable() bool {
	return e.Status.CanEdit() && !e.IsInvoiced
}

// LogInput captures a new time entry.
type LogInput struct {
	ProjectID   int64           `json:"project_id" validate:"required,gt=0"`
	TaskID      *int64          `json:"task_id,omitempty" validate:"omitempty,gt=0"`
	WorkDate    string          `json:"work_date" validate:"required,datetime=2006-01-02"`
	Hours       decimal.Decimal `json:"hours"`
	Description string          `json:"description" validate:"max=2000"`
}

// UpdateInput captures changes to an editable entry.
type UpdateInput struct {
	TaskID      *int64           `json:"task_id,omitempty" validate:"omitempty,gt=0"`
	WorkDate    *string          `json:"work_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Hours       *decimal.Decimal `json:"hours,omitempty"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// ListFilter narrows time entry listings.
type ListFilter struct {
	ProjectID   int64
	DeveloperID string
	Status      Status
	From        time.Time
	To          time.Time
	Page        shared.Page
}

func validateHours(h decimal.Decimal) error {
	if h.IsNegative() || h.GreaterThan(MaxHoursPerEntry) {
		return shared.NewValidationError("hours", "must be between 0 and 24")
	}
	return nil
}

func parseWorkDate(raw string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, shared.NewValidationError("work_date", "must be YYYY-MM-DD")
	}
	return t, nil
}

var (
	// ErrNotFound occurs when the entry does not exist or was deleted.
	ErrNotFound = fmt.Errorf("time entry %w", shared.ErrNotFound)
	// ErrCannotEdit occurs when an approved or invoiced entry is changed.
	ErrCannotEdit = fmt.Errorf("%w: time entry is locked", shared.ErrConflict)
	// ErrCannotApprove occurs when a non-submitted entry is approved or rejected.
	ErrCannotApprove = fmt.Errorf("%w: time entry is not awaiting approval", shared.ErrConflict)
	// ErrNotOwner occurs when a developer touches another developer's entry.
	ErrNotOwner = fmt.Errorf("%w: time entry belongs to another developer", shared.ErrForbidden)
)
