package expenses

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pcm/internal/budget"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// BudgetApplier is the slice of the budget service used by approvals.
type BudgetApplier interface {
	ApplyApprovedExpense(ctx context.Context, tx budget.TxRepository, projectID int64, amount decimal.Decimal) ([]budget.BudgetAlert, error)
	PublishAlerts(ctx context.Context, alerts []budget.BudgetAlert)
}

// Metrics receives approval counters.
type Metrics interface {
	ExpenseDecided(decision string)
}

// CacheInvalidator bumps the report cache after approvals.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	Logger  *slog.Logger
	Metrics Metrics
	Cache   CacheInvalidator
	Now     func() time.Time
}

// Service handles the expense workflow.
type Service struct {
	repo    Repository
	budgets BudgetApplier
	audit   shared.Auditor
	logger  *slog.Logger
	metrics Metrics
	cache   CacheInvalidator
	now     func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository, budgets BudgetApplier, audit shared.Auditor, cfg ServiceConfig) *Service {
	s := &Service{
		repo:    repo,
		budgets: budgets,
		audit:   audit,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		cache:   cfg.Cache,
		now:     cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Create stores a pending expense submitted by the acting user.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Expense, error) {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return nil, shared.ErrUnauthorized
	}
	if in.ProjectID <= 0 {
		return nil, shared.NewValidationError("project_id", "must be a positive integer")
	}
	category, err := ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}
	date, err := parseDate("expense_date", in.ExpenseDate)
	if err != nil {
		return nil, err
	}
	now := s.now()
	e := Expense{
		ProjectID:   in.ProjectID,
		Category:    category,
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
		ExpenseDate: date,
		Status:      StatusPending,
		ReceiptPath: in.ReceiptPath,
		SubmittedBy: actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, e)
		if err != nil {
			return err
		}
		e.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, "expense.create", e.ID, map[string]any{"project_id": e.ProjectID, "amount": e.Amount.String()})
	return &e, nil
}

// Get returns an expense.
func (s *Service) Get(ctx context.Context, id int64) (*Expense, error) {
	if id <= 0 {
		return nil, shared.NewValidationError("id", "must be a positive integer")
	}
	return s.repo.Get(ctx, id)
}

// List returns expenses matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Expense, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, shared.NewValidationError("from", "must not be after to")
	}
	filter.Page = shared.NormalizePage(filter.Page.Limit, filter.Page.Offset)
	return s.repo.List(ctx, filter)
}

// Update changes a pending expense. Decided expenses are left untouched.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*Expense, error) {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return nil, shared.ErrUnauthorized
	}
	var updated Expense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if !e.Status.CanEdit() {
			return ErrCannotEdit
		}
		if err := checkOwner(actor, e); err != nil {
			return err
		}
		if err := applyUpdate(e, in); err != nil {
			return err
		}
		e.UpdatedAt = s.now()
		if err := tx.Update(ctx, *e); err != nil {
			return err
		}
		updated = *e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, "expense.update", id, map[string]any{"amount": updated.Amount.String()})
	return &updated, nil
}

func applyUpdate(e *Expense, in UpdateInput) error {
	if in.Category != nil {
		c, err := ParseCategory(*in.Category)
		if err != nil {
			return err
		}
		e.Category = c
	}
	if in.Amount != nil {
		if err := validateAmount(*in.Amount); err != nil {
			return err
		}
		e.Amount = *in.Amount
	}
	if in.Description != nil {
		e.Description = strings.TrimSpace(*in.Description)
	}
	if in.ExpenseDate != nil {
		d, err := parseDate("expense_date", *in.ExpenseDate)
		if err != nil {
			return err
		}
		e.ExpenseDate = d
	}
	if in.ReceiptPath != nil {
		e.ReceiptPath = in.ReceiptPath
	}
	return nil
}

// Delete soft deletes a pending expense.
func (s *Service) Delete(ctx context.Context, id int64) error {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return shared.ErrUnauthorized
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if !e.Status.CanEdit() {
			return ErrCannotEdit
		}
		if err := checkOwner(actor, e); err != nil {
			return err
		}
		return tx.SoftDelete(ctx, id, s.now())
	})
	if err != nil {
		return err
	}
	s.record(ctx, actor, "expense.delete", id, nil)
	return nil
}

// Approve marks a pending expense approved and applies it to the project
// budget in the same transaction. Alerts, audit and cache invalidation
// follow the commit.
func (s *Service) Approve(ctx context.Context, id int64) (*Expense, error) {
	actor, err := approver(ctx)
	if err != nil {
		return nil, err
	}
	var (
		approved Expense
		alerts   []budget.BudgetAlert
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if !e.Status.CanDecide() {
			return ErrCannotApprove
		}
		at := s.now()
		if err := tx.Decide(ctx, id, StatusApproved, actor.ID, at, nil); err != nil {
			return err
		}
		e.Status = StatusApproved
		e.ApprovedBy = &actor.ID
		e.ApprovedAt = &at
		e.UpdatedAt = at
		approved = *e
		if s.budgets == nil {
			return nil
		}
		alerts, err = s.budgets.ApplyApprovedExpense(ctx, tx.Budget(), e.ProjectID, e.Amount)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrCannotApprove) && !errors.Is(err, ErrNotFound) {
			s.logger.Error("approve expense", slog.Int64("expense_id", id), slog.Any("error", err))
		}
		return nil, err
	}
	s.record(ctx, actor, "expense.approve", id, map[string]any{
		"project_id": approved.ProjectID,
		"amount":     approved.Amount.String(),
	})
	if s.metrics != nil {
		s.metrics.ExpenseDecided("approved")
	}
	if s.budgets != nil {
		s.budgets.PublishAlerts(ctx, alerts)
	}
	s.bumpCache(ctx)
	return &approved, nil
}

// Reject marks a pending expense rejected. Budgets are not touched.
func (s *Service) Reject(ctx context.Context, id int64, reason string) (*Expense, error) {
	actor, err := approver(ctx)
	if err != nil {
		return nil, err
	}
	var rejected Expense
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if !e.Status.CanDecide() {
			return ErrCannotApprove
		}
		at := s.now()
		var why *string
		if r := strings.TrimSpace(reason); r != "" {
			why = &r
		}
		if err := tx.Decide(ctx, id, StatusRejected, actor.ID, at, why); err != nil {
			return err
		}
		e.Status = StatusRejected
		e.ApprovedBy = &actor.ID
		e.ApprovedAt = &at
		e.RejectionReason = why
		e.UpdatedAt = at
		rejected = *e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, "expense.reject", id, map[string]any{"reason": reason})
	if s.metrics != nil {
		s.metrics.ExpenseDecided("rejected")
	}
	s.bumpCache(ctx)
	return &rejected, nil
}

func approver(ctx context.Context) (shared.Actor, error) {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return shared.Actor{}, shared.ErrUnauthorized
	}
	if !actor.Role.CanApprove() {
		return shared.Actor{}, shared.ErrForbidden
	}
	return actor, nil
}

func checkOwner(actor shared.Actor, e *Expense) error {
	if actor.Role.CanApprove() || actor.ID == e.SubmittedBy {
		return nil
	}
	return ErrNotOwner
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, id int64, meta map[string]any) {
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "expense",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump", slog.Any("error", err))
	}
}
