package budget

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pcm/internal/notify"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// Metrics receives alert counters.
type Metrics interface {
	AlertRaised(alertType string)
}

// CacheInvalidator bumps the report cache after spend changes.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	Defaults Thresholds
	Logger   *slog.Logger
	Notifier notify.Notifier
	Metrics  Metrics
	Cache    CacheInvalidator
	Now      func() time.Time
}

// Service owns budget aggregation and the alert engine.
type Service struct {
	repo     Repository
	audit    shared.Auditor
	defaults Thresholds
	logger   *slog.Logger
	notifier notify.Notifier
	metrics  Metrics
	cache    CacheInvalidator
	now      func() time.Time
}

// NewService builds a budget service.
func NewService(repo Repository, audit shared.Auditor, cfg ServiceConfig) *Service {
	s := &Service{
		repo:     repo,
		audit:    audit,
		defaults: cfg.Defaults,
		logger:   cfg.Logger,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		cache:    cfg.Cache,
		now:      cfg.Now,
	}
	if s.defaults == (Thresholds{}) {
		s.defaults = DefaultThresholds()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notifier == nil {
		s.notifier = notify.Noop{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// ComputeSummary aggregates the project's budget and expenses. Projects
// without a live budget, and load failures, yield the Unknown summary.
func (s *Service) ComputeSummary(ctx context.Context, projectID int64) (Summary, error) {
	if projectID <= 0 {
		return Summary{}, shared.NewValidationError("project_id", "must be a positive integer")
	}
	b, err := s.repo.GetByProject(ctx, projectID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("load budget", slog.Int64("project_id", projectID), slog.Any("error", err))
		}
		return UnknownSummary(projectID), nil
	}
	name, err := s.repo.ProjectName(ctx, projectID)
	if err != nil {
		s.logger.Warn("load project name", slog.Int64("project_id", projectID), slog.Any("error", err))
		name = UnknownProjectName
	}
	expenses, err := s.repo.ListExpenses(ctx, projectID)
	if err != nil {
		s.logger.Error("load expenses", slog.Int64("project_id", projectID), slog.Any("error", err))
		expenses = nil
	}
	return Summarize(*b, name, expenses), nil
}

// ApplyApprovedExpense adds an approved expense to the project's spend and
// evaluates alerts, all inside the caller's transaction. Projects without a
// budget are left alone. Created alerts are returned for PublishAlerts.
func (s *Service) ApplyApprovedExpense(ctx context.Context, tx TxRepository, projectID int64, amount decimal.Decimal) ([]BudgetAlert, error) {
	b, err := tx.LockByProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	updated, err := tx.IncrementSpent(ctx, b.ID, amount, s.now())
	if err != nil {
		return nil, err
	}
	return s.raiseAlerts(ctx, tx, *updated)
}

// CheckAndCreateAlerts evaluates the project's budget inside tx and stores a
// new alert unless an unacknowledged alert of the same band exists.
func (s *Service) CheckAndCreateAlerts(ctx context.Context, tx TxRepository, projectID int64) ([]BudgetAlert, error) {
	b, err := tx.LockByProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.raiseAlerts(ctx, tx, *b)
}

func (s *Service) raiseAlerts(ctx context.Context, tx TxRepository, b ProjectBudget) ([]BudgetAlert, error) {
	band, ok := Evaluate(b)
	if !ok {
		return nil, nil
	}
	open, err := tx.HasOpenAlert(ctx, b.ID, band)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, nil
	}
	alert := NewAlert(b, band, s.now())
	id, inserted, err := tx.InsertAlert(ctx, alert)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, nil
	}
	alert.ID = id
	return []BudgetAlert{alert}, nil
}

// PublishAlerts counts and announces committed alerts. Failures are logged.
func (s *Service) PublishAlerts(ctx context.Context, alerts []BudgetAlert) {
	if len(alerts) == 0 {
		return
	}
	events := make([]notify.AlertEvent, 0, len(alerts))
	for _, a := range alerts {
		if s.metrics != nil {
			s.metrics.AlertRaised(string(a.AlertType))
		}
		s.logger.Info("budget alert raised",
			slog.Int64("project_id", a.ProjectID),
			slog.Int64("alert_id", a.ID),
			slog.String("alert_type", string(a.AlertType)),
			slog.String("percentage_used", a.PercentageUsed.String()))
		events = append(events, alertEvent(a))
	}
	notify.Deliver(ctx, s.notifier, s.logger, events...)
}

func alertEvent(a BudgetAlert) notify.AlertEvent {
	return notify.AlertEvent{
		AlertID:         a.ID,
		BudgetID:        a.ProjectBudgetID,
		ProjectID:       a.ProjectID,
		AlertType:       string(a.AlertType),
		ThresholdAmount: a.ThresholdAmount.StringFixed(2),
		CurrentAmount:   a.CurrentAmount.StringFixed(2),
		PercentageUsed:  a.PercentageUsed.StringFixed(2),
		Message:         a.Message,
		RaisedAt:        a.CreatedAt,
	}
}

// BurnRate is spent per day since the budget started; zero without a budget.
func (s *Service) BurnRate(ctx context.Context, projectID int64) (decimal.Decimal, error) {
	f, err := s.Forecast(ctx, projectID)
	if err != nil {
		return decimal.Zero, err
	}
	return f.BurnRate, nil
}

// EstimatedDaysUntilExhausted is floor(remaining/burn rate), nil when the
// budget is spent, idle or missing.
func (s *Service) EstimatedDaysUntilExhausted(ctx context.Context, projectID int64) (*int, error) {
	f, err := s.Forecast(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return f.EstimatedDaysLeft, nil
}

// Forecast combines burn rate and days left.
func (s *Service) Forecast(ctx context.Context, projectID int64) (Forecast, error) {
	if projectID <= 0 {
		return Forecast{}, shared.NewValidationError("project_id", "must be a positive integer")
	}
	b, err := s.repo.GetByProject(ctx, projectID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("load budget", slog.Int64("project_id", projectID), slog.Any("error", err))
		}
		return Forecast{ProjectID: projectID, BurnRate: decimal.Zero}, nil
	}
	return ForecastAt(*b, s.now()), nil
}

// Get returns the live budget of a project.
func (s *Service) Get(ctx context.Context, projectID int64) (*ProjectBudget, error) {
	if projectID <= 0 {
		return nil, shared.NewValidationError("project_id", "must be a positive integer")
	}
	return s.repo.GetByProject(ctx, projectID)
}

// CreateBudget opens a budget for a project that has none.
func (s *Service) CreateBudget(ctx context.Context, in CreateInput) (*ProjectBudget, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	thresholds := s.defaults
	if in.WarningThreshold != nil {
		thresholds.Warning = *in.WarningThreshold
	}
	if in.CriticalThreshold != nil {
		thresholds.Critical = *in.CriticalThreshold
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	b := ProjectBudget{
		ProjectID:         in.ProjectID,
		TotalBudget:       in.TotalBudget,
		LaborBudget:       in.LaborBudget,
		MaterialBudget:    in.MaterialBudget,
		OtherBudget:       in.OtherBudget,
		SpentAmount:       decimal.Zero,
		WarningThreshold:  thresholds.Warning,
		CriticalThreshold: thresholds.Critical,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockByProject(ctx, in.ProjectID); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		id, err := tx.InsertBudget(ctx, b)
		if err != nil {
			return err
		}
		b.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, entityBudget, "budget.create", b.ID, map[string]any{"project_id": b.ProjectID, "total_budget": b.TotalBudget.String()})
	s.bumpCache(ctx)
	return &b, nil
}

// UpdateBudget changes amounts or thresholds and re-evaluates alerts in the
// same transaction.
func (s *Service) UpdateBudget(ctx context.Context, projectID int64, in UpdateInput) (*ProjectBudget, error) {
	if projectID <= 0 {
		return nil, shared.NewValidationError("project_id", "must be a positive integer")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var (
		updated ProjectBudget
		alerts  []BudgetAlert
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.LockByProject(ctx, projectID)
		if err != nil {
			return err
		}
		applyUpdate(b, in)
		if err := b.Thresholds().Validate(); err != nil {
			return err
		}
		b.UpdatedAt = s.now()
		if err := tx.UpdateBudget(ctx, *b); err != nil {
			return err
		}
		updated = *b
		alerts, err = s.raiseAlerts(ctx, tx, *b)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, entityBudget, "budget.update", updated.ID, map[string]any{"project_id": projectID, "total_budget": updated.TotalBudget.String()})
	s.PublishAlerts(ctx, alerts)
	s.bumpCache(ctx)
	return &updated, nil
}

func applyUpdate(b *ProjectBudget, in UpdateInput) {
	if in.TotalBudget != nil {
		b.TotalBudget = *in.TotalBudget
	}
	if in.LaborBudget.Valid {
		b.LaborBudget = in.LaborBudget
	}
	if in.MaterialBudget.Valid {
		b.MaterialBudget = in.MaterialBudget
	}
	if in.OtherBudget.Valid {
		b.OtherBudget = in.OtherBudget
	}
	if in.WarningThreshold != nil {
		b.WarningThreshold = *in.WarningThreshold
	}
	if in.CriticalThreshold != nil {
		b.CriticalThreshold = *in.CriticalThreshold
	}
}

// DeleteBudget soft deletes the project's budget.
func (s *Service) DeleteBudget(ctx context.Context, projectID int64) error {
	if projectID <= 0 {
		return shared.NewValidationError("project_id", "must be a positive integer")
	}
	var budgetID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.LockByProject(ctx, projectID)
		if err != nil {
			return err
		}
		budgetID = b.ID
		return tx.SoftDelete(ctx, b.ID, s.now())
	})
	if err != nil {
		return err
	}
	s.record(ctx, entityBudget, "budget.delete", budgetID, map[string]any{"project_id": projectID})
	s.bumpCache(ctx)
	return nil
}

// ListAlerts returns the project's alerts, newest first.
func (s *Service) ListAlerts(ctx context.Context, projectID int64, includeAcknowledged bool) ([]BudgetAlert, error) {
	if projectID <= 0 {
		return nil, shared.NewValidationError("project_id", "must be a positive integer")
	}
	return s.repo.ListAlerts(ctx, projectID, includeAcknowledged)
}

// AcknowledgeAlert marks an alert seen by the acting user. Acknowledged
// alerts stop suppressing new alerts of the same band.
func (s *Service) AcknowledgeAlert(ctx context.Context, alertID int64) (*BudgetAlert, error) {
	if alertID <= 0 {
		return nil, shared.NewValidationError("alert_id", "must be a positive integer")
	}
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return nil, shared.ErrUnauthorized
	}
	var alert BudgetAlert
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		a, err := tx.LockAlert(ctx, alertID)
		if err != nil {
			return err
		}
		if a.IsAcknowledged {
			return ErrAlreadyAcknowledged
		}
		at := s.now()
		if err := tx.AcknowledgeAlert(ctx, alertID, actor.ID, at); err != nil {
			return err
		}
		a.IsAcknowledged = true
		a.AcknowledgedBy = &actor.ID
		a.AcknowledgedAt = &at
		alert = *a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, entityAlert, "budget_alert.acknowledge", alert.ID, map[string]any{"alert_type": string(alert.AlertType)})
	return &alert, nil
}

// Reconcile re-sums approved expenses, overwrites a drifted spent amount and
// re-evaluates alerts.
func (s *Service) Reconcile(ctx context.Context, projectID int64) (ReconcileResult, error) {
	if projectID <= 0 {
		return ReconcileResult{}, shared.NewValidationError("project_id", "must be a positive integer")
	}
	var (
		result ReconcileResult
		alerts []BudgetAlert
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.LockByProject(ctx, projectID)
		if err != nil {
			return err
		}
		sum, err := tx.SumApprovedExpenses(ctx, projectID)
		if err != nil {
			return err
		}
		result = ReconcileResult{
			ProjectID:  projectID,
			BudgetID:   b.ID,
			Previous:   b.SpentAmount,
			Recomputed: sum,
			Drift:      sum.Sub(b.SpentAmount),
		}
		if result.Repaired() {
			now := s.now()
			if err := tx.SetSpent(ctx, b.ID, sum, now); err != nil {
				return err
			}
			b.SpentAmount = sum
			b.UpdatedAt = now
		}
		alerts, err = s.raiseAlerts(ctx, tx, *b)
		return err
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	if len(alerts) > 0 {
		result.Alert = &alerts[0]
	}
	if result.Repaired() {
		s.logger.Warn("budget spend repaired",
			slog.Int64("project_id", projectID),
			slog.String("previous", result.Previous.String()),
			slog.String("recomputed", result.Recomputed.String()))
		s.record(ctx, entityBudget, "budget.reconcile", result.BudgetID, map[string]any{
			"previous":   result.Previous.String(),
			"recomputed": result.Recomputed.String(),
		})
		s.bumpCache(ctx)
	}
	s.PublishAlerts(ctx, alerts)
	return result, nil
}

// ReconcileAll reconciles every live budget and joins per-project failures.
func (s *Service) ReconcileAll(ctx context.Context) ([]ReconcileResult, error) {
	budgets, err := s.repo.ListBudgets(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]ReconcileResult, 0, len(budgets))
	var errs []error
	for _, b := range budgets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := s.Reconcile(ctx, b.ProjectID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

const (
	entityBudget = "project_budget"
	entityAlert  = "budget_alert"
)

func (s *Service) record(ctx context.Context, entity, action string, id int64, meta map[string]any) {
	actorID := "system"
	if actor, ok := shared.ActorFromContext(ctx); ok {
		actorID = actor.ID
	}
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
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
