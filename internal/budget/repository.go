package budget

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pcm/internal/platform/db"
)

// Repository defines budget persistence.
type Repository interface {
	// Read operations
	GetByProject(ctx context.Context, projectID int64) (*ProjectBudget, error)
	ProjectName(ctx context.Context, projectID int64) (string, error)
	ListExpenses(ctx context.Context, projectID int64) ([]ExpenseLine, error)
	ListAlerts(ctx context.Context, projectID int64, includeAcknowledged bool) ([]BudgetAlert, error)
	ListBudgets(ctx context.Context) ([]ProjectBudget, error)

	// Write operations (transactional)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional budget writes. Expense approval reuses it
// so the spend increment and alert evaluation commit with the approval.
type TxRepository interface {
	LockByProject(ctx context.Context, projectID int64) (*ProjectBudget, error)
	LockAlert(ctx context.Context, alertID int64) (*BudgetAlert, error)
	InsertBudget(ctx context.Context, b ProjectBudget) (int64, error)
	UpdateBudget(ctx context.Context, b ProjectBudget) error
	SoftDelete(ctx context.Context, budgetID int64, at time.Time) error
	IncrementSpent(ctx context.Context, budgetID int64, amount decimal.Decimal, at time.Time) (*ProjectBudget, error)
	SetSpent(ctx context.Context, budgetID int64, amount decimal.Decimal, at time.Time) error
	SumApprovedExpenses(ctx context.Context, projectID int64) (decimal.Decimal, error)
	HasOpenAlert(ctx context.Context, budgetID int64, t AlertType) (bool, error)
	InsertAlert(ctx context.Context, a BudgetAlert) (int64, bool, error)
	AcknowledgeAlert(ctx context.Context, alertID int64, by string, at time.Time) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds budget writes to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx wraps callback in repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const budgetColumns = `id, project_id, total_budget, labor_budget, material_budget, other_budget,
		       spent_amount, warning_threshold, critical_threshold, is_deleted, created_at, updated_at`

func scanBudget(row pgx.Row) (*ProjectBudget, error) {
	var b ProjectBudget
	err := row.Scan(
		&b.ID, &b.ProjectID, &b.TotalBudget, &b.LaborBudget, &b.MaterialBudget, &b.OtherBudget,
		&b.SpentAmount, &b.WarningThreshold, &b.CriticalThreshold, &b.IsDeleted, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// GetByProject loads the live budget of a project.
func (r *repository) GetByProject(ctx context.Context, projectID int64) (*ProjectBudget, error) {
	query := `SELECT ` + budgetColumns + `
		FROM project_budgets
		WHERE project_id = $1 AND NOT is_deleted`
	return scanBudget(r.pool.QueryRow(ctx, query, projectID))
}

// ProjectName resolves the display name of a project.
func (r *repository) ProjectName(ctx context.Context, projectID int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM projects WHERE id = $1`, projectID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UnknownProjectName, nil
		}
		return "", err
	}
	return name, nil
}

// ListExpenses loads the non-deleted expenses of a project.
func (r *repository) ListExpenses(ctx context.Context, projectID int64) ([]ExpenseLine, error) {
	query := `
		SELECT id, category, status, amount
		FROM expenses
		WHERE project_id = $1 AND NOT is_deleted
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExpenseLine
	for rows.Next() {
		var e ExpenseLine
		if err := rows.Scan(&e.ID, &e.Category, &e.Status, &e.Amount); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListAlerts returns alerts of the project's live budget, newest first.
func (r *repository) ListAlerts(ctx context.Context, projectID int64, includeAcknowledged bool) ([]BudgetAlert, error) {
	query := `
		SELECT a.id, a.project_budget_id, b.project_id, a.alert_type, a.threshold_amount,
		       a.current_amount, a.percentage_used, a.message, a.is_acknowledged,
		       a.acknowledged_by, a.acknowledged_at, a.created_at
		FROM budget_alerts a
		INNER JOIN project_budgets b ON b.id = a.project_budget_id
		WHERE b.project_id = $1 AND NOT b.is_deleted
		  AND ($2 OR NOT a.is_acknowledged)
		ORDER BY a.created_at DESC, a.id DESC
	`
	rows, err := r.pool.Query(ctx, query, projectID, includeAcknowledged)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BudgetAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListBudgets returns every live budget.
func (r *repository) ListBudgets(ctx context.Context) ([]ProjectBudget, error) {
	query := `SELECT ` + budgetColumns + `
		FROM project_budgets
		WHERE NOT is_deleted
		ORDER BY project_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProjectBudget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanAlert(row pgx.Row) (*BudgetAlert, error) {
	var a BudgetAlert
	err := row.Scan(
		&a.ID, &a.ProjectBudgetID, &a.ProjectID, &a.AlertType, &a.ThresholdAmount,
		&a.CurrentAmount, &a.PercentageUsed, &a.Message, &a.IsAcknowledged,
		&a.AcknowledgedBy, &a.AcknowledgedAt, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return &a, nil
}

// LockByProject loads the live budget and holds its row lock until commit.
func (t *txRepository) LockByProject(ctx context.Context, projectID int64) (*ProjectBudget, error) {
	query := `SELECT ` + budgetColumns + `
		FROM project_budgets
		WHERE project_id = $1 AND NOT is_deleted
		FOR UPDATE`
	return scanBudget(t.tx.QueryRow(ctx, query, projectID))
}

// LockAlert loads an alert and holds its row lock until commit.
func (t *txRepository) LockAlert(ctx context.Context, alertID int64) (*BudgetAlert, error) {
	query := `
		SELECT a.id, a.project_budget_id, b.project_id, a.alert_type, a.threshold_amount,
		       a.current_amount, a.percentage_used, a.message, a.is_acknowledged,
		       a.acknowledged_by, a.acknowledged_at, a.created_at
		FROM budget_alerts a
		INNER JOIN project_budgets b ON b.id = a.project_budget_id
		WHERE a.id = $1
		FOR UPDATE OF a
	`
	return scanAlert(t.tx.QueryRow(ctx, query, alertID))
}

// InsertBudget creates a budget row.
func (t *txRepository) InsertBudget(ctx context.Context, b ProjectBudget) (int64, error) {
	query := `
		INSERT INTO project_budgets (
			project_id, total_budget, labor_budget, material_budget, other_budget,
			spent_amount, warning_threshold, critical_threshold, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		b.ProjectID, b.TotalBudget, b.LaborBudget, b.MaterialBudget, b.OtherBudget,
		b.SpentAmount, b.WarningThreshold, b.CriticalThreshold, b.CreatedAt,
	).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, ErrAlreadyExists
	}
	return id, err
}

// UpdateBudget persists amounts and thresholds. Spent is left alone.
func (t *txRepository) UpdateBudget(ctx context.Context, b ProjectBudget) error {
	query := `
		UPDATE project_budgets
		SET total_budget = $1, labor_budget = $2, material_budget = $3, other_budget = $4,
		    warning_threshold = $5, critical_threshold = $6, updated_at = $7
		WHERE id = $8 AND NOT is_deleted
	`
	tag, err := t.tx.Exec(ctx, query,
		b.TotalBudget, b.LaborBudget, b.MaterialBudget, b.OtherBudget,
		b.WarningThreshold, b.CriticalThreshold, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete flags the budget deleted.
func (t *txRepository) SoftDelete(ctx context.Context, budgetID int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE project_budgets SET is_deleted = TRUE, updated_at = $1 WHERE id = $2 AND NOT is_deleted`, at, budgetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementSpent adds amount to spent_amount in a single statement.
func (t *txRepository) IncrementSpent(ctx context.Context, budgetID int64, amount decimal.Decimal, at time.Time) (*ProjectBudget, error) {
	query := `
		UPDATE project_budgets
		SET spent_amount = spent_amount + $1, updated_at = $2
		WHERE id = $3 AND NOT is_deleted
		RETURNING ` + budgetColumns
	return scanBudget(t.tx.QueryRow(ctx, query, amount, at, budgetID))
}

// SetSpent overwrites spent_amount; used by reconciliation only.
func (t *txRepository) SetSpent(ctx context.Context, budgetID int64, amount decimal.Decimal, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE project_budgets SET spent_amount = $1, updated_at = $2 WHERE id = $3`, amount, at, budgetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SumApprovedExpenses re-sums approved, non-deleted expenses of a project.
func (t *txRepository) SumApprovedExpenses(ctx context.Context, projectID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM expenses
		WHERE project_id = $1 AND status = 'Approved' AND NOT is_deleted
	`, projectID).Scan(&total)
	return total, err
}

// HasOpenAlert reports whether an unacknowledged alert of type t exists.
func (t *txRepository) HasOpenAlert(ctx context.Context, budgetID int64, typ AlertType) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM budget_alerts
			WHERE project_budget_id = $1 AND alert_type = $2 AND NOT is_acknowledged
		)
	`, budgetID, typ).Scan(&exists)
	return exists, err
}

// InsertAlert stores the alert unless an open alert of the same type exists.
// The partial unique index on open alerts backs the check under concurrency.
func (t *txRepository) InsertAlert(ctx context.Context, a BudgetAlert) (int64, bool, error) {
	query := `
		INSERT INTO budget_alerts (
			project_budget_id, alert_type, threshold_amount, current_amount,
			percentage_used, message, is_acknowledged, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (project_budget_id, alert_type) WHERE NOT is_acknowledged DO NOTHING
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		a.ProjectBudgetID, a.AlertType, a.ThresholdAmount, a.CurrentAmount,
		a.PercentageUsed, a.Message, a.CreatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

// AcknowledgeAlert marks an open alert seen.
func (t *txRepository) AcknowledgeAlert(ctx context.Context, alertID int64, by string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE budget_alerts
		SET is_acknowledged = TRUE, acknowledged_by = $1, acknowledged_at = $2
		WHERE id = $3 AND NOT is_acknowledged
	`, by, at, alertID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyAcknowledged
	}
	return nil
}
