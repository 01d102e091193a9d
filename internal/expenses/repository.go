package expenses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pcm/internal/budget"
	"github.com/odyssey-erp/odyssey-pcm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// Repository defines expense persistence.
type Repository interface {
	Get(ctx context.Context, id int64) (*Expense, error)
	List(ctx context.Context, filter ListFilter) ([]Expense, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional expense writes. Budget returns the budget
// writes bound to the same transaction.
type TxRepository interface {
	Insert(ctx context.Context, e Expense) (int64, error)
	Lock(ctx context.Context, id int64) (*Expense, error)
	Update(ctx context.Context, e Expense) error
	SoftDelete(ctx context.Context, id int64, at time.Time) error
	Decide(ctx context.Context, id int64, status Status, by string, at time.Time, reason *string) error
	Budget() budget.TxRepository
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

// WithTx wraps callback in repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const expenseColumns = `id, project_id, category, amount, description, expense_date, status,
		       receipt_path, submitted_by, approved_by, approved_at, rejection_reason,
		       is_deleted, created_at, updated_at`

func scanExpense(row pgx.Row) (*Expense, error) {
	var e Expense
	err := row.Scan(
		&e.ID, &e.ProjectID, &e.Category, &e.Amount, &e.Description, &e.ExpenseDate, &e.Status,
		&e.ReceiptPath, &e.SubmittedBy, &e.ApprovedBy, &e.ApprovedAt, &e.RejectionReason,
		&e.IsDeleted, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Get loads a non-deleted expense.
func (r *repository) Get(ctx context.Context, id int64) (*Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = $1 AND NOT is_deleted`
	return scanExpense(r.pool.QueryRow(ctx, query, id))
}

// List returns non-deleted expenses matching the filter, newest first.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]Expense, error) {
	conds := []string{"NOT is_deleted"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.ProjectID > 0 {
		add("project_id = $%d", filter.ProjectID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.SubmittedBy != "" {
		add("submitted_by = $%d", filter.SubmittedBy)
	}
	if !filter.From.IsZero() {
		add("expense_date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("expense_date <= $%d", filter.To)
	}
	page := shared.NormalizePage(filter.Page.Limit, filter.Page.Offset)
	args = append(args, page.Limit, page.Offset)
	query := fmt.Sprintf(`SELECT %s FROM expenses WHERE %s
		ORDER BY expense_date DESC, id DESC
		LIMIT $%d OFFSET $%d`, expenseColumns, strings.Join(conds, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Insert stores a new expense.
func (t *txRepository) Insert(ctx context.Context, e Expense) (int64, error) {
	query := `
		INSERT INTO expenses (
			project_id, category, amount, description, expense_date, status,
			receipt_path, submitted_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		e.ProjectID, e.Category, e.Amount, e.Description, e.ExpenseDate, e.Status,
		e.ReceiptPath, e.SubmittedBy, e.CreatedAt,
	).Scan(&id)
	return id, err
}

// Lock loads a non-deleted expense and holds its row lock until commit.
func (t *txRepository) Lock(ctx context.Context, id int64) (*Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = $1 AND NOT is_deleted FOR UPDATE`
	return scanExpense(t.tx.QueryRow(ctx, query, id))
}

// Update persists editable fields of a pending expense.
func (t *txRepository) Update(ctx context.Context, e Expense) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE expenses
		SET category = $1, amount = $2, description = $3, expense_date = $4,
		    receipt_path = $5, updated_at = $6
		WHERE id = $7 AND status = 'Pending' AND NOT is_deleted
	`, e.Category, e.Amount, e.Description, e.ExpenseDate, e.ReceiptPath, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCannotEdit
	}
	return nil
}

// SoftDelete flags a pending expense deleted.
func (t *txRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE expenses SET is_deleted = TRUE, updated_at = $1
		WHERE id = $2 AND status = 'Pending' AND NOT is_deleted
	`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCannotEdit
	}
	return nil
}

// Decide moves a pending expense to Approved or Rejected.
func (t *txRepository) Decide(ctx context.Context, id int64, status Status, by string, at time.Time, reason *string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE expenses
		SET status = $1, approved_by = $2, approved_at = $3, rejection_reason = $4, updated_at = $3
		WHERE id = $5 AND status = 'Pending' AND NOT is_deleted
	`, status, by, at, reason, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCannotApprove
	}
	return nil
}

// Budget binds budget writes to the expense transaction.
func (t *txRepository) Budget() budget.TxRepository {
	return budget.NewTxRepository(t.tx)
}
