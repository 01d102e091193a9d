package timeentries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pcm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// Repository defines time entry persistence.
type Repository interface {
	Get(ctx context.Context, id int64) (*TimeEntry, error)
	List(ctx context.Context, filter ListFilter) ([]TimeEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional time entry writes.
type TxRepository interface {
	Insert(ctx context.Context, e TimeEntry) (int64, error)
	Lock(ctx context.Context, id int64) (*TimeEntry, error)
	Update(ctx context.Context, e TimeEntry) error
	SoftDelete(ctx context.Context, id int64, at time.Time) error
	Decide(ctx context.Context, id int64, status Status, by string, at time.Time) error
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

const entryColumns = `id, project_id, developer_id, task_id, work_date, hours, description, status,
		       is_invoiced, approved_by, approved_at, is_deleted, created_at, updated_at`

func scanEntry(row pgx.Row) (*TimeEntry, error) {
	var e TimeEntry
	err := row.Scan(
		&e.ID, &e.ProjectID, &e.DeveloperID, &e.TaskID, &e.WorkDate, &e.Hours, &e.Description, &e.Status,
		&e.IsInvoiced, &e.ApprovedBy, &e.ApprovedAt, &e.IsDeleted, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Get loads a non-deleted entry.
func (r *repository) Get(ctx context.Context, id int64) (*TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE id = $1 AND NOT is_deleted`
	return scanEntry(r.pool.QueryRow(ctx, query, id))
}

// List returns non-deleted entries matching the filter, newest work date first.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]TimeEntry, error) {
	conds := []string{"NOT is_deleted"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.ProjectID > 0 {
		add("project_id = $%d", filter.ProjectID)
	}
	if filter.DeveloperID != "" {
		add("developer_id = $%d", filter.DeveloperID)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if !filter.From.IsZero() {
		add("work_date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("work_date <= $%d", filter.To)
	}
	page := shared.NormalizePage(filter.Page.Limit, filter.Page.Offset)
	args = append(args, page.Limit, page.Offset)
	query := fmt.Sprintf(`SELECT %s FROM time_entries WHERE %s
		ORDER BY work_date DESC, id DESC
		LIMIT $%d OFFSET $%d`, entryColumns, strings.Join(conds, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Insert stores a submitted entry.
func (t *txRepository) Insert(ctx context.Context, e TimeEntry) (int64, error) {
	query := `
		INSERT INTO time_entries (
			project_id, developer_id, task_id, work_date, hours, description, status,
			is_invoiced, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $8)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		e.ProjectID, e.DeveloperID, e.TaskID, e.WorkDate, e.Hours, e.Description, e.Status, e.CreatedAt,
	).Scan(&id)
	return id, err
}

// Lock loads a non-deleted entry and holds its row lock until commit.
func (t *txRepository) Lock(ctx context.Context, id int64) (*TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE id = $1 AND NOT is_deleted FOR UPDATE`
	return scanEntry(t.tx.QueryRow(ctx, query, id))
}

// Update persists an edited entry and its (re)submitted status.
func (t *txRepository) Update(ctx context.Context, e TimeEntry) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE time_entries
		SET task_id = $1, work_date = $2, hours = $3, description = $4, status = $5, updated_at = $6,
		    approved_by = NULL, approved_at = NULL
		WHERE id = $7 AND status IN ('Submitted', 'Rejected') AND NOT is_invoiced AND NOT is_deleted
	`, e.TaskID, e.WorkDate, e.Hours, e.Description, e.Status, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCannotEdit
	}
	return nil
}

// SoftDelete flags an editable entry deleted.
func (t *txRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE time_entries SET is_deleted = TRUE, updated_at = $1
		WHERE id = $2 AND status IN ('Submitted', 'Rejected') AND NOT is_invoiced AND NOT is_deleted
	`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCannotEdit
	}
	return nil
}

// Decide moves a submitted entry to Approved or Rejected.
func (t *txRepository) Decide(ctx context.Context, id int64, status Status, by string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE time_entries
		SET status = $1, approved_by = $2, approved_at = $3, updated_at = $3
		WHERE id = $4 AND status = 'Submitted' AND NOT is_deleted
	`, status, by, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCannotApprove
	}
	return nil
}
