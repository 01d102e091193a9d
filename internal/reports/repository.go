package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository loads the rows reports are built from and stores snapshots.
type Repository interface {
	Projects(ctx context.Context, clientID int64) ([]ProjectRow, error)
	Entries(ctx context.Context, filter TimeEntryFilter) ([]EntryRow, error)
	ApprovedExpenses(ctx context.Context, period Period) (map[int64]decimal.Decimal, error)
	OpenAlertCounts(ctx context.Context) (map[int64]int, error)
	ClientName(ctx context.Context, clientID int64) (string, error)
	InvoiceTotals(ctx context.Context, clientID int64, period Period) (InvoiceTotals, error)

	InsertSaved(ctx context.Context, r SavedReport) error
	GetSaved(ctx context.Context, id uuid.UUID) (*SavedReport, error)
	ListSaved(ctx context.Context, createdBy string, reportType Type) ([]SavedReport, error)
	SoftDeleteSaved(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Projects returns live projects with client and budget columns.
func (r *repository) Projects(ctx context.Context, clientID int64) ([]ProjectRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.status, p.client_id, COALESCE(c.name, ''), p.hourly_rate,
		       b.id, COALESCE(b.total_budget, 0), COALESCE(b.spent_amount, 0),
		       COALESCE(b.warning_threshold, 0), COALESCE(b.critical_threshold, 0)
		FROM projects p
		LEFT JOIN clients c ON c.id = p.client_id
		LEFT JOIN project_budgets b ON b.project_id = p.id AND NOT b.is_deleted
		WHERE NOT p.is_deleted AND ($1 = 0 OR p.client_id = $1)
		ORDER BY p.id
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProjectRow
	for rows.Next() {
		var p ProjectRow
		if err := rows.Scan(&p.ProjectID, &p.ProjectName, &p.ProjectStatus, &p.ClientID, &p.ClientName, &p.HourlyRate,
			&p.BudgetID, &p.TotalBudget, &p.SpentAmount, &p.Warning, &p.Critical); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Entries returns non-deleted time entries matching filter.
func (r *repository) Entries(ctx context.Context, filter TimeEntryFilter) ([]EntryRow, error) {
	conds := []string{"NOT te.is_deleted"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if from := nullableDate(filter.From); from != nil {
		add("te.work_date >= $%d", *from)
	}
	if to := nullableDate(filter.To); to != nil {
		add("te.work_date <= $%d", *to)
	}
	if filter.ProjectID > 0 {
		add("te.project_id = $%d", filter.ProjectID)
	}
	if filter.DeveloperID != "" {
		add("te.developer_id = $%d", filter.DeveloperID)
	}
	query := `
		SELECT te.id, te.project_id, p.name, te.developer_id, te.work_date, te.hours,
		       CASE WHEN te.is_invoiced AND te.status = 'Approved' THEN 'Invoiced' ELSE te.status END,
		       p.hourly_rate
		FROM time_entries te
		INNER JOIN projects p ON p.id = te.project_id
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY te.work_date, te.id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EntryRow
	for rows.Next() {
		var e EntryRow
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.ProjectName, &e.DeveloperID, &e.WorkDate, &e.Hours, &e.Status, &e.HourlyRate); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ApprovedExpenses sums approved expenses per project.
func (r *repository) ApprovedExpenses(ctx context.Context, period Period) (map[int64]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT project_id, SUM(amount)
		FROM expenses
		WHERE status = 'Approved' AND NOT is_deleted
		  AND ($1::date IS NULL OR expense_date >= $1)
		  AND ($2::date IS NULL OR expense_date <= $2)
		GROUP BY project_id
	`, nullableDate(period.From), nullableDate(period.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var id int64
		var sum decimal.Decimal
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, err
		}
		out[id] = sum
	}
	return out, rows.Err()
}

// OpenAlertCounts counts unacknowledged alerts per project.
func (r *repository) OpenAlertCounts(ctx context.Context) (map[int64]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.project_id, COUNT(*)
		FROM budget_alerts a
		INNER JOIN project_budgets b ON b.id = a.project_budget_id
		WHERE NOT a.is_acknowledged AND NOT b.is_deleted
		GROUP BY b.project_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// ClientName returns the client's name or UnknownClientName.
func (r *repository) ClientName(ctx context.Context, clientID int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM clients WHERE id = $1`, clientID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return UnknownClientName, nil
	}
	return name, err
}

// InvoiceTotals counts and sums invoices whose period starts inside period.
func (r *repository) InvoiceTotals(ctx context.Context, clientID int64, period Period) (InvoiceTotals, error) {
	var t InvoiceTotals
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM invoices
		WHERE client_id = $1
		  AND ($2::date IS NULL OR period_from >= $2)
		  AND ($3::date IS NULL OR period_from <= $3)
	`, clientID, nullableDate(period.From), nullableDate(period.To)).Scan(&t.Count, &t.Total)
	return t, err
}

// InsertSaved stores a snapshot.
func (r *repository) InsertSaved(ctx context.Context, s SavedReport) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO saved_reports (id, name, report_type, filters, result, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.Name, string(s.Type), []byte(s.Filters), []byte(s.Result), s.CreatedBy, s.CreatedAt)
	return err
}

const savedColumns = `id, name, report_type, filters, result, created_by, created_at`

func scanSaved(row pgx.Row) (*SavedReport, error) {
	var s SavedReport
	var reportType string
	var filters, result []byte
	if err := row.Scan(&s.ID, &s.Name, &reportType, &filters, &result, &s.CreatedBy, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSavedNotFound
		}
		return nil, err
	}
	s.Type = Type(reportType)
	s.Filters = filters
	s.Result = result
	return &s, nil
}

// GetSaved loads a live snapshot.
func (r *repository) GetSaved(ctx context.Context, id uuid.UUID) (*SavedReport, error) {
	return scanSaved(r.pool.QueryRow(ctx, `SELECT `+savedColumns+` FROM saved_reports WHERE id = $1 AND NOT is_deleted`, id))
}

// ListSaved lists live snapshots, newest first.
func (r *repository) ListSaved(ctx context.Context, createdBy string, reportType Type) ([]SavedReport, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+savedColumns+`
		FROM saved_reports
		WHERE NOT is_deleted
		  AND ($1 = '' OR created_by = $1)
		  AND ($2 = '' OR report_type = $2)
		ORDER BY created_at DESC
	`, createdBy, string(reportType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SavedReport
	for rows.Next() {
		s, err := scanSaved(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// SoftDeleteSaved hides a snapshot.
func (r *repository) SoftDeleteSaved(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE saved_reports SET is_deleted = TRUE WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSavedNotFound
	}
	return nil
}
