package billing

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

// Repository defines billing persistence.
type Repository interface {
	GetClient(ctx context.Context, id int64) (*Client, error)
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	PeekInvoiceSequence(ctx context.Context, year int) (int, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional billing writes.
type TxRepository interface {
	SequenceAllocator
	SelectBillable(ctx context.Context, clientID int64, from, to time.Time, excludeInvoiced bool) ([]BillableEntry, error)
	MarkInvoiced(ctx context.Context, entryIDs []int64, at time.Time) (int64, error)
	InsertInvoice(ctx context.Context, inv Invoice) (int64, error)
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

// GetClient loads a client.
func (r *repository) GetClient(ctx context.Context, id int64) (*Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx, `SELECT id, name, email FROM clients WHERE id = $1`, id).Scan(&c.ID, &c.Name, &c.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	return &c, nil
}

const invoiceColumns = `id, client_id, invoice_number, period_from, period_to, total_amount, created_by, created_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.ClientID, &inv.InvoiceNumber, &inv.PeriodFrom, &inv.PeriodTo,
		&inv.TotalAmount, &inv.CreatedBy, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// GetInvoice loads an invoice.
func (r *repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
}

// ListInvoices returns invoices, newest first.
func (r *repository) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	conds := []string{"TRUE"}
	var args []any
	if filter.ClientID > 0 {
		args = append(args, filter.ClientID)
		conds = append(conds, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if filter.Year > 0 {
		args = append(args, filter.Year)
		conds = append(conds, fmt.Sprintf("EXTRACT(YEAR FROM created_at) = $%d", len(args)))
	}
	page := shared.NormalizePage(filter.Page.Limit, filter.Page.Offset)
	args = append(args, page.Limit, page.Offset)
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, strings.Join(conds, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// PeekInvoiceSequence returns the sequence value the next invoice of year
// would receive, without allocating it.
func (r *repository) PeekInvoiceSequence(ctx context.Context, year int) (int, error) {
	var next int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(
			(SELECT last_value FROM invoice_sequences WHERE year = $1),
			(SELECT COUNT(*) FROM invoices WHERE EXTRACT(YEAR FROM created_at) = $1)
		) + 1
	`, year).Scan(&next)
	return next, err
}

// SelectBillable loads approved entries of the client's projects inside the
// inclusive period and locks them.
func (t *txRepository) SelectBillable(ctx context.Context, clientID int64, from, to time.Time, excludeInvoiced bool) ([]BillableEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT te.id, te.project_id, p.name, p.hourly_rate, te.hours
		FROM time_entries te
		INNER JOIN projects p ON p.id = te.project_id
		WHERE p.client_id = $1
		  AND te.status = 'Approved'
		  AND NOT te.is_deleted
		  AND te.work_date BETWEEN $2 AND $3
		  AND (NOT $4 OR NOT te.is_invoiced)
		ORDER BY te.project_id, te.id
		FOR UPDATE OF te
	`, clientID, from, to, excludeInvoiced)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BillableEntry
	for rows.Next() {
		var e BillableEntry
		if err := rows.Scan(&e.EntryID, &e.ProjectID, &e.ProjectName, &e.HourlyRate, &e.Hours); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkInvoiced flags the entries invoiced.
func (t *txRepository) MarkInvoiced(ctx context.Context, entryIDs []int64, at time.Time) (int64, error) {
	if len(entryIDs) == 0 {
		return 0, nil
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE time_entries SET is_invoiced = TRUE, updated_at = $1
		WHERE id = ANY($2)
	`, at, entryIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// NextInvoiceSequence atomically allocates the next per-year sequence value.
// The first allocation of a year is seeded from that year's invoice count.
func (t *txRepository) NextInvoiceSequence(ctx context.Context, year int) (int, error) {
	var next int
	err := t.tx.QueryRow(ctx, `
		INSERT INTO invoice_sequences (year, last_value)
		VALUES ($1, (SELECT COUNT(*) FROM invoices WHERE EXTRACT(YEAR FROM created_at) = $1) + 1)
		ON CONFLICT (year) DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value
	`, year).Scan(&next)
	return next, err
}

// InsertInvoice stores an invoice.
func (t *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO invoices (client_id, invoice_number, period_from, period_to, total_amount, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, inv.ClientID, inv.InvoiceNumber, inv.PeriodFrom, inv.PeriodTo, inv.TotalAmount, inv.CreatedBy, inv.CreatedAt).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: invoice number %s", shared.ErrDuplicate, inv.InvoiceNumber)
	}
	return id, err
}
