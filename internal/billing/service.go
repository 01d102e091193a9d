package billing

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

const (
	runKindBilling = "billing"
	runKindInvoice = "invoice"
)

// Metrics receives billing counters.
type Metrics interface {
	BillingRun(kind string, amount float64)
}

// CacheInvalidator bumps the report cache after billing changes.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// ServiceConfig carries billing policy and optional collaborators.
type ServiceConfig struct {
	// ExcludeInvoiced skips entries already flagged invoiced by an earlier run.
	ExcludeInvoiced bool
	Logger          *slog.Logger
	Metrics         Metrics
	Cache           CacheInvalidator
	Now             func() time.Time
}

// Service generates client billing runs and invoices.
type Service struct {
	repo            Repository
	audit           shared.Auditor
	excludeInvoiced bool
	logger          *slog.Logger
	metrics         Metrics
	cache           CacheInvalidator
	now             func() time.Time
}

// NewService builds a billing service.
func NewService(repo Repository, audit shared.Auditor, cfg ServiceConfig) *Service {
	s := &Service{
		repo:            repo,
		audit:           audit,
		excludeInvoiced: cfg.ExcludeInvoiced,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		cache:           cfg.Cache,
		now:             cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// GenerateClientBilling bills the client's approved hours inside [from, to]
// and flags every selected entry invoiced. Unknown clients yield an empty
// result.
func (s *Service) GenerateClientBilling(ctx context.Context, clientID int64, from, to time.Time) (ClientBilling, error) {
	if err := validatePeriod(clientID, from, to); err != nil {
		return ClientBilling{}, err
	}
	result := ClientBilling{
		ClientID:   clientID,
		ClientName: UnknownClientName,
		PeriodFrom: from,
		PeriodTo:   to,
		Items:      []LineItem{},
	}
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return result, nil
		}
		return ClientBilling{}, err
	}
	result.ClientName = client.Name

	now := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entries, err := tx.SelectBillable(ctx, clientID, from, to, s.excludeInvoiced)
		if err != nil {
			return err
		}
		result.Items, result.TotalHours, result.TotalAmount = Aggregate(entries)
		marked, err := tx.MarkInvoiced(ctx, entryIDs(entries), now)
		if err != nil {
			return err
		}
		result.EntriesInvoiced = int(marked)
		return nil
	})
	if err != nil {
		s.logger.Error("generate client billing", slog.Int64("client_id", clientID), slog.Any("error", err))
		return ClientBilling{}, err
	}

	s.record(ctx, "billing.generate", "client", strconv.FormatInt(clientID, 10), map[string]any{
		"from":             from.Format(time.DateOnly),
		"to":               to.Format(time.DateOnly),
		"total_amount":     result.TotalAmount.StringFixed(2),
		"entries_invoiced": result.EntriesInvoiced,
	})
	s.observe(ctx, runKindBilling, result.TotalAmount)
	return result, nil
}

// CreateInvoice sums the client's billable hours for the period and stores an
// invoice numbered inside the same transaction.
func (s *Service) CreateInvoice(ctx context.Context, clientID int64, from, to time.Time) (*Invoice, error) {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return nil, shared.ErrUnauthorized
	}
	if err := validatePeriod(clientID, from, to); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetClient(ctx, clientID); err != nil {
		return nil, err
	}

	now := s.now()
	inv := Invoice{
		ClientID:   clientID,
		PeriodFrom: from,
		PeriodTo:   to,
		CreatedBy:  actor.ID,
		CreatedAt:  now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entries, err := tx.SelectBillable(ctx, clientID, from, to, s.excludeInvoiced)
		if err != nil {
			return err
		}
		inv.TotalAmount = SumAmount(entries)
		number, err := NewInvoiceNumberGenerator(tx).Generate(ctx, now.Year())
		if err != nil {
			return err
		}
		inv.InvoiceNumber = number
		id, err := tx.InsertInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		return nil
	})
	if err != nil {
		s.logger.Error("create invoice", slog.Int64("client_id", clientID), slog.Any("error", err))
		return nil, err
	}

	s.record(ctx, "invoice.create", "invoice", strconv.FormatInt(inv.ID, 10), map[string]any{
		"number":       inv.InvoiceNumber,
		"client_id":    clientID,
		"total_amount": inv.TotalAmount.StringFixed(2),
	})
	s.observe(ctx, runKindInvoice, inv.TotalAmount)
	return &inv, nil
}

// GetInvoice returns an invoice by id.
func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	if id <= 0 {
		return nil, shared.NewValidationError("id", "must be a positive integer")
	}
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices lists invoices, optionally by client and year.
func (s *Service) ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error) {
	if filter.ClientID < 0 {
		return nil, shared.NewValidationError("client_id", "must be a positive integer")
	}
	if filter.Year < 0 {
		return nil, shared.NewValidationError("year", "must be a positive integer")
	}
	return s.repo.ListInvoices(ctx, filter)
}

// PreviewNumber reports the number the next invoice of year would receive.
// The value is advisory; allocation only happens in CreateInvoice.
func (s *Service) PreviewNumber(ctx context.Context, year int) (string, error) {
	if year <= 0 {
		year = s.now().Year()
	}
	seq, err := s.repo.PeekInvoiceSequence(ctx, year)
	if err != nil {
		return "", err
	}
	return FormatInvoiceNumber(year, seq), nil
}

func (s *Service) observe(ctx context.Context, kind string, amount decimal.Decimal) {
	if s.metrics != nil {
		s.metrics.BillingRun(kind, amount.InexactFloat64())
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("bump report cache", slog.Any("error", err))
		}
	}
}

func (s *Service) record(ctx context.Context, action, entity, id string, meta map[string]any) {
	actorID := "system"
	if actor, ok := shared.ActorFromContext(ctx); ok {
		actorID = actor.ID
	}
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: id,
		Meta:     meta,
		At:       s.now(),
	})
}

func entryIDs(entries []BillableEntry) []int64 {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.EntryID
	}
	return ids
}
