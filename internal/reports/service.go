package reports

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// Service builds cached reports. Report builds never fail on load errors;
// they log and return a zeroed report instead.
type Service struct {
	repo   Repository
	cache  *Cache
	audit  shared.Auditor
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewService wires the repository with the cache helper.
func NewService(repo Repository, cache *Cache, audit shared.Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Financial reports budget, spend and billable value per project.
func (s *Service) Financial(ctx context.Context, filter FinancialFilter) (FinancialReport, error) {
	if err := filter.validate(); err != nil {
		return FinancialReport{}, err
	}
	if filter.ClientID < 0 {
		return FinancialReport{}, shared.NewValidationError("client_id", "must be a positive integer")
	}
	var report FinancialReport
	err := s.cached(ctx, &report, func(ctx context.Context) (any, error) {
		var (
			projects []ProjectRow
			entries  []EntryRow
			expenses map[int64]decimal.Decimal
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			projects, err = s.repo.Projects(gctx, filter.ClientID)
			return err
		})
		g.Go(func() (err error) {
			entries, err = s.repo.Entries(gctx, TimeEntryFilter{Period: filter.Period})
			return err
		})
		g.Go(func() (err error) {
			expenses, err = s.repo.ApprovedExpenses(gctx, filter.Period)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return BuildFinancial(filter, projects, entries, expenses), nil
	}, string(TypeFinancial), filter.key(), formatInt(filter.ClientID))
	if err != nil {
		s.degraded(TypeFinancial, err)
		return BuildFinancial(filter, nil, nil, nil), nil
	}
	return report, nil
}

// Productivity reports logged hours per developer.
func (s *Service) Productivity(ctx context.Context, period Period) (ProductivityReport, error) {
	if err := period.validate(); err != nil {
		return ProductivityReport{}, err
	}
	var report ProductivityReport
	err := s.cached(ctx, &report, func(ctx context.Context) (any, error) {
		entries, err := s.repo.Entries(ctx, TimeEntryFilter{Period: period})
		if err != nil {
			return nil, err
		}
		return BuildProductivity(period, entries), nil
	}, string(TypeProductivity), period.key())
	if err != nil {
		s.degraded(TypeProductivity, err)
		return BuildProductivity(period, nil), nil
	}
	return report, nil
}

// ProjectStatus reports health of every live project.
func (s *Service) ProjectStatus(ctx context.Context) (ProjectStatusReport, error) {
	var report ProjectStatusReport
	err := s.cached(ctx, &report, func(ctx context.Context) (any, error) {
		var (
			projects []ProjectRow
			entries  []EntryRow
			alerts   map[int64]int
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			projects, err = s.repo.Projects(gctx, 0)
			return err
		})
		g.Go(func() (err error) {
			entries, err = s.repo.Entries(gctx, TimeEntryFilter{})
			return err
		})
		g.Go(func() (err error) {
			alerts, err = s.repo.OpenAlertCounts(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return BuildProjectStatus(projects, entries, alerts), nil
	}, string(TypeProjectStatus))
	if err != nil {
		s.degraded(TypeProjectStatus, err)
		return BuildProjectStatus(nil, nil, nil), nil
	}
	return report, nil
}

// TimeEntries reports entry counts and hours per status and project.
func (s *Service) TimeEntries(ctx context.Context, filter TimeEntryFilter) (TimeEntryReport, error) {
	if err := filter.validate(); err != nil {
		return TimeEntryReport{}, err
	}
	var report TimeEntryReport
	err := s.cached(ctx, &report, func(ctx context.Context) (any, error) {
		entries, err := s.repo.Entries(ctx, filter)
		if err != nil {
			return nil, err
		}
		return BuildTimeEntries(filter, entries), nil
	}, string(TypeTimeEntries), filter.key(), formatInt(filter.ProjectID), orDash(filter.DeveloperID))
	if err != nil {
		s.degraded(TypeTimeEntries, err)
		return BuildTimeEntries(filter, nil), nil
	}
	return report, nil
}

// Client reports a client's projects, billable value and invoices.
func (s *Service) Client(ctx context.Context, clientID int64, period Period) (ClientReport, error) {
	if clientID <= 0 {
		return ClientReport{}, shared.NewValidationError("client_id", "must be a positive integer")
	}
	if err := period.validate(); err != nil {
		return ClientReport{}, err
	}
	var report ClientReport
	err := s.cached(ctx, &report, func(ctx context.Context) (any, error) {
		var (
			name     string
			projects []ProjectRow
			entries  []EntryRow
			invoices InvoiceTotals
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			name, err = s.repo.ClientName(gctx, clientID)
			return err
		})
		g.Go(func() (err error) {
			projects, err = s.repo.Projects(gctx, clientID)
			return err
		})
		g.Go(func() (err error) {
			entries, err = s.repo.Entries(gctx, TimeEntryFilter{Period: period})
			return err
		})
		g.Go(func() (err error) {
			invoices, err = s.repo.InvoiceTotals(gctx, clientID, period)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return BuildClient(clientID, name, period, projects, entries, invoices), nil
	}, string(TypeClient), formatInt(clientID), period.key())
	if err != nil {
		s.degraded(TypeClient, err)
		return BuildClient(clientID, UnknownClientName, period, nil, nil, InvoiceTotals{}), nil
	}
	return report, nil
}

// Save stores a report snapshot for the acting user.
func (s *Service) Save(ctx context.Context, in SaveInput) (*SavedReport, error) {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return nil, shared.ErrUnauthorized
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, shared.NewValidationError("name", "is required")
	}
	reportType, err := ParseType(in.Type)
	if err != nil {
		return nil, err
	}
	if len(in.Result) == 0 || !json.Valid(in.Result) {
		return nil, shared.NewValidationError("result", "must be valid JSON")
	}
	filters := in.Filters
	if len(filters) == 0 {
		filters = json.RawMessage(`{}`)
	} else if !json.Valid(filters) {
		return nil, shared.NewValidationError("filters", "must be valid JSON")
	}
	saved := SavedReport{
		ID:        uuid.New(),
		Name:      name,
		Type:      reportType,
		Filters:   filters,
		Result:    in.Result,
		CreatedBy: actor.ID,
		CreatedAt: s.now(),
	}
	if err := s.repo.InsertSaved(ctx, saved); err != nil {
		s.logger.Error("save report", slog.String("type", string(reportType)), slog.Any("error", err))
		return nil, err
	}
	s.record(ctx, actor, "saved_report.create", saved.ID.String(), map[string]any{"type": string(reportType), "name": name})
	return &saved, nil
}

// GetSaved loads a snapshot. Managers may read any; others only their own.
func (s *Service) GetSaved(ctx context.Context, rawID string) (*SavedReport, error) {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return nil, shared.ErrUnauthorized
	}
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	saved, err := s.repo.GetSaved(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanApprove() && saved.CreatedBy != actor.ID {
		return nil, shared.ErrForbidden
	}
	return saved, nil
}

// ListSaved lists snapshots. Managers see everyone's; others only their own.
func (s *Service) ListSaved(ctx context.Context, reportType string) ([]SavedReport, error) {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return nil, shared.ErrUnauthorized
	}
	var t Type
	if reportType != "" {
		var err error
		if t, err = ParseType(reportType); err != nil {
			return nil, err
		}
	}
	createdBy := actor.ID
	if actor.Role.CanApprove() {
		createdBy = ""
	}
	return s.repo.ListSaved(ctx, createdBy, t)
}

// DeleteSaved soft-deletes a snapshot owned by the actor, or any snapshot for admins.
func (s *Service) DeleteSaved(ctx context.Context, rawID string) error {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return shared.ErrUnauthorized
	}
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	saved, err := s.repo.GetSaved(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role != shared.RoleAdmin && saved.CreatedBy != actor.ID {
		return shared.ErrForbidden
	}
	if err := s.repo.SoftDeleteSaved(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "saved_report.delete", id.String(), nil)
	return nil
}

// cached serves dest from the versioned cache, coalescing identical builds.
// A cache outage falls back to building directly.
func (s *Service) cached(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.Any("error", err))
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}

	ch := s.group.DoChan(key, func() (any, error) {
		// The build is shared; the first caller's cancellation must not end it.
		ctx := context.WithoutCancel(ctx)
		var loadErr error
		wrapped := func(ctx context.Context) (any, error) {
			v, err := loader(ctx)
			loadErr = err
			return v, err
		}
		var raw json.RawMessage
		err := s.cache.FetchJSON(ctx, key, &raw, wrapped)
		if err != nil && loadErr == nil {
			s.logger.Warn("report cache unavailable", slog.String("key", key), slog.Any("error", err))
			value, err := loader(ctx)
			if err != nil {
				return nil, err
			}
			return json.Marshal(value)
		}
		return []byte(raw), err
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return res.Err
	}
	return json.Unmarshal(res.Val.([]byte), dest)
}

func (s *Service) degraded(t Type, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Error("build report", slog.String("type", string(t)), slog.Any("error", err))
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action, id string, meta map[string]any) {
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "saved_report",
		EntityID: id,
		Meta:     meta,
		At:       s.now(),
	})
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, shared.NewValidationError("id", "must be a UUID")
	}
	return id, nil
}

func formatInt(v int64) string {
	if v <= 0 {
		return "-"
	}
	return strconv.FormatInt(v, 10)
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
