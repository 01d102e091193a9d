package timeentries

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// Service handles time logging and approval.
type Service struct {
	repo   Repository
	audit  shared.Auditor
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository, audit shared.Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Log records hours for the acting developer.
func (s *Service) Log(ctx context.Context, in LogInput) (*TimeEntry, error) {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return nil, shared.ErrUnauthorized
	}
	if in.ProjectID <= 0 {
		return nil, shared.NewValidationError("project_id", "must be a positive integer")
	}
	if err := validateHours(in.Hours); err != nil {
		return nil, err
	}
	date, err := parseWorkDate(in.WorkDate)
	if err != nil {
		return nil, err
	}
	now := s.now()
	e := TimeEntry{
		ProjectID:   in.ProjectID,
		DeveloperID: actor.ID,
		TaskID:      in.TaskID,
		WorkDate:    date,
		Hours:       in.Hours,
		Description: strings.TrimSpace(in.Description),
		Status:      StatusSubmitted,
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
	s.record(ctx, actor, "time_entry.log", e.ID, map[string]any{"project_id": e.ProjectID, "hours": e.Hours.String()})
	return &e, nil
}

// Get returns an entry.
func (s *Service) Get(ctx context.Context, id int64) (*TimeEntry, error) {
	if id <= 0 {
		return nil, shared.NewValidationError("id", "must be a positive integer")
	}
	return s.repo.Get(ctx, id)
}

// List returns entries matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]TimeEntry, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, shared.NewValidationError("from", "must not be after to")
	}
	filter.Page = shared.NormalizePage(filter.Page.Limit, filter.Page.Offset)
	return s.repo.List(ctx, filter)
}

// Update edits a submitted or rejected entry. Editing a rejected entry
// resubmits it.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*TimeEntry, error) {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return nil, shared.ErrUnauthorized
	}
	var updated TimeEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if !e.Editable() {
			return ErrCannotEdit
		}
		if err := checkOwner(actor, e); err != nil {
			return err
		}
		if err := applyUpdate(e, in); err != nil {
			return err
		}
		e.Status = StatusSubmitted
		e.ApprovedBy = nil
		e.ApprovedAt = nil
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
	s.record(ctx, actor, "time_entry.update", id, map[string]any{"hours": updated.Hours.String()})
	return &updated, nil
}

func applyUpdate(e *TimeEntry, in UpdateInput) error {
	if in.Hours != nil {
		if err := validateHours(*in.Hours); err != nil {
			return err
		}
		e.Hours = *in.Hours
	}
	if in.WorkDate != nil {
		d, err := parseWorkDate(*in.WorkDate)
		if err != nil {
			return err
		}
		e.WorkDate = d
	}
	if in.TaskID != nil {
		e.TaskID = in.TaskID
	}
	if in.Description != nil {
		e.Description = strings.TrimSpace(*in.Description)
	}
	return nil
}

// Delete soft deletes an editable entry.
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
		if !e.Editable() {
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
	s.record(ctx, actor, "time_entry.delete", id, nil)
	return nil
}

// Approve accepts a submitted entry for billing.
func (s *Service) Approve(ctx context.Context, id int64) (*TimeEntry, error) {
	return s.decide(ctx, id, StatusApproved, "time_entry.approve")
}

// Reject sends a submitted entry back to its developer.
func (s *Service) Reject(ctx context.Context, id int64) (*TimeEntry, error) {
	return s.decide(ctx, id, StatusRejected, "time_entry.reject")
}

func (s *Service) decide(ctx context.Context, id int64, status Status, action string) (*TimeEntry, error) {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return nil, shared.ErrUnauthorized
	}
	if !actor.Role.CanApprove() {
		return nil, shared.ErrForbidden
	}
	var decided TimeEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if !e.Status.CanDecide() {
			return ErrCannotApprove
		}
		at := s.now()
		if err := tx.Decide(ctx, id, status, actor.ID, at); err != nil {
			return err
		}
		e.Status = status
		e.ApprovedBy = &actor.ID
		e.ApprovedAt = &at
		e.UpdatedAt = at
		decided = *e
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, action, id, map[string]any{"project_id": decided.ProjectID, "hours": decided.Hours.String()})
	return &decided, nil
}

func checkOwner(actor shared.Actor, e *TimeEntry) error {
	if actor.Role == shared.RoleAdmin || actor.ID == e.DeveloperID {
		return nil
	}
	return ErrNotOwner
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, id int64, meta map[string]any) {
	shared.RecordAudit(ctx, s.audit, s.logger, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "time_entry",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
