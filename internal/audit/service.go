package audit

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Service coordinates audit trail reads.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds an audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Timeline returns one page of the trail, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	f, err := filters.normalize(s.now())
	if err != nil {
		return Result{}, err
	}
	q := toQuery(f)
	q.Offset = (f.Page - 1) * f.PageSize
	q.Limit = f.PageSize + 1

	rows, err := s.repo.Timeline(ctx, q)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > f.PageSize
	if hasNext {
		rows = rows[:f.PageSize]
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	paging := PagingInfo{Page: f.Page, PageSize: f.PageSize, HasNext: hasNext}
	if f.Page > 1 {
		paging.PrevPage = f.Page - 1
	}
	if hasNext {
		paging.NextPage = f.Page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching row without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	f, err := filters.normalize(s.now())
	if err != nil {
		return nil, err
	}
	return s.repo.Timeline(ctx, toQuery(f))
}

func toQuery(f TimelineFilters) Query {
	return Query{
		FromAt:   f.From,
		ToAt:     f.To.Add(24 * time.Hour),
		Actor:    strings.TrimSpace(f.Actor),
		Entity:   strings.TrimSpace(f.Entity),
		EntityID: strings.TrimSpace(f.EntityID),
		Action:   strings.TrimSpace(f.Action),
	}
}
