// Package audit serves the audit_logs trail written by the domain services.
package audit

import (
	"encoding/json"
	"time"

	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

const (
	defaultPageSize  = 20
	maxPageSize      = 50
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// TimelineFilters narrows the audit trail. From and To are inclusive dates.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit entry.
type TimelineRow struct {
	ID       int64           `json:"id"`
	At       time.Time       `json:"at"`
	Actor    string          `json:"actor"`
	Action   string          `json:"action"`
	Entity   string          `json:"entity"`
	EntityID string          `json:"entity_id"`
	Meta     json.RawMessage `json:"meta,omitempty"`
}

// PagingInfo carries look-ahead paging.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps a timeline page.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// normalize fills the default window and clamps paging.
func (f TimelineFilters) normalize(now time.Time) (TimelineFilters, error) {
	if f.To.IsZero() {
		f.To = now.UTC().Truncate(24 * time.Hour)
	}
	if f.From.IsZero() {
		f.From = f.To.Add(-defaultDateRange)
	}
	if f.From.After(f.To) {
		return f, shared.NewValidationError("from", "must not be after to")
	}
	if f.To.Sub(f.From) > maxDateRange {
		return f, shared.NewValidationError("to", "range must not exceed 90 days")
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return f, nil
}
