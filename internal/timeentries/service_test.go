package timeentries

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	entries map[int64]TimeEntry
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{entries: map[int64]TimeEntry{}}
}

func (r *memoryRepo) Get(_ context.Context, id int64) (*TimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.IsDeleted {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (r *memoryRepo) List(_ context.Context, filter ListFilter) ([]TimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TimeEntry
	for _, e := range r.entries {
		if e.IsDeleted {
			continue
		}
		if filter.DeveloperID != "" && e.DeveloperID != filter.DeveloperID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[int64]TimeEntry, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.entries = snapshot
		return err
	}
	return nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) Insert(_ context.Context, e TimeEntry) (int64, error) {
	t.repo.nextID++
	e.ID = t.repo.nextID
	t.repo.entries[e.ID] = e
	return e.ID, nil
}

func (t *memoryTx) Lock(_ context.Context, id int64) (*TimeEntry, error) {
	e, ok := t.repo.entries[id]
	if !ok || e.IsDeleted {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (t *memoryTx) Update(_ context.Context, e TimeEntry) error {
	if !t.repo.entries[e.ID].Editable() {
		return ErrCannotEdit
	}
	t.repo.entries[e.ID] = e
	return nil
}

func (t *memoryTx) SoftDelete(_ context.Context, id int64, at time.Time) error {
	e := t.repo.entries[id]
	if !e.Editable() {
		return ErrCannotEdit
	}
	e.IsDeleted = true
	e.UpdatedAt = at
	t.repo.entries[id] = e
	return nil
}

func (t *memoryTx) Decide(_ context.Context, id int64, status Status, by string, at time.Time) error {
	e := t.repo.entries[id]
	if e.Status != StatusSubmitted {
		return ErrCannotApprove
	}
	e.Status = status
	e.ApprovedBy = &by
	e.ApprovedAt = &at
	t.repo.entries[id] = e
	return nil
}

type memoryAuditor struct {
	actions []string
}

func (a *memoryAuditor) Record(_ context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

func ctxAs(id string, role shared.Role) context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{ID: id, Role: role})
}

func newTestService() (*Service, *memoryRepo, *memoryAuditor) {
	repo := newMemoryRepo()
	audit := &memoryAuditor{}
	svc := NewService(repo, audit, nil)
	svc.WithClock(func() time.Time { return time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC) })
	return svc, repo, audit
}

func logHours(t *testing.T, svc *Service, dev string, hours string) *TimeEntry {
	t.Helper()
	e, err := svc.Log(ctxAs(dev, shared.RoleDeveloper), LogInput{
		ProjectID: 1,
		WorkDate:  "2024-03-01",
		Hours:     decimal.RequireFromString(hours),
	})
	require.NoError(t, err)
	return e
}

func TestLogValidatesHours(t *testing.T) {
	svc, _, audit := newTestService()

	e := logHours(t, svc, "dev-1", "7.5")
	require.Equal(t, StatusSubmitted, e.Status)
	require.Equal(t, "dev-1", e.DeveloperID)
	require.False(t, e.IsInvoiced)
	require.Equal(t, []string{"time_entry.log"}, audit.actions)

	_, err := svc.Log(ctxAs("dev-1", shared.RoleDeveloper), LogInput{ProjectID: 1, WorkDate: "2024-03-01", Hours: decimal.RequireFromString("24.5")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Log(ctxAs("dev-1", shared.RoleDeveloper), LogInput{ProjectID: 1, WorkDate: "2024-03-01", Hours: decimal.RequireFromString("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Log(ctxAs("dev-1", shared.RoleDeveloper), LogInput{ProjectID: 1, WorkDate: "03/01/2024", Hours: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApprovedEntriesAreImmutable(t *testing.T) {
	svc, repo, _ := newTestService()
	e := logHours(t, svc, "dev-1", "8")

	approved, err := svc.Approve(ctxAs("pm-1", shared.RoleProjectManager), e.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, "pm-1", *approved.ApprovedBy)

	hours := decimal.NewFromInt(2)
	_, err = svc.Update(ctxAs("dev-1", shared.RoleDeveloper), e.ID, UpdateInput{Hours: &hours})
	require.ErrorIs(t, err, ErrCannotEdit)
	require.ErrorIs(t, svc.Delete(ctxAs("root", shared.RoleAdmin), e.ID), ErrCannotEdit)
	require.Equal(t, "8", repo.entries[e.ID].Hours.String())

	_, err = svc.Approve(ctxAs("pm-1", shared.RoleProjectManager), e.ID)
	require.ErrorIs(t, err, ErrCannotApprove)
}

func TestInvoicedEntriesAreImmutable(t *testing.T) {
	svc, repo, _ := newTestService()
	e := logHours(t, svc, "dev-1", "8")
	stored := repo.entries[e.ID]
	stored.IsInvoiced = true
	repo.entries[e.ID] = stored

	require.ErrorIs(t, svc.Delete(ctxAs("dev-1", shared.RoleDeveloper), e.ID), ErrCannotEdit)
}

func TestRejectedEntryIsResubmittedByEdit(t *testing.T) {
	svc, _, _ := newTestService()
	e := logHours(t, svc, "dev-1", "8")

	rejected, err := svc.Reject(ctxAs("pm-1", shared.RoleProjectManager), e.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)

	hours := decimal.NewFromInt(6)
	updated, err := svc.Update(ctxAs("dev-1", shared.RoleDeveloper), e.ID, UpdateInput{Hours: &hours})
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, updated.Status)
	require.Nil(t, updated.ApprovedBy)
	require.Equal(t, "6", updated.Hours.String())
}

func TestOwnershipRules(t *testing.T) {
	svc, _, _ := newTestService()
	e := logHours(t, svc, "dev-1", "8")
	desc := "refactor"

	_, err := svc.Update(ctxAs("dev-2", shared.RoleDeveloper), e.ID, UpdateInput{Description: &desc})
	require.ErrorIs(t, err, ErrNotOwner)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Update(ctxAs("root", shared.RoleAdmin), e.ID, UpdateInput{Description: &desc})
	require.NoError(t, err)

	_, err = svc.Approve(ctxAs("dev-2", shared.RoleDeveloper), e.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.NoError(t, svc.Delete(ctxAs("dev-1", shared.RoleDeveloper), e.ID))
	_, err = svc.Get(context.Background(), e.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListFiltersByDeveloper(t *testing.T) {
	svc, _, _ := newTestService()
	logHours(t, svc, "dev-1", "1")
	logHours(t, svc, "dev-2", "2")

	entries, err := svc.List(context.Background(), ListFilter{DeveloperID: "dev-2"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "2", entries[0].Hours.String())
}
