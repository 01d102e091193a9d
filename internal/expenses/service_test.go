package expenses

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pcm/internal/budget"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	expenses map[int64]Expense
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{expenses: map[int64]Expense{}}
}

func (r *memoryRepo) Get(_ context.Context, id int64) (*Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.expenses[id]
	if !ok || e.IsDeleted {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (r *memoryRepo) List(_ context.Context, filter ListFilter) ([]Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Expense
	for _, e := range r.expenses {
		if e.IsDeleted {
			continue
		}
		if filter.ProjectID > 0 && e.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.SubmittedBy != "" && e.SubmittedBy != filter.SubmittedBy {
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
	snapshot := make(map[int64]Expense, len(r.expenses))
	for k, v := range r.expenses {
		snapshot[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.expenses = snapshot
		return err
	}
	return nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) Insert(_ context.Context, e Expense) (int64, error) {
	t.repo.nextID++
	e.ID = t.repo.nextID
	t.repo.expenses[e.ID] = e
	return e.ID, nil
}

func (t *memoryTx) Lock(_ context.Context, id int64) (*Expense, error) {
	e, ok := t.repo.expenses[id]
	if !ok || e.IsDeleted {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (t *memoryTx) Update(_ context.Context, e Expense) error {
	cur := t.repo.expenses[e.ID]
	if cur.Status != StatusPending {
		return ErrCannotEdit
	}
	t.repo.expenses[e.ID] = e
	return nil
}

func (t *memoryTx) SoftDelete(_ context.Context, id int64, at time.Time) error {
	e := t.repo.expenses[id]
	if e.Status != StatusPending {
		return ErrCannotEdit
	}
	e.IsDeleted = true
	e.UpdatedAt = at
	t.repo.expenses[id] = e
	return nil
}

func (t *memoryTx) Decide(_ context.Context, id int64, status Status, by string, at time.Time, reason *string) error {
	e := t.repo.expenses[id]
	if e.Status != StatusPending {
		return ErrCannotApprove
	}
	e.Status = status
	e.ApprovedBy = &by
	e.ApprovedAt = &at
	e.RejectionReason = reason
	t.repo.expenses[id] = e
	return nil
}

func (t *memoryTx) Budget() budget.TxRepository { return nil }

type fakeBudgets struct {
	applied   []decimal.Decimal
	published []budget.BudgetAlert
	alert     *budget.BudgetAlert
	err       error
}

func (f *fakeBudgets) ApplyApprovedExpense(_ context.Context, _ budget.TxRepository, projectID int64, amount decimal.Decimal) ([]budget.BudgetAlert, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.applied = append(f.applied, amount)
	if f.alert != nil {
		return []budget.BudgetAlert{*f.alert}, nil
	}
	return nil, nil
}

func (f *fakeBudgets) PublishAlerts(_ context.Context, alerts []budget.BudgetAlert) {
	f.published = append(f.published, alerts...)
}

type decisionCounter map[string]int

func (d decisionCounter) ExpenseDecided(decision string) { d[decision]++ }

type countingCache struct{ bumps int }

func (c *countingCache) Bump(context.Context) error {
	c.bumps++
	return nil
}

type fixture struct {
	repo    *memoryRepo
	budgets *fakeBudgets
	metrics decisionCounter
	cache   *countingCache
	service *Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:    newMemoryRepo(),
		budgets: &fakeBudgets{},
		metrics: decisionCounter{},
		cache:   &countingCache{},
	}
	f.service = NewService(f.repo, f.budgets, nil, ServiceConfig{
		Metrics: f.metrics,
		Cache:   f.cache,
		Now:     func() time.Time { return time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC) },
	})
	return f
}

func asActor(id string, role shared.Role) context.Context {
	return shared.ContextWithActor(context.Background(), shared.Actor{ID: id, Role: role})
}

func (f *fixture) create(t *testing.T, amount string) *Expense {
	t.Helper()
	e, err := f.service.Create(asActor("dev-1", shared.RoleDeveloper), CreateInput{
		ProjectID:   1,
		Category:    "labor",
		Amount:      decimal.RequireFromString(amount),
		Description: " pairing session ",
		ExpenseDate: "2024-04-01",
	})
	require.NoError(t, err)
	return e
}

func TestCreateExpense(t *testing.T) {
	f := newFixture()
	e := f.create(t, "120.50")

	require.Equal(t, StatusPending, e.Status)
	require.Equal(t, CategoryLabor, e.Category)
	require.Equal(t, "dev-1", e.SubmittedBy)
	require.Equal(t, "pairing session", e.Description)
	require.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), e.ExpenseDate)

	_, err := f.service.Create(asActor("dev-1", shared.RoleDeveloper), CreateInput{ProjectID: 1, Category: "Snacks", ExpenseDate: "2024-04-01"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.Create(asActor("dev-1", shared.RoleDeveloper), CreateInput{ProjectID: 1, Category: "Other", Amount: decimal.NewFromInt(-1), ExpenseDate: "2024-04-01"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.service.Create(context.Background(), CreateInput{ProjectID: 1})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestApproveAppliesBudgetAndPublishes(t *testing.T) {
	f := newFixture()
	f.budgets.alert = &budget.BudgetAlert{ID: 9, AlertType: budget.AlertWarning}
	e := f.create(t, "7600")

	approved, err := f.service.Approve(asActor("pm-1", shared.RoleProjectManager), e.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, "pm-1", *approved.ApprovedBy)
	require.Len(t, f.budgets.applied, 1)
	require.Equal(t, "7600", f.budgets.applied[0].String())
	require.Len(t, f.budgets.published, 1)
	require.Equal(t, 1, f.metrics["approved"])
	require.Equal(t, 1, f.cache.bumps)
}

func TestApproveTwiceIsRejected(t *testing.T) {
	f := newFixture()
	e := f.create(t, "100")
	ctx := asActor("pm-1", shared.RoleProjectManager)

	_, err := f.service.Approve(ctx, e.ID)
	require.NoError(t, err)
	_, err = f.service.Approve(ctx, e.ID)
	require.ErrorIs(t, err, ErrCannotApprove)
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = f.service.Reject(ctx, e.ID, "late")
	require.ErrorIs(t, err, ErrCannotApprove)

	require.Len(t, f.budgets.applied, 1)
}

func TestApproveRollsBackWhenBudgetFails(t *testing.T) {
	f := newFixture()
	f.budgets.err = errors.New("budget row locked")
	e := f.create(t, "100")

	_, err := f.service.Approve(asActor("pm-1", shared.RoleProjectManager), e.ID)
	require.Error(t, err)

	stored, err := f.repo.Get(context.Background(), e.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
	require.Nil(t, stored.ApprovedBy)
	require.Zero(t, f.cache.bumps)
}

func TestApproveRequiresManager(t *testing.T) {
	f := newFixture()
	e := f.create(t, "100")
	_, err := f.service.Approve(asActor("dev-1", shared.RoleDeveloper), e.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestDecidedExpensesAreImmutable(t *testing.T) {
	f := newFixture()
	approved := f.create(t, "100")
	rejected := f.create(t, "200")
	pm := asActor("pm-1", shared.RoleProjectManager)
	_, err := f.service.Approve(pm, approved.ID)
	require.NoError(t, err)
	r, err := f.service.Reject(pm, rejected.ID, "no receipt")
	require.NoError(t, err)
	require.Equal(t, "no receipt", *r.RejectionReason)
	require.Len(t, f.budgets.applied, 1)

	amount := decimal.RequireFromString("1")
	for _, id := range []int64{approved.ID, rejected.ID} {
		before, err := f.repo.Get(context.Background(), id)
		require.NoError(t, err)

		_, err = f.service.Update(pm, id, UpdateInput{Amount: &amount})
		require.ErrorIs(t, err, ErrCannotEdit)
		require.ErrorIs(t, f.service.Delete(pm, id), ErrCannotEdit)

		after, err := f.repo.Get(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, before, after)
	}
}

func TestUpdateAndDeletePending(t *testing.T) {
	f := newFixture()
	e := f.create(t, "100")
	owner := asActor("dev-1", shared.RoleDeveloper)

	amount := decimal.RequireFromString("150")
	category := "Travel"
	updated, err := f.service.Update(owner, e.ID, UpdateInput{Amount: &amount, Category: &category})
	require.NoError(t, err)
	require.Equal(t, "150", updated.Amount.String())
	require.Equal(t, CategoryTravel, updated.Category)

	_, err = f.service.Update(asActor("dev-2", shared.RoleDeveloper), e.ID, UpdateInput{Amount: &amount})
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.NoError(t, f.service.Delete(owner, e.ID))
	_, err = f.service.Get(context.Background(), e.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestParseStatusAndCategory(t *testing.T) {
	s, err := ParseStatus("approved")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, s)
	_, err = ParseStatus("Invoiced")
	require.ErrorIs(t, err, shared.ErrValidation)

	c, err := ParseCategory(" SOFTWARE ")
	require.NoError(t, err)
	require.Equal(t, CategorySoftware, c)
}

func TestListValidatesRange(t *testing.T) {
	f := newFixture()
	f.create(t, "1")
	_, err := f.service.List(context.Background(), ListFilter{
		From: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	items, err := f.service.List(context.Background(), ListFilter{ProjectID: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
}
