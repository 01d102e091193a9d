package budget

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pcm/internal/notify"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

type memoryState struct {
	budgets  map[int64]ProjectBudget
	alerts   map[int64]BudgetAlert
	expenses map[int64][]ExpenseLine
	nextID   int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		budgets:  make(map[int64]ProjectBudget, len(s.budgets)),
		alerts:   make(map[int64]BudgetAlert, len(s.alerts)),
		expenses: make(map[int64][]ExpenseLine, len(s.expenses)),
		nextID:   s.nextID,
	}
	for k, v := range s.budgets {
		out.budgets[k] = v
	}
	for k, v := range s.alerts {
		out.alerts[k] = v
	}
	for k, v := range s.expenses {
		out.expenses[k] = append([]ExpenseLine(nil), v...)
	}
	return out
}

type memoryRepo struct {
	mu    sync.Mutex
	state memoryState
	names map[int64]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		state: memoryState{
			budgets:  map[int64]ProjectBudget{},
			alerts:   map[int64]BudgetAlert{},
			expenses: map[int64][]ExpenseLine{},
		},
		names: map[int64]string{},
	}
}

func (r *memoryRepo) seedBudget(projectID int64, total string, created time.Time) ProjectBudget {
	r.state.nextID++
	b := ProjectBudget{
		ID:                r.state.nextID,
		ProjectID:         projectID,
		TotalBudget:       decimal.RequireFromString(total),
		WarningThreshold:  decimal.RequireFromString("0.75"),
		CriticalThreshold: decimal.RequireFromString("0.90"),
		CreatedAt:         created,
		UpdatedAt:         created,
	}
	r.state.budgets[b.ID] = b
	return b
}

func (r *memoryRepo) addExpense(projectID int64, category, status, amount string) {
	r.state.nextID++
	r.state.expenses[projectID] = append(r.state.expenses[projectID], ExpenseLine{
		ID: r.state.nextID, Category: category, Status: status, Amount: decimal.RequireFromString(amount),
	})
}

func (r *memoryRepo) liveBudget(projectID int64) (ProjectBudget, bool) {
	for _, b := range r.state.budgets {
		if b.ProjectID == projectID && !b.IsDeleted {
			return b, true
		}
	}
	return ProjectBudget{}, false
}

func (r *memoryRepo) alertList() []BudgetAlert {
	out := make([]BudgetAlert, 0, len(r.state.alerts))
	for _, a := range r.state.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) GetByProject(_ context.Context, projectID int64) (*ProjectBudget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.liveBudget(projectID)
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (r *memoryRepo) ProjectName(_ context.Context, projectID int64) (string, error) {
	if name, ok := r.names[projectID]; ok {
		return name, nil
	}
	return UnknownProjectName, nil
}

func (r *memoryRepo) ListExpenses(_ context.Context, projectID int64) ([]ExpenseLine, error) {
	return append([]ExpenseLine(nil), r.state.expenses[projectID]...), nil
}

func (r *memoryRepo) ListAlerts(_ context.Context, projectID int64, includeAck bool) ([]BudgetAlert, error) {
	var out []BudgetAlert
	for _, a := range r.alertList() {
		if a.ProjectID != projectID || (a.IsAcknowledged && !includeAck) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memoryRepo) ListBudgets(_ context.Context) ([]ProjectBudget, error) {
	var out []ProjectBudget
	for _, b := range r.state.budgets {
		if !b.IsDeleted {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out, nil
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := r.state.clone()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) LockByProject(_ context.Context, projectID int64) (*ProjectBudget, error) {
	b, ok := t.repo.liveBudget(projectID)
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (t *memoryTx) LockAlert(_ context.Context, alertID int64) (*BudgetAlert, error) {
	a, ok := t.repo.state.alerts[alertID]
	if !ok {
		return nil, ErrAlertNotFound
	}
	return &a, nil
}

func (t *memoryTx) InsertBudget(_ context.Context, b ProjectBudget) (int64, error) {
	if _, ok := t.repo.liveBudget(b.ProjectID); ok {
		return 0, ErrAlreadyExists
	}
	t.repo.state.nextID++
	b.ID = t.repo.state.nextID
	t.repo.state.budgets[b.ID] = b
	return b.ID, nil
}

func (t *memoryTx) UpdateBudget(_ context.Context, b ProjectBudget) error {
	cur, ok := t.repo.state.budgets[b.ID]
	if !ok || cur.IsDeleted {
		return ErrNotFound
	}
	b.SpentAmount = cur.SpentAmount
	t.repo.state.budgets[b.ID] = b
	return nil
}

func (t *memoryTx) SoftDelete(_ context.Context, budgetID int64, at time.Time) error {
	b, ok := t.repo.state.budgets[budgetID]
	if !ok || b.IsDeleted {
		return ErrNotFound
	}
	b.IsDeleted = true
	b.UpdatedAt = at
	t.repo.state.budgets[budgetID] = b
	return nil
}

func (t *memoryTx) IncrementSpent(_ context.Context, budgetID int64, amount decimal.Decimal, at time.Time) (*ProjectBudget, error) {
	b, ok := t.repo.state.budgets[budgetID]
	if !ok || b.IsDeleted {
		return nil, ErrNotFound
	}
	b.SpentAmount = b.SpentAmount.Add(amount)
	b.UpdatedAt = at
	t.repo.state.budgets[budgetID] = b
	return &b, nil
}

func (t *memoryTx) SetSpent(_ context.Context, budgetID int64, amount decimal.Decimal, at time.Time) error {
	b, ok := t.repo.state.budgets[budgetID]
	if !ok {
		return ErrNotFound
	}
	b.SpentAmount = amount
	b.UpdatedAt = at
	t.repo.state.budgets[budgetID] = b
	return nil
}

func (t *memoryTx) SumApprovedExpenses(_ context.Context, projectID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range t.repo.state.expenses[projectID] {
		if e.Status == expenseApproved {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func (t *memoryTx) HasOpenAlert(_ context.Context, budgetID int64, typ AlertType) (bool, error) {
	for _, a := range t.repo.state.alerts {
		if a.ProjectBudgetID == budgetID && a.AlertType == typ && !a.IsAcknowledged {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertAlert(ctx context.Context, a BudgetAlert) (int64, bool, error) {
	if open, _ := t.HasOpenAlert(ctx, a.ProjectBudgetID, a.AlertType); open {
		return 0, false, nil
	}
	t.repo.state.nextID++
	a.ID = t.repo.state.nextID
	t.repo.state.alerts[a.ID] = a
	return a.ID, true, nil
}

func (t *memoryTx) AcknowledgeAlert(_ context.Context, alertID int64, by string, at time.Time) error {
	a, ok := t.repo.state.alerts[alertID]
	if !ok || a.IsAcknowledged {
		return ErrAlreadyAcknowledged
	}
	a.IsAcknowledged = true
	a.AcknowledgedBy = &by
	a.AcknowledgedAt = &at
	t.repo.state.alerts[alertID] = a
	return nil
}

type recordingNotifier struct {
	events []notify.AlertEvent
}

func (n *recordingNotifier) BudgetAlertRaised(_ context.Context, e notify.AlertEvent) error {
	n.events = append(n.events, e)
	return nil
}

type countingMetrics struct {
	raised map[string]int
}

func (m *countingMetrics) AlertRaised(t string) {
	if m.raised == nil {
		m.raised = map[string]int{}
	}
	m.raised[t]++
}

type memoryAuditor struct {
	logs []shared.AuditLog
}

func (a *memoryAuditor) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type countingCache struct{ bumps int }

func (c *countingCache) Bump(context.Context) error {
	c.bumps++
	return nil
}
