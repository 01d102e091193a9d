package expenses

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pcm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pcm/internal/rbac"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

func newTestRouter(svc *Service, actor shared.Actor) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), actor)))
		})
	})
	r.Route("/expenses", h.MountRoutes)
	return r
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

var (
	developer = shared.Actor{ID: "dev-1", Role: shared.RoleDeveloper}
	manager   = shared.Actor{ID: "pm-1", Role: shared.RoleProjectManager}
)

func TestHandlerCreateExpense(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f.service, developer)

	rr := do(t, router, http.MethodPost, "/expenses", map[string]any{
		"project_id":   1,
		"category":     "travel",
		"amount":       "84.20",
		"expense_date": "2024-04-01",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var e Expense
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e))
	assert.Equal(t, CategoryTravel, e.Category)
	assert.Equal(t, StatusPending, e.Status)
	assert.Equal(t, "dev-1", e.SubmittedBy)

	rr = do(t, router, http.MethodPost, "/expenses", map[string]any{"project_id": 1, "category": "travel"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerDeveloperListsOwnExpenses(t *testing.T) {
	f := newFixture()
	f.create(t, "10")
	_, err := f.service.Create(asActor("dev-2", shared.RoleDeveloper), CreateInput{
		ProjectID: 1, Category: "Other", ExpenseDate: "2024-04-01",
	})
	require.NoError(t, err)

	rr := do(t, newTestRouter(f.service, developer), http.MethodGet, "/expenses?submitted_by=dev-2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var items []Expense
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "dev-1", items[0].SubmittedBy)

	rr = do(t, newTestRouter(f.service, manager), http.MethodGet, "/expenses", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &items))
	assert.Len(t, items, 2)
}

func TestHandlerApproveFlow(t *testing.T) {
	f := newFixture()
	e := f.create(t, "100")

	rr := do(t, newTestRouter(f.service, developer), http.MethodPost, "/expenses/1/approve", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	pm := newTestRouter(f.service, manager)
	rr = do(t, pm, http.MethodPost, "/expenses/1/approve", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var approved Expense
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &approved))
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, e.ID, approved.ID)

	rr = do(t, pm, http.MethodPost, "/expenses/1/approve", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, newTestRouter(f.service, developer), http.MethodPatch, "/expenses/1", map[string]any{"amount": "5"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Len(t, f.budgets.applied, 1)
}

func TestHandlerRejectWithReason(t *testing.T) {
	f := newFixture()
	f.create(t, "100")

	rr := do(t, newTestRouter(f.service, manager), http.MethodPost, "/expenses/1/reject", map[string]string{"reason": "missing receipt"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var rejected Expense
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rejected))
	assert.Equal(t, StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "missing receipt", *rejected.RejectionReason)
	assert.Empty(t, f.budgets.applied)
}

func TestHandlerNotFoundAndBadInput(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f.service, manager)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/expenses/99", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/expenses/abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/expenses?category=snacks", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/expenses?from=2024-04-10&to=2024-04-01", nil).Code)
}

func TestHandlerDeletePending(t *testing.T) {
	f := newFixture()
	f.create(t, "100")
	router := newTestRouter(f.service, developer)

	assert.Equal(t, http.StatusNoContent, do(t, router, http.MethodDelete, "/expenses/1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/expenses/1", nil).Code)
}

func TestHandlerApproveLosingBudgetRaceIsRetryableConflict(t *testing.T) {
	f := newFixture()
	f.create(t, "100")
	f.budgets.err = fmt.Errorf("%w: %w", db.ErrConcurrentUpdate, &pgconn.PgError{Code: "40001"})

	rr := do(t, newTestRouter(f.service, manager), http.MethodPost, "/expenses/1/approve", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	stored, err := f.repo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}
