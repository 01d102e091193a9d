package budget

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pcm/internal/rbac"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

func newTestRouter(f *serviceFixture, actor shared.Actor) http.Handler {
	h := NewHandler(f.service.logger, f.service, rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), actor)))
		})
	})
	r.Route("/budgets", h.MountRoutes)
	return r
}

func TestHandlerCreateAndSummary(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f, shared.Actor{ID: "pm-1", Role: shared.RoleProjectManager})

	body := `{"project_id": 4, "total_budget": "10000.00", "labor_budget": "6000"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/budgets/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/budgets/4/summary", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var summary Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	require.Equal(t, "10000", summary.TotalBudget.String())
	require.Equal(t, "6000", summary.Labor.Budget.Decimal.String())
}

func TestHandlerRejectsBadInput(t *testing.T) {
	f := newFixture()
	router := newTestRouter(f, shared.Actor{ID: "pm-1", Role: shared.RoleProjectManager})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/budgets/abc/summary", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/budgets/", strings.NewReader(`{"total_budget": "5"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "ProjectID")
}

func TestHandlerRoleGates(t *testing.T) {
	f := newFixture()
	f.repo.seedBudget(1, "100", f.now)
	dev := newTestRouter(f, shared.Actor{ID: "dev-1", Role: shared.RoleDeveloper})

	rr := httptest.NewRecorder()
	dev.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/budgets/1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	dev.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/budgets/1", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)

	client := newTestRouter(f, shared.Actor{ID: "c-1", Role: shared.RoleClient})
	rr = httptest.NewRecorder()
	client.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/budgets/1/summary", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandlerAcknowledgeConflict(t *testing.T) {
	f := newFixture()
	f.repo.seedBudget(1, "100", f.now)
	alert := f.approve(t, 1, "80")[0]
	router := newTestRouter(f, shared.Actor{ID: "pm-1", Role: shared.RoleProjectManager})

	path := "/budgets/alerts/" + jsonInt(alert.ID) + "/acknowledge"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
	require.Equal(t, http.StatusConflict, rr.Code)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
