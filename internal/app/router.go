package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-pcm/internal/audit"
	"github.com/odyssey-erp/odyssey-pcm/internal/auth"
	"github.com/odyssey-erp/odyssey-pcm/internal/billing"
	"github.com/odyssey-erp/odyssey-pcm/internal/budget"
	"github.com/odyssey-erp/odyssey-pcm/internal/expenses"
	"github.com/odyssey-erp/odyssey-pcm/internal/observability"
	"github.com/odyssey-erp/odyssey-pcm/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pcm/internal/reports"
	"github.com/odyssey-erp/odyssey-pcm/internal/timeentries"
	"github.com/odyssey-erp/odyssey-pcm/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Tokens  *auth.Issuer
	Metrics *observability.Metrics

	AuthHandler        *auth.Handler
	TimeEntriesHandler *timeentries.Handler
	ExpensesHandler    *expenses.Handler
	BudgetHandler      *budget.Handler
	BillingHandler     *billing.Handler
	ReportsHandler     *reports.Handler
	JobHandler         *jobs.Handler
	AuditHandler       *audit.Handler
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Tokens:  params.Tokens,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	mount := func(pattern string, h interface{ MountRoutes(chi.Router) }) {
		r.Route(pattern, h.MountRoutes)
	}
	if params.AuthHandler != nil {
		mount("/auth", params.AuthHandler)
	}
	if params.TimeEntriesHandler != nil {
		mount("/time-entries", params.TimeEntriesHandler)
	}
	if params.ExpensesHandler != nil {
		mount("/expenses", params.ExpensesHandler)
	}
	if params.BudgetHandler != nil {
		mount("/budgets", params.BudgetHandler)
	}
	if params.BillingHandler != nil {
		mount("/billing", params.BillingHandler)
	}
	if params.ReportsHandler != nil {
		mount("/reports", params.ReportsHandler)
	}
	if params.JobHandler != nil {
		mount("/jobs", params.JobHandler)
	}
	if params.AuditHandler != nil {
		mount("/audit", params.AuditHandler)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	return r
}
