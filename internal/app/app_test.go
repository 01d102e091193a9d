package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pcm/internal/auth"
	"github.com/odyssey-erp/odyssey-pcm/internal/budget"
	"github.com/odyssey-erp/odyssey-pcm/internal/observability"
	"github.com/odyssey-erp/odyssey-pcm/internal/rbac"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
	"github.com/odyssey-erp/odyssey-pcm/jobs"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ALERT_EMAIL_TO", "a@example.com,b@example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "0 3 * * *", cfg.ReconcileCron)
	require.False(t, cfg.BillingExcludeInvoiced)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.AlertEmailTo)
	require.Equal(t, 10*time.Minute, cfg.ReportCacheTTL)

	th, err := cfg.Thresholds()
	require.NoError(t, err)
	require.Equal(t, "0.75", th.Warning.String())
	require.Equal(t, "0.9", th.Critical.String())
}

func TestLoadConfigRejectsBadThresholds(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("BUDGET_WARNING_THRESHOLD", "0.95")
	t.Setenv("BUDGET_CRITICAL_THRESHOLD", "0.80")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, (&Config{LogLevel: "debug"}).SlogLevel())
	require.Equal(t, slog.LevelInfo, (&Config{LogLevel: "loud"}).SlogLevel())
}

func TestRouterGuardsDomainRoutes(t *testing.T) {
	tokens, err := auth.NewIssuer("s3cret", time.Hour)
	require.NoError(t, err)
	logger := slog.New(slog.DiscardHandler)
	cfg := &Config{AppEnv: "test", RateLimitPerMinute: 1000}

	router := NewRouter(RouterParams{
		Logger:        logger,
		Config:        cfg,
		Tokens:        tokens,
		Metrics:       observability.NewMetrics(),
		BudgetHandler: budget.NewHandler(logger, nil, rbac.Middleware{Logger: logger}),
		JobHandler:    jobs.NewHandler(nil, logger),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/budgets/1", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	token, err := tokens.Issue(shared.Actor{ID: "client-1", Role: shared.RoleClient})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/budgets/1", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
