package budget

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pcm/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pcm/internal/rbac"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// Handler exposes budget endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers budget routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.StaffRoles()...))
		r.Get("/{projectID}", h.get)
		r.Get("/{projectID}/summary", h.summary)
		r.Get("/{projectID}/forecast", h.forecast)
		r.Get("/{projectID}/alerts", h.listAlerts)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.ManagerRoles()...))
		r.Post("/", h.create)
		r.Patch("/{projectID}", h.update)
		r.Post("/alerts/{alertID}/acknowledge", h.acknowledge)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.RoleAdmin))
		r.Delete("/{projectID}", h.delete)
		r.Post("/{projectID}/reconcile", h.reconcile)
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathInt64(chi.URLParam(r, "projectID"), "project_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.Get(r.Context(), projectID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathInt64(chi.URLParam(r, "projectID"), "project_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.ComputeSummary(r.Context(), projectID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) forecast(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathInt64(chi.URLParam(r, "projectID"), "project_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	f, err := h.service.Forecast(r.Context(), projectID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathInt64(chi.URLParam(r, "projectID"), "project_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	includeAck, _ := strconv.ParseBool(r.URL.Query().Get("include_acknowledged"))
	alerts, err := h.service.ListAlerts(r.Context(), projectID, includeAck)
	if err != nil {
		h.logger.Error("list budget alerts", slog.Int64("project_id", projectID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if alerts == nil {
		alerts = []BudgetAlert{}
	}
	httpx.JSON(w, http.StatusOK, alerts)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.CreateBudget(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, b)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathInt64(chi.URLParam(r, "projectID"), "project_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	b, err := h.service.UpdateBudget(r.Context(), projectID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathInt64(chi.URLParam(r, "projectID"), "project_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteBudget(r.Context(), projectID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	alertID, err := httpx.PathInt64(chi.URLParam(r, "alertID"), "alert_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	alert, err := h.service.AcknowledgeAlert(r.Context(), alertID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, alert)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	projectID, err := httpx.PathInt64(chi.URLParam(r, "projectID"), "project_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Reconcile(r.Context(), projectID)
	if err != nil {
		h.logger.Error("reconcile budget", slog.Int64("project_id", projectID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
