package reports

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pcm/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pcm/internal/rbac"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// Handler exposes report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.ManagerRoles()...))
		r.Get("/financial", h.financial)
		r.Get("/productivity", h.productivity)
		r.Get("/project-status", h.projectStatus)
		r.Get("/clients/{clientID}", h.client)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.StaffRoles()...))
		r.Get("/time-entries", h.timeEntries)
		r.Get("/saved", h.listSaved)
		r.Post("/saved", h.save)
		r.Get("/saved/{id}", h.getSaved)
		r.Delete("/saved/{id}", h.deleteSaved)
	})
}

func parsePeriod(r *http.Request) (Period, error) {
	from, err := httpx.QueryDate(r, "from")
	if err != nil {
		return Period{}, err
	}
	to, err := httpx.QueryDate(r, "to")
	if err != nil {
		return Period{}, err
	}
	return Period{From: from, To: to}, nil
}

func wantsCSV(r *http.Request) bool {
	return r.URL.Query().Get("format") == "csv"
}

func writeCSV(w http.ResponseWriter, name string, render func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) financial(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	clientID, err := httpx.QueryInt64(r, "client_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Financial(r.Context(), FinancialFilter{Period: period, ClientID: clientID})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if wantsCSV(r) {
		writeCSV(w, "financial.csv", func(buf *bytes.Buffer) error { return WriteFinancialCSV(buf, report) })
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) productivity(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Productivity(r.Context(), period)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if wantsCSV(r) {
		writeCSV(w, "productivity.csv", func(buf *bytes.Buffer) error { return WriteProductivityCSV(buf, report) })
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) projectStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.ProjectStatus(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) timeEntries(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := TimeEntryFilter{Period: period, DeveloperID: r.URL.Query().Get("developer_id")}
	if filter.ProjectID, err = httpx.QueryInt64(r, "project_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if actor, ok := shared.ActorFromContext(r.Context()); ok && !actor.Role.CanApprove() {
		filter.DeveloperID = actor.ID
	}
	report, err := h.service.TimeEntries(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) client(w http.ResponseWriter, r *http.Request) {
	clientID, err := httpx.PathInt64(chi.URLParam(r, "clientID"), "client_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := parsePeriod(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Client(r.Context(), clientID, period)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	var in SaveInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	saved, err := h.service.Save(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, saved)
}

func (h *Handler) getSaved(w http.ResponseWriter, r *http.Request) {
	saved, err := h.service.GetSaved(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}

func (h *Handler) listSaved(w http.ResponseWriter, r *http.Request) {
	saved, err := h.service.ListSaved(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		h.logger.Error("list saved reports", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if saved == nil {
		saved = []SavedReport{}
	}
	httpx.JSON(w, http.StatusOK, saved)
}

func (h *Handler) deleteSaved(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSaved(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
