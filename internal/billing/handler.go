package billing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pcm/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pcm/internal/rbac"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// Handler exposes billing endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.ManagerRoles()...))
		r.Post("/runs", h.generate)
		r.Get("/invoices", h.listInvoices)
		r.Post("/invoices", h.createInvoice)
		r.Get("/invoices/next-number", h.previewNumber)
		r.Get("/invoices/{id}", h.getInvoice)
	})
}

func parsePeriod(in PeriodRequest) (time.Time, time.Time, error) {
	from, err := time.Parse(httpx.DateLayout, in.From)
	if err != nil {
		return time.Time{}, time.Time{}, shared.NewValidationError("from", "must be YYYY-MM-DD")
	}
	to, err := time.Parse(httpx.DateLayout, in.To)
	if err != nil {
		return time.Time{}, time.Time{}, shared.NewValidationError("to", "must be YYYY-MM-DD")
	}
	return from, to, nil
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var in PeriodRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, to, err := parsePeriod(in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.GenerateClientBilling(r.Context(), in.ClientID, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var in PeriodRequest
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, to, err := parsePeriod(in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), in.ClientID, from, to)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(chi.URLParam(r, "id"), "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	var filter InvoiceFilter
	var err error
	if filter.ClientID, err = httpx.QueryInt64(r, "client_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if raw := r.URL.Query().Get("year"); raw != "" {
		if filter.Year, err = strconv.Atoi(raw); err != nil {
			httpx.RespondError(w, shared.NewValidationError("year", "must be an integer"))
			return
		}
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	filter.Page = shared.Page{Limit: limit, Offset: offset}

	invoices, err := h.service.ListInvoices(r.Context(), filter)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if invoices == nil {
		invoices = []Invoice{}
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) previewNumber(w http.ResponseWriter, r *http.Request) {
	year, _ := strconv.Atoi(r.URL.Query().Get("year"))
	number, err := h.service.PreviewNumber(r.Context(), year)
	if err != nil {
		h.logger.Error("preview invoice number", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"invoice_number": number})
}
