package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/procura-app/procura/internal/platform/httpx"
	"github.com/procura-app/procura/internal/shared"
)

const dayLayout = "2006-01-02"

// QuoteMapRenderer renders the comparative quote map.
type QuoteMapRenderer interface {
	RenderPDF(ctx context.Context, items []ProcurementQueueItem) ([]byte, error)
	RenderXLSX(ctx context.Context, items []ProcurementQueueItem) ([]byte, error)
}

// ExportEnqueuer schedules an asynchronous quote map export.
type ExportEnqueuer interface {
	EnqueueQuoteMapExport(ctx context.Context) (string, error)
}

// AuditReader lists the audit timeline of an entity.
type AuditReader interface {
	List(ctx context.Context, entity, entityID string) ([]shared.AuditLog, error)
}

// IdempotencyGuard rejects replayed requests carrying the same key.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// HandlerDeps bundles optional collaborators of Handler.
type HandlerDeps struct {
	Renderer    QuoteMapRenderer
	Exports     ExportEnqueuer
	Audit       AuditReader
	Idempotency IdempotencyGuard
}

// Handler exposes the role endpoints as a JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	deps      HandlerDeps
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, deps HandlerDeps) *Handler {
	return &Handler{logger: logger, service: service, deps: deps, validator: validator.New()}
}

// MountRoutes registers the finance, requester, executive, procurement and admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	// finance
	r.Get("/forecasts", h.listForecasts)
	r.Post("/forecasts", h.idempotent("forecasts", h.createForecast))
	r.Get("/availability", h.availability)

	// requester
	r.Get("/requisitions", h.listRequisitions)
	r.Post("/requisitions", h.idempotent("requisitions", h.createRequisition))
	r.Get("/requisitions/next-id", h.nextRequisitionID)
	r.Get("/requisitions/{id}", h.getRequisition)
	r.Patch("/requisitions/{id}", h.updateRequisition)
	r.Post("/requisitions/{id}/submit", h.submitRequisition)
	r.Get("/requisitions/{id}/timeline", h.timeline)

	// executive
	r.Get("/dashboard", h.dashboard)
	r.Post("/requisitions/{id}/review", h.reviewRequisition)
	r.Post("/requisitions/{id}/approval-preview", h.approvalPreview)
	r.Post("/requisitions/{id}/approve", h.approveRequisition)
	r.Post("/requisitions/{id}/reject", h.rejectRequisition)
	r.Get("/requisitions/{id}/ratification", h.ratification)
	r.Post("/requisitions/{id}/ratify", h.ratifyRequisition)

	// procurement
	r.Get("/queue", h.listQueue)
	r.Get("/queue/kpis", h.queueKPIs)
	r.Patch("/queue/{id}", h.updateQueueItem)
	r.Post("/queue/{id}/start", h.startQuotation)
	r.Post("/queue/{id}/quotes", h.registerQuotes)
	r.Post("/requisitions/{id}/finalize", h.finalizeQuotation)
	r.Get("/quote-map.pdf", h.quoteMapPDF)
	r.Get("/quote-map.xlsx", h.quoteMapXLSX)
	r.Post("/quote-map/export", h.idempotent("quote-map-export", h.enqueueQuoteMap))

	// admin
	r.Post("/reset", h.reset)
}

// respondError maps service errors onto RFC7807 responses.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrNotFound, err))
	case errors.Is(err, ErrInvalidState):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrConflict, err))
	case errors.Is(err, ErrValidation):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, err))
	case errors.Is(err, httpx.ErrBadRequest):
		httpx.RespondError(w, err)
	default:
		h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

// idempotent guards a create endpoint with the Idempotency-Key header. A
// failed request releases its key so the client can retry.
func (h *Handler) idempotent(module string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" || h.deps.Idempotency == nil {
			next(w, r)
			return
		}
		if err := h.deps.Idempotency.CheckAndInsert(r.Context(), key, module); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Request", "request with this Idempotency-Key was already processed")
				return
			}
			h.logger.Warn("idempotency check skipped", slog.String("module", module), slog.Any("error", err))
			next(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next(ww, r)
		if ww.Status() >= http.StatusBadRequest {
			if err := h.deps.Idempotency.Delete(r.Context(), key, module); err != nil {
				h.logger.Warn("release idempotency key", slog.String("module", module), slog.Any("error", err))
			}
		}
	}
}

// decode reads the body into dst and runs struct validation. It writes the
// error response itself and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		h.respondError(w, r, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			h.respondError(w, r, err)
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fieldErr := range verrs {
			fields[fieldErr.Namespace()] = fieldErr.Error()
		}
		httpx.ValidationProblem(w, fields)
		return false
	}
	return true
}

// recordParam reads an id path parameter. Ids carry a leading '#', which
// clients may send percent-encoded or omit.
func recordParam(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	if raw != "" && !strings.HasPrefix(raw, "#") {
		raw = "#" + raw
	}
	return raw
}

type forecastRequest struct {
	PeriodStart string        `json:"periodoInicio" validate:"required,datetime=2006-01-02"`
	PeriodEnd   string        `json:"periodoFim" validate:"required,datetime=2006-01-02"`
	Responsible string        `json:"responsavel"`
	Amount      float64       `json:"valor" validate:"gt=0"`
	Scope       ForecastScope `json:"centroCusto" validate:"omitempty,oneof=geral tesouraria"`
}

func (h *Handler) listForecasts(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Forecasts())
}

func (h *Handler) createForecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, _ := time.Parse(dayLayout, req.PeriodStart)
	end, _ := time.Parse(dayLayout, req.PeriodEnd)
	if end.Before(start) {
		httpx.ValidationProblem(w, map[string]string{"periodoFim": "period end precedes start"})
		return
	}
	forecast := BuildForecast(ForecastInput{
		PeriodStart: start,
		PeriodEnd:   end,
		Responsible: req.Responsible,
		Amount:      req.Amount,
		Scope:       req.Scope,
	})
	if err := h.service.AddForecast(r.Context(), forecast); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, forecast)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]float64{"disponibilidadeGlobal": h.service.GlobalAvailability()})
}

type lineItemRequest struct {
	Product   string  `json:"produto" validate:"required"`
	Quantity  float64 `json:"quantidade" validate:"gt=0"`
	UnitPrice float64 `json:"precoUnitario" validate:"gte=0"`
}

type requisitionRequest struct {
	Title         string            `json:"titulo" validate:"required"`
	Justification string            `json:"justificativa" validate:"required"`
	CostCenter    string            `json:"centroCusto" validate:"required,oneof=ti mkt rh ops log jur pd com fin"`
	Items         []lineItemRequest `json:"itens" validate:"required,min=1,dive"`
	Draft         bool              `json:"rascunho"`
}

func (h *Handler) listRequisitions(w http.ResponseWriter, r *http.Request) {
	reqs := h.service.Requisitions()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := reqs[:0]
		for _, req := range reqs {
			if string(req.Status) == status {
				filtered = append(filtered, req)
			}
		}
		reqs = filtered
	}
	httpx.JSON(w, http.StatusOK, shared.Paginate(w, r, reqs))
}

func (h *Handler) createRequisition(w http.ResponseWriter, r *http.Request) {
	var req requisitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := NewRequisition{
		Title:         strings.TrimSpace(req.Title),
		Justification: strings.TrimSpace(req.Justification),
		CostCenter:    req.CostCenter,
		Items:         make([]RequisitionLineItem, 0, len(req.Items)),
	}
	if req.Draft {
		input.Status = StatusDraft
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, RequisitionLineItem{Product: strings.TrimSpace(item.Product), Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	created, err := h.service.AddRequisition(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) nextRequisitionID(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"id": h.service.NextRequisitionID()})
}

func (h *Handler) getRequisition(w http.ResponseWriter, r *http.Request) {
	id := recordParam(r)
	req, err := h.service.Requisition(id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"requisicao":   req,
		"itensCompras": h.service.QueueItemsFor(id),
	})
}

type requisitionPatchRequest struct {
	Title         *string `json:"titulo" validate:"omitempty,min=1"`
	Justification *string `json:"justificativa" validate:"omitempty,min=1"`
	CostCenter    *string `json:"centroCusto" validate:"omitempty,oneof=ti mkt rh ops log jur pd com fin"`
}

func (h *Handler) updateRequisition(w http.ResponseWriter, r *http.Request) {
	var req requisitionPatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.service.UpdateRequisition(r.Context(), recordParam(r), RequisitionPatch(req))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (Requisition, error)) {
	updated, err := fn(r.Context(), recordParam(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) submitRequisition(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.SubmitRequisition)
}

func (h *Handler) reviewRequisition(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.BeginReview)
}

func (h *Handler) rejectRequisition(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.RejectRequisition)
}

func (h *Handler) finalizeQuotation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.FinalizeQuotation)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	id := recordParam(r)
	if _, err := h.service.Requisition(id); err != nil {
		h.respondError(w, r, err)
		return
	}
	if h.deps.Audit == nil {
		httpx.JSON(w, http.StatusOK, []shared.AuditLog{})
		return
	}
	logs, err := h.deps.Audit.List(r.Context(), EntityRequisition, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if logs == nil {
		logs = []shared.AuditLog{}
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Dashboard())
}

type approvalRequest struct {
	Quantities map[string]float64 `json:"quantidades" validate:"dive,gte=0"`
}

func (h *Handler) decodeApproval(w http.ResponseWriter, r *http.Request) (approvalRequest, bool) {
	var req approvalRequest
	if r.ContentLength == 0 {
		return req, true
	}
	return req, h.decode(w, r, &req)
}

func (h *Handler) approvalPreview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeApproval(w, r)
	if !ok {
		return
	}
	items, summary, err := h.service.ApprovalPreview(recordParam(r), req.Quantities)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"itens": items, "resumo": summary})
}

func (h *Handler) approveRequisition(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeApproval(w, r)
	if !ok {
		return
	}
	id := recordParam(r)
	updated, items, summary, err := h.service.ApproveWithQuantities(r.Context(), id, req.Quantities)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if summary.HasDeficit {
		h.logger.Warn("approval exceeds cash availability",
			slog.String("requisition", id),
			slog.Float64("approved", summary.ApprovedTotal),
			slog.Float64("availability", summary.Availability))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requisicao": updated, "itens": items, "resumo": summary})
}

func (h *Handler) ratification(w http.ResponseWriter, r *http.Request) {
	id := recordParam(r)
	if _, err := h.service.Requisition(id); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, SummarizeRatification(h.service.QueueItemsFor(id)))
}

func (h *Handler) ratifyRequisition(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.RatifyOrder(r.Context(), recordParam(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) listQueue(w http.ResponseWriter, r *http.Request) {
	if reqID := r.URL.Query().Get("requisicao"); reqID != "" {
		if !strings.HasPrefix(reqID, "#") {
			reqID = "#" + reqID
		}
		httpx.JSON(w, http.StatusOK, h.service.QueueItemsFor(reqID))
		return
	}
	httpx.JSON(w, http.StatusOK, shared.Paginate(w, r, h.service.QueueItems()))
}

func (h *Handler) queueKPIs(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.QueueKPIs())
}

type queuePatchRequest struct {
	Supplier        *string      `json:"fornecedor"`
	NegotiatedPrice *float64     `json:"precoNegociado" validate:"omitempty,gt=0"`
	Status          *QueueStatus `json:"status" validate:"omitempty,oneof=aguardando_cotacao em_cotacao pronto_pedido processando_oc cancelado"`
}

func (h *Handler) updateQueueItem(w http.ResponseWriter, r *http.Request) {
	var req queuePatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	updated, err := h.service.UpdateQueueItem(r.Context(), recordParam(r), QueueItemPatch(req))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) startQuotation(w http.ResponseWriter, r *http.Request) {
	updated, err := h.service.StartQuotation(r.Context(), recordParam(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type quoteRequest struct {
	Supplier     string  `json:"fornecedor" validate:"required"`
	UnitPrice    float64 `json:"preco" validate:"gt=0"`
	LeadTimeDays int     `json:"prazoEntrega" validate:"gte=0"`
	Notes        string  `json:"observacoes"`
}

type registerQuotesRequest struct {
	Quotes []quoteRequest `json:"cotacoes" validate:"required,min=1,dive"`
	Winner int            `json:"vencedor" validate:"gte=0"`
}

func (h *Handler) registerQuotes(w http.ResponseWriter, r *http.Request) {
	var req registerQuotesRequest
	if !h.decode(w, r, &req) {
		return
	}
	itemID := recordParam(r)
	quotes := make([]Quote, 0, len(req.Quotes))
	for i, q := range req.Quotes {
		quotes = append(quotes, Quote{
			ID:           QueueItemID(itemID, i+1),
			ItemID:       itemID,
			Supplier:     strings.TrimSpace(q.Supplier),
			UnitPrice:    q.UnitPrice,
			LeadTimeDays: q.LeadTimeDays,
			Notes:        q.Notes,
		})
	}
	updated, err := h.service.RegisterQuote(r.Context(), itemID, quotes, req.Winner)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) quoteMapPDF(w http.ResponseWriter, r *http.Request) {
	h.quoteMap(w, r, "application/pdf", "mapa-comparativo.pdf", func(ctx context.Context, items []ProcurementQueueItem) ([]byte, error) {
		return h.deps.Renderer.RenderPDF(ctx, items)
	})
}

func (h *Handler) quoteMapXLSX(w http.ResponseWriter, r *http.Request) {
	h.quoteMap(w, r, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "mapa-comparativo.xlsx", func(ctx context.Context, items []ProcurementQueueItem) ([]byte, error) {
		return h.deps.Renderer.RenderXLSX(ctx, items)
	})
}

func (h *Handler) quoteMap(w http.ResponseWriter, r *http.Request, contentType, filename string, render func(context.Context, []ProcurementQueueItem) ([]byte, error)) {
	if h.deps.Renderer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Export Unavailable", "quote map renderer not configured")
		return
	}
	data, err := render(r.Context(), h.service.QueueItems())
	if err != nil {
		h.logger.Error("render quote map", slog.String("file", filename), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Export Failed", "quote map could not be rendered")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) enqueueQuoteMap(w http.ResponseWriter, r *http.Request) {
	if h.deps.Exports == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Export Unavailable", "job queue not configured")
		return
	}
	taskID, err := h.deps.Exports.EnqueueQuoteMapExport(r.Context())
	if err != nil {
		h.logger.Error("enqueue quote map export", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Export Unavailable", "export could not be scheduled")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context()); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
