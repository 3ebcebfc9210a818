package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"seller-ops/internal/app"
	"seller-ops/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const maxRequestBody = 10 << 20 // bulk imports arrive as JSON bodies

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc      app.ApplicationService
	validate *validator.Validate
	log      *logrus.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins string, log *logrus.Logger) http.Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &Handler{
		svc:      svc,
		validate: validator.New(),
		log:      log,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(allowedOrigins))
	r.Use(RequestBodyLimit(maxRequestBody))

	r.Get("/api/health", h.health)

	// ── Inventory ledger ──────────────────────────────────────────────────────
	r.Post("/api/stock/receive", h.receiveStock)
	r.Get("/api/stock/{sku}/layers", h.listLayers)
	r.Post("/api/layers/{id}/void", h.voidLayer)
	r.Get("/api/items", h.listItems)
	r.Put("/api/bundles/{sku}", h.defineBundle)
	r.Get("/api/bundles/{sku}", h.getBundle)

	// ── COGS allocation ───────────────────────────────────────────────────────
	r.Post("/api/cogs/apply", h.applyCOGS)
	r.Post("/api/cogs/apply-batch", h.applyCOGSBatch)
	r.Post("/api/cogs/reverse", h.reverseCOGS)
	r.Get("/api/orders/{orderID}/allocations", h.listAllocations)

	// ── Availability ──────────────────────────────────────────────────────────
	r.Get("/api/availability", h.getAvailability)

	// ── Imports ───────────────────────────────────────────────────────────────
	r.Post("/api/imports/orders", h.importOrders)
	r.Post("/api/imports/ad-spend", h.importAdSpend)
	r.Post("/api/imports/wallet", h.importWallet)
	r.Get("/api/batches", h.listBatches)
	r.Get("/api/batches/{id}", h.getBatch)
	r.Post("/api/batches/{id}/rollback", h.rollbackBatch)
	r.Delete("/api/batches/{id}", h.purgeBatch)

	// ── Reports ───────────────────────────────────────────────────────────────
	r.Get("/api/reports/valuation", h.inventoryValuation)
	r.Get("/api/reports/cogs-summary", h.cogsSummary)

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// decode unmarshals and validates a JSON request body. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeError(w, r, "validation failed: "+err.Error(), "VALIDATION_FAILED", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) receiveStock(w http.ResponseWriter, r *http.Request) {
	var req app.ReceiveStockRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.ReceiveStock(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) listLayers(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListLayers(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) voidLayer(w http.ResponseWriter, r *http.Request) {
	layerID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "layer id must be numeric", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.VoidLayer(r.Context(), layerID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]bool{"voided": true})
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListItems(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) defineBundle(w http.ResponseWriter, r *http.Request) {
	var req app.DefineBundleRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.SKU = chi.URLParam(r, "sku")
	if err := h.svc.DefineBundle(r.Context(), req); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"sku": req.SKU})
}

func (h *Handler) getBundle(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetBundle(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

type orderRef struct {
	OrderID string `json:"order_id" validate:"required"`
	SKU     string `json:"sku" validate:"required"`
}

func (h *Handler) applyCOGS(w http.ResponseWriter, r *http.Request) {
	var req orderRef
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.AllocateOrder(r.Context(), req.OrderID, req.SKU)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

type dateRange struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

func (h *Handler) applyCOGSBatch(w http.ResponseWriter, r *http.Request) {
	var req dateRange
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.RunCOGSBatch(r.Context(), req.From, req.To)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) reverseCOGS(w http.ResponseWriter, r *http.Request) {
	var req orderRef
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.ReverseOrder(r.Context(), req.OrderID, req.SKU)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) listAllocations(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListAllocations(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) getAvailability(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetAvailability(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) importOrders(w http.ResponseWriter, r *http.Request) {
	var req app.ImportOrdersRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.ImportOrders(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) importAdSpend(w http.ResponseWriter, r *http.Request) {
	var req app.ImportAdSpendRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.ImportAdSpend(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) importWallet(w http.ResponseWriter, r *http.Request) {
	var req app.ImportWalletRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.ImportWallet(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.svc.ListBatches(r.Context(), r.URL.Query().Get("kind"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"batches": batches})
}

func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	batch, err := h.svc.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, batch)
}

func (h *Handler) rollbackBatch(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RollbackBatch(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]bool{"rolled_back": true})
}

func (h *Handler) purgeBatch(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.PurgeBatch(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]bool{"purged": true})
}

func (h *Handler) inventoryValuation(w http.ResponseWriter, r *http.Request) {
	lines, err := h.svc.GetInventoryValuation(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"lines": lines})
}

func (h *Handler) cogsSummary(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, r, "from and to query parameters are required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	summary, err := h.svc.GetCogsSummary(r.Context(), from, to)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, summary)
}

// writeServiceError maps domain error types onto HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		configErr    *core.ConfigurationError
		stockErr     *core.InsufficientStockError
		integrityErr *core.DataIntegrityError
	)
	switch {
	case errors.As(err, &configErr):
		writeError(w, r, err.Error(), "CONFIGURATION_ERROR", http.StatusUnprocessableEntity)
	case errors.As(err, &stockErr):
		writeError(w, r, err.Error(), "INSUFFICIENT_STOCK", http.StatusConflict)
	case errors.As(err, &integrityErr):
		h.log.WithError(err).Error("data integrity violation")
		writeError(w, r, err.Error(), "DATA_INTEGRITY", http.StatusInternalServerError)
	case errors.Is(err, core.ErrDuplicateImport):
		writeError(w, r, err.Error(), "DUPLICATE_IMPORT", http.StatusConflict)
	default:
		h.log.WithError(err).Error("request failed")
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}
