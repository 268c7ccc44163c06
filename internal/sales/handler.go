package sales

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// IdempotencyHeader carries the client-chosen key for create-sale retries.
const IdempotencyHeader = "Idempotency-Key"

// Handler wires HTTP endpoints for the sales module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	auth      auth.Middleware
	discounts auth.DiscountPolicy
	receipts  *ReceiptFormatter
	validator *httpx.Validator
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service *Service, mw auth.Middleware, discounts auth.DiscountPolicy, receipts *ReceiptFormatter) *Handler {
	v := httpx.NewValidator()
	v.MustRegisterEnum("payment_method")
	return &Handler{logger: logger, service: service, auth: mw, discounts: discounts, receipts: receipts, validator: v}
}

// MountRoutes registers sale routes. Callers mount it behind Authenticate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/receipt", h.handleReceipt)
	r.With(h.auth.RequireRole(auth.RoleAdmin)).Post("/{id}/refund", h.handleRefund)
}

type lineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int             `json:"quantity" validate:"required,gte=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type createSaleRequest struct {
	Lines         []lineRequest    `json:"lines" validate:"required,min=1,dive"`
	Discount      decimal.Decimal  `json:"discount"`
	TaxRate       *decimal.Decimal `json:"tax_rate,omitempty"`
	Tax           *decimal.Decimal `json:"tax,omitempty"`
	Subtotal      *decimal.Decimal `json:"subtotal,omitempty"`
	Total         *decimal.Decimal `json:"total,omitempty"`
	PaymentMethod PaymentMethod    `json:"payment_method" validate:"required,payment_method"`
}

func (req createSaleRequest) input(cashierID int64, key string) CompleteSaleInput {
	lines := make([]LineRequest, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, LineRequest{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return CompleteSaleInput{
		CashierID:      cashierID,
		Lines:          lines,
		PaymentMethod:  req.PaymentMethod,
		Discount:       req.Discount,
		TaxRate:        req.TaxRate,
		Tax:            req.Tax,
		Declared:       Declared{Subtotal: req.Subtotal, Total: req.Total},
		IdempotencyKey: key,
	}
}

type listResponse struct {
	Data       []Sale            `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	if err := h.discounts.Check(principal, req.Discount); err != nil {
		h.logger.Warn("discount denied",
			slog.Int64("user_id", principal.UserID),
			slog.String("discount", req.Discount.String()))
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusForbidden, Title: "Forbidden", Detail: err.Error(), Kind: "discount_not_allowed"})
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if len(key) > 128 {
		httpx.RespondError(w, &httpx.ValidationErrors{Fields: map[string]string{IdempotencyHeader: "must be at most 128 characters"}})
		return
	}

	sale, err := h.service.CompleteSale(r.Context(), req.input(principal.UserID, key))
	if err != nil {
		h.fail(w, "complete sale", err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/sales/%d", sale.ID))
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := shared.PageFromQuery(q)
	filter := ListFilter{
		Status:        Status(q.Get("status")),
		PaymentMethod: PaymentMethod(q.Get("payment_method")),
		Limit:         limit,
		Offset:        offset,
	}
	fields := map[string]string{}
	if raw := q.Get("from"); raw != "" {
		from, err := parseTime(raw, false)
		if err != nil {
			fields["from"] = "must be RFC3339 or YYYY-MM-DD"
		} else {
			filter.From = &from
		}
	}
	if raw := q.Get("to"); raw != "" {
		to, err := parseTime(raw, true)
		if err != nil {
			fields["to"] = "must be RFC3339 or YYYY-MM-DD"
		} else {
			filter.To = &to
		}
	}
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			fields["user_id"] = "must be a positive integer"
		}
		filter.UserID = id
	}
	if len(fields) > 0 {
		httpx.RespondError(w, &httpx.ValidationErrors{Fields: fields})
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	if !principal.IsAdmin() {
		filter.UserID = principal.UserID
	}

	sales, total, err := h.service.ListSales(r.Context(), filter)
	if err != nil {
		h.fail(w, "list sales", err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: sales, Pagination: shared.NewPagination(limit, offset, total)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sale, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	sale, ok := h.loadVisible(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, h.receipts.Format(sale))
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	sale, err := h.service.RefundSale(r.Context(), id, principal.UserID)
	if err != nil {
		h.fail(w, "refund sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

// loadVisible fetches the path sale; cashiers only see their own sales.
func (h *Handler) loadVisible(w http.ResponseWriter, r *http.Request) (Sale, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return Sale{}, false
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.fail(w, "get sale", err)
		return Sale{}, false
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	if !principal.IsAdmin() && sale.UserID != principal.UserID {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrNotFound, ErrSaleNotFound))
		return Sale{}, false
	}
	return sale, true
}

var kindStatus = map[Kind]int{
	KindValidation:        http.StatusBadRequest,
	KindProductNotFound:   http.StatusNotFound,
	KindInsufficientStock: http.StatusConflict,
	KindInvalidTotals:     http.StatusUnprocessableEntity,
	KindConflict:          http.StatusConflict,
	KindTimeout:           http.StatusServiceUnavailable,
	KindDuplicate:         http.StatusConflict,
	KindStore:             http.StatusInternalServerError,
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var se *Error
	switch {
	case errors.As(err, &se):
		status := kindStatus[se.Kind]
		if status == 0 {
			status = http.StatusInternalServerError
		}
		problem := httpx.ProblemDetail{Status: status, Kind: string(se.Kind)}
		if se.ProductID != 0 {
			id := se.ProductID
			problem.ProductID = &id
		}
		if se.Kind == KindStore {
			h.logger.Error(op, slog.Any("error", err))
		} else {
			problem.Detail = se.Error()
		}
		if se.Retryable() {
			w.Header().Set("Retry-After", "1")
		}
		httpx.WriteProblem(w, problem)
	case errors.Is(err, ErrSaleNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrNotFound, err))
	case errors.Is(err, ErrInvalidStatus):
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusConflict, Detail: err.Error(), Kind: "invalid_status"})
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrNotFound, ErrSaleNotFound))
		return 0, false
	}
	return id, true
}

// parseTime accepts RFC3339 or a bare date. A bare upper bound covers the
// whole day.
func parseTime(raw string, upper bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}
