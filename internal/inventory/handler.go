package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	auth      auth.Middleware
	validator *httpx.Validator
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, mw auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, auth: mw, validator: httpx.NewValidator()}
}

// MountRoutes registers product routes. Callers mount it behind Authenticate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/low-stock", h.handleLowStock)
	r.Get("/{id}", h.handleGet)
	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireRole(auth.RoleAdmin))
		r.Post("/", h.handleCreate)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
		r.Post("/{id}/adjustments", h.handleAdjust)
	})
}

// MountCategoryRoutes registers category routes.
func (h *Handler) MountCategoryRoutes(r chi.Router) {
	r.Get("/", h.handleListCategories)
	r.With(h.auth.RequireRole(auth.RoleAdmin)).Post("/", h.handleCreateCategory)
}

type productRequest struct {
	Name          string          `json:"name" validate:"required,max=200"`
	SKU           string          `json:"sku" validate:"required,max=64"`
	Price         decimal.Decimal `json:"price"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	Quantity      int             `json:"quantity" validate:"gte=0"`
	MinStockLevel int             `json:"min_stock_level" validate:"gte=0"`
	CategoryID    *int64          `json:"category_id,omitempty" validate:"omitempty,gt=0"`
}

func (p productRequest) input() ProductInput {
	return ProductInput{
		Name:          p.Name,
		SKU:           p.SKU,
		Price:         p.Price,
		CostPrice:     p.CostPrice,
		Quantity:      p.Quantity,
		MinStockLevel: p.MinStockLevel,
		CategoryID:    p.CategoryID,
	}
}

type adjustmentRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

type categoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// productView hides the cost price from non-admin callers.
type productView struct {
	Product
	CostPrice *decimal.Decimal `json:"cost_price,omitempty"`
	LowStock  bool             `json:"low_stock"`
}

func present(p Product, principal auth.Principal) productView {
	view := productView{Product: p, LowStock: p.LowStock()}
	if principal.IsAdmin() {
		cost := p.CostPrice
		view.CostPrice = &cost
	}
	return view
}

func presentAll(products []Product, principal auth.Principal) []productView {
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, present(p, principal))
	}
	return out
}

type listResponse struct {
	Data       []productView     `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := shared.PageFromQuery(q)
	filter := ListFilter{Search: q.Get("search"), Limit: limit, Offset: offset}
	if raw := q.Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, &httpx.ValidationErrors{Fields: map[string]string{"category_id": "must be an integer"}})
			return
		}
		filter.CategoryID = id
	}
	filter.LowStockOnly, _ = strconv.ParseBool(q.Get("low_stock"))

	products, total, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		h.fail(w, "list products", err)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, listResponse{
		Data:       presentAll(products, principal),
		Pagination: shared.NewPagination(limit, offset, total),
	})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	limit, _ := shared.PageFromQuery(r.URL.Query())
	products, err := h.service.LowStock(r.Context(), limit)
	if err != nil {
		h.fail(w, "list low stock", err)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]any{"data": presentAll(products, principal)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, "get product", err)
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, present(product, principal))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	product, err := h.service.CreateProduct(r.Context(), req.input(), principal.UserID)
	if err != nil {
		h.fail(w, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, present(product, principal))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req productRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	product, err := h.service.UpdateProduct(r.Context(), id, req.input(), principal.UserID)
	if err != nil {
		h.fail(w, "update product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, present(product, principal))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	if err := h.service.DeleteProduct(r.Context(), id, principal.UserID); err != nil {
		h.fail(w, "delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req adjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	adj, err := h.service.AdjustStock(r.Context(), AdjustmentInput{ProductID: id, Delta: req.Delta, Reason: req.Reason, ActorID: principal.UserID})
	if err != nil {
		h.fail(w, "adjust stock", err)
		return
	}
	h.logger.Info("stock adjusted",
		slog.Int64("product_id", id),
		slog.Int("before", adj.Before),
		slog.Int("after", adj.After))
	httpx.JSON(w, http.StatusOK, adj)
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.Categories(r.Context())
	if err != nil {
		h.fail(w, "list categories", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": categories})
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	category, err := h.service.CreateCategory(r.Context(), req.Name, req.Description, principal.UserID)
	if err != nil {
		h.fail(w, "create category", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, category)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Validate(dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrCategoryNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrNotFound, err))
	case errors.Is(err, ErrDuplicateSKU), errors.Is(err, ErrDuplicateCategory):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrDuplicate, err))
	case errors.Is(err, ErrNegativeStock), errors.Is(err, ErrInsufficientStock):
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusConflict, Title: "Conflict", Detail: err.Error(), Kind: "insufficient_stock"})
	case errors.Is(err, ErrInvalidProduct), errors.Is(err, ErrInvalidQuantity):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, err))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrNotFound, ErrProductNotFound))
		return 0, false
	}
	return id, true
}
