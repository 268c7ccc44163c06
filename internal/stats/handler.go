package stats

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Handler serves aggregate reports. Callers mount it behind an admin check.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the stats handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/summary", h.handleSummary)
	r.Get("/categories", h.handleCategories)
	r.Get("/top-products", h.handleTopProducts)
	r.Get("/daily", h.handleDaily)
	r.Get("/dashboard", h.handleDashboard)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	win, ok := h.window(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Summary(r.Context(), win)
	h.respond(w, "stats summary", map[string]any{"window": win, "summary": summary}, err)
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	win, ok := h.window(w, r)
	if !ok {
		return
	}
	data, err := h.service.ByCategory(r.Context(), win)
	h.respond(w, "stats categories", map[string]any{"window": win, "data": data}, err)
}

func (h *Handler) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	win, ok := h.window(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	data, err := h.service.TopProducts(r.Context(), win, limit)
	h.respond(w, "stats top products", map[string]any{"window": win, "data": data}, err)
}

func (h *Handler) handleDaily(w http.ResponseWriter, r *http.Request) {
	win, ok := h.window(w, r)
	if !ok {
		return
	}
	data, err := h.service.Daily(r.Context(), win)
	h.respond(w, "stats daily", map[string]any{"window": win, "data": data}, err)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	win, ok := h.window(w, r)
	if !ok {
		return
	}
	dashboard, err := h.service.Dashboard(r.Context(), win)
	h.respond(w, "stats dashboard", dashboard, err)
}

func (h *Handler) respond(w http.ResponseWriter, op string, body any, err error) {
	if err != nil {
		if errors.Is(err, ErrInvalidWindow) {
			httpx.RespondError(w, &httpx.ValidationErrors{Fields: map[string]string{"to": "must be after from"}})
			return
		}
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, body)
}

// window reads from/to (RFC3339 or YYYY-MM-DD, to inclusive for dates) and
// falls back to the trailing default window.
func (h *Handler) window(w http.ResponseWriter, r *http.Request) (Window, bool) {
	q := r.URL.Query()
	win := h.service.DefaultWindow()
	if days, err := strconv.Atoi(q.Get("days")); err == nil && days > 0 {
		win = TrailingDays(h.service.now(), days)
	}
	fields := map[string]string{}
	if raw := q.Get("from"); raw != "" {
		if t, err := parseBound(raw, false); err == nil {
			win.From = t
		} else {
			fields["from"] = "must be RFC3339 or YYYY-MM-DD"
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := parseBound(raw, true); err == nil {
			win.To = t
		} else {
			fields["to"] = "must be RFC3339 or YYYY-MM-DD"
		}
	}
	if len(fields) > 0 {
		httpx.RespondError(w, &httpx.ValidationErrors{Fields: fields})
		return Window{}, false
	}
	return win, true
}

func parseBound(raw string, upper bool) (time.Time, error) {
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
