package stats

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDays is the trailing window used when none is given.
const DefaultDays = 30

// ErrInvalidWindow indicates an empty or reversed window.
var ErrInvalidWindow = errors.New("stats: invalid window")

// Window is the half-open interval [From, To).
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// TrailingDays returns the window covering the last days whole UTC days
// including today.
func TrailingDays(now time.Time, days int) Window {
	if days <= 0 {
		days = DefaultDays
	}
	now = now.UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return Window{From: to.AddDate(0, 0, -days), To: to}
}

// Validate checks the window bounds.
func (w Window) Validate() error {
	if w.From.IsZero() || w.To.IsZero() || !w.From.Before(w.To) {
		return ErrInvalidWindow
	}
	return nil
}

func (w Window) token() string {
	return w.From.UTC().Format(time.RFC3339) + "_" + w.To.UTC().Format(time.RFC3339)
}

// Summary aggregates completed sales in a window.
type Summary struct {
	Revenue       decimal.Decimal `json:"revenue"`
	Discount      decimal.Decimal `json:"discount"`
	Tax           decimal.Decimal `json:"tax"`
	Transactions  int             `json:"transactions"`
	ItemsSold     int             `json:"items_sold"`
	AverageTicket decimal.Decimal `json:"average_ticket"`
}

// CategoryTotal is revenue grouped by product category.
type CategoryTotal struct {
	CategoryID *int64          `json:"category_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	Revenue    decimal.Decimal `json:"revenue"`
}

// ProductTotal is revenue grouped by the product captured on the line.
type ProductTotal struct {
	ProductID *int64          `json:"product_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// DailyTotal is one UTC day of completed sales.
type DailyTotal struct {
	Day          time.Time       `json:"day"`
	Transactions int             `json:"transactions"`
	Revenue      decimal.Decimal `json:"revenue"`
}

// Dashboard bundles every rollup for one window.
type Dashboard struct {
	Window      Window          `json:"window"`
	Summary     Summary         `json:"summary"`
	Categories  []CategoryTotal `json:"categories"`
	TopProducts []ProductTotal  `json:"top_products"`
	Daily       []DailyTotal    `json:"daily"`
}
