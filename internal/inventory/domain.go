package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable item with an on-hand quantity counter.
type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Price         decimal.Decimal `json:"price"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	Quantity      int             `json:"quantity"`
	MinStockLevel int             `json:"min_stock_level"`
	CategoryID    *int64          `json:"category_id,omitempty"`
	CategoryName  string          `json:"category_name,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// LowStock reports whether quantity is at or below the minimum stock level.
func (p Product) LowStock() bool {
	return p.Quantity <= p.MinStockLevel
}

// Category groups products for reporting.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProductInput carries writable product fields. Quantity is only honoured on
// creation; later changes go through stock adjustments.
type ProductInput struct {
	Name          string
	SKU           string
	Price         decimal.Decimal
	CostPrice     decimal.Decimal
	Quantity      int
	MinStockLevel int
	CategoryID    *int64
}

// ListFilter narrows product listings.
type ListFilter struct {
	Search       string
	CategoryID   int64
	LowStockOnly bool
	Limit        int
	Offset       int
}

// AdjustmentInput describes a manual stock correction.
type AdjustmentInput struct {
	ProductID int64
	Delta     int
	Reason    string
	ActorID   int64
}

// Adjustment is the outcome of a stock correction.
type Adjustment struct {
	ProductID int64  `json:"product_id"`
	Before    int    `json:"before"`
	After     int    `json:"after"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason,omitempty"`
}

var (
	// ErrProductNotFound indicates a missing product row.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrCategoryNotFound indicates a missing category row.
	ErrCategoryNotFound = errors.New("inventory: category not found")
	// ErrInsufficientStock is returned by a conditional decrement that would go below zero.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrNegativeStock triggered when an adjustment would result in negative quantity.
	ErrNegativeStock = errors.New("inventory: negative stock not allowed")
	// ErrInvalidQuantity indicates a zero or negative movement quantity.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
	// ErrDuplicateSKU indicates the SKU is already used by another product.
	ErrDuplicateSKU = errors.New("inventory: sku already exists")
	// ErrDuplicateCategory indicates the category name is already used.
	ErrDuplicateCategory = errors.New("inventory: category already exists")
	// ErrInvalidProduct indicates invalid product fields.
	ErrInvalidProduct = errors.New("inventory: invalid product")
)
