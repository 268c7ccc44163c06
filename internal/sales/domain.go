package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates accepted tender types.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "Cash"
	PaymentCreditCard   PaymentMethod = "Credit Card"
	PaymentDebitCard    PaymentMethod = "Debit Card"
	PaymentMobile       PaymentMethod = "Mobile Payment"
	PaymentBankTransfer PaymentMethod = "Bank Transfer"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentMobile, PaymentBankTransfer:
		return true
	}
	return false
}

// Status is the lifecycle state of a sale.
type Status string

const (
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
	StatusRefunded  Status = "Refunded"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRefunded
}

// Sale is a persisted checkout with its line items.
type Sale struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	ItemCount     int             `json:"item_count"`
	Items         []LineItem      `json:"items,omitempty"`
}

// LineItem is one product line of a sale. Name, SKU and price are captured
// at the time of sale; ProductID becomes nil once the product is deleted.
type LineItem struct {
	ID          int64           `json:"id"`
	SaleID      int64           `json:"sale_id"`
	ProductID   *int64          `json:"product_id"`
	ProductName string          `json:"product_name"`
	ProductSKU  string          `json:"product_sku"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LineRequest is one cart entry.
type LineRequest struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Declared carries client-computed totals. Nil fields are not checked.
type Declared struct {
	Subtotal *decimal.Decimal
	Tax      *decimal.Decimal
	Total    *decimal.Decimal
}

// CompleteSaleInput is a cart submitted for checkout. Tax, when set, takes
// precedence over TaxRate.
type CompleteSaleInput struct {
	CashierID      int64
	Lines          []LineRequest
	PaymentMethod  PaymentMethod
	Discount       decimal.Decimal
	TaxRate        *decimal.Decimal
	Tax            *decimal.Decimal
	Declared       Declared
	IdempotencyKey string
}

// ListFilter narrows sale listings. From is inclusive, To exclusive.
type ListFilter struct {
	From          *time.Time
	To            *time.Time
	UserID        int64
	Status        Status
	PaymentMethod PaymentMethod
	Limit         int
	Offset        int
}
