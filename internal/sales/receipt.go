package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Receipt is a display-ready rendering of a sale.
type Receipt struct {
	SaleID        int64         `json:"sale_id"`
	CashierID     int64         `json:"cashier_id"`
	IssuedAt      time.Time     `json:"issued_at"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Status        Status        `json:"status"`
	Currency      string        `json:"currency"`
	Lines         []ReceiptLine `json:"lines"`
	Subtotal      string        `json:"subtotal"`
	Discount      string        `json:"discount"`
	Tax           string        `json:"tax"`
	Total         string        `json:"total"`
}

// ReceiptLine is one formatted receipt row.
type ReceiptLine struct {
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Total     string `json:"total"`
}

// ReceiptFormatter renders sales in one currency and locale.
type ReceiptFormatter struct {
	unit    currency.Unit
	printer *message.Printer
}

// NewReceiptFormatter parses an ISO 4217 code such as "USD".
func NewReceiptFormatter(code string, tag language.Tag) (*ReceiptFormatter, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("sales: receipt currency: %w", err)
	}
	return &ReceiptFormatter{unit: unit, printer: message.NewPrinter(tag)}, nil
}

// Format renders sale.
func (f *ReceiptFormatter) Format(sale Sale) Receipt {
	r := Receipt{
		SaleID:        sale.ID,
		CashierID:     sale.UserID,
		IssuedAt:      sale.CreatedAt,
		PaymentMethod: sale.PaymentMethod,
		Status:        sale.Status,
		Currency:      f.unit.String(),
		Lines:         make([]ReceiptLine, 0, len(sale.Items)),
		Subtotal:      f.amount(sale.Subtotal),
		Discount:      f.amount(sale.Discount),
		Tax:           f.amount(sale.Tax),
		Total:         f.amount(sale.Total),
	}
	for _, item := range sale.Items {
		r.Lines = append(r.Lines, ReceiptLine{
			Name:      item.ProductName,
			SKU:       item.ProductSKU,
			Quantity:  item.Quantity,
			UnitPrice: f.amount(item.Price),
			Total:     f.amount(item.Total),
		})
	}
	return r
}

func (f *ReceiptFormatter) amount(d decimal.Decimal) string {
	return f.printer.Sprint(currency.Symbol(f.unit.Amount(d.InexactFloat64())))
}
