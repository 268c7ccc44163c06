package sales

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Tolerance is the largest accepted difference between a declared and a
// recomputed amount.
var Tolerance = decimal.New(1, -2)

// MaxAmount is the largest money value a sale column can hold.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// checkAmount rejects values with sub-cent precision or outside the column
// range.
func checkAmount(field string, v decimal.Decimal) error {
	switch {
	case v.IsNegative():
		return fmt.Errorf("%s must not be negative", field)
	case !v.Equal(v.Round(2)):
		return fmt.Errorf("%s %s has more than two decimal places", field, v.String())
	case v.GreaterThan(MaxAmount):
		return fmt.Errorf("%s %s exceeds %s", field, v.String(), MaxAmount.StringFixed(2))
	}
	return nil
}

// Totals is the recomputed money summary of a cart.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// LineTotal returns quantity × price rounded to cents.
func LineTotal(quantity int, price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// ComputeTotals derives subtotal, tax and total for lines. An explicit tax
// wins over taxRate; taxRate applies to the discounted subtotal. Discount and
// explicit tax must be whole cents, and every amount must fit MaxAmount.
func ComputeTotals(lines []LineRequest, discount decimal.Decimal, tax, taxRate *decimal.Decimal) (Totals, error) {
	if err := checkAmount("discount", discount); err != nil {
		return Totals{}, invalidErr(err)
	}
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(LineTotal(line.Quantity, line.UnitPrice))
	}
	if subtotal.GreaterThan(MaxAmount) {
		return Totals{}, invalid("subtotal %s exceeds %s", subtotal.StringFixed(2), MaxAmount.StringFixed(2))
	}
	if discount.GreaterThan(subtotal) {
		return Totals{}, invalidErr(fmt.Errorf("%w: discount %s, subtotal %s", ErrDiscountExceedsSubtotal, discount.StringFixed(2), subtotal.StringFixed(2)))
	}
	taxable := subtotal.Sub(discount)
	var taxAmount decimal.Decimal
	switch {
	case tax != nil:
		if err := checkAmount("tax", *tax); err != nil {
			return Totals{}, invalidErr(err)
		}
		taxAmount = *tax
	case taxRate != nil:
		if taxRate.IsNegative() {
			return Totals{}, invalid("tax rate must not be negative")
		}
		taxAmount = taxable.Mul(*taxRate).Round(2)
	}
	total := taxable.Add(taxAmount)
	if total.GreaterThan(MaxAmount) {
		return Totals{}, invalid("total %s exceeds %s", total.StringFixed(2), MaxAmount.StringFixed(2))
	}
	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      taxAmount,
		Total:    total,
	}, nil
}

// Check compares declared amounts against t.
func (t Totals) Check(d Declared) error {
	check := func(field string, declared *decimal.Decimal, actual decimal.Decimal) error {
		if declared == nil || Within(*declared, actual) {
			return nil
		}
		return &Error{Kind: KindInvalidTotals, Err: fmt.Errorf("%w: %s declared %s, computed %s", ErrTotalsMismatch, field, declared.StringFixed(2), actual.StringFixed(2))}
	}
	if err := check("subtotal", d.Subtotal, t.Subtotal); err != nil {
		return err
	}
	if err := check("tax", d.Tax, t.Tax); err != nil {
		return err
	}
	return check("total", d.Total, t.Total)
}

// Within reports whether a and b differ by at most Tolerance.
func Within(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}
