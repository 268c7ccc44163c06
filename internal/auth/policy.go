package auth

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrDiscountNotAllowed is returned when a discount exceeds the caller's cap.
var ErrDiscountNotAllowed = errors.New("auth: discount exceeds allowed maximum")

// Allowed reports whether p holds any of roles. An empty role list allows
// every authenticated principal.
func Allowed(p Principal, roles ...Role) bool {
	if len(roles) == 0 {
		return p.Role.Valid()
	}
	for _, role := range roles {
		if p.Role == role {
			return true
		}
	}
	return false
}

// DiscountPolicy caps the discount non-admin principals may grant.
type DiscountPolicy struct {
	// NonAdminCap is nil when no cap is configured.
	NonAdminCap *decimal.Decimal
}

// NewDiscountPolicy parses a cap value; an empty string disables the cap.
func NewDiscountPolicy(raw string) (DiscountPolicy, error) {
	if raw == "" {
		return DiscountPolicy{}, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return DiscountPolicy{}, fmt.Errorf("auth: parse discount cap: %w", err)
	}
	if value.IsNegative() {
		return DiscountPolicy{}, errors.New("auth: discount cap must not be negative")
	}
	return DiscountPolicy{NonAdminCap: &value}, nil
}

// Check enforces the cap for p.
func (d DiscountPolicy) Check(p Principal, discount decimal.Decimal) error {
	if p.IsAdmin() || d.NonAdminCap == nil {
		return nil
	}
	if discount.GreaterThan(*d.NonAdminCap) {
		return fmt.Errorf("%w (%s)", ErrDiscountNotAllowed, d.NonAdminCap.StringFixed(2))
	}
	return nil
}
