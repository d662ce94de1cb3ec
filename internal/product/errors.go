package product

import (
	"errors"
	"fmt"

	"github.com/fekuna/omnipos-backoffice/internal/model"
)

var (
	ErrInvalidInput     = errors.New("product: invalid input")
	ErrInvalidID        = errors.New("product: invalid id")
	ErrProductNotFound  = errors.New("product: not found")
	ErrProductInactive  = errors.New("product: inactive")
	ErrVariantNotFound  = errors.New("product: variant not found")
	ErrVariantInactive  = errors.New("product: variant inactive")
	ErrSellModeMismatch = errors.New("product: sell mode mismatch")
	ErrUnitMismatch     = errors.New("product: unit does not match variant stock unit")
	ErrDuplicateSKU     = errors.New("product: sku already exists")
)

// AssertSellModeMatches rejects a line whose claimed sell mode differs from the variant's.
func AssertSellModeMatches(v *model.Variant, claimed model.SellMode) error {
	if v.SellMode != claimed {
		return fmt.Errorf("%w: variant %s is %s, request claims %s", ErrSellModeMismatch, v.ID, v.SellMode, claimed)
	}
	return nil
}

// AssertUnitMatches rejects a request unit whose dimension is not the variant's base unit,
// e.g. millilitres against stock kept in kilograms.
func AssertUnitMatches(v *model.Variant, unit model.Unit) error {
	if unit.Base() != v.BaseUnit {
		return fmt.Errorf("%w: %s cannot be taken from stock kept in %s", ErrUnitMismatch, unit, v.BaseUnit)
	}
	return nil
}
