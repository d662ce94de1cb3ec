package model

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidUnit         = errors.New("model: invalid unit")
	ErrInvalidBaseUnit     = errors.New("model: invalid base unit")
	ErrInvalidSellMode     = errors.New("model: invalid sell mode")
	ErrNonPositiveQuantity = errors.New("model: quantity must be greater than zero")
)

// Unit is the unit a buyer orders in.
type Unit uint8

const (
	UnitUnknown Unit = iota
	UnitGram
	UnitMilliliter
	UnitPiece
)

func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "g":
		return UnitGram, nil
	case "ml":
		return UnitMilliliter, nil
	case "pcs":
		return UnitPiece, nil
	}
	return UnitUnknown, fmt.Errorf("%w: %q", ErrInvalidUnit, s)
}

func (u Unit) String() string {
	switch u {
	case UnitGram:
		return "g"
	case UnitMilliliter:
		return "ml"
	case UnitPiece:
		return "pcs"
	}
	return "unknown"
}

// Base is the stock dimension this unit converts into.
func (u Unit) Base() BaseUnit {
	switch u {
	case UnitGram:
		return BaseKilogram
	case UnitMilliliter:
		return BaseLiter
	case UnitPiece:
		return BasePiece
	}
	return BaseUnknown
}

// exponent is the power of ten between u and its base unit.
func (u Unit) exponent() (int32, error) {
	switch u {
	case UnitGram, UnitMilliliter:
		return 3, nil
	case UnitPiece:
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidUnit, u)
}

func (u Unit) MarshalText() ([]byte, error) {
	if u == UnitUnknown {
		return nil, ErrInvalidUnit
	}
	return []byte(u.String()), nil
}

func (u *Unit) UnmarshalText(b []byte) error {
	parsed, err := ParseUnit(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func (u Unit) Value() (driver.Value, error) {
	if u == UnitUnknown {
		return nil, ErrInvalidUnit
	}
	return u.String(), nil
}

func (u *Unit) Scan(src interface{}) error {
	s, err := scanString(src)
	if err != nil {
		return err
	}
	return u.UnmarshalText([]byte(s))
}

// ToBaseUnit converts quantity in unit into the unit's base. Grams and millilitres are
// shifted three decimal places, so the result is exact.
func ToBaseUnit(quantity decimal.Decimal, unit Unit) (decimal.Decimal, error) {
	exp, err := unit.exponent()
	if err != nil {
		return decimal.Zero, err
	}
	if !quantity.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNonPositiveQuantity, quantity)
	}
	return quantity.Shift(-exp), nil
}

// StockScale is the number of decimal places stock and base quantities are stored with.
const StockScale = 6

// FitsStockScale reports whether q can be stored without rounding.
func FitsStockScale(q decimal.Decimal) bool {
	return q.Equal(q.Truncate(StockScale))
}

// FromBaseUnit is the inverse of ToBaseUnit.
func FromBaseUnit(quantity decimal.Decimal, unit Unit) (decimal.Decimal, error) {
	exp, err := unit.exponent()
	if err != nil {
		return decimal.Zero, err
	}
	if !quantity.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNonPositiveQuantity, quantity)
	}
	return quantity.Shift(exp), nil
}

// BaseUnit is the unit stock is tracked in.
type BaseUnit uint8

const (
	BaseUnknown BaseUnit = iota
	BaseKilogram
	BaseLiter
	BasePiece
)

func ParseBaseUnit(s string) (BaseUnit, error) {
	switch strings.TrimSpace(s) {
	case "kg":
		return BaseKilogram, nil
	case "L", "l":
		return BaseLiter, nil
	case "pcs":
		return BasePiece, nil
	}
	return BaseUnknown, fmt.Errorf("%w: %q", ErrInvalidBaseUnit, s)
}

func (b BaseUnit) String() string {
	switch b {
	case BaseKilogram:
		return "kg"
	case BaseLiter:
		return "L"
	case BasePiece:
		return "pcs"
	}
	return "unknown"
}

func (b BaseUnit) MarshalText() ([]byte, error) {
	if b == BaseUnknown {
		return nil, ErrInvalidBaseUnit
	}
	return []byte(b.String()), nil
}

func (b *BaseUnit) UnmarshalText(text []byte) error {
	parsed, err := ParseBaseUnit(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b BaseUnit) Value() (driver.Value, error) {
	if b == BaseUnknown {
		return nil, ErrInvalidBaseUnit
	}
	return b.String(), nil
}

func (b *BaseUnit) Scan(src interface{}) error {
	s, err := scanString(src)
	if err != nil {
		return err
	}
	return b.UnmarshalText([]byte(s))
}

// SellMode says whether a variant is sold in whole pieces or by weight/volume.
type SellMode uint8

const (
	SellModeUnknown SellMode = iota
	SellModePackaged
	SellModeLoose
)

func ParseSellMode(s string) (SellMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "packaged":
		return SellModePackaged, nil
	case "loose":
		return SellModeLoose, nil
	}
	return SellModeUnknown, fmt.Errorf("%w: %q", ErrInvalidSellMode, s)
}

func (m SellMode) String() string {
	switch m {
	case SellModePackaged:
		return "packaged"
	case SellModeLoose:
		return "loose"
	}
	return "unknown"
}

// Allows reports whether stock for this sell mode may be kept in base.
// Loose goods are weighed or measured, packaged goods are counted.
func (m SellMode) Allows(base BaseUnit) bool {
	switch m {
	case SellModeLoose:
		return base == BaseKilogram || base == BaseLiter
	case SellModePackaged:
		return base == BasePiece
	}
	return false
}

func (m SellMode) MarshalText() ([]byte, error) {
	if m == SellModeUnknown {
		return nil, ErrInvalidSellMode
	}
	return []byte(m.String()), nil
}

func (m *SellMode) UnmarshalText(text []byte) error {
	parsed, err := ParseSellMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m SellMode) Value() (driver.Value, error) {
	if m == SellModeUnknown {
		return nil, ErrInvalidSellMode
	}
	return m.String(), nil
}

func (m *SellMode) Scan(src interface{}) error {
	s, err := scanString(src)
	if err != nil {
		return err
	}
	return m.UnmarshalText([]byte(s))
}

func scanString(src interface{}) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", fmt.Errorf("model: cannot scan %T into enum", src)
}
