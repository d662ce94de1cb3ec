package inventory

import "errors"

var (
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	ErrInvalidAmount     = errors.New("inventory: invalid amount")
	ErrInvalidInput      = errors.New("inventory: invalid input")
	ErrBusy              = errors.New("inventory: system busy, please try again later")
)
