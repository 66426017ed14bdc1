package core

import "errors"

// Order book and coordinator errors.
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidOrderStatus = errors.New("invalid order status")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidLocation    = errors.New("invalid grid location")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrOrderMismatch      = errors.New("order mismatch")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Delivery verification errors.
var (
	ErrTransferNotFound       = errors.New("transfer not found")
	ErrTransferAlreadyStarted = errors.New("transfer already started")
	ErrInvalidTransferStatus  = errors.New("invalid transfer status")
	ErrInvalidMeasurement     = errors.New("invalid measurement")
	ErrDeviceNotAuthorized    = errors.New("device not authorized")
)

// Settlement errors.
var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrInvalidPaymentState = errors.New("invalid payment status")
	ErrMethodNotSupported  = errors.New("payment method not supported")
	ErrProofInvalid        = errors.New("external payment proof invalid")
	ErrRateNotFound        = errors.New("exchange rate not found")
)

// Arithmetic.
var ErrOverflow = errors.New("arithmetic overflow")
