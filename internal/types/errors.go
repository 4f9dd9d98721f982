package types

import "errors"

// Sentinel errors for the engine.
var (
	// Validation errors
	ErrValidation    = errors.New("validation failed")
	ErrInvalidConfig = errors.New("invalid configuration")

	// Data errors
	ErrInsufficientData = errors.New("insufficient data")
	ErrMissingData      = errors.New("missing market data")
	ErrKeyNotFound      = errors.New("key not found")
	ErrIndexOutOfRange  = errors.New("index out of range")

	// Model errors
	ErrNotCalibrated = errors.New("model not calibrated")
)
