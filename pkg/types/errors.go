package types

import "errors"

// ErrInvalidIntent is returned when an OrderIntent cannot be reconciled.
var ErrInvalidIntent = errors.New("invalid order intent")
