package metric

import "codeberg.org/mutker/ridelogger/internal/errors"

const (
	ErrArityMismatch = errors.ErrorCode("metric_arity_mismatch")
	ErrUnknownKey    = errors.ErrorCode("metric_unknown_key")
)
