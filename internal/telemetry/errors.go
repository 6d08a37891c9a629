package telemetry

import "codeberg.org/mutker/ridelogger/internal/errors"

const (
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidAddr   = errors.ErrorCode("telemetry_invalid_addr")
	ErrServe         = errors.ErrorCode("telemetry_serve_failed")
	ErrShutdown      = errors.ErrorCode("telemetry_shutdown_failed")
)
