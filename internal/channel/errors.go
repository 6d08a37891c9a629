package channel

import "codeberg.org/mutker/ridelogger/internal/errors"

const (
	ErrMalformedEvent     = errors.ErrorCode("channel_malformed_event")
	ErrInvalidCalibration = errors.ErrorCode("channel_invalid_calibration")
)
