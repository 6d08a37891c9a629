package transport

import "codeberg.org/mutker/ridelogger/internal/errors"

const (
	ErrChannelUnsupported = errors.ErrorCode("transport_channel_unsupported")
	ErrRequestFailed      = errors.ErrorCode("transport_request_failed")
)
