package trace

import "codeberg.org/mutker/ridelogger/internal/errors"

const (
	ErrOpenFile  = errors.ErrorCode("trace_open_failed")
	ErrCloseFile = errors.ErrorCode("trace_close_failed")
	ErrDecode    = errors.ErrorCode("trace_decode_failed")
)
