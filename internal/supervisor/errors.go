package supervisor

import "codeberg.org/mutker/ridelogger/internal/errors"

const (
	ErrAlreadyStarted = errors.ErrorCode("supervisor_already_started")
	ErrNotWanted      = errors.ErrorCode("supervisor_not_wanted")
	ErrNotSearching   = errors.ErrorCode("supervisor_not_searching")
	ErrInvalidDevice  = errors.ErrorCode("supervisor_invalid_device_number")
)
