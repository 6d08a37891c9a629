package session

import "codeberg.org/mutker/ridelogger/internal/errors"

const (
	// ErrAccessDenied is a terminal access failure reported by the driver.
	ErrAccessDenied = errors.ErrorCode("session_access_denied")
	// ErrReleased is returned by Start on a session that already ended.
	ErrReleased = errors.ErrorCode("session_released")
	// ErrAlreadyBound is returned by Start while channels are bound.
	ErrAlreadyBound = errors.ErrorCode("session_already_bound")
	// ErrLinkLost ends a bound session whose device went dead.
	ErrLinkLost = errors.ErrorCode("session_link_lost")
	// ErrNotAdmitted ends a session whose access was granted after the
	// owner stopped wanting the device.
	ErrNotAdmitted = errors.ErrorCode("session_not_admitted")
	// ErrCallbackPanic marks a recovered panic inside a driver callback.
	ErrCallbackPanic = errors.ErrorCode("session_callback_panic")
)
