package supervisor

import (
	"codeberg.org/mutker/ridelogger/internal/logger"
	"codeberg.org/mutker/ridelogger/internal/telemetry"
	"codeberg.org/mutker/ridelogger/internal/trace"
)

// Hooks are called on driver goroutines after the supervisor has
// released its lock. They may call back into the Supervisor.
type Hooks struct {
	// OnBound runs when a device was bound.
	OnBound func(deviceNumber int)
	// OnSearchTimeout runs after every search timeout of the current
	// session. retrying reports whether access was already re-requested.
	OnSearchTimeout func(deviceNumber int, retrying bool)
	// OnReleased runs after the store was zeroed for a released session.
	// reason is nil for a voluntary stop.
	OnReleased func(reason error)
}

type Option func(*Supervisor)

func WithLogger(l logger.Logger) Option {
	return func(sv *Supervisor) { sv.log = l }
}

func WithTelemetry(c telemetry.Collector) Option {
	return func(sv *Supervisor) { sv.telemetry = c }
}

func WithRecorder(r trace.Recorder) Option {
	return func(sv *Supervisor) { sv.recorder = r }
}

func WithHooks(h Hooks) Option {
	return func(sv *Supervisor) { sv.hooks = h }
}
