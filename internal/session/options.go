package session

import (
	"codeberg.org/mutker/ridelogger/internal/logger"
	"codeberg.org/mutker/ridelogger/internal/telemetry"
	"codeberg.org/mutker/ridelogger/internal/trace"
)

type Option func(*Session)

func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.log = l }
}

func WithTelemetry(c telemetry.Collector) Option {
	return func(s *Session) { s.telemetry = c }
}

func WithRecorder(r trace.Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

func WithObserver(o Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithAdmission sets a check consulted, under the session lock, before
// channels are bound. Returning false turns a granted access into a
// release.
func WithAdmission(admit func() bool) Option {
	return func(s *Session) { s.admit = admit }
}
