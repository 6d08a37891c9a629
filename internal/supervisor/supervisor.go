// Package supervisor keeps one device class connected for as long as the
// owner wants it. It retries search timeouts once a concrete device is
// known, replaces sessions whose link died, and zeroes the device's
// readings whenever a session ends.
//
// The supervisor holds its lock while requesting access, so its transport
// must not block RequestAccess on a callback.
package supervisor

import (
	"sync"
	"sync/atomic"

	"codeberg.org/mutker/ridelogger/internal/channel"
	"codeberg.org/mutker/ridelogger/internal/errors"
	"codeberg.org/mutker/ridelogger/internal/logger"
	"codeberg.org/mutker/ridelogger/internal/metric"
	"codeberg.org/mutker/ridelogger/internal/session"
	"codeberg.org/mutker/ridelogger/internal/telemetry"
	"codeberg.org/mutker/ridelogger/internal/trace"
	"codeberg.org/mutker/ridelogger/internal/transport"
)

// MaxDeviceNumber is the largest device number a transport can address.
const MaxDeviceNumber = 0xFFFF

type Supervisor struct {
	transport transport.Transport
	class     channel.DeviceClass
	store     *metric.Store
	log       logger.Logger
	telemetry telemetry.Collector
	recorder  trace.Recorder
	hooks     Hooks

	// wanted is written only with mu held. Sessions read it without the
	// lock, under their own, before binding.
	wanted atomic.Bool

	mu          sync.Mutex
	session     *session.Session
	resolved    bool
	deviceNum   int
	calibration channel.Calibration
}

func New(t transport.Transport, class channel.DeviceClass, store *metric.Store, opts ...Option) *Supervisor {
	sv := &Supervisor{
		transport: t,
		class:     class,
		store:     store,
		log:       logger.Nop(),
		telemetry: telemetry.Nop(),
		recorder:  trace.NopRecorder{},
	}

	for _, opt := range opts {
		opt(sv)
	}

	sv.log = sv.log.With("device_class", class.Name)

	return sv
}

// Start begins tracking a device. A nonzero deviceNumber is a concrete,
// previously paired device and makes search timeouts retry at once; 0
// searches for any device and retries only after one has been bound.
func (sv *Supervisor) Start(deviceNumber int, cal channel.Calibration) error {
	errFactory := errors.New()

	if deviceNumber < 0 || deviceNumber > MaxDeviceNumber {
		return errFactory.WithData(ErrInvalidDevice, deviceNumber)
	}

	sv.mu.Lock()
	defer sv.mu.Unlock()

	if sv.session != nil && sv.session.State() != session.StateReleased {
		return errFactory.New(ErrAlreadyStarted)
	}

	sv.wanted.Store(true)
	sv.calibration = cal
	sv.resolved = deviceNumber != 0
	sv.deviceNum = deviceNumber

	sv.session = sv.newSession()
	if _, err := sv.session.Start(deviceNumber, cal); err != nil {
		sv.wanted.Store(false)
		return errFactory.Wrap(errors.ErrStartSession, err)
	}

	sv.log.Info().Int("device_number", deviceNumber).Msg("Tracking device")

	return nil
}

// Search re-requests access for the current session after a cold search
// timed out. It uses the last resolved device number, or 0. A session
// that is not searching is left alone.
func (sv *Supervisor) Search() error {
	errFactory := errors.New()

	sv.mu.Lock()
	defer sv.mu.Unlock()

	if !sv.wanted.Load() || sv.session == nil {
		return errFactory.New(ErrNotWanted)
	}
	if state := sv.session.State(); state != session.StateRequesting {
		return errFactory.WithData(ErrNotSearching, state.String())
	}

	n := 0
	if sv.resolved {
		n = sv.deviceNum
	}

	if _, err := sv.session.Start(n, sv.calibration); err != nil {
		// The session may have bound in the meantime; only a released
		// one has lost its readings.
		if sv.session.State() == session.StateReleased {
			sv.resetLocked()
		}
		return errFactory.Wrap(errors.ErrStartSession, err)
	}
	return nil
}

// Cancel stops wanting the device and stops the current session. No
// search timeout handled after Cancel returns leads to a new access
// request.
func (sv *Supervisor) Cancel() {
	sv.mu.Lock()
	sv.wanted.Store(false)
	s := sv.session
	sv.mu.Unlock()

	if s != nil {
		s.Stop()
	}
	sv.log.Info().Msg("Stopped tracking device")
}

// Wanted reports whether the device is still wanted.
func (sv *Supervisor) Wanted() bool {
	return sv.wanted.Load()
}

// State returns the state of the current session.
func (sv *Supervisor) State() session.State {
	sv.mu.Lock()
	s := sv.session
	sv.mu.Unlock()

	if s == nil {
		return session.StateIdle
	}
	return s.State()
}

// DeviceNumber returns the last concrete device number and whether one
// was ever resolved.
func (sv *Supervisor) DeviceNumber() (int, bool) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.deviceNum, sv.resolved
}

// SearchTimedOut implements session.Observer.
func (sv *Supervisor) SearchTimedOut(s *session.Session) {
	sv.mu.Lock()
	if s != sv.session {
		sv.mu.Unlock()
		return
	}

	n := s.DeviceNumber()
	if !sv.wanted.Load() || !sv.resolved {
		sv.mu.Unlock()
		sv.log.Warn().Int("device_number", n).Msg("Search timed out, not retrying")
		sv.onSearchTimeout(n, false)
		return
	}

	n = sv.deviceNum
	sv.telemetry.SearchRetried()
	_, err := s.Start(n, sv.calibration)
	if err != nil {
		sv.resetLocked()
	}
	sv.mu.Unlock()

	if err != nil {
		sv.log.Error().Err(err).Int("device_number", n).Msg("Failed to retry search")
		sv.onReleased(err)
		return
	}

	sv.log.Info().Int("device_number", n).Msg("Search timed out, retrying")
	sv.onSearchTimeout(n, true)
}

// Bound implements session.Observer.
func (sv *Supervisor) Bound(s *session.Session, deviceNumber int) {
	sv.mu.Lock()
	if s != sv.session {
		sv.mu.Unlock()
		return
	}
	sv.resolved = true
	sv.deviceNum = deviceNumber
	sv.mu.Unlock()

	if sv.hooks.OnBound != nil {
		sv.hooks.OnBound(deviceNumber)
	}
}

// Released implements session.Observer.
func (sv *Supervisor) Released(s *session.Session, reason error) {
	sv.mu.Lock()
	if s != sv.session {
		sv.mu.Unlock()
		return
	}

	sv.resetLocked()

	var restartErr error
	switch {
	case reason == nil:
	case errors.HasCode(reason, session.ErrLinkLost):
		if sv.wanted.Load() && sv.resolved {
			sv.session = sv.newSession()
			if _, restartErr = sv.session.Start(sv.deviceNum, sv.calibration); restartErr != nil {
				sv.wanted.Store(false)
			}
		}
	default:
		// Terminal for this device until the owner starts again.
		sv.wanted.Store(false)
	}
	sv.mu.Unlock()

	if restartErr != nil {
		sv.log.Error().Err(restartErr).Msg("Failed to reconnect after link loss")
		sv.onReleased(restartErr)
		return
	}
	sv.onReleased(reason)
}

func (sv *Supervisor) newSession() *session.Session {
	return session.New(sv.transport, sv.class, sv.store,
		session.WithLogger(sv.log),
		session.WithTelemetry(sv.telemetry),
		session.WithRecorder(sv.recorder),
		session.WithObserver(sv),
		session.WithAdmission(sv.wanted.Load),
	)
}

// resetLocked zeroes every key the device class writes.
func (sv *Supervisor) resetLocked() {
	if err := sv.store.Reset(sv.class.Keys()); err != nil {
		sv.log.Error().Err(err).Msg("Failed to zero readings")
		return
	}
	sv.telemetry.StoreReset()
}

func (sv *Supervisor) onSearchTimeout(n int, retrying bool) {
	if sv.hooks.OnSearchTimeout != nil {
		sv.hooks.OnSearchTimeout(n, retrying)
	}
}

func (sv *Supervisor) onReleased(reason error) {
	if sv.hooks.OnReleased != nil {
		sv.hooks.OnReleased(reason)
	}
}

var _ session.Observer = (*Supervisor)(nil)
