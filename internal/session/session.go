// Package session owns the access lifecycle of one sensor device: it asks
// the driver for access, binds the device class's channels once access is
// granted, and releases everything exactly once.
//
// A Session moves Idle → Requesting → {Bound | Released}, and Bound →
// Released. Released is terminal.
package session

import (
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/ridelogger/internal/channel"
	"codeberg.org/mutker/ridelogger/internal/errors"
	"codeberg.org/mutker/ridelogger/internal/logger"
	"codeberg.org/mutker/ridelogger/internal/telemetry"
	"codeberg.org/mutker/ridelogger/internal/trace"
	"codeberg.org/mutker/ridelogger/internal/transport"
	"github.com/google/uuid"
)

type Session struct {
	id        string
	transport transport.Transport
	class     channel.DeviceClass
	writer    channel.Writer
	log       logger.Logger
	telemetry telemetry.Collector
	recorder  trace.Recorder
	observer  Observer
	admit     func() bool

	mu           sync.Mutex
	state        State
	attempt      uint64
	deviceNumber int
	calibration  channel.Calibration
	handle       transport.ReleaseHandle
	device       transport.Device
	subscribed   []transport.ChannelID

	// gate orders receiver writes against unbinding: once unbind holds
	// it, no receiver of this session writes again.
	gate sync.RWMutex
	live bool
}

// New returns an Idle session for one device of class, writing readings
// to w.
func New(t transport.Transport, class channel.DeviceClass, w channel.Writer, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		transport: t,
		class:     class,
		writer:    w,
		log:       logger.Nop(),
		telemetry: telemetry.Nop(),
		recorder:  trace.NopRecorder{},
		observer:  noopObserver{},
		admit:     func() bool { return true },
	}

	for _, opt := range opts {
		opt(s)
	}

	s.log = s.log.With("session", s.id)

	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Class() channel.DeviceClass {
	return s.class
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DeviceNumber is the requested number until access is granted, then the
// number the driver resolved.
func (s *Session) DeviceNumber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceNumber
}

// Start requests access to deviceNumber (0 for any device of the class)
// and returns without waiting for the outcome. Calling Start again while
// Requesting abandons the pending request and issues a new one. The
// returned handle stops the session.
//
// Start does not notify the Observer; a synchronous driver failure is
// returned to the caller and leaves the session Released. The driver is
// called without the session lock held, so it may deliver the outcome
// before RequestAccess returns.
func (s *Session) Start(deviceNumber int, cal channel.Calibration) (transport.ReleaseHandle, error) {
	errFactory := errors.New()

	s.mu.Lock()
	switch s.state {
	case StateReleased:
		s.mu.Unlock()
		return nil, errFactory.New(ErrReleased)
	case StateBound:
		s.mu.Unlock()
		return nil, errFactory.WithData(ErrAlreadyBound, s.deviceNumber)
	}

	prev := s.state
	stale := s.handle
	s.handle = nil
	s.attempt++
	attempt := s.attempt
	s.deviceNumber = deviceNumber
	s.calibration = cal
	s.state = StateRequesting
	s.mu.Unlock()

	if stale != nil {
		stale.Release()
	}
	if prev != StateRequesting {
		s.record(prev, StateRequesting, deviceNumber, "", nil)
	}

	s.telemetry.AccessRequested()
	h, err := s.transport.RequestAccess(deviceNumber, s.onAccessResult(attempt), s.onStateChange(attempt))
	if err != nil {
		s.mu.Lock()
		current := attempt == s.attempt && s.state == StateRequesting
		if current {
			s.state = StateReleased
		}
		s.mu.Unlock()

		err = errFactory.Wrap(transport.ErrRequestFailed, err)
		if current {
			s.record(StateRequesting, StateReleased, deviceNumber, "", err)
		}
		s.log.Error().Err(err).Int("device_number", deviceNumber).Msg("Access request failed")
		return nil, err
	}

	// The outcome may already have arrived. The handle belongs to the
	// session unless it was stopped or restarted meanwhile.
	s.mu.Lock()
	keep := h != nil && attempt == s.attempt && s.state != StateReleased
	if keep {
		s.handle = h
	}
	s.mu.Unlock()

	if !keep && h != nil {
		h.Release()
	}

	s.log.Debug().
		Int("device_number", deviceNumber).
		Uint64("attempt", attempt).
		Msg("Requested device access")

	return transport.NewReleaseHandle(s.Stop), nil
}

// Stop releases the session. It is safe to call from any goroutine and
// any number of times; only the first call has an effect.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateReleased {
		s.mu.Unlock()
		return
	}
	prev := s.state
	n := s.deviceNumber
	h := s.teardownLocked()
	s.mu.Unlock()

	if h != nil {
		h.Release()
	}

	s.record(prev, StateReleased, n, "", nil)
	s.log.Debug().Str("from", prev.String()).Msg("Session stopped")
	s.observer.Released(s, nil)
}

func (s *Session) onAccessResult(attempt uint64) transport.AccessResultFunc {
	return func(dev transport.Device, outcome transport.Outcome, initial transport.DeviceState) {
		// locked tracks s.mu so a recovered panic can still release the
		// session.
		locked := false
		defer s.recoverCallback("access_result", &locked, outcome.String())

		s.telemetry.AccessResult(outcome.String())

		s.mu.Lock()
		locked = true
		if attempt != s.attempt || s.state != StateRequesting {
			state := s.state
			locked = false
			s.mu.Unlock()
			s.log.Debug().
				Str("outcome", outcome.String()).
				Str("state", state.String()).
				Msg("Ignoring stale access result")
			return
		}

		if outcome == transport.Success && dev == nil {
			outcome = transport.OtherFailure
		}

		switch outcome {
		case transport.Success:
			if !s.admit() {
				locked = false
				s.fail(errors.New().New(ErrNotAdmitted), outcome.String())
				return
			}
			s.device = dev
			s.deviceNumber = dev.DeviceNumber()
			s.state = StateBound
			s.bindLocked(dev)
			n := s.deviceNumber
			locked = false
			s.mu.Unlock()

			s.telemetry.SessionBound()
			s.record(StateRequesting, StateBound, n, outcome.String(), nil)
			s.log.Info().
				Int("device_number", n).
				Str("device_state", initial.String()).
				Msg("Device bound")
			s.observer.Bound(s, n)

		case transport.SearchTimeout:
			n := s.deviceNumber
			locked = false
			s.mu.Unlock()

			s.record(StateRequesting, StateRequesting, n, outcome.String(), nil)
			s.log.Warn().Int("device_number", n).Msg("Device search timed out")
			s.observer.SearchTimedOut(s)

		default:
			locked = false
			s.fail(errors.New().WithData(ErrAccessDenied, outcome.String()), outcome.String())
		}
	}
}

// fail releases the session. Called with s.mu held; unlocks it.
func (s *Session) fail(reason error, outcome string) {
	prev := s.state
	n := s.deviceNumber
	h := s.teardownLocked()
	s.mu.Unlock()

	if h != nil {
		h.Release()
	}

	s.record(prev, StateReleased, n, outcome, reason)
	s.log.Error().Err(reason).Int("device_number", n).Msg("Device access failed")
	s.observer.Released(s, reason)
}

func (s *Session) onStateChange(attempt uint64) transport.StateChangeFunc {
	return func(state transport.DeviceState) {
		locked := false
		defer s.recoverCallback("state_change", &locked, state.String())

		s.mu.Lock()
		locked = true
		if attempt != s.attempt || s.state != StateBound {
			locked = false
			s.mu.Unlock()
			return
		}
		if state != transport.StateDead {
			n := s.deviceNumber
			locked = false
			s.mu.Unlock()
			s.log.Debug().Int("device_number", n).Str("device_state", state.String()).Msg("Device state changed")
			return
		}

		n := s.deviceNumber
		h := s.teardownLocked()
		locked = false
		s.mu.Unlock()

		if h != nil {
			h.Release()
		}

		reason := errors.New().WithData(ErrLinkLost, n)
		s.record(StateBound, StateReleased, n, state.String(), reason)
		s.log.Warn().Int("device_number", n).Msg("Device link lost")
		s.observer.Released(s, reason)
	}
}

// bindLocked subscribes every binding of the class. Channels the device
// does not offer are skipped.
func (s *Session) bindLocked(dev transport.Device) {
	s.gate.Lock()
	s.live = true
	s.gate.Unlock()

	s.subscribed = s.subscribed[:0]
	for _, b := range s.class.Bindings {
		if err := subscribe(dev, b.Channel, s.receiver(b, s.calibration)); err != nil {
			s.log.Debug().Err(err).Str("channel", b.Channel.String()).Msg("Channel not subscribed")
			continue
		}
		s.subscribed = append(s.subscribed, b.Channel)
	}
}

// teardownLocked unbinds channels, moves to Released and hands back the
// release handle, which the caller must release outside the lock.
func (s *Session) teardownLocked() transport.ReleaseHandle {
	if s.state == StateBound {
		s.gate.Lock()
		s.live = false
		s.gate.Unlock()

		if s.device != nil {
			for _, ch := range s.subscribed {
				unsubscribe(s.device, ch)
			}
		}
		s.subscribed = nil
		s.telemetry.SessionUnbound()
	}

	s.state = StateReleased
	s.device = nil
	h := s.handle
	s.handle = nil

	return h
}

// subscribe keeps a misbehaving driver from taking the session lock down
// with it.
func subscribe(dev transport.Device, ch transport.ChannelID, rcv transport.Receiver) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New().WithData(ErrCallbackPanic, fmt.Sprint(r))
		}
	}()
	return dev.Subscribe(ch, rcv)
}

func unsubscribe(dev transport.Device, ch transport.ChannelID) {
	defer func() { _ = recover() }()
	dev.Unsubscribe(ch)
}

func (s *Session) receiver(b channel.Binding, cal channel.Calibration) transport.Receiver {
	name := b.Channel.String()

	return func(ev transport.Event) {
		defer func() {
			if r := recover(); r != nil {
				s.telemetry.ChannelFailure(name)
				s.log.Error().
					Str("channel", name).
					Str("panic", fmt.Sprint(r)).
					Msg("Recovered panic in channel receiver")
			}
		}()

		s.gate.RLock()
		defer s.gate.RUnlock()

		if !s.live {
			return
		}

		if err := b.Apply(s.writer, ev, cal); err != nil {
			s.telemetry.ChannelFailure(name)
			s.log.Error().Err(err).Str("channel", name).Msg("Dropped channel event")
			return
		}
		s.telemetry.ChannelEvent(name)
	}
}

// recoverCallback isolates a panic in a driver callback. A panic raised
// with s.mu held releases the session, so its readings are still zeroed.
func (s *Session) recoverCallback(callback string, locked *bool, outcome string) {
	r := recover()
	if r == nil {
		return
	}

	err := errors.New().WithData(ErrCallbackPanic, fmt.Sprint(r))
	s.log.ErrorWithCode(err).Str("callback", callback).Msg("Recovered panic in driver callback")

	if *locked {
		*locked = false
		s.fail(err, outcome)
	}
}

func (s *Session) record(from, to State, deviceNumber int, outcome string, reason error) {
	rec := trace.Record{
		Time:         time.Now(),
		SessionID:    s.id,
		DeviceClass:  s.class.Name,
		DeviceNumber: deviceNumber,
		OldState:     from.String(),
		NewState:     to.String(),
		Outcome:      outcome,
	}
	if reason != nil {
		rec.Reason = reason.Error()
	}
	s.recorder.Record(rec)
}
