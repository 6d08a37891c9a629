package supervisor_test

import (
	"sync"
	"testing"

	"codeberg.org/mutker/ridelogger/internal/channel"
	"codeberg.org/mutker/ridelogger/internal/errors"
	"codeberg.org/mutker/ridelogger/internal/metric"
	"codeberg.org/mutker/ridelogger/internal/session"
	"codeberg.org/mutker/ridelogger/internal/supervisor"
	"codeberg.org/mutker/ridelogger/internal/transport"
	"codeberg.org/mutker/ridelogger/internal/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hookSpy struct {
	mu       sync.Mutex
	bound    []int
	timeouts []bool
	released []error
}

func (h *hookSpy) hooks() supervisor.Hooks {
	return supervisor.Hooks{
		OnBound: func(n int) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.bound = append(h.bound, n)
		},
		OnSearchTimeout: func(_ int, retrying bool) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.timeouts = append(h.timeouts, retrying)
		},
		OnReleased: func(reason error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.released = append(h.released, reason)
		},
	}
}

func (h *hookSpy) releasedReasons() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.released...)
}

func newSupervisor(t *testing.T) (*supervisor.Supervisor, *transporttest.Transport, *metric.Store, *hookSpy) {
	t.Helper()
	tr := transporttest.New()
	store := metric.NewStore()
	spy := &hookSpy{}
	sv := supervisor.New(tr, channel.BikePower, store, supervisor.WithHooks(spy.hooks()))
	return sv, tr, store, spy
}

func assertAllZero(t *testing.T, store *metric.Store) {
	t.Helper()
	snap := store.Snapshot()
	for _, k := range channel.BikePower.Keys() {
		assert.Zero(t, snap.Get(k), k.String())
	}
}

func TestWildcardSearchBindsAndPublishes(t *testing.T) {
	sv, tr, store, spy := newSupervisor(t)

	require.NoError(t, sv.Start(0, channel.DefaultCalibration()))
	require.Equal(t, 1, tr.Count())
	assert.Equal(t, 0, tr.Last().DeviceNumber)

	_, resolved := sv.DeviceNumber()
	assert.False(t, resolved)

	dev := transporttest.NewDevice(12)
	tr.Last().Grant(dev)
	dev.Emit(transport.CalculatedPower, 150)

	assert.Equal(t, 150.0, store.Get(metric.Watts))
	assert.Equal(t, session.StateBound, sv.State())

	n, resolved := sv.DeviceNumber()
	assert.True(t, resolved)
	assert.Equal(t, 12, n)
	assert.Equal(t, []int{12}, spy.bound)
}

func TestKnownDeviceTimeoutRetriesOnce(t *testing.T) {
	sv, tr, _, spy := newSupervisor(t)

	require.NoError(t, sv.Start(12, channel.DefaultCalibration()))
	first := tr.Last()
	first.Timeout()

	require.Equal(t, 2, tr.Count())
	assert.Equal(t, 12, tr.Last().DeviceNumber)
	assert.Equal(t, 1, first.Releases())
	assert.Equal(t, session.StateRequesting, sv.State())
	assert.Equal(t, []bool{true}, spy.timeouts)

	// The retried request binds normally.
	tr.Last().Grant(transporttest.NewDevice(12))
	assert.Equal(t, session.StateBound, sv.State())
}

func TestColdSearchTimeoutWaitsForSearch(t *testing.T) {
	sv, tr, _, spy := newSupervisor(t)

	require.NoError(t, sv.Start(0, channel.DefaultCalibration()))
	tr.Last().Timeout()

	assert.Equal(t, 1, tr.Count())
	assert.Equal(t, []bool{false}, spy.timeouts)
	assert.True(t, sv.Wanted())

	require.NoError(t, sv.Search())
	require.Equal(t, 2, tr.Count())
	assert.Equal(t, 0, tr.Last().DeviceNumber)
	assert.Equal(t, 1, tr.Requests()[0].Releases())
}

func TestSearchLeavesBoundSessionAlone(t *testing.T) {
	sv, tr, store, _ := newSupervisor(t)

	require.NoError(t, sv.Start(0, channel.DefaultCalibration()))
	dev := transporttest.NewDevice(12)
	tr.Last().Grant(dev)
	dev.Emit(transport.CalculatedPower, 150)

	err := sv.Search()
	assert.True(t, errors.HasCode(err, supervisor.ErrNotSearching))

	assert.Equal(t, session.StateBound, sv.State())
	assert.Equal(t, 150.0, store.Get(metric.Watts))
	assert.Equal(t, 1, tr.Count())
	assert.Zero(t, tr.Last().Releases())
}

func TestRestartAfterCancelSearchesCold(t *testing.T) {
	sv, tr, _, spy := newSupervisor(t)

	require.NoError(t, sv.Start(0, channel.DefaultCalibration()))
	tr.Last().Grant(transporttest.NewDevice(12))
	sv.Cancel()

	require.NoError(t, sv.Start(0, channel.DefaultCalibration()))
	_, resolved := sv.DeviceNumber()
	assert.False(t, resolved, "a wildcard start forgets the previous device")

	tr.Last().Timeout()

	require.Equal(t, 2, tr.Count())
	assert.Equal(t, 0, tr.Last().DeviceNumber)
	assert.Equal(t, []bool{false}, spy.timeouts)
}

func TestTimeoutAfterResolveRetriesResolvedNumber(t *testing.T) {
	sv, tr, _, _ := newSupervisor(t)

	require.NoError(t, sv.Start(0, channel.DefaultCalibration()))
	tr.Last().Grant(transporttest.NewDevice(12))
	tr.Last().SetState(transport.StateDead)

	// Link loss reconnects to 12; a timeout there keeps retrying 12.
	require.Equal(t, 2, tr.Count())
	assert.Equal(t, 12, tr.Last().DeviceNumber)

	tr.Last().Timeout()
	require.Equal(t, 3, tr.Count())
	assert.Equal(t, 12, tr.Last().DeviceNumber)
}

func TestCancelZeroesReadingsAndReleasesOnce(t *testing.T) {
	sv, tr, store, spy := newSupervisor(t)

	require.NoError(t, sv.Start(12, channel.DefaultCalibration()))
	dev := transporttest.NewDevice(12)
	tr.Last().Grant(dev)

	dev.Emit(transport.CalculatedPower, 150)
	dev.Emit(transport.CalculatedCrankCadence, 90)
	dev.Emit(transport.TorqueEffectiveness, 1, 70, 72)
	dev.Emit(transport.CalculatedWheelDistance, 1000)
	require.Equal(t, 150.0, store.Get(metric.Watts))

	sv.Cancel()
	sv.Cancel()

	assertAllZero(t, store)
	assert.Equal(t, 1, tr.Last().Releases())
	assert.Equal(t, session.StateReleased, sv.State())
	assert.False(t, sv.Wanted())

	reasons := spy.releasedReasons()
	require.Len(t, reasons, 1)
	assert.NoError(t, reasons[0])
}

func TestNoRetryAfterCancel(t *testing.T) {
	sv, tr, _, _ := newSupervisor(t)

	require.NoError(t, sv.Start(12, channel.DefaultCalibration()))
	req := tr.Last()

	sv.Cancel()
	req.Timeout()

	assert.Equal(t, 1, tr.Count())
	assert.Equal(t, 1, req.Releases())
}

func TestCancelRacingTimeoutsStopsRetries(t *testing.T) {
	for i := 0; i < 50; i++ {
		sv, tr, _, _ := newSupervisor(t)
		require.NoError(t, sv.Start(12, channel.DefaultCalibration()))

		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-stop:
					return
				default:
					tr.Last().Timeout()
				}
			}
		}()

		sv.Cancel()
		after := tr.Count()

		for _, req := range tr.Requests() {
			req.Timeout()
		}
		close(stop)
		<-done

		assert.Equal(t, after, tr.Count(), "no request issued after Cancel returned")
		assert.Equal(t, session.StateReleased, sv.State())
	}
}

func TestLinkLossReconnects(t *testing.T) {
	sv, tr, store, spy := newSupervisor(t)

	require.NoError(t, sv.Start(12, channel.DefaultCalibration()))
	req := tr.Last()
	dev := transporttest.NewDevice(12)
	req.Grant(dev)
	dev.Emit(transport.CalculatedPower, 150)

	req.SetState(transport.StateDead)

	assertAllZero(t, store)
	assert.Equal(t, 1, req.Releases())
	require.Equal(t, 2, tr.Count())
	assert.Equal(t, 12, tr.Last().DeviceNumber)
	assert.Equal(t, session.StateRequesting, sv.State())

	reasons := spy.releasedReasons()
	require.Len(t, reasons, 1)
	assert.True(t, errors.HasCode(reasons[0], session.ErrLinkLost))

	next := transporttest.NewDevice(12)
	tr.Last().Grant(next)
	next.Emit(transport.CalculatedPower, 180)
	assert.Equal(t, 180.0, store.Get(metric.Watts))
}

func TestAccessDeniedIsTerminal(t *testing.T) {
	sv, tr, _, spy := newSupervisor(t)

	require.NoError(t, sv.Start(12, channel.DefaultCalibration()))
	tr.Last().Fail(transport.DeviceAlreadyInUse)

	assert.Equal(t, 1, tr.Count())
	assert.False(t, sv.Wanted())
	assert.Equal(t, session.StateReleased, sv.State())

	reasons := spy.releasedReasons()
	require.Len(t, reasons, 1)
	assert.True(t, errors.HasCode(reasons[0], session.ErrAccessDenied))

	assert.True(t, errors.HasCode(sv.Search(), supervisor.ErrNotWanted))

	// The owner may try again.
	require.NoError(t, sv.Start(12, channel.DefaultCalibration()))
	assert.Equal(t, 2, tr.Count())
}

func TestStaleSessionCallbacksAreIgnored(t *testing.T) {
	sv, tr, store, _ := newSupervisor(t)

	require.NoError(t, sv.Start(12, channel.DefaultCalibration()))
	old := tr.Last()
	sv.Cancel()

	require.NoError(t, sv.Start(12, channel.DefaultCalibration()))
	current := tr.Last()
	dev := transporttest.NewDevice(12)
	current.Grant(dev)
	dev.Emit(transport.CalculatedPower, 150)

	old.SetState(transport.StateDead)
	old.Timeout()

	assert.Equal(t, 2, tr.Count())
	assert.Equal(t, 150.0, store.Get(metric.Watts))
	assert.Equal(t, session.StateBound, sv.State())
}

func TestStartValidation(t *testing.T) {
	sv, tr, _, _ := newSupervisor(t)

	assert.True(t, errors.HasCode(sv.Start(-1, channel.DefaultCalibration()), supervisor.ErrInvalidDevice))
	assert.True(t, errors.HasCode(sv.Start(supervisor.MaxDeviceNumber+1, channel.DefaultCalibration()), supervisor.ErrInvalidDevice))
	assert.Zero(t, tr.Count())

	require.NoError(t, sv.Start(12, channel.DefaultCalibration()))
	assert.True(t, errors.HasCode(sv.Start(12, channel.DefaultCalibration()), supervisor.ErrAlreadyStarted))
	assert.Equal(t, 1, tr.Count())
}

func TestStartRequestFailure(t *testing.T) {
	sv, tr, _, _ := newSupervisor(t)
	tr.FailRequests(errors.New().New(errors.ErrUnavailable))

	err := sv.Start(12, channel.DefaultCalibration())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrStartSession))
	assert.False(t, sv.Wanted())

	tr.FailRequests(nil)
	require.NoError(t, sv.Start(12, channel.DefaultCalibration()))
}

func TestRetryFailureZeroesAndReports(t *testing.T) {
	sv, tr, store, spy := newSupervisor(t)

	require.NoError(t, sv.Start(12, channel.DefaultCalibration()))
	require.NoError(t, store.Set(metric.Watts, 10))

	tr.FailRequests(errors.New().New(errors.ErrUnavailable))
	tr.Last().Timeout()

	assert.Equal(t, session.StateReleased, sv.State())
	assertAllZero(t, store)

	reasons := spy.releasedReasons()
	require.Len(t, reasons, 1)
	assert.True(t, errors.HasCode(reasons[0], transport.ErrRequestFailed))
}

func TestIdleSupervisor(t *testing.T) {
	sv, _, _, _ := newSupervisor(t)

	assert.Equal(t, session.StateIdle, sv.State())
	assert.True(t, errors.HasCode(sv.Search(), supervisor.ErrNotWanted))
	assert.NotPanics(t, sv.Cancel)
}
