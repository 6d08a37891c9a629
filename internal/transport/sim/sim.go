// Package sim is a simulated bicycle power meter. It stands in for a
// driver binding when no radio is attached.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/ridelogger/internal/errors"
	"codeberg.org/mutker/ridelogger/internal/logger"
	"codeberg.org/mutker/ridelogger/internal/transport"
)

const (
	DefaultDeviceNumber = 12
	DefaultSearchDelay  = 500 * time.Millisecond
	DefaultRate         = 250 * time.Millisecond
)

type Config struct {
	// DeviceNumber is the number of the simulated device. Requests for 0
	// resolve to it; requests for any other number time out.
	DeviceNumber int
	SearchDelay  time.Duration
	Rate         time.Duration
	// Dropout reports the device dead after this long bound; 0 never does.
	Dropout time.Duration
}

func DefaultConfig() Config {
	return Config{
		DeviceNumber: DefaultDeviceNumber,
		SearchDelay:  DefaultSearchDelay,
		Rate:         DefaultRate,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.DeviceNumber <= 0 || c.DeviceNumber > 0xFFFF {
		return errFactory.WithData(errors.ErrInvalidConfig, "sim device number out of range")
	}
	if c.SearchDelay < 0 || c.Rate <= 0 || c.Dropout < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "sim durations must be positive")
	}
	return nil
}

type Transport struct {
	cfg Config
	log logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, log logger.Logger) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Transport{
		cfg:    cfg,
		log:    log.With("transport", "sim"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (t *Transport) RequestAccess(
	deviceNumber int,
	onResult transport.AccessResultFunc,
	onState transport.StateChangeFunc,
) (transport.ReleaseHandle, error) {
	if t.ctx.Err() != nil {
		return nil, errors.New().WithMessage(errors.ErrUnavailable, "simulated transport closed")
	}

	ctx, cancel := context.WithCancel(t.ctx)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		t.run(ctx, deviceNumber, onResult, onState)
	}()

	t.log.Debug().Int("device_number", deviceNumber).Msg("Simulated access requested")

	return transport.NewReleaseHandle(cancel), nil
}

// Close ends every simulated device and waits for their goroutines.
func (t *Transport) Close() {
	t.cancel()
	t.wg.Wait()
}

func (t *Transport) run(
	ctx context.Context,
	deviceNumber int,
	onResult transport.AccessResultFunc,
	onState transport.StateChangeFunc,
) {
	if !sleep(ctx, t.cfg.SearchDelay) {
		return
	}

	if deviceNumber != 0 && deviceNumber != t.cfg.DeviceNumber {
		onResult(nil, transport.SearchTimeout, transport.StateSearching)
		return
	}

	dev := newDevice(t.cfg.DeviceNumber)
	onResult(dev, transport.Success, transport.StateTracking)

	ticker := time.NewTicker(t.cfg.Rate)
	defer ticker.Stop()

	var dropout <-chan time.Time
	if t.cfg.Dropout > 0 {
		timer := time.NewTimer(t.cfg.Dropout)
		defer timer.Stop()
		dropout = timer.C
	}

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-dropout:
			t.log.Debug().Int("device_number", dev.number).Msg("Simulating link loss")
			onState(transport.StateDead)
			return
		case now := <-ticker.C:
			dev.emit(now.Sub(start), t.cfg.Rate)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type device struct {
	number int

	mu        sync.Mutex
	receivers map[transport.ChannelID]transport.Receiver
	events    float64
	wheelRevs float64
}

func newDevice(number int) *device {
	return &device{
		number:    number,
		receivers: make(map[transport.ChannelID]transport.Receiver),
	}
}

func (d *device) DeviceNumber() int {
	return d.number
}

func (d *device) Subscribe(ch transport.ChannelID, rcv transport.Receiver) error {
	if ch.String() == "unknown" {
		return errors.New().WithData(transport.ErrChannelUnsupported, int(ch))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.receivers[ch] = rcv
	return nil
}

func (d *device) Unsubscribe(ch transport.ChannelID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.receivers, ch)
}

// emit sends one reading on every subscribed channel. Values follow a
// slow sine so consecutive snapshots differ.
func (d *device) emit(elapsed, rate time.Duration) {
	phase := elapsed.Seconds() / 10
	watts := 180 + 40*math.Sin(phase)
	cadence := 88 + 6*math.Sin(phase/2)
	wheelRPM := 240 + 20*math.Sin(phase/3)
	torque := watts / (cadence * 2 * math.Pi / 60)

	d.mu.Lock()
	d.events++
	d.wheelRevs += wheelRPM * rate.Minutes()
	fields := map[transport.ChannelID][]float64{
		transport.CalculatedPower:         {watts},
		transport.CalculatedTorque:        {torque},
		transport.CalculatedCrankCadence:  {cadence},
		transport.CalculatedWheelSpeed:    {wheelRPM},
		transport.CalculatedWheelDistance: {d.wheelRevs},
		transport.InstantaneousCadence:    {math.Round(cadence)},
		transport.RawPowerOnly:            {d.events, math.Round(watts), d.events * watts},
		transport.TorqueEffectiveness:     {d.events, 71 + math.Sin(phase), 69 + math.Cos(phase)},
		transport.PedalSmoothness:         {d.events, 1, 22 + math.Sin(phase), 24 + math.Cos(phase)},
		transport.PedalPowerBalance:       {1, 51 + math.Sin(phase)},
	}
	receivers := make(map[transport.ChannelID]transport.Receiver, len(d.receivers))
	for ch, rcv := range d.receivers {
		receivers[ch] = rcv
	}
	d.mu.Unlock()

	ts := elapsed.Milliseconds()
	for ch, rcv := range receivers {
		rcv(transport.Event{
			Timestamp: ts,
			Source:    transport.SourceCrankTorqueData,
			Fields:    fields[ch],
		})
	}
}
