package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/ridelogger/internal/channel"
	"codeberg.org/mutker/ridelogger/internal/config"
	"codeberg.org/mutker/ridelogger/internal/errors"
	"codeberg.org/mutker/ridelogger/internal/logger"
	"codeberg.org/mutker/ridelogger/internal/metric"
	"codeberg.org/mutker/ridelogger/internal/pairing"
	"codeberg.org/mutker/ridelogger/internal/pid"
	"codeberg.org/mutker/ridelogger/internal/session"
	"codeberg.org/mutker/ridelogger/internal/supervisor"
	"codeberg.org/mutker/ridelogger/internal/telemetry"
	"codeberg.org/mutker/ridelogger/internal/trace"
	"codeberg.org/mutker/ridelogger/internal/transport"
	"codeberg.org/mutker/ridelogger/internal/transport/sim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const pairingTimeout = 5 * time.Second

var (
	cfg   *config.Config
	store = metric.NewStore()
	class = channel.BikePower
)

type app struct {
	transport transport.Transport
	sim       *sim.Transport
	pairings  pairing.Store
	recorder  trace.Recorder
	traceFile *trace.FileRecorder
	server    *telemetry.Server
	sv        *supervisor.Supervisor
}

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	if !cfg.Debug && !cfg.Verbose {
		if level, ok := logger.ParseLevel(cfg.LogLevel.String()); ok {
			logger.SetLogLevel(level)
		}
	}
	logger.Debug().Msg("Config loaded")
}

func main() {
	pidPath := pid.DefaultPath()
	if err := pid.Write(pidPath); err != nil {
		fatal(err, "failed to write PID file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	a, err := newApp(ctx)
	if err != nil {
		_ = pid.Remove(pidPath)
		fatal(err, "failed to initialize")
	}

	if err := a.loop(ctx); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
	a.cleanup()

	if err := pid.Remove(pidPath); err != nil {
		logger.Error().Err(err).Msg("failed to remove PID file")
	}
}

func newApp(ctx context.Context) (*app, error) {
	errFactory := errors.New()
	log := logger.Default()
	a := &app{recorder: trace.NopRecorder{}}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := telemetry.New(registry)

	if cfg.MetricsAddr != "" {
		server, err := telemetry.NewServer(telemetry.Config{Addr: cfg.MetricsAddr, Enabled: true}, registry, log)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInitApp, err)
		}
		server.Start()
		a.server = server
	}

	pairings, err := pairing.NewStore(pairing.Config{DBPath: cfg.PairingDB, Enabled: cfg.Pairing}, log)
	if err != nil {
		a.cleanup()
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}
	a.pairings = pairings

	if cfg.TraceFile != "" {
		rec, err := trace.NewFileRecorder(cfg.TraceFile, trace.DefaultBufferSize)
		if err != nil {
			a.cleanup()
			return nil, errFactory.Wrap(errors.ErrInitApp, err)
		}
		a.traceFile = rec
		a.recorder = rec
	}

	if !cfg.Simulate {
		a.cleanup()
		return nil, errFactory.WithMessage(errors.ErrUnavailable, "no device driver is linked; run with --simulate")
	}
	simCfg := sim.DefaultConfig()
	simCfg.DeviceNumber = cfg.SimDeviceNumber
	simCfg.Dropout = cfg.SimDropoutDuration()
	simTransport, err := sim.New(simCfg, log)
	if err != nil {
		a.cleanup()
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}
	a.sim = simTransport
	a.transport = simTransport

	a.sv = supervisor.New(a.transport, class, store,
		supervisor.WithLogger(log),
		supervisor.WithTelemetry(collector),
		supervisor.WithRecorder(a.recorder),
		supervisor.WithHooks(a.hooks()),
	)

	deviceNumber := a.initialDeviceNumber(ctx)
	cal := channel.Calibration{WheelCircumference: cfg.WheelCircumference}
	if err := a.sv.Start(deviceNumber, cal); err != nil {
		a.cleanup()
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	return a, nil
}

// initialDeviceNumber prefers the configured number, then a remembered
// pairing, then a wildcard search.
func (a *app) initialDeviceNumber(ctx context.Context) int {
	if cfg.DeviceNumber != 0 {
		return cfg.DeviceNumber
	}

	ctx, cancel := context.WithTimeout(ctx, pairingTimeout)
	defer cancel()

	if cfg.ForgetPairing {
		if err := a.pairings.Forget(ctx, class.Name); err != nil {
			logger.Warn().Err(err).Msg("failed to forget pairing")
		} else {
			logger.Info().Msg("Forgot remembered pairing")
		}
		return 0
	}

	n, found, err := a.pairings.Lookup(ctx, class.Name)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to look up pairing, searching instead")
		return 0
	}
	if found {
		logger.Info().Int("device_number", n).Msg("Using remembered pairing")
		return n
	}
	return 0
}

func (a *app) hooks() supervisor.Hooks {
	return supervisor.Hooks{
		OnBound: func(n int) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), pairingTimeout)
				defer cancel()
				if err := a.pairings.Remember(ctx, class.Name, n); err != nil {
					logger.Warn().Err(err).Int("device_number", n).Msg("failed to remember pairing")
				}
			}()
		},
		OnSearchTimeout: func(n int, retrying bool) {
			if retrying {
				return
			}
			// Nothing was ever bound; keep searching until cancelled.
			err := a.sv.Search()
			if err != nil && !errors.HasCode(err, supervisor.ErrNotWanted) && !errors.HasCode(err, supervisor.ErrNotSearching) {
				logger.Error().Err(err).Int("device_number", n).Msg("failed to restart search")
			}
		},
		OnReleased: func(reason error) {
			switch {
			case reason == nil:
			case errors.HasCode(reason, session.ErrLinkLost):
				logger.Warn().Err(reason).Msg("Power meter lost, reconnecting")
			default:
				logger.Error().Err(reason).Msg("Power meter released")
			}
		},
	}
}

func (a *app) loop(ctx context.Context) error {
	if cfg.Interval <= 0 {
		return errors.New().WithData(errors.ErrInvalidInterval, cfg.Interval)
	}

	ticker := time.NewTicker(cfg.IntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.logSnapshot(store.Snapshot())
		}
	}
}

func (a *app) logSnapshot(snap metric.Snapshot) {
	state := a.sv.State()
	n, resolved := a.sv.DeviceNumber()

	if cfg.Debug {
		ev := logger.Debug().
			Str("state", state.String()).
			Int("device_number", n).
			Bool("resolved", resolved)
		for name, v := range snap.Map() {
			ev = ev.Float64(name, v)
		}
		ev.Msg("")
	} else if cfg.Verbose {
		logger.Info().
			Str("state", state.String()).
			Float64("watts", snap.Get(metric.Watts)).
			Float64("cadence_rpm", snap.Get(metric.CadenceRPM)).
			Float64("speed_kph", snap.Get(metric.SpeedKPH)).
			Float64("distance_km", snap.Get(metric.DistanceKM)).
			Msg("")
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

// cleanup tolerates a partially built app.
func (a *app) cleanup() {
	if a.sv != nil {
		a.sv.Cancel()
	}
	if a.sim != nil {
		a.sim.Close()
	}
	if a.traceFile != nil {
		if err := a.traceFile.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close trace file")
		}
		if dropped := a.traceFile.Dropped(); dropped > 0 {
			logger.Warn().Uint64("dropped", dropped).Msg("Trace records dropped")
		}
		if failed := a.traceFile.Failed(); failed > 0 {
			logger.Warn().Uint64("failed", failed).Msg("Trace records could not be encoded")
		}
	}
	if a.pairings != nil {
		if err := a.pairings.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close pairing store")
		}
	}
	if a.server != nil {
		if err := a.server.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to stop metrics endpoint")
		}
	}
	logger.Info().Msg("Exiting...")
}

func fatal(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.FatalWithCode(appErr).Msg(msg)
	}
	logger.Fatal().Err(err).Msg(msg)
}
