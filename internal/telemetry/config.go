package telemetry

import "codeberg.org/mutker/ridelogger/internal/errors"

const (
	namespace   = "ridelogger"
	metricsPath = "/metrics"
)

type Config struct {
	// Addr is the listen address for the metrics endpoint. Empty disables
	// the endpoint; collectors are still registered.
	Addr    string
	Enabled bool
}

func (c Config) Validate() error {
	if c.Enabled && c.Addr == "" {
		return errors.New().New(ErrInvalidAddr)
	}
	return nil
}
