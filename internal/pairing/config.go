package pairing

import "codeberg.org/mutker/ridelogger/internal/errors"

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/ridelogger/pairing.db"
)

type Config struct {
	DBPath  string
	Enabled bool
}

func DefaultConfig() Config {
	return Config{
		DBPath:  defaultDBPath,
		Enabled: true,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if pairing is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	return nil
}
