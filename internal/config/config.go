package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/ridelogger/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel           = LogLevelWarning
	DefaultInterval           = 2
	DefaultWheelCircumference = 2.096
	DefaultPairingDB          = "/var/lib/ridelogger/pairing.db"
	DefaultSimDeviceNumber    = 12
	DefaultEnvPrefix          = "RIDELOGGER"

	configName      = "ridelogger"
	configType      = "toml"
	maxDeviceNumber = 0xFFFF
)

type Config struct {
	Interval           int      `mapstructure:"interval"`
	DeviceNumber       int      `mapstructure:"device_number"`
	WheelCircumference float64  `mapstructure:"wheel_circumference"`
	LogLevel           LogLevel `mapstructure:"log_level"`
	Debug              bool     `mapstructure:"debug"`
	Verbose            bool     `mapstructure:"verbose"`
	Pairing            bool     `mapstructure:"pairing"`
	PairingDB          string   `mapstructure:"pairing_db"`
	ForgetPairing      bool     `mapstructure:"forget_pairing"`
	TraceFile          string   `mapstructure:"trace_file"`
	MetricsAddr        string   `mapstructure:"metrics_addr"`
	Simulate           bool     `mapstructure:"simulate"`
	SimDeviceNumber    int      `mapstructure:"sim_device_number"`
	SimDropout         int      `mapstructure:"sim_dropout"`
}

// Load reads defaults, the config file, the environment and command line
// flags, in increasing order of precedence.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{
		envPrefix: DefaultEnvPrefix,
		args:      os.Args[1:],
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	flags := newFlagSet()
	if err := flags.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	if err := bindFlags(v, flags); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, o); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("device_number", 0)
	v.SetDefault("wheel_circumference", DefaultWheelCircumference)
	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
	v.SetDefault("pairing", true)
	v.SetDefault("pairing_db", DefaultPairingDB)
	v.SetDefault("forget_pairing", false)
	v.SetDefault("trace_file", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("simulate", false)
	v.SetDefault("sim_device_number", DefaultSimDeviceNumber)
	v.SetDefault("sim_dropout", 0)
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet(configName, pflag.ContinueOnError)

	flags.Int("interval", DefaultInterval, "Seconds between reading snapshots")
	flags.Int("device-number", 0, "Device number to pair with (0 searches for any)")
	flags.Float64("wheel-circumference", DefaultWheelCircumference, "Wheel circumference in meters")
	flags.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	flags.Bool("debug", false, "Enable debugging mode")
	flags.Bool("verbose", false, "Enable verbose logging")
	flags.Bool("pairing", true, "Remember the paired device across restarts")
	flags.String("pairing-db", DefaultPairingDB, "Path to the pairing database")
	flags.Bool("forget-pairing", false, "Forget the remembered device and search for any")
	flags.String("trace-file", "", "Write a session lifecycle trace to this file")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.Bool("simulate", false, "Use a simulated power meter")
	flags.Int("sim-device-number", DefaultSimDeviceNumber, "Device number of the simulated power meter")
	flags.Int("sim-dropout", 0, "Seconds between simulated link losses (0 never)")

	return flags
}

// bindFlags binds each flag to its snake_case key. Unset flags fall back
// to the file and environment.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		err = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	return err
}

func readConfigFile(v *viper.Viper, o *options) error {
	errFactory := errors.New()

	path := o.configPath
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath("/etc")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", configName))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if !c.LogLevel.IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel.String())
	}
	if c.WheelCircumference <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "wheel_circumference must be positive")
	}
	if c.DeviceNumber < 0 || c.DeviceNumber > maxDeviceNumber {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "device_number out of range")
	}
	if c.Simulate && (c.SimDeviceNumber <= 0 || c.SimDeviceNumber > maxDeviceNumber) {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "sim_device_number out of range")
	}
	if c.SimDropout < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "sim_dropout must not be negative")
	}

	return nil
}

// IntervalDuration returns the snapshot interval.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// SimDropoutDuration returns the simulated link loss interval, 0 for none.
func (c *Config) SimDropoutDuration() time.Duration {
	return time.Duration(c.SimDropout) * time.Second
}
