package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/ridelogger/internal/config"
	"codeberg.org/mutker/ridelogger/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ridelogger.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
interval = 5
device_number = 4711
wheel_circumference = 2.105
log_level = "debug"
pairing = false
pairing_db = "/path/to/pairing.db"
trace_file = "/tmp/ridelogger.trace"
metrics_addr = ":9464"
simulate = true
sim_device_number = 33
sim_dropout = 30
`)
	t.Setenv("RIDELOGGER_CONFIG", path)

	cfg, err := config.Load(config.WithArgs(nil))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Interval)
	assert.Equal(t, 4711, cfg.DeviceNumber)
	assert.InDelta(t, 2.105, cfg.WheelCircumference, 1e-9)
	assert.Equal(t, config.LogLevelDebug, cfg.LogLevel)
	assert.False(t, cfg.Pairing)
	assert.Equal(t, "/path/to/pairing.db", cfg.PairingDB)
	assert.Equal(t, "/tmp/ridelogger.trace", cfg.TraceFile)
	assert.Equal(t, ":9464", cfg.MetricsAddr)
	assert.True(t, cfg.Simulate)
	assert.Equal(t, 33, cfg.SimDeviceNumber)
	assert.Equal(t, 30, cfg.SimDropout)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RIDELOGGER_CONFIG", "")
	t.Setenv("HOME", t.TempDir())

	cfg, err := config.Load(config.WithArgs(nil))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultInterval, cfg.Interval)
	assert.Zero(t, cfg.DeviceNumber)
	assert.InDelta(t, config.DefaultWheelCircumference, cfg.WheelCircumference, 1e-9)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.True(t, cfg.Pairing)
	assert.Equal(t, config.DefaultPairingDB, cfg.PairingDB)
	assert.False(t, cfg.ForgetPairing)
	assert.Empty(t, cfg.TraceFile)
	assert.Empty(t, cfg.MetricsAddr)
	assert.False(t, cfg.Simulate)
	assert.Equal(t, config.DefaultSimDeviceNumber, cfg.SimDeviceNumber)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
interval = 5
device_number = 4711
`)

	cfg, err := config.Load(
		config.WithConfigFile(path),
		config.WithArgs([]string{"--device-number", "12", "--log-level", "info", "--simulate", "--forget-pairing"}),
	)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Interval, "unset flag keeps the file value")
	assert.Equal(t, 12, cfg.DeviceNumber)
	assert.Equal(t, config.LogLevelInfo, cfg.LogLevel)
	assert.True(t, cfg.Simulate)
	assert.True(t, cfg.ForgetPairing)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `wheel_circumference = 2.0`)
	t.Setenv("RIDELOGGER_WHEEL_CIRCUMFERENCE", "2.2")

	cfg, err := config.Load(config.WithConfigFile(path), config.WithArgs(nil))
	require.NoError(t, err)
	assert.InDelta(t, 2.2, cfg.WheelCircumference, 1e-9)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	path := writeConfig(t, `
This is not a valid TOML file
`)

	_, err := config.Load(config.WithConfigFile(path), config.WithArgs(nil))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
	assert.Contains(t, err.Error(), "Failed to read configuration")
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    errors.ErrorCode
	}{
		{"invalid log level", `log_level = "invalid"`, errors.ErrInvalidLogLevel},
		{"zero interval", `interval = 0`, errors.ErrInvalidInterval},
		{"negative circumference", `wheel_circumference = -1.0`, errors.ErrInvalidConfig},
		{"device number too large", `device_number = 70000`, errors.ErrInvalidConfig},
		{"negative dropout", `sim_dropout = -5`, errors.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)

			_, err := config.Load(config.WithConfigFile(path), config.WithArgs(nil))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), err.Error())
		})
	}
}

func TestUnknownFlag(t *testing.T) {
	_, err := config.Load(config.WithArgs([]string{"--temperature", "80"}))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrBindFlags))
}

func TestLogLevel(t *testing.T) {
	assert.True(t, config.LogLevelWarning.IsValid())
	assert.False(t, config.LogLevel("verbose").IsValid())
	assert.Equal(t, "error", config.LogLevelError.String())
}
