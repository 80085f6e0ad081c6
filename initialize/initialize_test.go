package initialize

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
log:
  level: debug
serial:
  driver: memory
  port: /dev/ttyS1
bus:
  baud_rates: [9600, 19200]
analyzer:
  collision_threshold: 3ms
scanner:
  last_address: 16
  sample_registers: 4
mqtt:
  format: cbor
simulator:
  devices:
    - address: 42
      baud_rate: 19200
      registers: [1, 2, 3]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestMissingConfigUsesDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	err := InitConfigByViper(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.NoError(t, err)

	a := AnalyzerConfig()
	assert.Equal(t, []int{9600, 19200, 38400, 57600, 115200}, a.BaudRates)
	assert.Equal(t, 8, a.MinFrame)
	assert.Equal(t, 5*time.Millisecond, a.CollisionThreshold)
	assert.Equal(t, time.Second, a.SilenceTimeout)

	s := ScannerConfig()
	assert.Equal(t, 1, s.FirstAddress)
	assert.Equal(t, 247, s.LastAddress)
	assert.Equal(t, uint16(10), s.SampleRegisters)

	assert.Equal(t, "goburrow", SerialConfig().Driver)
	assert.Equal(t, "modbus/diag", MQTTConfig().TopicPrefix)
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	require.NoError(t, InitConfigByViper(writeConfig(t, sampleConfig), nil))

	assert.Equal(t, []int{9600, 19200}, AnalyzerConfig().BaudRates)
	assert.Equal(t, 3*time.Millisecond, AnalyzerConfig().CollisionThreshold)
	assert.Equal(t, 16, ScannerConfig().LastAddress)
	assert.Equal(t, uint16(4), ScannerConfig().SampleRegisters)
	assert.Equal(t, "memory", SerialConfig().Driver)
	assert.Equal(t, "/dev/ttyS1", SerialConfig().Port)
	assert.Equal(t, "cbor", MQTTConfig().Format)

	devices, err := SimulatedDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, uint8(42), devices[0].Address)
	assert.Equal(t, 19200, devices[0].BaudRate)
	assert.Equal(t, []uint16{1, 2, 3}, devices[0].Registers)
}

func TestEnvAndFlagsOverrideFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	t.Setenv("MODBUS_DIAG_SERIAL_PORT", "/dev/ttyAMA0")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("mode", "", "")
	require.NoError(t, flags.Parse([]string{"--mode=scan"}))

	require.NoError(t, InitConfigByViper(writeConfig(t, sampleConfig), flags))

	assert.Equal(t, "/dev/ttyAMA0", SerialConfig().Port)
	assert.Equal(t, "scan", viper.GetString("mode"))
}

func TestInitLogger(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	defer logrus.SetLevel(logrus.InfoLevel)

	require.NoError(t, InitConfigByViper(writeConfig(t, sampleConfig), nil))
	require.NoError(t, InitLogger())
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	viper.Set("log.level", "loud")
	assert.Error(t, InitLogger())
}

func TestNoSimulatedDevices(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	require.NoError(t, InitConfigByViper(filepath.Join(t.TempDir(), "absent.yaml"), nil))
	devices, err := SimulatedDevices()
	require.NoError(t, err)
	assert.Empty(t, devices)
}
