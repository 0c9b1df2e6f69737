package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, "freerun", cfg.Sensor.Mode)
	assert.Equal(t, 1.0, cfg.Sensor.PollHz)
	assert.Equal(t, 1000, cfg.Buffer.Capacity)
	assert.Equal(t, 2*time.Second, cfg.Recorder.Interval)
	assert.Equal(t, 100000, cfg.Recorder.MaxRows)
	assert.Equal(t, 10, cfg.Logging.MaxSizeMB)
	assert.Empty(t, cfg.Metrics.Listen)
	assert.False(t, cfg.Sim.Enabled)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyS3"
  baud: 19200

sensor:
  averaging: 10
  adc_rate_hz: 500
  mode: "polled"
  tag: "B"
  poll_hz: 5

buffer:
  capacity: 250

recorder:
  interval: 500ms
  max_rows: 5000
  average_samples: 4

logging:
  file: "/var/log/qsensor.log"
  max_size_mb: 5

metrics:
  listen: ":9090"
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "/dev/ttyS3", cfg.Serial.Port)
	assert.Equal(t, 19200, cfg.Serial.Baud)
	assert.Equal(t, 10, cfg.Sensor.Averaging)
	assert.Equal(t, 500, cfg.Sensor.ADCRateHz)
	assert.Equal(t, "polled", cfg.Sensor.Mode)
	assert.Equal(t, "B", cfg.Sensor.Tag)
	assert.Equal(t, 5.0, cfg.Sensor.PollHz)
	assert.Equal(t, 250, cfg.Buffer.Capacity)
	assert.Equal(t, 500*time.Millisecond, cfg.Recorder.Interval)
	assert.Equal(t, 5000, cfg.Recorder.MaxRows)
	assert.Equal(t, 4, cfg.Recorder.AverageSamples)
	assert.Equal(t, "/var/log/qsensor.log", cfg.Logging.File)
	assert.Equal(t, 5, cfg.Logging.MaxSizeMB)
	assert.Equal(t, 3, cfg.Logging.MaxBackups, "missing fields keep defaults")
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
}

func TestLoad_PartialYAMLKeepsDefaults(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("serial:\n  port: \"/dev/ttyACM1\"\n")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM1", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, 1000, cfg.Buffer.Capacity)
	assert.Equal(t, "freerun", cfg.Sensor.Mode)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("serial: [this is not\n  a mapping")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	_, err = Load(tmpfile.Name())
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.Serial.Port = "/dev/ttyS9"
	cfg.Sensor.Averaging = 42
	cfg.Sim.Enabled = true
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS9", loaded.Serial.Port)
	assert.Equal(t, 42, loaded.Sensor.Averaging)
	assert.True(t, loaded.Sim.Enabled)
}
