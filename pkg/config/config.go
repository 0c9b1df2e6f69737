package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Buffer   BufferConfig   `yaml:"buffer"`
	Recorder RecorderConfig `yaml:"recorder"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Sim      SimConfig      `yaml:"sim"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// SensorConfig contains the settings pushed to the device on startup.
// Zero values mean "leave the device as configured".
type SensorConfig struct {
	Averaging int     `yaml:"averaging"`
	ADCRateHz int     `yaml:"adc_rate_hz"`
	Mode      string  `yaml:"mode"` // "freerun" or "polled"
	Tag       string  `yaml:"tag"`  // single uppercase A-Z, polled mode only
	PollHz    float64 `yaml:"poll_hz"`
}

// BufferConfig contains reading buffer parameters.
type BufferConfig struct {
	Capacity int `yaml:"capacity"`
}

// RecorderConfig contains the background recorder parameters.
type RecorderConfig struct {
	Interval       time.Duration `yaml:"interval"`        // how often the buffer is drained
	MaxRows        int           `yaml:"max_rows"`        // in-memory table cap
	AverageSamples int           `yaml:"average_samples"` // readings averaged per stored row (0 = store raw)
}

// LoggingConfig contains rotating log file parameters.
type LoggingConfig struct {
	File       string `yaml:"file"` // empty = stderr only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig contains the metrics endpoint configuration.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty = metrics endpoint disabled
}

// SimConfig contains simulated sensor configuration.
type SimConfig struct {
	Enabled        bool          `yaml:"enabled"`
	SerialNumber   string        `yaml:"serial_number"`
	Firmware       string        `yaml:"firmware"`
	StreamInterval time.Duration `yaml:"stream_interval"` // 0 = derive from averaging/rate
	IncludeTemp    bool          `yaml:"include_temp"`
	IncludeVin     bool          `yaml:"include_vin"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "/dev/ttyUSB0",
			Baud: 9600,
		},
		Sensor: SensorConfig{
			Mode:   "freerun",
			PollHz: 1.0,
		},
		Buffer: BufferConfig{
			Capacity: 1000,
		},
		Recorder: RecorderConfig{
			Interval: 2 * time.Second,
			MaxRows:  100000,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Metrics: MetricsConfig{
			Listen: "",
		},
		Sim: SimConfig{
			SerialNumber: "QSE0042",
			Firmware:     "4.003",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}

	if c.Sensor.Mode == "" {
		c.Sensor.Mode = def.Sensor.Mode
	}
	if c.Sensor.PollHz == 0 {
		c.Sensor.PollHz = def.Sensor.PollHz
	}

	if c.Buffer.Capacity == 0 {
		c.Buffer.Capacity = def.Buffer.Capacity
	}

	if c.Recorder.Interval == 0 {
		c.Recorder.Interval = def.Recorder.Interval
	}
	if c.Recorder.MaxRows == 0 {
		c.Recorder.MaxRows = def.Recorder.MaxRows
	}

	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = def.Logging.MaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = def.Logging.MaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = def.Logging.MaxAgeDays
	}

	if c.Sim.SerialNumber == "" {
		c.Sim.SerialNumber = def.Sim.SerialNumber
	}
	if c.Sim.Firmware == "" {
		c.Sim.Firmware = def.Sim.Firmware
	}
}
