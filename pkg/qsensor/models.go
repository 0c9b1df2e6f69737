package qsensor

import (
	"fmt"
	"time"
)

// ConnectionState is the controller's current lifecycle state.
type ConnectionState int

const (
	// Disconnected means no transport is open.
	Disconnected ConnectionState = iota
	// ConfigMenu means the device is sitting at its configuration menu.
	ConfigMenu
	// AcqFreerun means the device is streaming and the reader goroutine is running.
	AcqFreerun
	// AcqPolled means the poller goroutine is querying samples on demand.
	AcqPolled
	// Paused means acquisition was interrupted and the device is back in the menu.
	Paused
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ConfigMenu:
		return "config_menu"
	case AcqFreerun:
		return "acq_freerun"
	case AcqPolled:
		return "acq_polled"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Mode is the device operating mode.
type Mode string

const (
	// ModeFreerun streams one data line per sample period, unprompted.
	ModeFreerun Mode = "freerun"
	// ModePolled emits a sample only in response to a tag query.
	ModePolled Mode = "polled"
)

// SensorConfig is the device configuration snapshot cached by the controller.
// Build via NewSensorConfig so invalid combinations never exist.
type SensorConfig struct {
	Averaging       int    // readings averaged per update, 1-65535
	ADCRateHz       int    // one of ValidADCRates
	Mode            Mode   // freerun or polled
	Tag             string // single uppercase A-Z, required when polled
	IncludeTemp     bool
	IncludeVin      bool
	Preamble        string
	CalFactor       float64
	SerialNumber    string
	FirmwareVersion string
}

// NewSensorConfig validates and builds a SensorConfig. It rejects averaging
// outside 1-65535, rates outside the discrete set, unknown modes, a missing
// or malformed tag in polled mode.
func NewSensorConfig(averaging, rateHz int, mode Mode, tag string) (SensorConfig, error) {
	if averaging < AveragingMin || averaging > AveragingMax {
		return SensorConfig{}, fmt.Errorf("%w: averaging must be %d-%d, got %d",
			ErrInvalidConfigValue, AveragingMin, AveragingMax, averaging)
	}
	if !ValidADCRate(rateHz) {
		return SensorConfig{}, fmt.Errorf("%w: ADC rate must be one of %v, got %d",
			ErrInvalidConfigValue, ValidADCRates, rateHz)
	}
	switch mode {
	case ModeFreerun:
		// Tag is ignored in freerun mode; keep whatever was passed.
	case ModePolled:
		if !ValidTag(tag) {
			return SensorConfig{}, fmt.Errorf("%w: tag must be single uppercase A-Z for polled mode, got %q",
				ErrInvalidConfigValue, tag)
		}
	default:
		return SensorConfig{}, fmt.Errorf("%w: mode must be %q or %q, got %q",
			ErrInvalidConfigValue, ModeFreerun, ModePolled, mode)
	}
	return SensorConfig{
		Averaging: averaging,
		ADCRateHz: rateHz,
		Mode:      mode,
		Tag:       tag,
		CalFactor: 1.0,
	}, nil
}

// SamplePeriod is the effective time between reported samples:
// averaging / ADC rate.
func (c SensorConfig) SamplePeriod() time.Duration {
	return time.Duration(float64(c.Averaging) / float64(c.ADCRateHz) * float64(time.Second))
}

// Reading is a single parsed measurement. Value is always present; TempC and
// Vin appear only when the device is configured to emit them.
type Reading struct {
	Timestamp time.Time // UTC wall clock at parse time
	SensorID  string
	Mode      Mode
	Value     float64
	TempC     float64
	HasTemp   bool
	Vin       float64
	HasVin    bool
}
