package qsensor

import (
	"fmt"
	"strconv"
	"strings"
)

// Sample holds the numeric fields parsed from one data line.
type Sample struct {
	Value   float64
	TempC   float64
	HasTemp bool
	Vin     float64
	HasVin  bool
}

// ConfigDump is the full result of parsing a "^" configuration CSV line:
// the validated SensorConfig plus fields not carried in the config itself.
type ConfigDump struct {
	Config        SensorConfig
	Baudrate      int
	Description   string
	Immersion     float64
	DarkValue     float64
	SupplyVoltage float64
}

// ParseFreerunLine parses a freerun-mode data line.
//
// Expected shape: <preamble><value>[, <temp>][, <vin>]
// Example: "$LITE123.456789, 21.34, 12.345"
func ParseFreerunLine(line string) (Sample, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Sample{}, fmt.Errorf("%w: empty data line", ErrInvalidResponse)
	}

	m := reFreerunLine.FindStringSubmatch(line)
	if m == nil {
		return Sample{}, fmt.Errorf("%w: freerun line does not match expected pattern: %q",
			ErrInvalidResponse, line)
	}
	// m[1] is the preamble (ignored), m[2] value, m[3] temp, m[4] vin.
	return buildSample(m[2], m[3], m[4], line)
}

// ParsePolledLine parses a polled-mode data line and enforces that the
// embedded TAG equals expectedTag. A mismatch is always an error so a
// misconfigured device cannot silently attribute data to the wrong tag.
//
// Expected shape: <TAG>,<preamble><value>[, <temp>][, <vin>]
// Example: "A,123.456789, 21.34"
func ParsePolledLine(line, expectedTag string) (Sample, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Sample{}, fmt.Errorf("%w: empty polled data line", ErrInvalidResponse)
	}

	m := rePolledLine.FindStringSubmatch(line)
	if m == nil {
		return Sample{}, fmt.Errorf("%w: polled line does not match expected pattern: %q",
			ErrInvalidResponse, line)
	}
	if m[1] != expectedTag {
		return Sample{}, fmt.Errorf("%w: TAG mismatch: expected %q, got %q in line %q",
			ErrInvalidResponse, expectedTag, m[1], line)
	}
	// m[2] is the preamble (ignored), m[3] value, m[4] temp, m[5] vin.
	return buildSample(m[3], m[4], m[5], line)
}

func buildSample(value, temp, vin, line string) (Sample, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: bad value in line %q: %v", ErrInvalidResponse, line, err)
	}
	s := Sample{Value: v}

	if temp != "" {
		t, err := strconv.ParseFloat(temp, 64)
		if err != nil {
			return Sample{}, fmt.Errorf("%w: bad temperature in line %q: %v", ErrInvalidResponse, line, err)
		}
		s.TempC = t
		s.HasTemp = true
	}
	if vin != "" {
		w, err := strconv.ParseFloat(vin, 64)
		if err != nil {
			return Sample{}, fmt.Errorf("%w: bad Vin in line %q: %v", ErrInvalidResponse, line, err)
		}
		s.Vin = w
		s.HasVin = true
	}
	return s, nil
}

// ParseConfigCSV parses the one-line configuration dump returned by the "^"
// menu command. The ADC rate is not part of the dump, so the returned config
// carries the firmware default of 125 Hz until refreshed from the device.
func ParseConfigCSV(line string) (ConfigDump, error) {
	line = strings.TrimSpace(line)
	m := reConfigCSV.FindStringSubmatch(line)
	if m == nil {
		return ConfigDump{}, fmt.Errorf("%w: config CSV does not match expected pattern: %q",
			ErrInvalidResponse, line)
	}

	averaging, err := strconv.Atoi(m[1])
	if err != nil {
		return ConfigDump{}, fmt.Errorf("%w: bad averaging in config CSV %q", ErrInvalidResponse, line)
	}
	baud, err := strconv.Atoi(m[2])
	if err != nil {
		return ConfigDump{}, fmt.Errorf("%w: bad baudrate in config CSV %q", ErrInvalidResponse, line)
	}
	calFactor, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return ConfigDump{}, fmt.Errorf("%w: bad calfactor in config CSV %q", ErrInvalidResponse, line)
	}
	immersion, err := strconv.ParseFloat(m[7], 64)
	if err != nil {
		return ConfigDump{}, fmt.Errorf("%w: bad immersion in config CSV %q", ErrInvalidResponse, line)
	}
	dark, err := strconv.ParseFloat(m[8], 64)
	if err != nil {
		return ConfigDump{}, fmt.Errorf("%w: bad dark value in config CSV %q", ErrInvalidResponse, line)
	}
	supply, err := strconv.ParseFloat(m[9], 64)
	if err != nil {
		return ConfigDump{}, fmt.Errorf("%w: bad supply voltage in config CSV %q", ErrInvalidResponse, line)
	}

	var mode Mode
	var tag string
	switch m[10] {
	case "0":
		mode = ModeFreerun
	case "1":
		mode = ModePolled
		tag = m[11]
	default:
		return ConfigDump{}, fmt.Errorf("%w: unknown operating mode %q in config CSV",
			ErrInvalidResponse, m[10])
	}

	cfg, err := NewSensorConfig(averaging, 125, mode, tag)
	if err != nil {
		return ConfigDump{}, fmt.Errorf("%w: config CSV carries invalid values: %v",
			ErrInvalidResponse, err)
	}
	cfg.CalFactor = calFactor
	cfg.SerialNumber = m[6]
	cfg.FirmwareVersion = m[5]

	return ConfigDump{
		Config:        cfg,
		Baudrate:      baud,
		Description:   m[4],
		Immersion:     immersion,
		DarkValue:     dark,
		SupplyVoltage: supply,
	}, nil
}

// BannerInfo carries the identity fields a power-on banner exposes.
type BannerInfo struct {
	FirmwareVersion string
	SerialNumber    string
	Mode            Mode
	Tag             string
}

// ExtractBannerInfo scans banner lines for firmware version, unit ID and the
// operating-mode announcement. Fields missing from the banner stay zero.
func ExtractBannerInfo(lines []string) BannerInfo {
	var info BannerInfo
	for _, line := range lines {
		if m := reSignonBanner.FindStringSubmatch(line); m != nil {
			info.FirmwareVersion = m[1]
		}
		if m := reUnitID.FindStringSubmatch(line); m != nil {
			info.SerialNumber = strings.TrimSpace(m[1])
		}
		if reModeFreerun.MatchString(line) {
			info.Mode = ModeFreerun
		}
		if m := reModePolled.FindStringSubmatch(line); m != nil {
			info.Mode = ModePolled
			info.Tag = strings.ToUpper(m[1])
		}
	}
	return info
}

// isNoiseLine reports whether a line is recognizable banner, menu, or
// diagnostic output rather than data.
func isNoiseLine(line string) bool {
	for _, phrase := range noisePhrases {
		if strings.Contains(line, phrase) {
			return true
		}
	}
	return false
}
