package qsensor

import (
	"regexp"
	"time"
)

// Wire protocol constants and patterns for Q-Series sensor firmware 4.003.
// The device expects CR-terminated commands and emits CRLF-terminated lines.

// Line terminators.
const (
	// InputTerminator ends every CR-terminated host command.
	InputTerminator = "\r"
	// OutputTerminator ends every line the device emits.
	OutputTerminator = "\r\n"
)

// Control bytes.
const (
	// ESC enters the configuration menu from any run mode.
	ESC byte = 0x1b
)

// Menu commands (single letter, CR-terminated).
const (
	MenuCmdAveraging  = "A" // set averaging count
	MenuCmdRate       = "R" // set ADC sample rate
	MenuCmdMode       = "M" // set operating mode (freerun/polled)
	MenuCmdConfigDump = "^" // dump configuration CSV
	MenuCmdExit       = "X" // exit menu, triggers device reset
	MenuCmdOutputs    = "O" // configure temp/voltage outputs
	MenuCmdQuiet      = "Q" // set quiet mode (suppress banner)
	MenuCmdRedisplay  = "?" // redisplay menu
)

// PolledInitCmd builds the polled-mode initialization command: *<TAG>Q000!
// It must be sent once after a reset into polled mode, before any query.
func PolledInitCmd(tag string) string {
	return "*" + tag + "Q000!"
}

// PolledQueryCmd builds the per-sample query command: ><TAG>
func PolledQueryCmd(tag string) string {
	return ">" + tag
}

// Protocol timing. The device replays its power-on banner after every reset;
// the host must wait it out before flushing and resuming I/O.
const (
	// BannerSettleTime covers the full power-on banner (quiet mode off).
	BannerSettleTime = 2500 * time.Millisecond
	// BannerSettleTimeQuiet covers the minimal quiet-mode output.
	BannerSettleTimeQuiet = 500 * time.Millisecond
	// MenuDisplayDelay is the firmware's pause before the menu appears.
	MenuDisplayDelay = time.Second
	// DataLineTimeout bounds a single data-line read in acquisition mode.
	DataLineTimeout = 5 * time.Second
)

// Prompt, confirmation and error patterns, compiled once. All matching is
// case-insensitive because firmware output casing varies between versions.
var (
	reMenuPrompt      = regexp.MustCompile(`(?i)Select the letter of the menu entry:`)
	reSignonBanner    = regexp.MustCompile(`(?i)Biospherical Instruments Inc.*Digital.*Engine.*Vers\s+([\d.]+)`)
	reUnitID          = regexp.MustCompile(`(?i)Unit ID\s+(.+)`)
	reModeFreerun     = regexp.MustCompile(`(?i)Operating in free run mode`)
	reModePolled      = regexp.MustCompile(`(?i)Operating in polled mode with tag of\s+(\w)`)
	reAveragingSet    = regexp.MustCompile(`(?i)ADC set to averaging\s+(\d+)`)
	reRateSet         = regexp.MustCompile(`(?i)ADC rate set to\s+(\d+)`)
	reAveragingPrompt = regexp.MustCompile(`(?i)Enter # readings to average before update.*:`)
	reRatePrompt      = regexp.MustCompile(`(?i)Enter ADC rate.*`)
	reModePrompt      = regexp.MustCompile(`(?i)Enter the operating mode number:`)
	reTagPrompt       = regexp.MustCompile(`(?is)Enter the single character.*tag.*polling`)
	reRebooting       = regexp.MustCompile(`(?i)Rebooting program`)
	reErrBadAveraging = regexp.MustCompile(`(?i)Invalid number.*averaging set to 12`)
	reErrBadRate      = regexp.MustCompile(`(?i)Invalid rate.*Command is ignored`)
	reErrBadTag       = regexp.MustCompile(`(?i)Bad TAG`)
)

// Data-line shapes. The freerun line carries an optional non-numeric
// preamble, the calibrated value, and optional temperature and line-voltage
// fields. The polled line prefixes the same shape with "<TAG>,".
var (
	reFreerunLine = regexp.MustCompile(
		`^([^\d\-]*?)` + // optional preamble (non-numeric prefix)
			`([\-\d.]+)` + // value, may be negative
			`(?:,\s*([\-\d.]+))?` + // optional TempC
			`(?:,\s*([\-\d.]+))?` + // optional Vin
			`\s*$`)
	rePolledLine = regexp.MustCompile(
		`^([A-Z]),` + // TAG
			`([^\d\-]*?)` +
			`([\-\d.]+)` +
			`(?:,\s*([\-\d.]+))?` +
			`(?:,\s*([\-\d.]+))?` +
			`\s*$`)
	// Configuration CSV dump from the "^" command, positional with literal
	// E / G / H markers:
	// <averaging>,<baud>,<calfactor>,<description>,E,<version>,G,H,<serial>,
	// <immersion>,<dark>,<supply>,<mode digit>,<tag>,
	reConfigCSV = regexp.MustCompile(
		`^(\d+),` + // averaging
			`(\d+),` + // baudrate
			`([\d.]+),` + // calibration factor
			`([^,]*),` + // description
			`E,` +
			`([\d.]+),` + // firmware version
			`G,H,` +
			`([^,]*),` + // serial number
			`([\d.]+),` + // immersion
			`([\d.]+),` + // dark value
			`([\d.]+),` + // supply voltage
			`([^,]+),` + // operating mode digit
			`([^,]*),`) // tag
)

// noisePhrases identifies banner/menu/diagnostic lines interleaved with data
// output. Lines containing any of these are dropped before parsing.
var noisePhrases = []string{
	"Biospherical",
	"Unit ID",
	"Operating in",
	"ADC sample rate",
	"Averaging",
	"No Averaging",
	"ADC Buffer",
	"Sensor temperature",
	"Input Supply Voltage",
	"Calfactor",
	"Select the letter",
	"Rebooting",
	"Calling reset",
	"Start free run",
	"Starting Sampling",
	"Entering polled",
	"Model:",
}

// ValidADCRates is the discrete set of supported ADC sample rates in Hz.
var ValidADCRates = []int{4, 8, 16, 33, 62, 125, 250, 500}

// Averaging count bounds.
const (
	AveragingMin = 1
	AveragingMax = 65535
)

// ValidADCRate reports whether rate is in the supported discrete set.
func ValidADCRate(rate int) bool {
	for _, r := range ValidADCRates {
		if r == rate {
			return true
		}
	}
	return false
}

// ValidTag reports whether tag is a single uppercase letter A-Z.
func ValidTag(tag string) bool {
	return len(tag) == 1 && tag[0] >= 'A' && tag[0] <= 'Z'
}
