package qsensor

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// simState tracks which dialogue the simulated firmware is in.
type simState int

const (
	simRunning  simState = iota // streaming (freerun) or idle awaiting queries (polled)
	simMenu                     // at the menu entry prompt
	simAwaitAvg                 // after "A", waiting for the averaging number
	simAwaitRate                // after "R", waiting for the rate number
	simAwaitMode                // after "M", waiting for the mode digit
	simAwaitTag                 // after mode digit 1, waiting for a raw tag byte
)

// SimOptions configures the simulated sensor's identity and initial state.
// Zero values get sensible defaults from NewSim.
type SimOptions struct {
	SerialNumber string
	Firmware     string
	Description  string
	Averaging    int
	ADCRateHz    int
	Mode         Mode
	Tag          string
	CalFactor    float64
	IncludeTemp  bool
	IncludeVin   bool

	// Quiet suppresses the power-on banner, like the firmware's Q setting.
	Quiet bool

	// StreamInterval overrides the freerun emission period. Zero derives it
	// from averaging/rate like the hardware does.
	StreamInterval time.Duration

	// ReplyTag, when set, is used in polled responses instead of the real
	// tag. Lets tests exercise the host's tag-mismatch handling.
	ReplyTag string

	// BaseValue is the first emitted sensor value; successive samples drift
	// upward by 1e-6 so tests can tell readings apart.
	BaseValue float64
}

// Sim emulates a Q-Series sensor running firmware 4.003 behind the Port
// interface, so the same Controller drives hardware and tests unchanged.
// It reproduces the banner, the full menu dialogue including the device's
// error texts, the configuration CSV dump, the reset on menu exit, freerun
// streaming and polled query/response.
type Sim struct {
	mu     sync.Mutex
	opts   SimOptions
	closed bool

	out         []byte        // bytes emitted to the host, not yet read
	notify      chan struct{} // pinged whenever out grows
	readTimeout time.Duration

	state  simState
	inLine []byte

	averaging int
	rateHz    int
	mode      Mode
	tag       string
	quiet     bool
	seq       int

	streamCancel context.CancelFunc
}

var _ Port = (*Sim)(nil)

// NewSim builds and boots a simulated sensor. The banner is emitted
// immediately, exactly as a freshly powered device would.
func NewSim(opts SimOptions) *Sim {
	if opts.SerialNumber == "" {
		opts.SerialNumber = "QSE0042"
	}
	if opts.Firmware == "" {
		opts.Firmware = "4.003"
	}
	if opts.Description == "" {
		opts.Description = "QSP irradiance"
	}
	if opts.Averaging == 0 {
		opts.Averaging = 125
	}
	if opts.ADCRateHz == 0 {
		opts.ADCRateHz = 125
	}
	if opts.Mode == "" {
		opts.Mode = ModeFreerun
	}
	if opts.Mode == ModePolled && opts.Tag == "" {
		opts.Tag = "A"
	}
	if opts.CalFactor == 0 {
		opts.CalFactor = 1.0
	}
	if opts.BaseValue == 0 {
		opts.BaseValue = 0.001234
	}

	s := &Sim{
		opts:      opts,
		notify:    make(chan struct{}, 1),
		averaging: opts.Averaging,
		rateHz:    opts.ADCRateHz,
		mode:      opts.Mode,
		tag:       opts.Tag,
		quiet:     opts.Quiet,
	}
	s.mu.Lock()
	s.bootLocked()
	s.mu.Unlock()
	return s
}

// Read returns whatever output is pending, waiting up to the configured
// read timeout for some to appear.
func (s *Sim) Read(p []byte) (int, error) {
	deadline := time.Now().Add(s.currentReadTimeout())
	for {
		s.mu.Lock()
		if s.closed && len(s.out) == 0 {
			s.mu.Unlock()
			return 0, io.EOF
		}
		if len(s.out) > 0 {
			n := copy(p, s.out)
			s.out = s.out[n:]
			s.mu.Unlock()
			return n, nil
		}
		s.mu.Unlock()

		rest := time.Until(deadline)
		if rest <= 0 {
			return 0, nil
		}
		select {
		case <-s.notify:
		case <-time.After(rest):
		}
	}
}

func (s *Sim) currentReadTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readTimeout
}

// Write feeds host bytes into the firmware state machine. ESC is handled
// immediately in any state; tag entry consumes a single raw byte; everything
// else accumulates until CR.
func (s *Sim) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	for _, b := range p {
		switch {
		case b == ESC:
			s.handleEscLocked()
		case s.state == simAwaitTag:
			s.handleTagByteLocked(b)
		case b == '\r':
			line := string(s.inLine)
			s.inLine = s.inLine[:0]
			s.handleLineLocked(line)
		case b == '\n':
			// LF-tolerant, like the hardware.
		default:
			s.inLine = append(s.inLine, b)
		}
	}
	return len(p), nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.stopStreamLocked()
	s.closed = true
	s.ping()
	return nil
}

func (s *Sim) SetReadTimeout(t time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readTimeout = t
	return nil
}

// ResetInputBuffer discards output the host has not read yet, mirroring a
// receive-buffer flush on a real port.
func (s *Sim) ResetInputBuffer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = nil
	return nil
}

// Config reports the simulator's live settings, for test assertions.
func (s *Sim) Config() (averaging, rateHz int, mode Mode, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.averaging, s.rateHz, s.mode, s.tag
}

// ============================================================================
// Firmware behavior
// ============================================================================

func (s *Sim) emitLineLocked(line string) {
	s.out = append(s.out, line...)
	s.out = append(s.out, '\r', '\n')
	s.ping()
}

func (s *Sim) ping() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// bootLocked replays the power-on sequence: banner (unless quiet), then
// either freerun streaming or polled idle.
func (s *Sim) bootLocked() {
	if !s.quiet {
		s.emitLineLocked(fmt.Sprintf(
			"Biospherical Instruments Inc. QSP Digital Sensor Engine Vers %s", s.opts.Firmware))
		s.emitLineLocked("Unit ID " + s.opts.SerialNumber)
		s.emitLineLocked(fmt.Sprintf("ADC sample rate = %d Hz", s.rateHz))
		s.emitLineLocked(fmt.Sprintf("Averaging %d readings", s.averaging))
		if s.mode == ModePolled {
			s.emitLineLocked("Operating in polled mode with tag of " + s.tag)
		} else {
			s.emitLineLocked("Operating in free run mode")
		}
	}
	s.state = simRunning
	if s.mode == ModeFreerun {
		s.startStreamLocked()
	}
}

func (s *Sim) startStreamLocked() {
	interval := s.opts.StreamInterval
	if interval <= 0 {
		interval = time.Duration(float64(s.averaging) / float64(s.rateHz) * float64(time.Second))
		if interval < time.Millisecond {
			interval = time.Millisecond
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.streamCancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				if ctx.Err() == nil && !s.closed {
					s.emitLineLocked(s.dataLineLocked())
				}
				s.mu.Unlock()
			}
		}
	}()
}

func (s *Sim) stopStreamLocked() {
	if s.streamCancel != nil {
		s.streamCancel()
		s.streamCancel = nil
	}
}

func (s *Sim) dataLineLocked() string {
	v := s.opts.BaseValue + float64(s.seq)*1e-6
	s.seq++
	line := strconv.FormatFloat(v, 'f', 6, 64)
	if s.opts.IncludeTemp {
		line += ",23.4"
	}
	if s.opts.IncludeVin {
		line += ",11.9"
	}
	return line
}

func (s *Sim) handleEscLocked() {
	s.stopStreamLocked()
	s.inLine = s.inLine[:0]
	s.state = simMenu
	s.emitMenuLocked()
}

func (s *Sim) emitMenuLocked() {
	s.emitLineLocked("A  Set number of readings to average")
	s.emitLineLocked("R  Set ADC sample rate")
	s.emitLineLocked("M  Set operating mode")
	s.emitLineLocked("O  Set output of temperature and voltage")
	s.emitLineLocked("Q  Set quiet mode")
	s.emitLineLocked("^  Display the system configuration")
	s.emitLineLocked("X  Exit, reboot and run")
	s.emitLineLocked("Select the letter of the menu entry:")
}

func (s *Sim) handleLineLocked(line string) {
	switch s.state {
	case simRunning:
		s.handleRunningLineLocked(line)
	case simMenu:
		s.handleMenuLineLocked(strings.ToUpper(strings.TrimSpace(line)))
	case simAwaitAvg:
		s.handleAveragingLocked(strings.TrimSpace(line))
	case simAwaitRate:
		s.handleRateLocked(strings.TrimSpace(line))
	case simAwaitMode:
		s.handleModeLocked(strings.TrimSpace(line))
	}
}

// handleRunningLineLocked answers polled-protocol commands. Anything else
// received while running is discarded, like the hardware does.
func (s *Sim) handleRunningLineLocked(line string) {
	if s.mode != ModePolled {
		return
	}
	// Averaging (re)start: *<TAG>Q<avg>! — acknowledged silently.
	if strings.HasPrefix(line, "*") && strings.HasSuffix(line, "!") {
		return
	}
	if line == ">"+s.tag {
		replyTag := s.tag
		if s.opts.ReplyTag != "" {
			replyTag = s.opts.ReplyTag
		}
		s.emitLineLocked(replyTag + "," + s.dataLineLocked())
	}
	// Queries for another tag get no response.
}

func (s *Sim) handleMenuLineLocked(cmd string) {
	switch cmd {
	case MenuCmdAveraging:
		s.emitLineLocked("Enter # readings to average before update (1 - 65535):")
		s.state = simAwaitAvg
	case MenuCmdRate:
		s.emitLineLocked("Enter ADC rate (4, 8, 16, 33, 62, 125, 250, 500):")
		s.state = simAwaitRate
	case MenuCmdMode:
		s.emitLineLocked("0 = free run")
		s.emitLineLocked("1 = polled")
		s.emitLineLocked("Enter the operating mode number:")
		s.state = simAwaitMode
	case MenuCmdConfigDump:
		s.emitLineLocked(s.configCSVLocked())
		s.emitLineLocked("Select the letter of the menu entry:")
	case MenuCmdOutputs:
		s.opts.IncludeTemp = !s.opts.IncludeTemp
		s.opts.IncludeVin = s.opts.IncludeTemp
		s.emitLineLocked("Select the letter of the menu entry:")
	case MenuCmdQuiet:
		s.quiet = !s.quiet
		s.emitLineLocked("Select the letter of the menu entry:")
	case MenuCmdRedisplay:
		s.emitMenuLocked()
	case MenuCmdExit:
		s.emitLineLocked("Rebooting program")
		s.bootLocked()
	default:
		s.emitLineLocked("Select the letter of the menu entry:")
	}
}

func (s *Sim) handleAveragingLocked(entry string) {
	n, err := strconv.Atoi(entry)
	if err != nil || n < AveragingMin || n > AveragingMax {
		// The firmware falls back to 12 rather than keeping the old value.
		s.averaging = 12
		s.emitLineLocked("Invalid number entered, averaging set to 12")
	} else {
		s.averaging = n
		s.emitLineLocked(fmt.Sprintf("ADC set to averaging %d", n))
	}
	s.state = simMenu
	s.emitLineLocked("Select the letter of the menu entry:")
}

func (s *Sim) handleRateLocked(entry string) {
	n, err := strconv.Atoi(entry)
	if err == nil && ValidADCRate(n) {
		s.rateHz = n
		s.emitLineLocked(fmt.Sprintf("ADC rate set to %d", n))
	} else {
		s.emitLineLocked(fmt.Sprintf("Invalid rate of %s entered. Command is ignored.", entry))
	}
	s.state = simMenu
	s.emitLineLocked("Select the letter of the menu entry:")
}

func (s *Sim) handleModeLocked(entry string) {
	switch entry {
	case "0":
		s.mode = ModeFreerun
		s.state = simMenu
		s.emitLineLocked("Select the letter of the menu entry:")
	case "1":
		s.emitLineLocked("Enter the single character (A - Z) tag used for polling:")
		s.state = simAwaitTag
	default:
		s.state = simMenu
		s.emitLineLocked("Select the letter of the menu entry:")
	}
}

func (s *Sim) handleTagByteLocked(b byte) {
	if b == '\r' || b == '\n' {
		return
	}
	tag := strings.ToUpper(string(b))
	if ValidTag(tag) {
		s.mode = ModePolled
		s.tag = tag
	} else {
		s.emitLineLocked("Bad TAG")
	}
	s.state = simMenu
	s.emitLineLocked("Select the letter of the menu entry:")
}

func (s *Sim) configCSVLocked() string {
	modeDigit := "0"
	tag := s.tag
	if s.mode == ModePolled {
		modeDigit = "1"
	}
	return fmt.Sprintf("%d,%d,%s,%s,E,%s,G,H,%s,%s,%s,%s,%s,%s,",
		s.averaging,
		DefaultBaudRate,
		strconv.FormatFloat(s.opts.CalFactor, 'f', 6, 64),
		s.opts.Description,
		s.opts.Firmware,
		s.opts.SerialNumber,
		"1.000",
		"0.000",
		"11.870",
		modeDigit,
		tag)
}
