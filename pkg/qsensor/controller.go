package qsensor

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// DefaultPollHz is the polled-mode query rate when the caller passes zero.
const DefaultPollHz = 1.0

// Timing groups every protocol wait the controller performs. The defaults
// match firmware 4.003 behavior on real hardware; tests shrink them to run
// against the compressed simulator.
type Timing struct {
	BannerSettle     time.Duration // wait after a reset before flushing the banner
	MenuPromptWait   time.Duration // wait for the menu entry prompt
	SubPromptWait    time.Duration // wait for averaging/rate/mode/tag prompts
	ConfirmWait      time.Duration // wait for the averaging confirmation
	RateConfirmWait  time.Duration // wait for the rate confirmation (ADC reconfig is slow)
	MenuReappearWait time.Duration // wait for the menu prompt after a setting change
	RebootNoticeWait time.Duration // wait for "Rebooting program" after X
	DataLineTimeout  time.Duration // bound on a single data-line read
	PolledInitExtra  time.Duration // margin added to the sample period after polled init
	JoinTimeout      time.Duration // bound on reader goroutine shutdown
	ReadBackoff      time.Duration // freerun loop pause after a transport error
}

// DefaultTiming returns the hardware-calibrated protocol waits.
func DefaultTiming() Timing {
	return Timing{
		BannerSettle:     BannerSettleTime,
		MenuPromptWait:   5 * time.Second,
		SubPromptWait:    5 * time.Second,
		ConfirmWait:      10 * time.Second,
		RateConfirmWait:  15 * time.Second,
		MenuReappearWait: 3 * time.Second,
		RebootNoticeWait: 3 * time.Second,
		DataLineTimeout:  DataLineTimeout,
		PolledInitExtra:  500 * time.Millisecond,
		JoinTimeout:      5 * time.Second,
		ReadBackoff:      100 * time.Millisecond,
	}
}

// Controller orchestrates a single Q-Series sensor: the connection state
// machine, the configuration menu dialogues, and the acquisition reader
// goroutine feeding the ring buffer.
//
// Every control-plane call runs synchronously under one state mutex; the
// reader goroutine only touches the transport (internally locked) and the
// ring buffer (own lock), plus immutable values captured at start.
type Controller struct {
	// Timing may be adjusted after NewController and before Connect.
	Timing Timing

	mu        sync.Mutex
	state     ConnectionState
	transport *Transport
	config    *SensorConfig
	sensorID  string
	buffer    *RingBuffer

	cancel context.CancelFunc
	done   chan struct{}

	// Acquisition context saved for resume.
	pausedMode   Mode
	pausedTag    string
	pausedPollHz float64
}

// NewController creates a disconnected controller with a ring buffer of the
// given capacity (DefaultBufferSize when zero or negative).
func NewController(bufferSize int) *Controller {
	return &Controller{
		Timing: DefaultTiming(),
		state:  Disconnected,
		buffer: NewRingBuffer(bufferSize),
	}
}

// Connect opens a real serial port, waits out the power-on banner, forces
// entry into the configuration menu and reads the configuration snapshot.
func (c *Controller) Connect(device string, baud int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Disconnected {
		return fmt.Errorf("%w: already connected (state %s)", ErrSerialIO, c.state)
	}
	t, err := Open(device, baud)
	if err != nil {
		return err
	}
	return c.connectLocked(t)
}

// ConnectPort is Connect with an injected backend (simulator or any other
// Port implementation).
func (c *Controller) ConnectPort(port Port) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Disconnected {
		return fmt.Errorf("%w: already connected (state %s)", ErrSerialIO, c.state)
	}
	return c.connectLocked(NewTransport(port))
}

func (c *Controller) connectLocked(t *Transport) error {
	c.transport = t

	// Let the power-on banner finish, then drop it.
	time.Sleep(c.Timing.BannerSettle)
	if err := t.FlushInput(); err != nil {
		c.abandonTransportLocked()
		return err
	}

	log.Printf("[controller] connecting, entering config menu")
	if err := c.enterMenuLocked(); err != nil {
		c.abandonTransportLocked()
		return err
	}

	cfg, err := c.readConfigLocked()
	if err != nil {
		c.abandonTransportLocked()
		return err
	}
	c.config = &cfg
	c.sensorID = cfg.SerialNumber
	c.state = ConfigMenu
	log.Printf("[controller] connected to %s (fw %s), mode=%s averaging=%d",
		c.sensorID, cfg.FirmwareVersion, cfg.Mode, cfg.Averaging)
	return nil
}

func (c *Controller) abandonTransportLocked() {
	if c.transport != nil {
		c.transport.Close()
		c.transport = nil
	}
}

// Disconnect stops any acquisition, closes the transport and resets all
// cached identity. Calling it while already disconnected is a no-op.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Disconnected {
		return nil
	}

	log.Printf("[controller] disconnecting")
	c.stopReaderLocked()
	c.abandonTransportLocked()
	c.config = nil
	c.sensorID = ""
	c.pausedMode = ""
	c.pausedTag = ""
	c.pausedPollHz = 0
	c.state = Disconnected
	return nil
}

// Config returns the cached configuration snapshot. Only legal in the
// ConfigMenu state; stop acquisition first.
func (c *Controller) Config() (SensorConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != ConfigMenu {
		return SensorConfig{}, fmt.Errorf("%w: cannot get config in state %s, must be in config menu",
			ErrSerialIO, c.state)
	}
	if c.config == nil {
		cfg, err := c.readConfigLocked()
		if err != nil {
			return SensorConfig{}, err
		}
		c.config = &cfg
	}
	return *c.config, nil
}

// SetAveraging sets the number of readings averaged per update (1-65535).
// Out-of-range values are rejected before any wire I/O.
func (c *Controller) SetAveraging(n int) (SensorConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureMenuLocked(); err != nil {
		return SensorConfig{}, err
	}
	if n < AveragingMin || n > AveragingMax {
		return SensorConfig{}, fmt.Errorf("%w: averaging must be %d-%d, got %d",
			ErrInvalidConfigValue, AveragingMin, AveragingMax, n)
	}

	log.Printf("[controller] setting averaging to %d", n)
	if err := c.transport.WriteCommand(MenuCmdAveraging); err != nil {
		return SensorConfig{}, err
	}
	if err := c.awaitPromptLocked(reAveragingPrompt, c.Timing.SubPromptWait, "averaging prompt"); err != nil {
		return SensorConfig{}, err
	}
	if err := c.transport.WriteCommand(strconv.Itoa(n)); err != nil {
		return SensorConfig{}, err
	}

	actual, err := c.awaitConfirmationLocked(reAveragingSet, reErrBadAveraging,
		c.Timing.ConfirmWait, "averaging")
	if err != nil {
		return SensorConfig{}, err
	}

	cfg := *c.config
	cfg.Averaging = actual
	c.config = &cfg

	if err := c.awaitPromptLocked(reMenuPrompt, c.Timing.MenuReappearWait, "menu prompt"); err != nil {
		return SensorConfig{}, err
	}
	log.Printf("[controller] averaging set to %d", actual)
	return cfg, nil
}

// SetADCRate sets the ADC sample rate. The rate must belong to the
// device's discrete set; anything else is rejected before any wire I/O.
func (c *Controller) SetADCRate(rateHz int) (SensorConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureMenuLocked(); err != nil {
		return SensorConfig{}, err
	}
	if !ValidADCRate(rateHz) {
		return SensorConfig{}, fmt.Errorf("%w: ADC rate must be one of %v, got %d",
			ErrInvalidConfigValue, ValidADCRates, rateHz)
	}

	log.Printf("[controller] setting ADC rate to %d Hz", rateHz)
	if err := c.transport.WriteCommand(MenuCmdRate); err != nil {
		return SensorConfig{}, err
	}
	if err := c.awaitPromptLocked(reRatePrompt, c.Timing.SubPromptWait, "rate prompt"); err != nil {
		return SensorConfig{}, err
	}
	if err := c.transport.WriteCommand(strconv.Itoa(rateHz)); err != nil {
		return SensorConfig{}, err
	}

	actual, err := c.awaitConfirmationLocked(reRateSet, reErrBadRate,
		c.Timing.RateConfirmWait, "rate")
	if err != nil {
		return SensorConfig{}, err
	}

	cfg := *c.config
	cfg.ADCRateHz = actual
	c.config = &cfg

	if err := c.awaitPromptLocked(reMenuPrompt, c.Timing.MenuReappearWait, "menu prompt"); err != nil {
		return SensorConfig{}, err
	}
	log.Printf("[controller] ADC rate set to %d Hz", actual)
	return cfg, nil
}

// SetMode sets the operating mode. Polled mode requires a single uppercase
// A-Z tag; freerun ignores the tag argument.
func (c *Controller) SetMode(mode Mode, tag string) (SensorConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureMenuLocked(); err != nil {
		return SensorConfig{}, err
	}
	switch mode {
	case ModeFreerun:
	case ModePolled:
		if !ValidTag(tag) {
			return SensorConfig{}, fmt.Errorf("%w: tag must be single uppercase A-Z for polled mode, got %q",
				ErrInvalidConfigValue, tag)
		}
	default:
		return SensorConfig{}, fmt.Errorf("%w: mode must be %q or %q, got %q",
			ErrInvalidConfigValue, ModeFreerun, ModePolled, mode)
	}

	log.Printf("[controller] setting mode to %s tag=%q", mode, tag)
	if err := c.transport.WriteCommand(MenuCmdMode); err != nil {
		return SensorConfig{}, err
	}
	if err := c.awaitPromptLocked(reModePrompt, c.Timing.SubPromptWait, "mode prompt"); err != nil {
		return SensorConfig{}, err
	}

	modeDigit := "0"
	if mode == ModePolled {
		modeDigit = "1"
	}
	if err := c.transport.WriteCommand(modeDigit); err != nil {
		return SensorConfig{}, err
	}

	if mode == ModePolled {
		if err := c.awaitPromptLocked(reTagPrompt, c.Timing.SubPromptWait, "TAG prompt"); err != nil {
			return SensorConfig{}, err
		}
		// TAG entry is a bare character, the device accepts it without CR.
		if err := c.transport.WriteRaw([]byte(tag)); err != nil {
			return SensorConfig{}, err
		}
		if err := c.awaitTagAcceptedLocked(tag); err != nil {
			return SensorConfig{}, err
		}
	} else {
		if err := c.awaitPromptLocked(reMenuPrompt, c.Timing.MenuReappearWait, "menu prompt"); err != nil {
			return SensorConfig{}, err
		}
	}

	cfg := *c.config
	cfg.Mode = mode
	if mode == ModePolled {
		cfg.Tag = tag
	}
	c.config = &cfg
	log.Printf("[controller] mode set to %s", mode)
	return cfg, nil
}

// StartAcquisition exits the menu (triggering a device reset) and starts
// acquisition in the configured mode. pollHz sets the polled-mode query
// rate and is ignored in freerun; zero means DefaultPollHz.
func (c *Controller) StartAcquisition(pollHz float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureMenuLocked(); err != nil {
		return err
	}
	cfg := *c.config
	if pollHz <= 0 {
		pollHz = DefaultPollHz
	}

	log.Printf("[controller] starting acquisition in %s mode", cfg.Mode)
	if err := c.exitMenuLocked(); err != nil {
		return err
	}

	switch cfg.Mode {
	case ModePolled:
		if err := c.startPolledLocked(cfg, pollHz); err != nil {
			return err
		}
		c.state = AcqPolled
	default:
		c.startFreerunLocked()
		c.state = AcqFreerun
	}
	log.Printf("[controller] acquisition started in %s mode", cfg.Mode)
	return nil
}

// Pause stops the reader goroutine and drops the device back into its menu,
// remembering the acquisition parameters so Resume can restore them.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != AcqFreerun && c.state != AcqPolled {
		return fmt.Errorf("%w: cannot pause from state %s, must be acquiring", ErrSerialIO, c.state)
	}

	log.Printf("[controller] pausing acquisition")
	if c.state == AcqFreerun {
		c.pausedMode = ModeFreerun
	} else {
		c.pausedMode = ModePolled
	}

	c.stopReaderLocked()
	if err := c.enterMenuLocked(); err != nil {
		return err
	}
	c.state = Paused
	log.Printf("[controller] paused, in menu")
	return nil
}

// Resume restarts acquisition after Pause, restoring the prior mode, tag
// and poll rate. The configuration is refreshed from the device first.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Paused {
		return fmt.Errorf("%w: cannot resume from state %s, must be paused", ErrSerialIO, c.state)
	}

	log.Printf("[controller] resuming acquisition")
	cfg, err := c.readConfigLocked()
	if err != nil {
		return err
	}
	// The dump does not carry the ADC rate; keep the cached one.
	if c.config != nil {
		cfg.ADCRateHz = c.config.ADCRateHz
	}
	c.config = &cfg

	if err := c.exitMenuLocked(); err != nil {
		return err
	}

	switch c.pausedMode {
	case ModePolled:
		pollCfg := cfg
		pollCfg.Mode = ModePolled
		pollCfg.Tag = c.pausedTag
		if err := c.startPolledLocked(pollCfg, c.pausedPollHz); err != nil {
			return err
		}
		c.state = AcqPolled
	default:
		c.startFreerunLocked()
		c.state = AcqFreerun
	}
	log.Printf("[controller] acquisition resumed in %s mode", c.pausedMode)
	return nil
}

// Stop ends acquisition and returns to the ConfigMenu state. It always
// forces ESC and waits for the menu prompt, even from Paused, to guarantee
// a clean resynchronized menu.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != AcqFreerun && c.state != AcqPolled && c.state != Paused {
		return fmt.Errorf("%w: cannot stop from state %s, not acquiring", ErrSerialIO, c.state)
	}

	log.Printf("[controller] stopping acquisition")
	c.stopReaderLocked()
	if err := c.enterMenuLocked(); err != nil {
		return err
	}
	c.pausedMode = ""
	c.pausedTag = ""
	c.pausedPollHz = 0
	c.state = ConfigMenu
	log.Printf("[controller] stopped, in menu")
	return nil
}

// BufferSnapshot returns a non-destructive copy of the buffered readings,
// ordered oldest to newest. Safe to call from any goroutine in any state.
func (c *Controller) BufferSnapshot() []Reading {
	return c.buffer.Snapshot()
}

// ClearBuffer discards all buffered readings.
func (c *Controller) ClearBuffer() {
	c.buffer.Clear()
}

// State returns the current connection state.
func (c *Controller) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SensorID returns the sensor serial number, or "" before connect.
func (c *Controller) SensorID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sensorID
}

// IsConnected reports whether a transport is open.
func (c *Controller) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != Disconnected
}

// ============================================================================
// Menu helpers
// ============================================================================

func (c *Controller) ensureMenuLocked() error {
	if c.state != ConfigMenu {
		return fmt.Errorf("%w: operation requires config menu state, current: %s", ErrSerialIO, c.state)
	}
	return nil
}

// enterMenuLocked sends ESC and waits for the menu entry prompt.
func (c *Controller) enterMenuLocked() error {
	if err := c.transport.WriteRaw([]byte{ESC}); err != nil {
		return err
	}
	return c.awaitPromptLocked(reMenuPrompt, c.Timing.MenuPromptWait, "menu prompt after ESC")
}

// exitMenuLocked sends X, waits for the reboot notice, then waits out the
// banner replay and flushes it.
func (c *Controller) exitMenuLocked() error {
	if err := c.transport.WriteCommand(MenuCmdExit); err != nil {
		return err
	}
	found, err := c.waitForPatternLocked(reRebooting, c.Timing.RebootNoticeWait)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no %q notice after exit command", ErrDeviceReset, "Rebooting program")
	}

	time.Sleep(c.Timing.BannerSettle)
	return c.transport.FlushInput()
}

// awaitPromptLocked waits for pattern and converts its absence into
// ErrMenuTimeout naming what was expected.
func (c *Controller) awaitPromptLocked(pattern *regexp.Regexp, timeout time.Duration, what string) error {
	found, err := c.waitForPatternLocked(pattern, timeout)
	if err != nil {
		return err
	}
	if !found {
		menuTimeouts.Inc()
		return fmt.Errorf("%w: did not receive %s within %v", ErrMenuTimeout, what, timeout)
	}
	return nil
}

// waitForPatternLocked reads lines until one matches or the timeout elapses.
func (c *Controller) waitForPatternLocked(pattern *regexp.Regexp, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		line, err := c.transport.ReadLine(200 * time.Millisecond)
		if err != nil {
			return false, err
		}
		if line == "" {
			continue
		}
		if pattern.MatchString(line) {
			return true, nil
		}
	}
	return false, nil
}

// awaitConfirmationLocked reads lines until the confirmation pattern yields
// the echoed value, the device error pattern appears, or the wait elapses.
func (c *Controller) awaitConfirmationLocked(confirm, devErr *regexp.Regexp, timeout time.Duration, what string) (int, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		line, err := c.transport.ReadLine(200 * time.Millisecond)
		if err != nil {
			return 0, err
		}
		if line == "" {
			continue
		}
		if devErr.MatchString(line) {
			return 0, fmt.Errorf("%w: device rejected %s: %s", ErrInvalidConfigValue, what, line)
		}
		if m := confirm.FindStringSubmatch(line); m != nil {
			actual, err := strconv.Atoi(m[1])
			if err != nil {
				return 0, fmt.Errorf("%w: unparseable %s confirmation: %q", ErrInvalidResponse, what, line)
			}
			return actual, nil
		}
	}
	menuTimeouts.Inc()
	return 0, fmt.Errorf("%w: timeout waiting for %s confirmation", ErrMenuTimeout, what)
}

// awaitTagAcceptedLocked waits for the menu prompt after TAG entry,
// surfacing the device's "Bad TAG" rejection if it shows up first.
func (c *Controller) awaitTagAcceptedLocked(tag string) error {
	deadline := time.Now().Add(c.Timing.MenuReappearWait)
	for time.Now().Before(deadline) {
		line, err := c.transport.ReadLine(200 * time.Millisecond)
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		if reErrBadTag.MatchString(line) {
			return fmt.Errorf("%w: device rejected TAG %q: %s", ErrInvalidConfigValue, tag, line)
		}
		if reMenuPrompt.MatchString(line) {
			return nil
		}
	}
	menuTimeouts.Inc()
	return fmt.Errorf("%w: did not receive menu prompt after TAG entry", ErrMenuTimeout)
}

// readConfigLocked sends the dump command and scans for the CSV line.
func (c *Controller) readConfigLocked() (SensorConfig, error) {
	if err := c.transport.WriteCommand(MenuCmdConfigDump); err != nil {
		return SensorConfig{}, err
	}

	deadline := time.Now().Add(c.Timing.MenuPromptWait)
	for time.Now().Before(deadline) {
		line, err := c.transport.ReadLine(200 * time.Millisecond)
		if err != nil {
			return SensorConfig{}, err
		}
		if line == "" {
			continue
		}
		dump, err := ParseConfigCSV(line)
		if err != nil {
			// Menu echo or banner noise ahead of the CSV line, keep reading.
			continue
		}
		c.sensorID = dump.Config.SerialNumber
		return dump.Config, nil
	}
	menuTimeouts.Inc()
	return SensorConfig{}, fmt.Errorf("%w: timeout waiting for config CSV response", ErrMenuTimeout)
}

// ============================================================================
// Reader goroutines
// ============================================================================

func (c *Controller) startFreerunLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	transport := c.transport
	sensorID := c.sensorID
	go func() {
		defer close(done)
		c.freerunLoop(ctx, transport, sensorID)
	}()
}

func (c *Controller) startPolledLocked(cfg SensorConfig, pollHz float64) error {
	// Initialize polled averaging, then give the device one sample period to
	// fill before the first query.
	if err := c.transport.WriteCommand(PolledInitCmd(cfg.Tag)); err != nil {
		return err
	}
	time.Sleep(cfg.SamplePeriod() + c.Timing.PolledInitExtra)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.pausedTag = cfg.Tag
	c.pausedPollHz = pollHz

	transport := c.transport
	sensorID := c.sensorID
	tag := cfg.Tag
	go func() {
		defer close(done)
		c.polledLoop(ctx, transport, sensorID, tag, pollHz)
	}()
	return nil
}

// stopReaderLocked cancels the reader goroutine and waits for it, bounded by
// JoinTimeout: a stuck reader is logged, never allowed to hang shutdown.
func (c *Controller) stopReaderLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	select {
	case <-c.done:
	case <-time.After(c.Timing.JoinTimeout):
		log.Printf("[controller] reader goroutine did not stop within %v", c.Timing.JoinTimeout)
	}
	c.cancel = nil
	c.done = nil
}

// freerunLoop continuously reads the stream, drops banner/menu noise, parses
// data lines and appends readings. Errors are isolated per iteration; only
// cancellation ends the loop.
func (c *Controller) freerunLoop(ctx context.Context, t *Transport, sensorID string) {
	log.Printf("[controller] freerun reader started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("[controller] freerun reader stopped")
			return
		default:
		}

		line, err := t.ReadLine(c.Timing.DataLineTimeout)
		if err != nil {
			log.Printf("[controller] freerun read error: %v", err)
			select {
			case <-ctx.Done():
				log.Printf("[controller] freerun reader stopped")
				return
			case <-time.After(c.Timing.ReadBackoff):
			}
			continue
		}
		if line == "" || isNoiseLine(line) {
			continue
		}

		sample, err := ParseFreerunLine(line)
		if err != nil {
			parseFailures.WithLabelValues(string(ModeFreerun)).Inc()
			log.Printf("[controller] skipping unparseable line: %v", err)
			continue
		}

		c.buffer.Append(readingFromSample(sample, sensorID, ModeFreerun))
		readingsBuffered.WithLabelValues(string(ModeFreerun)).Inc()
	}
}

// polledLoop queries one sample per cycle and sleeps out the remainder of
// the poll period with a cancellable wait.
func (c *Controller) polledLoop(ctx context.Context, t *Transport, sensorID, tag string, pollHz float64) {
	log.Printf("[controller] polled reader started at %.2f Hz", pollHz)
	period := time.Duration(float64(time.Second) / pollHz)
	query := PolledQueryCmd(tag)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[controller] polled reader stopped")
			return
		default:
		}
		cycleStart := time.Now()

		if err := t.WriteCommand(query); err != nil {
			log.Printf("[controller] polled query write error: %v", err)
		} else {
			line, err := t.ReadLine(c.Timing.DataLineTimeout)
			switch {
			case err != nil:
				log.Printf("[controller] polled read error: %v", err)
			case line == "":
				log.Printf("[controller] no response to polled query, will retry")
			case isNoiseLine(line):
				// Banner replay noise, next cycle.
			default:
				sample, err := ParsePolledLine(line, tag)
				if err != nil {
					parseFailures.WithLabelValues(string(ModePolled)).Inc()
					log.Printf("[controller] failed to parse polled response: %v", err)
				} else {
					c.buffer.Append(readingFromSample(sample, sensorID, ModePolled))
					readingsBuffered.WithLabelValues(string(ModePolled)).Inc()
				}
			}
		}

		if rest := period - time.Since(cycleStart); rest > 0 {
			select {
			case <-ctx.Done():
				log.Printf("[controller] polled reader stopped")
				return
			case <-time.After(rest):
			}
		}
	}
}

func readingFromSample(s Sample, sensorID string, mode Mode) Reading {
	return Reading{
		Timestamp: time.Now().UTC(),
		SensorID:  sensorID,
		Mode:      mode,
		Value:     s.Value,
		TempC:     s.TempC,
		HasTemp:   s.HasTemp,
		Vin:       s.Vin,
		HasVin:    s.HasVin,
	}
}
