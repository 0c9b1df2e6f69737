package qsensor

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the factory configuration of Q-Series sensors.
const DefaultBaudRate = 9600

// readPollInterval bounds each underlying port read so ReadLine deadlines
// stay responsive.
const readPollInterval = 50 * time.Millisecond

// Port is the byte-stream backend contract. A real serial port
// (go.bug.st/serial) satisfies it directly; the Sim device implements it for
// offline testing. Read must return (0, nil) on timeout, not an error.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

var _ Port = (serial.Port)(nil)

// Transport provides line-oriented I/O over a Port, hiding the protocol's
// terminator conventions: commands go out CR-terminated, device lines arrive
// CRLF-terminated.
type Transport struct {
	mu      sync.Mutex
	port    Port
	pending []byte
	closed  bool
}

// Open opens a real serial port at 8N1 and wraps it in a Transport.
func Open(device string, baud int) (*Transport, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s at %d baud: %v", ErrSerialIO, device, baud, err)
	}
	log.Printf("[transport] opened %s at %d baud", device, baud)
	return NewTransport(port), nil
}

// NewTransport wraps an already-open Port (injected backend).
func NewTransport(port Port) *Transport {
	return &Transport{port: port}
}

// WriteCommand sends text with the CR input terminator appended.
func (t *Transport) WriteCommand(text string) error {
	return t.WriteRaw([]byte(text + InputTerminator))
}

// WriteRaw sends bytes without any terminator. Single-character menu
// selections and TAG entry go out this way, the device accepts them
// without CR.
func (t *Transport) WriteRaw(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.port == nil {
		return fmt.Errorf("%w: port is not open", ErrSerialIO)
	}
	if _, err := t.port.Write(data); err != nil {
		return fmt.Errorf("%w: write failed: %v", ErrSerialIO, err)
	}
	return nil
}

// ReadLine blocks up to timeout for one CRLF-terminated line and returns it
// with the terminator stripped. A timeout returns ("", nil): absence of
// output is a normal condition the caller polls for, not an error.
// The mutex is released between read chunks so writers are never starved
// while a reader waits out its deadline.
func (t *Transport) ReadLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 256)
	for {
		t.mu.Lock()
		if t.closed || t.port == nil {
			t.mu.Unlock()
			return "", fmt.Errorf("%w: port is not open", ErrSerialIO)
		}
		if idx := bytes.IndexByte(t.pending, '\n'); idx >= 0 {
			line := string(t.pending[:idx])
			t.pending = t.pending[idx+1:]
			t.mu.Unlock()
			return strings.TrimRight(line, "\r"), nil
		}
		if !time.Now().Before(deadline) {
			t.mu.Unlock()
			return "", nil
		}

		t.port.SetReadTimeout(readPollInterval)
		n, err := t.port.Read(buf)
		if err != nil {
			t.mu.Unlock()
			if err == io.EOF {
				return "", fmt.Errorf("%w: port closed while reading", ErrSerialIO)
			}
			return "", fmt.Errorf("%w: read failed: %v", ErrSerialIO, err)
		}
		if n > 0 {
			t.pending = append(t.pending, buf[:n]...)
		}
		t.mu.Unlock()
	}
}

// FlushInput discards buffered unread bytes, both in the port driver and in
// the transport's partial-line buffer. Used after a device reset to drop the
// power-on banner.
func (t *Transport) FlushInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.port == nil {
		return fmt.Errorf("%w: port is not open", ErrSerialIO)
	}
	t.pending = nil
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("%w: failed to flush input: %v", ErrSerialIO, err)
	}
	return nil
}

// Close releases the port. Safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.port == nil {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("%w: close failed: %v", ErrSerialIO, err)
	}
	log.Printf("[transport] closed port")
	return nil
}
