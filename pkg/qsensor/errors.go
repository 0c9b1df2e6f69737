package qsensor

import "errors"

// Error kinds shared by every layer. All failures returned by this package
// wrap exactly one of these, so callers can classify with errors.Is.
var (
	// ErrMenuTimeout indicates an expected prompt or confirmation did not
	// appear within its timeout.
	ErrMenuTimeout = errors.New("menu timeout")

	// ErrInvalidResponse indicates a line could not be parsed against the
	// expected grammar, or an embedded TAG mismatched.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrInvalidConfigValue indicates a locally rejected range/shape
	// violation or a device-reported configuration rejection.
	ErrInvalidConfigValue = errors.New("invalid config value")

	// ErrDeviceReset indicates the reboot notice did not appear after the
	// exit command.
	ErrDeviceReset = errors.New("device reset failed")

	// ErrSerialIO indicates a transport open/write/read failure or an
	// illegal state-transition attempt.
	ErrSerialIO = errors.New("serial I/O error")
)
