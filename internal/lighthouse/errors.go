package lighthouse

import "errors"

// Failure classes surfaced to the shells. Wrapped errors carry the
// underlying BLE stack detail.
var (
	// ErrAdapterUnavailable means the local Bluetooth stack could not be
	// enabled (no adapter, or permission denied).
	ErrAdapterUnavailable = errors.New("bluetooth adapter unavailable")

	// ErrBadAddress means the MAC address failed validation before any BLE
	// operation was attempted.
	ErrBadAddress = errors.New("malformed MAC address")

	// ErrUnreachable means the device did not accept a connection within the
	// connect timeout.
	ErrUnreachable = errors.New("device unreachable")

	// ErrWriteRejected means the device did not accept the power write.
	ErrWriteRejected = errors.New("write rejected")

	// ErrUnknownPowerValue means the power characteristic held a value that
	// maps to no known power state.
	ErrUnknownPowerValue = errors.New("unknown power state value")
)
