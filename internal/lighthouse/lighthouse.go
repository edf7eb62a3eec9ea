// Package lighthouse implements the power-control protocol for VR
// base stations: discovery by advertised name and the read-verify-write
// exchange against the power characteristic.
package lighthouse

import (
	"context"
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// Lighthouse is one discovered (or user-addressed) base station.
type Lighthouse struct {
	Address string
	Name    string
	RSSI    int16
	Version Version
}

// String returns a one-line human-readable description.
func (l Lighthouse) String() string {
	return fmt.Sprintf("Name(%s) - MAC(%s) - RSSI(%d dBm)", l.Name, l.Address, l.RSSI)
}

// NormalizeAddress validates a MAC address and returns its canonical
// upper-case form. Returns ErrBadAddress before any BLE operation would see
// the value.
func NormalizeAddress(addr string) (string, error) {
	canonical := strings.ToUpper(strings.TrimSpace(addr))
	if _, err := bluetooth.ParseMAC(canonical); err != nil {
		return "", fmt.Errorf("%w: %q", ErrBadAddress, addr)
	}
	return canonical, nil
}

// Advertisement is one BLE advertisement as seen by the scanner.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int16
}

// Scanner delivers BLE advertisements to the callback until the context is
// done. A nil error on return means the scan session ended normally.
type Scanner interface {
	Scan(ctx context.Context, found func(Advertisement)) error
}

// Conn is an open connection to one lighthouse's power characteristic.
type Conn interface {
	ReadPower() ([]byte, error)
	WritePower(payload []byte) error
	Close() error
}

// Dialer opens connections to the power characteristic of the device at the
// given address.
type Dialer interface {
	Dial(ctx context.Context, address string, v Version) (Conn, error)
}
