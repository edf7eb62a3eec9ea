// Package ble wraps tinygo.org/x/bluetooth behind the narrow scanner and
// dialer surfaces the lighthouse controller needs.
package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"tinygo.org/x/bluetooth"

	"github.com/kliden/Lighthouse-Control/internal/lighthouse"
)

// GATT addressing per hardware generation. The v1 characteristic is the one
// documented for the HTC base stations; the v2 pair sits behind what other
// stacks expose as raw handle 17.
var (
	v1ServiceUUID = bluetooth.NewUUID([16]byte{
		0x00, 0x00, 0x15, 0x23, 0x12, 0x12, 0xef, 0xde,
		0x15, 0x23, 0x78, 0x5f, 0xea, 0xbc, 0xd1, 0x23,
	})
	v1PowerCharUUID = bluetooth.NewUUID([16]byte{
		0x00, 0x00, 0x15, 0x24, 0x12, 0x12, 0xef, 0xde,
		0x15, 0x23, 0x78, 0x5f, 0xea, 0xbc, 0xd1, 0x23,
	})
	v2ServiceUUID = bluetooth.NewUUID([16]byte{
		0x00, 0x00, 0x15, 0x23, 0x12, 0x12, 0xef, 0xde,
		0x15, 0x23, 0x78, 0x5f, 0xea, 0xbc, 0xd1, 0x24,
	})
	v2PowerCharUUID = bluetooth.NewUUID([16]byte{
		0x00, 0x00, 0x15, 0x25, 0x12, 0x12, 0xef, 0xde,
		0x15, 0x23, 0x78, 0x5f, 0xea, 0xbc, 0xd1, 0x24,
	})
)

func gattUUIDs(v lighthouse.Version) (service, char bluetooth.UUID, err error) {
	switch v {
	case lighthouse.V1:
		return v1ServiceUUID, v1PowerCharUUID, nil
	case lighthouse.V2:
		return v2ServiceUUID, v2PowerCharUUID, nil
	}
	return bluetooth.UUID{}, bluetooth.UUID{}, fmt.Errorf("no GATT mapping for version %d", int(v))
}

// Adapter owns the host Bluetooth adapter. It satisfies both
// lighthouse.Scanner and lighthouse.Dialer.
type Adapter struct {
	adapter        *bluetooth.Adapter
	connectTimeout time.Duration

	enableOnce sync.Once
	enableErr  error

	// The adapter supports one scan at a time.
	scanMu sync.Mutex
}

// NewAdapter wraps the default host adapter. The adapter is enabled lazily on
// first use.
func NewAdapter(connectTimeout time.Duration) *Adapter {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	return &Adapter{
		adapter:        bluetooth.DefaultAdapter,
		connectTimeout: connectTimeout,
	}
}

func (a *Adapter) enable() error {
	a.enableOnce.Do(func() {
		if err := a.adapter.Enable(); err != nil {
			a.enableErr = fmt.Errorf("%w: %v", lighthouse.ErrAdapterUnavailable, err)
			return
		}
		log.Debug().Msg("Bluetooth adapter enabled")
	})
	return a.enableErr
}

// Scan streams advertisements to the callback until ctx is done. Ending the
// session via ctx (timeout or targets satisfied) is a normal return.
func (a *Adapter) Scan(ctx context.Context, found func(lighthouse.Advertisement)) error {
	if err := a.enable(); err != nil {
		return err
	}

	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			found(lighthouse.Advertisement{
				Address: result.Address.String(),
				Name:    result.LocalName(),
				RSSI:    result.RSSI,
			})
		})
	}()

	select {
	case <-ctx.Done():
		if err := a.adapter.StopScan(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop scan")
		}
		<-done
		return nil
	case err := <-done:
		if err != nil {
			return fmt.Errorf("advertisement scan: %w", err)
		}
		return nil
	}
}

// Dial connects to the device at the given address and resolves its power
// characteristic. The returned Conn owns the connection until Close.
func (a *Adapter) Dial(ctx context.Context, address string, v lighthouse.Version) (lighthouse.Conn, error) {
	if err := a.enable(); err != nil {
		return nil, err
	}
	serviceUUID, charUUID, err := gattUUIDs(v)
	if err != nil {
		return nil, err
	}
	mac, err := bluetooth.ParseMAC(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", lighthouse.ErrBadAddress, address)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}
	device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(a.connectTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", lighthouse.ErrUnreachable, address, err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil || len(services) == 0 {
		device.Disconnect()
		return nil, fmt.Errorf("discover power service on %s: %w", address, firstErr(err, errNoService))
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil || len(chars) == 0 {
		device.Disconnect()
		return nil, fmt.Errorf("discover power characteristic on %s: %w", address, firstErr(err, errNoCharacteristic))
	}

	return &conn{device: device, char: chars[0]}, nil
}

var (
	errNoService        = errors.New("power service not found")
	errNoCharacteristic = errors.New("power characteristic not found")
)

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// conn holds one device connection and its resolved power characteristic.
type conn struct {
	device bluetooth.Device
	char   bluetooth.DeviceCharacteristic
}

func (c *conn) ReadPower() ([]byte, error) {
	buf := make([]byte, 20)
	n, err := c.char.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// WritePower writes without response, as the original protocol does; the
// controller verifies by re-reading.
func (c *conn) WritePower(payload []byte) error {
	_, err := c.char.WriteWithoutResponse(payload)
	return err
}

func (c *conn) Close() error {
	return c.device.Disconnect()
}
