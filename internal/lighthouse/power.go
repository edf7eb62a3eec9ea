package lighthouse

import (
	"bytes"
	"fmt"
	"strings"
)

// Version identifies the lighthouse hardware generation.
type Version int

const (
	V1 Version = 1
	V2 Version = 2
)

// Advertised name prefixes per hardware generation.
const (
	V1NamePrefix = "HTC BS "
	V2NamePrefix = "LHB-"
)

// VersionFromName detects the hardware generation from the advertised device
// name. The second return value is false for devices that are not lighthouses.
func VersionFromName(name string) (Version, bool) {
	switch {
	case strings.HasPrefix(name, V1NamePrefix):
		return V1, true
	case strings.HasPrefix(name, V2NamePrefix):
		return V2, true
	}
	return 0, false
}

// PowerState is a value readable from (or writable to) the power
// characteristic of a lighthouse.
type PowerState int

const (
	PowerUnknown PowerState = iota
	V1On
	V1Off
	V2On
	V2Off
	// Startup is returned by a read of the v2 power characteristic when the
	// device has recently been powered on and before its power state has been
	// written. Unclear whether v1 lighthouses ever report it.
	Startup
)

var powerPayloads = map[PowerState][]byte{
	V1On: {
		0x12, 0x00, 0x00, 0x28, 0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	},
	V1Off: {
		0x12, 0x01, 0x00, 0x28, 0xFF, 0xFF, 0xFF, 0xFF, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	},
	V2On:    {0x01},
	V2Off:   {0x00},
	Startup: {0x20},
}

// Payload returns the characteristic value for this state. The returned slice
// is a copy and safe to hand to the BLE stack.
func (s PowerState) Payload() []byte {
	p, ok := powerPayloads[s]
	if !ok {
		return nil
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out
}

// IsOn reports whether this state corresponds to a powered-on device.
// Startup counts as on: the device is awake and has not been commanded yet.
func (s PowerState) IsOn() bool {
	return s == V1On || s == V2On || s == Startup
}

// ShortName returns the user-facing "on"/"off" name of the state.
func (s PowerState) ShortName() string {
	switch s {
	case V1On, V2On:
		return "on"
	case V1Off, V2Off:
		return "off"
	case Startup:
		return "startup"
	}
	return "unknown"
}

// StateFor returns the writable power state for the given hardware generation
// and desired power.
func StateFor(v Version, on bool) (PowerState, error) {
	switch v {
	case V1:
		if on {
			return V1On, nil
		}
		return V1Off, nil
	case V2:
		if on {
			return V2On, nil
		}
		return V2Off, nil
	}
	return PowerUnknown, fmt.Errorf("invalid lighthouse version %d", int(v))
}

// StateFromPayload maps a characteristic value read from a device back to a
// power state.
func StateFromPayload(b []byte) (PowerState, error) {
	for state, payload := range powerPayloads {
		if bytes.Equal(b, payload) {
			return state, nil
		}
	}
	return PowerUnknown, fmt.Errorf("%w: %x", ErrUnknownPowerValue, b)
}
