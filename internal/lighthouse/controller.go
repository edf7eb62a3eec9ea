package lighthouse

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Options tunes the controller. Zero values fall back to defaults.
type Options struct {
	ScanTimeout time.Duration // default 15s
	Retries     int           // connect/read/write attempts per target, default 3
}

const (
	defaultScanTimeout = 15 * time.Second
	defaultRetries     = 3
)

// Controller translates user intent (scan, power on/off) into BLE exchanges.
// It holds no connection state: every operation acquires its own connection
// and releases it before returning.
type Controller struct {
	scanner Scanner
	dialer  Dialer
	opts    Options
}

// NewController creates a controller on top of the given BLE scanner and
// dialer.
func NewController(scanner Scanner, dialer Dialer, opts Options) *Controller {
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = defaultScanTimeout
	}
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	return &Controller{scanner: scanner, dialer: dialer, opts: opts}
}

// ScanTimeout returns the effective scan timeout.
func (c *Controller) ScanTimeout() time.Duration {
	return c.opts.ScanTimeout
}

// Scan discovers lighthouses until the scan timeout elapses or the context is
// cancelled. Each address appears at most once, in discovery order. The
// onFound callback, if non-nil, is invoked for every new lighthouse as it is
// seen.
func (c *Controller) Scan(ctx context.Context, onFound func(Lighthouse)) ([]Lighthouse, error) {
	return c.scan(ctx, nil, onFound)
}

// ScanFor discovers the lighthouses at the given addresses, stopping early
// once all of them have been seen. Addresses are validated before the scan
// starts.
func (c *Controller) ScanFor(ctx context.Context, addresses []string, onFound func(Lighthouse)) ([]Lighthouse, error) {
	targets := make(map[string]bool, len(addresses))
	for _, addr := range addresses {
		canonical, err := NormalizeAddress(addr)
		if err != nil {
			return nil, err
		}
		targets[canonical] = false
	}
	return c.scan(ctx, targets, onFound)
}

func (c *Controller) scan(ctx context.Context, targets map[string]bool, onFound func(Lighthouse)) ([]Lighthouse, error) {
	session := uuid.NewString()
	logger := log.With().Str("session", session).Logger()
	logger.Debug().Dur("timeout", c.opts.ScanTimeout).Int("targets", len(targets)).Msg("Starting scan")

	scanCtx, cancel := context.WithTimeout(ctx, c.opts.ScanTimeout)
	defer cancel()

	var found []Lighthouse
	seen := make(map[string]bool)
	remaining := len(targets)

	err := c.scanner.Scan(scanCtx, func(adv Advertisement) {
		version, ok := VersionFromName(adv.Name)
		if !ok {
			return
		}
		if seen[adv.Address] {
			return
		}
		seen[adv.Address] = true

		lh := Lighthouse{Address: adv.Address, Name: adv.Name, RSSI: adv.RSSI, Version: version}
		if targets != nil {
			hit, wanted := targets[lh.Address]
			if !wanted {
				logger.Debug().Str("address", lh.Address).Msg("Ignoring lighthouse outside target list")
				return
			}
			if !hit {
				targets[lh.Address] = true
				remaining--
			}
		}

		logger.Info().Str("address", lh.Address).Str("name", lh.Name).Int16("rssi", lh.RSSI).Msg("Found lighthouse")
		found = append(found, lh)
		if onFound != nil {
			onFound(lh)
		}
		if targets != nil && remaining == 0 {
			cancel()
		}
	})
	if err != nil {
		return found, fmt.Errorf("scan: %w", err)
	}
	// Hitting the scan timeout or finding all targets ends the session
	// normally; only cancellation of the parent context is an error.
	if ctx.Err() != nil {
		return found, ctx.Err()
	}
	logger.Debug().Int("found", len(found)).Msg("Scan finished")
	return found, nil
}

// SetPower drives the lighthouse at lh.Address to the requested power state.
// Each attempt connects, reads the current state, skips the write when it
// already matches (a startup read counts as on), writes the payload
// otherwise, verifies by re-reading, and disconnects. The whole cycle is
// retried a bounded number of times because lighthouses drop connections
// freely while booting.
func (c *Controller) SetPower(ctx context.Context, lh Lighthouse, on bool) error {
	addr, err := NormalizeAddress(lh.Address)
	if err != nil {
		return err
	}
	want, err := StateFor(lh.Version, on)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := c.setPowerOnce(ctx, addr, lh.Version, want, on)
		if err == nil && done {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("power state not %s after write", want.ShortName())
		}
		lastErr = err
		log.Warn().Err(err).Str("address", addr).
			Int("attempt", attempt).Int("retries", c.opts.Retries).
			Msg("Power write attempt failed")
	}
	return fmt.Errorf("set power %s on %s: %w", want.ShortName(), addr, lastErr)
}

// setPowerOnce runs one connect/read/write cycle. It returns true when the
// device was observed in the requested state, issuing at most one write.
func (c *Controller) setPowerOnce(ctx context.Context, addr string, v Version, want PowerState, on bool) (bool, error) {
	conn, err := c.dialer.Dial(ctx, addr, v)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	current, err := c.readState(conn)
	if err != nil {
		return false, err
	}
	if current.IsOn() == on {
		log.Debug().Str("address", addr).Str("state", current.ShortName()).Msg("Already in requested power state")
		return true, nil
	}

	if err := conn.WritePower(want.Payload()); err != nil {
		return false, fmt.Errorf("%w: %v", ErrWriteRejected, err)
	}

	current, err = c.readState(conn)
	if err != nil {
		return false, err
	}
	return current.IsOn() == on, nil
}

// ReadPower reports whether the lighthouse is currently powered on.
func (c *Controller) ReadPower(ctx context.Context, lh Lighthouse) (bool, error) {
	addr, err := NormalizeAddress(lh.Address)
	if err != nil {
		return false, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		on, err := func() (bool, error) {
			conn, err := c.dialer.Dial(ctx, addr, lh.Version)
			if err != nil {
				return false, err
			}
			defer conn.Close()
			state, err := c.readState(conn)
			if err != nil {
				return false, err
			}
			return state.IsOn(), nil
		}()
		if err == nil {
			return on, nil
		}
		lastErr = err
	}
	return false, fmt.Errorf("read power of %s: %w", addr, lastErr)
}

func (c *Controller) readState(conn Conn) (PowerState, error) {
	raw, err := conn.ReadPower()
	if err != nil {
		return PowerUnknown, fmt.Errorf("read power characteristic: %w", err)
	}
	return StateFromPayload(raw)
}

// Result is the outcome of one SetPower in a fan-out.
type Result struct {
	Lighthouse Lighthouse
	Err        error
}

// SetPowerAll drives every lighthouse to the requested state concurrently,
// one connection per target, and returns a result per input in completion
// order.
func (c *Controller) SetPowerAll(ctx context.Context, lhs []Lighthouse, on bool) []Result {
	results := make(chan Result, len(lhs))
	for _, lh := range lhs {
		go func(lh Lighthouse) {
			results <- Result{Lighthouse: lh, Err: c.SetPower(ctx, lh, on)}
		}(lh)
	}

	out := make([]Result, 0, len(lhs))
	for range lhs {
		out = append(out, <-results)
	}
	return out
}
