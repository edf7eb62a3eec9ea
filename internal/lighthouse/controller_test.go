package lighthouse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeScanner replays a fixed advertisement stream and then ends the session,
// the way the real scanner ends on the scan timeout.
type fakeScanner struct {
	advs []Advertisement
	err  error

	delivered int
}

func (s *fakeScanner) Scan(ctx context.Context, found func(Advertisement)) error {
	for _, adv := range s.advs {
		if ctx.Err() != nil {
			return nil
		}
		s.delivered++
		found(adv)
	}
	return s.err
}

// fakeConn is a power characteristic backed by a byte slice. Writes replace
// the stored value, as the real characteristic does.
type fakeConn struct {
	mu       sync.Mutex
	state    []byte
	writes   [][]byte
	writeErr error
	readErr  error
	closed   bool
}

func (c *fakeConn) ReadPower() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	out := make([]byte, len(c.state))
	copy(out, c.state)
	return out, nil
}

func (c *fakeConn) WritePower(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, payload)
	if c.writeErr != nil {
		return c.writeErr
	}
	c.state = payload
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// fakeDialer hands out one conn per address and can fail the first dials.
type fakeDialer struct {
	mu        sync.Mutex
	conns     map[string]*fakeConn
	failDials int
	dialErr   error
	dials     []string
}

func (d *fakeDialer) Dial(ctx context.Context, address string, v Version) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, address)
	if d.failDials > 0 {
		d.failDials--
		err := d.dialErr
		if err == nil {
			err = ErrUnreachable
		}
		return nil, err
	}
	conn, ok := d.conns[address]
	if !ok {
		return nil, ErrUnreachable
	}
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func testController(scanner Scanner, dialer Dialer) *Controller {
	return NewController(scanner, dialer, Options{
		ScanTimeout: 100 * time.Millisecond,
		Retries:     3,
	})
}

const (
	addrA = "AA:AA:AA:AA:AA:AA"
	addrB = "BB:BB:BB:BB:BB:BB"
)

func TestSetPowerWritesExactlyOnce(t *testing.T) {
	tests := []struct {
		name    string
		version Version
		start   PowerState
		on      bool
		want    PowerState
	}{
		{"v2_off_to_on", V2, V2Off, true, V2On},
		{"v2_on_to_off", V2, V2On, false, V2Off},
		{"v1_off_to_on", V1, V1Off, true, V1On},
		{"v1_on_to_off", V1, V1On, false, V1Off},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &fakeConn{state: tt.start.Payload()}
			dialer := &fakeDialer{conns: map[string]*fakeConn{addrA: conn}}
			c := testController(&fakeScanner{}, dialer)

			lh := Lighthouse{Address: addrA, Version: tt.version}
			if err := c.SetPower(context.Background(), lh, tt.on); err != nil {
				t.Fatalf("SetPower: %v", err)
			}
			if got := conn.writeCount(); got != 1 {
				t.Fatalf("writes = %d, want exactly 1", got)
			}
			state, err := StateFromPayload(conn.writes[0])
			if err != nil {
				t.Fatalf("written payload %x: %v", conn.writes[0], err)
			}
			if state != tt.want {
				t.Errorf("wrote %v, want %v", state, tt.want)
			}
			if !conn.closed {
				t.Error("connection not closed")
			}
		})
	}
}

func TestSetPowerSkipsWriteWhenStateMatches(t *testing.T) {
	for _, start := range []PowerState{V2On, Startup} {
		conn := &fakeConn{state: start.Payload()}
		dialer := &fakeDialer{conns: map[string]*fakeConn{addrA: conn}}
		c := testController(&fakeScanner{}, dialer)

		lh := Lighthouse{Address: addrA, Version: V2}
		if err := c.SetPower(context.Background(), lh, true); err != nil {
			t.Fatalf("SetPower with state %v: %v", start, err)
		}
		if got := conn.writeCount(); got != 0 {
			t.Errorf("state %v: writes = %d, want 0", start, got)
		}
	}
}

func TestSetPowerRejectsMalformedAddress(t *testing.T) {
	dialer := &fakeDialer{conns: map[string]*fakeConn{}}
	c := testController(&fakeScanner{}, dialer)

	lh := Lighthouse{Address: "garbage", Version: V2}
	err := c.SetPower(context.Background(), lh, true)
	if !errors.Is(err, ErrBadAddress) {
		t.Fatalf("err = %v, want ErrBadAddress", err)
	}
	if dialer.dialCount() != 0 {
		t.Error("malformed address must be rejected before dialing")
	}
}

func TestSetPowerRetriesUnreachable(t *testing.T) {
	conn := &fakeConn{state: V2Off.Payload()}
	dialer := &fakeDialer{conns: map[string]*fakeConn{addrA: conn}, failDials: 2}
	c := testController(&fakeScanner{}, dialer)

	lh := Lighthouse{Address: addrA, Version: V2}
	if err := c.SetPower(context.Background(), lh, true); err != nil {
		t.Fatalf("SetPower: %v", err)
	}
	if got := dialer.dialCount(); got != 3 {
		t.Errorf("dials = %d, want 3", got)
	}
}

func TestSetPowerGivesUpAfterRetries(t *testing.T) {
	dialer := &fakeDialer{conns: map[string]*fakeConn{}, failDials: 99}
	c := testController(&fakeScanner{}, dialer)

	lh := Lighthouse{Address: addrA, Version: V2}
	err := c.SetPower(context.Background(), lh, true)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	if got := dialer.dialCount(); got != 3 {
		t.Errorf("dials = %d, want 3", got)
	}
}

func TestSetPowerWriteRejected(t *testing.T) {
	conn := &fakeConn{state: V2Off.Payload(), writeErr: errors.New("ATT error")}
	dialer := &fakeDialer{conns: map[string]*fakeConn{addrA: conn}}
	c := testController(&fakeScanner{}, dialer)

	lh := Lighthouse{Address: addrA, Version: V2}
	err := c.SetPower(context.Background(), lh, true)
	if !errors.Is(err, ErrWriteRejected) {
		t.Fatalf("err = %v, want ErrWriteRejected", err)
	}
}

func TestReadPower(t *testing.T) {
	conn := &fakeConn{state: V2On.Payload()}
	dialer := &fakeDialer{conns: map[string]*fakeConn{addrA: conn}}
	c := testController(&fakeScanner{}, dialer)

	on, err := c.ReadPower(context.Background(), Lighthouse{Address: addrA, Version: V2})
	if err != nil {
		t.Fatalf("ReadPower: %v", err)
	}
	if !on {
		t.Error("ReadPower = off, want on")
	}
	if conn.writeCount() != 0 {
		t.Error("ReadPower must not write")
	}
}

func TestScanDedupesAndFilters(t *testing.T) {
	scanner := &fakeScanner{advs: []Advertisement{
		{Address: addrA, Name: "LHB-1111", RSSI: -50},
		{Address: "CC:CC:CC:CC:CC:CC", Name: "SomeHeadphones", RSSI: -40},
		{Address: addrA, Name: "LHB-1111", RSSI: -51}, // repeat advertisement
		{Address: addrB, Name: "HTC BS 2222", RSSI: -60},
		{Address: addrB, Name: "HTC BS 2222", RSSI: -61},
	}}
	c := testController(scanner, &fakeDialer{})

	var streamed []Lighthouse
	found, err := c.Scan(context.Background(), func(lh Lighthouse) {
		streamed = append(streamed, lh)
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(found) != 2 {
		t.Fatalf("found %d lighthouses, want 2: %v", len(found), found)
	}
	if found[0].Address != addrA || found[1].Address != addrB {
		t.Errorf("discovery order broken: %v", found)
	}
	if found[0].Version != V2 || found[1].Version != V1 {
		t.Errorf("version detection broken: %v", found)
	}
	if len(streamed) != len(found) {
		t.Errorf("callback saw %d lighthouses, list has %d", len(streamed), len(found))
	}
}

func TestScanForStopsEarly(t *testing.T) {
	scanner := &fakeScanner{advs: []Advertisement{
		{Address: addrA, Name: "LHB-1111", RSSI: -50},
		{Address: "CC:CC:CC:CC:CC:CC", Name: "LHB-3333", RSSI: -45}, // lighthouse, not a target
		{Address: addrB, Name: "LHB-2222", RSSI: -60},
		{Address: "DD:DD:DD:DD:DD:DD", Name: "LHB-4444", RSSI: -70}, // after all targets found
	}}
	c := testController(scanner, &fakeDialer{})

	found, err := c.ScanFor(context.Background(), []string{addrA, addrB}, nil)
	if err != nil {
		t.Fatalf("ScanFor: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("found = %v, want the two targets", found)
	}
	if scanner.delivered != 3 {
		t.Errorf("scanner delivered %d advertisements, want early stop after 3", scanner.delivered)
	}
}

func TestScanForRejectsMalformedAddressBeforeScanning(t *testing.T) {
	scanner := &fakeScanner{advs: []Advertisement{{Address: addrA, Name: "LHB-1111"}}}
	c := testController(scanner, &fakeDialer{})

	_, err := c.ScanFor(context.Background(), []string{"nope"}, nil)
	if !errors.Is(err, ErrBadAddress) {
		t.Fatalf("err = %v, want ErrBadAddress", err)
	}
	if scanner.delivered != 0 {
		t.Error("scan must not start with a malformed target address")
	}
}

func TestSetPowerAll(t *testing.T) {
	connA := &fakeConn{state: V2Off.Payload()}
	connB := &fakeConn{state: V2Off.Payload()}
	dialer := &fakeDialer{conns: map[string]*fakeConn{addrA: connA, addrB: connB}}
	c := testController(&fakeScanner{}, dialer)

	lhs := []Lighthouse{
		{Address: addrA, Version: V2},
		{Address: addrB, Version: V2},
	}
	results := c.SetPowerAll(context.Background(), lhs, true)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for _, res := range results {
		if res.Err != nil {
			t.Errorf("%s: %v", res.Lighthouse.Address, res.Err)
		}
	}
	if connA.writeCount() != 1 || connB.writeCount() != 1 {
		t.Errorf("writes = (%d, %d), want exactly one per target", connA.writeCount(), connB.writeCount())
	}
}
