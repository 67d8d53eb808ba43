package jtag

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/tap"
)

const (
	// MaxDevices bounds the number of TAPs a single chain may carry.
	MaxDevices = 32
	// MaxIRLength bounds a single device's instruction register.
	MaxIRLength = 16
)

// Device is one TAP on a scanned chain. Index 0 is the device nearest TDO,
// matching the order IDCODEs emerge during enumeration.
type Device struct {
	chain *Chain

	Index    int
	IDCode   idcode.IDCode
	Desc     *Description
	IRLength int

	// Bypass padding computed from the chain geometry. Prescan bits are
	// shifted first and settle on the TDO side of this device; postscan
	// bits are shifted last and settle on the TDI side.
	drPrescan  int
	drPostscan int
	irPrescan  int
	irPostscan int

	irCurrent uint32
	irValid   bool
}

func (d *Device) String() string {
	name := "unknown"
	if d.Desc != nil {
		name = d.Desc.Name
	}
	return fmt.Sprintf("dev %d: %s ir=%d (%s)", d.Index, d.IDCode, d.IRLength, name)
}

// Chain is a scanned JTAG chain bound to the driver that scanned it. The
// device table is valid for this session only; a re-scan produces a fresh
// Chain and orphans the old one.
type Chain struct {
	driver  TAPDriver
	state   tap.State
	Devices []*Device
	totalIR int
}

// Scan resets the chain, enumerates IDCODEs, determines each device's
// instruction register length and verifies the result with a bypass check.
// Extra descriptions (e.g. from a quirk file) take priority over the
// built-in table. An empty chain is not an error: the returned Chain simply
// has no devices.
func Scan(driver TAPDriver, extra ...Description) (*Chain, error) {
	c := &Chain{driver: driver}

	if err := c.reset(); err != nil {
		return nil, err
	}

	raw, err := c.readIDCodes()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		log.Info("jtag: scan found no devices")
		return c, nil
	}

	for i, id := range raw {
		d := &Device{
			chain:  c,
			Index:  i,
			IDCode: idcode.Parse(id),
			Desc:   Describe(id, extra),
		}
		c.Devices = append(c.Devices, d)
	}

	if err := c.readIRLengths(); err != nil {
		c.Devices = nil
		return nil, err
	}
	if err := c.bypassCheck(); err != nil {
		c.Devices = nil
		return nil, err
	}

	for _, d := range c.Devices {
		d.drPrescan = d.Index
		d.drPostscan = len(c.Devices) - 1 - d.Index
		d.irPostscan = c.totalIR - d.irPrescan - d.IRLength
		// All IRs hold ones after discovery, which is BYPASS.
		d.irCurrent = bypassIR(d.IRLength)
		d.irValid = true
		log.Debugf("jtag: %s", d)
	}
	return c, nil
}

// reset forces Test-Logic-Reset and parks the chain in Run-Test/Idle. A
// hardware reset line is used when the driver has one; the TMS soft reset is
// clocked regardless so the tracked state and the silicon agree.
func (c *Chain) reset() error {
	if err := c.driver.ResetTAP(); err != nil && !errors.Is(err, ErrNotImplemented) {
		return err
	}
	m := tap.NewMachine()
	seq := m.Reset()
	if err := c.driver.TMSSequence(seq.Pattern, seq.Cycles); err != nil {
		return err
	}
	c.state = m.State()
	return nil
}

// readIDCodes shifts the identification registers loaded by the TAP reset,
// 32 bits per device, until the all-ones sentinel comes back from our own
// fed bits.
func (c *Chain) readIDCodes() ([]uint32, error) {
	if err := c.moveTo(tap.ShiftDR); err != nil {
		return nil, err
	}

	var ids []uint32
	for {
		var buf [4]byte
		if err := c.driver.TDITDOSequence(buf[:], false, nil, 32); err != nil {
			return nil, err
		}
		id := uint32FromBits(buf[:])
		if id == 0xFFFFFFFF {
			break
		}
		if id&1 == 0 {
			return nil, fmt.Errorf("jtag: device %d has no IDCODE (first bit 0), cannot enumerate", len(ids))
		}
		if len(ids) >= MaxDevices {
			return nil, fmt.Errorf("jtag: more than %d devices on chain, aborting scan", MaxDevices)
		}
		log.Debugf("jtag: idcode[%d] = 0x%08X", len(ids), id)
		ids = append(ids, id)
	}
	if err := c.exitShift(tap.Exit1DR); err != nil {
		return nil, err
	}
	return ids, nil
}

// readIRLengths floods the instruction path with ones one bit at a time and
// splits the captured stream into per-device IR fields. IEEE 1149.1 requires
// every capture to begin with a 1, so a 1 normally marks the start of the
// next device's field; the heuristic therefore consumes each device's
// leading bit while terminating the previous field, and the carried flag
// hands it back. Devices with a known capture quirk are measured exactly
// instead.
func (c *Chain) readIRLengths() error {
	if err := c.moveTo(tap.ShiftIR); err != nil {
		return err
	}

	carried := false
	c.totalIR = 0
	for _, d := range c.Devices {
		var err error
		if d.Desc != nil && d.Desc.Quirk != nil {
			carried, err = c.readQuirkIR(d, carried)
		} else {
			carried, err = c.readHeuristicIR(d, carried)
		}
		if err != nil {
			return err
		}
		d.irPrescan = c.totalIR
		c.totalIR += d.IRLength
	}
	// The exit bit shifts one more 1 into the chain; every IR stays all
	// ones, so Update-IR latches BYPASS everywhere.
	return c.exitShift(tap.Exit1IR)
}

func (c *Chain) shiftIRBit() (bool, error) {
	return c.driver.Next(false, true)
}

// readQuirkIR consumes exactly the quirk's bit count and validates the
// captured pattern. If the previous heuristic field already swallowed this
// device's leading bit it is reconstructed as a 1, which the quirk pattern
// must agree with.
func (c *Chain) readQuirkIR(d *Device, carried bool) (bool, error) {
	q := d.Desc.Quirk
	var capture uint32
	start := 0
	if carried {
		capture = 1
		start = 1
	}
	for i := start; i < q.Length; i++ {
		bit, err := c.shiftIRBit()
		if err != nil {
			return false, err
		}
		if bit {
			capture |= 1 << uint(i)
		}
	}
	if capture != q.Capture {
		return false, fmt.Errorf("jtag: device %d (%s) IR capture 0x%X, expected 0x%X",
			d.Index, d.Desc.Name, capture, q.Capture)
	}
	d.IRLength = q.Length
	return false, nil
}

// readHeuristicIR counts bits until the next 1, which belongs to the next
// device and is carried forward.
func (c *Chain) readHeuristicIR(d *Device, carried bool) (bool, error) {
	if !carried {
		bit, err := c.shiftIRBit()
		if err != nil {
			return false, err
		}
		if !bit {
			log.Warnf("jtag: device %d IR capture does not start with 1", d.Index)
		}
	}
	length := 1
	for {
		bit, err := c.shiftIRBit()
		if err != nil {
			return false, err
		}
		if bit {
			break
		}
		length++
		if length > MaxIRLength {
			return false, fmt.Errorf("jtag: device %d IR longer than %d bits, aborting scan",
				d.Index, MaxIRLength)
		}
	}
	d.IRLength = length
	return true, nil
}

// bypassCheck verifies the measured geometry: with every IR full of ones the
// whole chain is one bypass bit per device, so an injected 1 must come back
// delayed by exactly len(Devices) clocks.
func (c *Chain) bypassCheck() error {
	n := len(c.Devices)
	if err := c.moveTo(tap.ShiftDR); err != nil {
		return err
	}

	in := make([]byte, (n+1+7)/8)
	out := make([]byte, len(in))
	in[0] = 0x01
	if err := c.driver.TDITDOSequence(out, true, in, n+1); err != nil {
		return err
	}
	if err := c.returnToIdle(tap.Exit1DR); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		if bitOf(out, i) {
			return fmt.Errorf("jtag: bypass check failed, unexpected 1 at bit %d", i)
		}
	}
	if !bitOf(out, n) {
		return fmt.Errorf("jtag: bypass check failed, marker did not arrive after %d bits", n)
	}
	return nil
}

func bypassIR(length int) uint32 {
	return (1 << uint(length)) - 1
}

// exitShift clocks one final bit with TMS high to leave a shift state, then
// walks back to Run-Test/Idle.
func (c *Chain) exitShift(exit1 tap.State) error {
	if _, err := c.driver.Next(true, true); err != nil {
		return err
	}
	return c.returnToIdle(exit1)
}

func (c *Chain) moveTo(target tap.State) error {
	seq, err := tap.Path(c.state, target)
	if err != nil {
		return err
	}
	if seq.Cycles > 0 {
		if err := c.driver.TMSSequence(seq.Pattern, seq.Cycles); err != nil {
			return err
		}
	}
	c.state = target
	return nil
}

// returnToIdle records that a final-TMS shift left the chain in exit1 and
// walks back to Run-Test/Idle, passing through the update state so the
// shifted value takes effect.
func (c *Chain) returnToIdle(exit1 tap.State) error {
	c.state = exit1
	return c.moveTo(tap.RunTestIdle)
}

// WriteIR loads an instruction into this device while holding every other
// device in BYPASS. A repeated load of the instruction already latched is a
// no-op. Any actual shift rewrites every IR on the chain, so the other
// devices' caches are dropped.
func (d *Device) WriteIR(ir uint32) error {
	if d.irValid && d.irCurrent == ir {
		return nil
	}
	c := d.chain
	for _, other := range c.Devices {
		other.irValid = false
	}

	if err := c.moveTo(tap.ShiftIR); err != nil {
		return err
	}
	if d.irPrescan > 0 {
		if err := c.driver.TDISequence(false, ones, d.irPrescan); err != nil {
			return err
		}
	}
	payload := bitsFromUint32(ir, d.IRLength)
	if err := c.driver.TDISequence(d.irPostscan == 0, payload, d.IRLength); err != nil {
		return err
	}
	if d.irPostscan > 0 {
		if err := c.driver.TDISequence(true, ones, d.irPostscan); err != nil {
			return err
		}
	}
	if err := c.returnToIdle(tap.Exit1IR); err != nil {
		return err
	}

	d.irCurrent = ir
	d.irValid = true
	return nil
}

// ShiftDR clocks a data register access through this device, padding the
// bypass bits of its neighbours. out receives the captured register when
// non-nil; in supplies the new contents, nil meaning all ones. The other
// devices must already be in BYPASS, which WriteIR guarantees.
func (d *Device) ShiftDR(out []byte, in []byte, bits int) error {
	if _, err := ValidateShiftBuffer(in, bits); err != nil {
		return err
	}
	if out != nil {
		if _, err := ValidateShiftBuffer(out, bits); err != nil {
			return err
		}
	}
	c := d.chain

	if err := c.moveTo(tap.ShiftDR); err != nil {
		return err
	}
	if d.drPrescan > 0 {
		if err := c.driver.TDISequence(false, ones, d.drPrescan); err != nil {
			return err
		}
	}
	final := d.drPostscan == 0
	var err error
	if out != nil {
		err = c.driver.TDITDOSequence(out, final, in, bits)
	} else {
		err = c.driver.TDISequence(final, in, bits)
	}
	if err != nil {
		return err
	}
	if d.drPostscan > 0 {
		if err := c.driver.TDISequence(true, ones, d.drPostscan); err != nil {
			return err
		}
	}
	return c.returnToIdle(tap.Exit1DR)
}
