// Package rpio bit-bangs JTAG and SWD on Raspberry Pi GPIO pins.
package rpio

import (
	"fmt"
	"time"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
)

// Pins maps the JTAG signals to BCM GPIO numbers. TRST is optional.
type Pins struct {
	TCK, TMS, TDI, TDO uint8
	TRST               *uint8
}

// Driver clocks the TAP one bit at a time through memory-mapped GPIO.
type Driver struct {
	tck, tms, tdi, tdo rpio.Pin
	trst               *rpio.Pin
}

// Open maps the GPIO registers and configures the pins: outputs idle with
// TCK low and TMS/TDI high, TDO pulled up.
func Open(pins Pins) (*Driver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("rpio: mapping GPIO memory: %w", err)
	}

	d := &Driver{
		tck: rpio.Pin(pins.TCK),
		tms: rpio.Pin(pins.TMS),
		tdi: rpio.Pin(pins.TDI),
		tdo: rpio.Pin(pins.TDO),
	}
	d.tck.Output()
	d.tck.Low()
	d.tms.Output()
	d.tms.High()
	d.tdi.Output()
	d.tdi.High()
	d.tdo.Input()
	d.tdo.PullUp()

	if pins.TRST != nil {
		p := rpio.Pin(*pins.TRST)
		p.Output()
		p.High()
		d.trst = &p
	}
	return d, nil
}

// Close unmaps the GPIO registers.
func (d *Driver) Close() error {
	return rpio.Close()
}

func level(high bool) rpio.State {
	if high {
		return rpio.High
	}
	return rpio.Low
}

// clock drives TMS and TDI, pulses TCK and samples TDO while TCK is high.
func (d *Driver) clock(tms, tdi bool) bool {
	d.tms.Write(level(tms))
	d.tdi.Write(level(tdi))
	d.tck.High()
	tdo := d.tdo.Read() == rpio.High
	d.tck.Low()
	return tdo
}

// ResetTAP pulses TRST low. Without a TRST pin the caller falls back to the
// TMS soft reset.
func (d *Driver) ResetTAP() error {
	if d.trst == nil {
		return jtag.ErrNotImplemented
	}
	d.trst.Low()
	time.Sleep(10 * time.Microsecond)
	d.trst.High()
	return nil
}

func (d *Driver) Next(tms, tdi bool) (bool, error) {
	return d.clock(tms, tdi), nil
}

func (d *Driver) TMSSequence(pattern uint32, cycles int) error {
	for i := 0; i < cycles; i++ {
		d.clock(pattern&(1<<uint(i)) != 0, true)
	}
	return nil
}

func (d *Driver) TDISequence(finalTMS bool, in []byte, bits int) error {
	if _, err := jtag.ValidateShiftBuffer(in, bits); err != nil {
		return err
	}
	for i := 0; i < bits; i++ {
		tdi := in == nil || in[i/8]&(1<<uint(i%8)) != 0
		d.clock(finalTMS && i == bits-1, tdi)
	}
	return nil
}

func (d *Driver) TDITDOSequence(out []byte, finalTMS bool, in []byte, bits int) error {
	if _, err := jtag.ValidateShiftBuffer(in, bits); err != nil {
		return err
	}
	if _, err := jtag.ValidateShiftBuffer(out, bits); err != nil {
		return err
	}
	for i := 0; i < bits; i++ {
		tdi := in == nil || in[i/8]&(1<<uint(i%8)) != 0
		if d.clock(finalTMS && i == bits-1, tdi) {
			out[i/8] |= 1 << uint(i%8)
		} else {
			out[i/8] &^= 1 << uint(i%8)
		}
	}
	return nil
}
