package jtag

import (
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/tap"
)

// SimDRHandler gives a simulated device data registers beyond the mandatory
// BYPASS and IDCODE. DRLength returns 0 for instructions the device does not
// decode, which selects BYPASS.
type SimDRHandler interface {
	DRLength(ir uint32) int
	CaptureDR(ir uint32) uint64
	UpdateDR(ir uint32, value uint64)
	Reset()
}

// SimDevice is one simulated TAP. The zero value is not usable; construct
// with NewSimDevice and override fields as needed.
type SimDevice struct {
	IDCode      uint32
	IRLength    int
	IRCapture   uint32 // pattern loaded at Capture-IR
	IDCODEInstr uint32 // instruction selecting the identification register
	Handler     SimDRHandler

	// IRUpdates counts Update-IR passes, so tests can prove an instruction
	// cache hit performed no shifting.
	IRUpdates int

	ir      uint32
	irShift []bool
	dr      []bool
}

// NewSimDevice returns a device with the IEEE-mandated 0b...01 IR capture
// pattern and the ARM convention of all-ones-minus-one for the IDCODE
// instruction.
func NewSimDevice(idcode uint32, irLength int) *SimDevice {
	return &SimDevice{
		IDCode:      idcode,
		IRLength:    irLength,
		IRCapture:   0x1,
		IDCODEInstr: bypassIR(irLength) &^ 1,
		irShift:     make([]bool, irLength),
	}
}

// IR reports the currently latched instruction.
func (d *SimDevice) IR() uint32 { return d.ir }

func (d *SimDevice) reset() {
	d.ir = d.IDCODEInstr
	if d.Handler != nil {
		d.Handler.Reset()
	}
}

func (d *SimDevice) captureIR() {
	for i := range d.irShift {
		d.irShift[i] = d.IRCapture&(1<<uint(i)) != 0
	}
}

func (d *SimDevice) updateIR() {
	var v uint32
	for i, b := range d.irShift {
		if b {
			v |= 1 << uint(i)
		}
	}
	d.ir = v
	d.IRUpdates++
}

func (d *SimDevice) captureDR() {
	switch {
	case d.ir == d.IDCODEInstr:
		d.dr = boolsFromUint64(uint64(d.IDCode), 32)
	case d.Handler != nil && d.Handler.DRLength(d.ir) > 0:
		n := d.Handler.DRLength(d.ir)
		d.dr = boolsFromUint64(d.Handler.CaptureDR(d.ir), n)
	default:
		// BYPASS: one bit, captured 0.
		d.dr = make([]bool, 1)
	}
}

func (d *SimDevice) updateDR() {
	if d.ir == d.IDCODEInstr || d.Handler == nil || d.Handler.DRLength(d.ir) == 0 {
		return
	}
	d.Handler.UpdateDR(d.ir, uint64FromBools(d.dr))
}

// peek returns the bit currently presented on this device's TDO.
func (d *SimDevice) peekIR() bool { return d.irShift[0] }
func (d *SimDevice) peekDR() bool { return d.dr[0] }

func (d *SimDevice) shiftIR(in bool) {
	copy(d.irShift, d.irShift[1:])
	d.irShift[len(d.irShift)-1] = in
}

func (d *SimDevice) shiftDR(in bool) {
	copy(d.dr, d.dr[1:])
	d.dr[len(d.dr)-1] = in
}

func boolsFromUint64(v uint64, bits int) []bool {
	out := make([]bool, bits)
	for i := range out {
		out[i] = v&(1<<uint(i)) != 0
	}
	return out
}

func uint64FromBools(bits []bool) uint64 {
	var v uint64
	for i, b := range bits {
		if b {
			v |= 1 << uint(i)
		}
	}
	return v
}

// SimTAP is an in-memory scan chain implementing TAPDriver, clock accurate
// at the TAP state level. Devices[0] sits nearest TDO, matching Chain's
// device order. It has no hardware reset line, so ResetTAP reports
// ErrNotImplemented and callers fall back to the TMS soft reset.
type SimTAP struct {
	Devices []*SimDevice

	// Clocks counts every TCK cycle driven through the simulator.
	Clocks int

	state tap.State
}

// NewSimTAP builds a chain from devices listed TDO first.
func NewSimTAP(devices ...*SimDevice) *SimTAP {
	s := &SimTAP{Devices: devices, state: tap.TestLogicReset}
	for _, d := range devices {
		d.reset()
	}
	return s
}

// State reports the simulated TAP controller state.
func (s *SimTAP) State() tap.State { return s.state }

// clock drives one TCK cycle: sample TDO, shift if in a shift state, then
// take the state transition and run its entry action.
func (s *SimTAP) clock(tms, tdi bool) bool {
	s.Clocks++
	tdo := true // undriven line pulls up

	switch s.state {
	case tap.ShiftDR:
		tdo = s.ripple(tdi, (*SimDevice).peekDR, (*SimDevice).shiftDR)
	case tap.ShiftIR:
		tdo = s.ripple(tdi, (*SimDevice).peekIR, (*SimDevice).shiftIR)
	}

	s.state = tap.Next(s.state, tms)

	switch s.state {
	case tap.TestLogicReset:
		for _, d := range s.Devices {
			d.reset()
		}
	case tap.CaptureDR:
		for _, d := range s.Devices {
			d.captureDR()
		}
	case tap.CaptureIR:
		for _, d := range s.Devices {
			d.captureIR()
		}
	case tap.UpdateDR:
		for _, d := range s.Devices {
			d.updateDR()
		}
	case tap.UpdateIR:
		for _, d := range s.Devices {
			d.updateIR()
		}
	}
	return tdo
}

// ripple moves one bit through the whole chain. Each device's output is its
// register's pre-shift head; device i+1 feeds device i and the last device
// takes TDI.
func (s *SimTAP) ripple(tdi bool, peek func(*SimDevice) bool, shift func(*SimDevice, bool)) bool {
	n := len(s.Devices)
	if n == 0 {
		return tdi
	}
	outs := make([]bool, n)
	for i, d := range s.Devices {
		outs[i] = peek(d)
	}
	for i, d := range s.Devices {
		in := tdi
		if i < n-1 {
			in = outs[i+1]
		}
		shift(d, in)
	}
	return outs[0]
}

func (s *SimTAP) ResetTAP() error {
	return ErrNotImplemented
}

func (s *SimTAP) Next(tms, tdi bool) (bool, error) {
	return s.clock(tms, tdi), nil
}

func (s *SimTAP) TMSSequence(pattern uint32, cycles int) error {
	for i := 0; i < cycles; i++ {
		s.clock(pattern&(1<<uint(i)) != 0, true)
	}
	return nil
}

func (s *SimTAP) TDISequence(finalTMS bool, in []byte, bits int) error {
	return s.TDITDOSequence(nil, finalTMS, in, bits)
}

func (s *SimTAP) TDITDOSequence(out []byte, finalTMS bool, in []byte, bits int) error {
	if _, err := ValidateShiftBuffer(in, bits); err != nil {
		return err
	}
	if out != nil {
		if _, err := ValidateShiftBuffer(out, bits); err != nil {
			return err
		}
	}
	for i := 0; i < bits; i++ {
		tdi := true
		if in != nil {
			tdi = bitOf(in, i)
		}
		tms := finalTMS && i == bits-1
		tdo := s.clock(tms, tdi)
		if out != nil {
			setBit(out, i, tdo)
		}
	}
	return nil
}
