package cmsisdap

import (
	"fmt"
	"math/bits"
)

// SWDPort drives the SWD pins of a CMSIS-DAP probe through DAP_SWD_Sequence.
// The probe firmware handles the turnaround cycles when the line changes
// direction between segments.
type SWDPort struct {
	d *Driver
}

// OpenSWD connects to the probe at vid:pid in SWD mode.
func OpenSWD(vid, pid uint16) (*SWDPort, error) {
	t, err := OpenTransport(vid, pid)
	if err != nil {
		return nil, err
	}
	d, err := newDriver(t, PortSWD)
	if err != nil {
		t.Close()
		return nil, err
	}
	return &SWDPort{d: d}, nil
}

// Info returns the probe identification strings.
func (p *SWDPort) Info() Info { return p.d.Info() }

// SetClock sets the SWCLK frequency.
func (p *SWDPort) SetClock(hz uint32) error { return p.d.SetClock(hz) }

// Close disconnects the probe.
func (p *SWDPort) Close() error { return p.d.Close() }

func (p *SWDPort) seqOut(value uint64, cycles int) error {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()

	data := make([]byte, (cycles+7)/8)
	for i := range data {
		data[i] = byte(value >> uint(8*i))
	}
	resp, err := p.d.rt.RoundTrip(p.d.proto.EncodeSWDSequence(cycles, data, false))
	if err != nil {
		return err
	}
	_, err = p.d.proto.DecodeSWDSequence(resp, cycles, false)
	return err
}

func (p *SWDPort) seqIn(cycles int) (uint64, error) {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()

	resp, err := p.d.rt.RoundTrip(p.d.proto.EncodeSWDSequence(cycles, nil, true))
	if err != nil {
		return 0, err
	}
	data, err := p.d.proto.DecodeSWDSequence(resp, cycles, true)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i, b := range data {
		v |= uint64(b) << uint(8*i)
	}
	if rem := cycles % 8; rem != 0 {
		v &= 1<<uint(cycles) - 1
	}
	return v, nil
}

// SeqOut shifts the low cycles bits of value out, LSB first.
func (p *SWDPort) SeqOut(value uint32, cycles int) error {
	if cycles < 1 || cycles > 32 {
		return fmt.Errorf("cmsisdap: SWD output of %d cycles", cycles)
	}
	return p.seqOut(uint64(value), cycles)
}

// SeqOutParity shifts value out followed by an even parity bit.
func (p *SWDPort) SeqOutParity(value uint32, cycles int) error {
	if cycles < 1 || cycles > 32 {
		return fmt.Errorf("cmsisdap: SWD output of %d cycles", cycles)
	}
	v := uint64(value) & (1<<uint(cycles) - 1)
	v |= uint64(bits.OnesCount64(v)&1) << uint(cycles)
	return p.seqOut(v, cycles+1)
}

// SeqIn shifts cycles bits in, LSB first.
func (p *SWDPort) SeqIn(cycles int) (uint32, error) {
	if cycles < 1 || cycles > 32 {
		return 0, fmt.Errorf("cmsisdap: SWD input of %d cycles", cycles)
	}
	v, err := p.seqIn(cycles)
	return uint32(v), err
}

// SeqInParity shifts cycles bits plus a parity bit in and reports whether
// the even parity held.
func (p *SWDPort) SeqInParity(cycles int) (uint32, bool, error) {
	if cycles < 1 || cycles > 32 {
		return 0, false, fmt.Errorf("cmsisdap: SWD input of %d cycles", cycles)
	}
	raw, err := p.seqIn(cycles + 1)
	if err != nil {
		return 0, false, err
	}
	value := uint32(raw & (1<<uint(cycles) - 1))
	parity := int(raw >> uint(cycles) & 1)
	ok := (bits.OnesCount32(value)+parity)%2 == 0
	return value, ok, nil
}
