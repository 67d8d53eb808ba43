package rpio

import (
	"fmt"
	"math/bits"

	"github.com/stianeikeland/go-rpio/v4"
)

// SWDPins maps the SWD signals to BCM GPIO numbers.
type SWDPins struct {
	SWCLK, SWDIO uint8
}

// SWD bit-bangs a Serial Wire Debug link. The data line flips between output
// and input with a turnaround cycle at each direction change.
type SWD struct {
	swclk, swdio rpio.Pin
	driving      bool
}

// OpenSWD maps the GPIO registers and configures the SWD pins, starting with
// the host driving the line.
func OpenSWD(pins SWDPins) (*SWD, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("rpio: mapping GPIO memory: %w", err)
	}
	s := &SWD{
		swclk: rpio.Pin(pins.SWCLK),
		swdio: rpio.Pin(pins.SWDIO),
	}
	s.swclk.Output()
	s.swclk.Low()
	s.swdio.Output()
	s.swdio.High()
	s.driving = true
	return s, nil
}

// Close unmaps the GPIO registers.
func (s *SWD) Close() error {
	return rpio.Close()
}

func (s *SWD) pulse() {
	s.swclk.High()
	s.swclk.Low()
}

// turnaround releases or reclaims the data line, clocking the one cycle the
// target expects at each direction change.
func (s *SWD) turnaround(drive bool) {
	if drive == s.driving {
		return
	}
	if drive {
		s.pulse()
		s.swdio.Output()
	} else {
		s.swdio.Input()
		s.swdio.PullUp()
		s.pulse()
	}
	s.driving = drive
}

func (s *SWD) writeBit(bit bool) {
	s.swdio.Write(level(bit))
	s.pulse()
}

func (s *SWD) readBit() bool {
	bit := s.swdio.Read() == rpio.High
	s.pulse()
	return bit
}

func (s *SWD) SeqOut(value uint32, cycles int) error {
	s.turnaround(true)
	for i := 0; i < cycles; i++ {
		s.writeBit(value&(1<<uint(i)) != 0)
	}
	return nil
}

func (s *SWD) SeqOutParity(value uint32, cycles int) error {
	if err := s.SeqOut(value, cycles); err != nil {
		return err
	}
	s.writeBit(bits.OnesCount32(value)%2 == 1)
	return nil
}

func (s *SWD) SeqIn(cycles int) (uint32, error) {
	s.turnaround(false)
	var v uint32
	for i := 0; i < cycles; i++ {
		if s.readBit() {
			v |= 1 << uint(i)
		}
	}
	return v, nil
}

func (s *SWD) SeqInParity(cycles int) (uint32, bool, error) {
	v, err := s.SeqIn(cycles)
	if err != nil {
		return 0, false, err
	}
	parity := 0
	if s.readBit() {
		parity = 1
	}
	return v, (bits.OnesCount32(v)+parity)%2 == 0, nil
}
