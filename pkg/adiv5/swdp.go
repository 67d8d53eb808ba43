package adiv5

import (
	"fmt"
)

// SWDDriver is the pin-level boundary for Serial Wire Debug: four shift
// primitives, LSB first. Turnaround cycles between drive directions are the
// driver's business.
type SWDDriver interface {
	SeqOut(value uint32, cycles int) error
	SeqOutParity(value uint32, cycles int) error
	SeqIn(cycles int) (uint32, error)
	// SeqInParity reads cycles bits plus a parity bit and reports whether
	// the parity checked out.
	SeqInParity(cycles int) (uint32, bool, error)
}

// jtagToSWD is the magic 16-bit selection sequence a SWJ-DP watches for.
const jtagToSWD = 0xE79E

// SWD three-bit acknowledge values, LSB first on the wire. OK and WAIT are
// swapped relative to the JTAG-DP encoding.
const (
	swdAckOK    = 0x01
	swdAckWait  = 0x02
	swdAckFault = 0x04
)

// SWDTransport drives a SW-DP. DP register reads complete in one
// transaction; AP reads are posted and drained through RDBUFF.
type SWDTransport struct {
	drv SWDDriver

	// WaitRetries is the WAIT retry budget per transaction.
	WaitRetries int
}

func NewSWDTransport(drv SWDDriver) *SWDTransport {
	return &SWDTransport{drv: drv, WaitRetries: defaultWaitRetries}
}

// swdRequest builds the 8-bit request: start and park bits, with APnDP, RnW
// and the two address bits covered by an odd parity bit.
func swdRequest(rnw bool, addr uint16) uint8 {
	request := uint8(0x81)
	if addr&APAccess != 0 {
		request ^= 0x22
	}
	if rnw {
		request ^= 0x24
	}
	a := uint8(addr) & 0xC
	request |= (a << 1) & 0x18
	if a == 4 || a == 8 {
		request ^= 0x20
	}
	return request
}

func (t *SWDTransport) lineReset() error {
	// At least 50 cycles with the data line high put the DP in line reset.
	if err := t.drv.SeqOut(0xFFFFFFFF, 32); err != nil {
		return err
	}
	return t.drv.SeqOut(0xFFFFFFFF, 18)
}

// Resync re-establishes line synchronization after a protocol failure.
func (t *SWDTransport) Resync() error {
	if err := t.lineReset(); err != nil {
		return err
	}
	_, err := t.LowAccess(lowRead, DPIDCode, 0)
	return err
}

func (t *SWDTransport) LowAccess(rnw bool, addr uint16, value uint32) (uint32, error) {
	request := swdRequest(rnw, addr)

	for attempt := 0; attempt <= t.WaitRetries; attempt++ {
		if err := t.drv.SeqOut(uint32(request), 8); err != nil {
			return 0, err
		}
		ack, err := t.drv.SeqIn(3)
		if err != nil {
			return 0, err
		}
		switch ack {
		case swdAckOK:
			if rnw {
				v, parityOK, err := t.drv.SeqInParity(32)
				if err != nil {
					return 0, err
				}
				if !parityOK {
					return 0, fmt.Errorf("adiv5: SW-DP read 0x%X: %w", addr, ErrParity)
				}
				return v, nil
			}
			return 0, t.drv.SeqOutParity(value, 32)
		case swdAckWait:
			continue
		case swdAckFault:
			return 0, fmt.Errorf("adiv5: SW-DP access 0x%X refused: %w", addr, ErrFault)
		default:
			return 0, fmt.Errorf("adiv5: SW-DP ack %03b: %w", ack, ErrProtocol)
		}
	}
	return 0, fmt.Errorf("adiv5: SW-DP stuck in WAIT: %w", ErrTimeout)
}

func (t *SWDTransport) ReadReg(addr uint16) (uint32, error) {
	if addr&APAccess != 0 {
		if _, err := t.LowAccess(lowRead, addr, 0); err != nil {
			return 0, err
		}
		return t.LowAccess(lowRead, DPRDBuff, 0)
	}
	return t.LowAccess(lowRead, addr, 0)
}

func (t *SWDTransport) Abort(bits uint32) error {
	_, err := t.LowAccess(lowWrite, DPAbort, bits)
	return err
}

// SWDScan switches a SWJ-DP from JTAG to SWD, reads the DPIDR and returns a
// DP ready for Init. The target not answering the identification read means
// nothing SWD-capable is attached.
func SWDScan(drv SWDDriver) (*DP, error) {
	t := NewSWDTransport(drv)

	if err := t.lineReset(); err != nil {
		return nil, err
	}
	if err := drv.SeqOut(jtagToSWD, 16); err != nil {
		return nil, err
	}
	if err := t.lineReset(); err != nil {
		return nil, err
	}
	// Idle cycles so the first request starts clean.
	if err := drv.SeqOut(0, 8); err != nil {
		return nil, err
	}

	dpidr, err := t.LowAccess(lowRead, DPIDCode, 0)
	if err != nil {
		return nil, fmt.Errorf("adiv5: no SW-DP detected: %w", err)
	}
	log.Infof("adiv5: SW-DP DPIDR 0x%08X", dpidr)

	return &DP{Transport: t, IDCode: dpidr}, nil
}
