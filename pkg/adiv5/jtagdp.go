package adiv5

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
)

// JTAG-DP instructions (IHI0031A).
const (
	irAbort uint32 = 0x8
	irDPACC uint32 = 0xA
	irAPACC uint32 = 0xB
)

// JTAG-DP three-bit acknowledge values. Note these are NOT the SWD ones:
// the two wire protocols assign OK and WAIT the opposite codes.
const (
	jtagAckOK   = 0x02
	jtagAckWait = 0x01
)

// defaultWaitRetries bounds how often a transaction is repeated while the
// target answers WAIT.
const defaultWaitRetries = 250

// JTAGTransport drives a JTAG-DP through one device on a scanned chain. The
// DPACC/APACC data register is 35 bits: three acknowledge/request bits and a
// 32-bit payload. Reads are pipelined; ReadReg drains through RDBUFF.
type JTAGTransport struct {
	dev *jtag.Device

	// WaitRetries is the WAIT retry budget per transaction.
	WaitRetries int
}

// NewJTAGTransport wraps a scanned chain device known to be a JTAG-DP.
func NewJTAGTransport(dev *jtag.Device) *JTAGTransport {
	return &JTAGTransport{dev: dev, WaitRetries: defaultWaitRetries}
}

func le40(v uint64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24), byte(v >> 32),
	}
}

func (t *JTAGTransport) LowAccess(rnw bool, addr uint16, value uint32) (uint32, error) {
	ir := irDPACC
	if addr&APAccess != 0 {
		ir = irAPACC
	}
	if err := t.dev.WriteIR(ir); err != nil {
		return 0, err
	}

	request := uint64(value)<<3 | uint64((addr>>1)&0x06)
	if rnw {
		request |= 1
	}

	out := make([]byte, 5)
	for attempt := 0; attempt <= t.WaitRetries; attempt++ {
		if err := t.dev.ShiftDR(out, le40(request), 35); err != nil {
			return 0, err
		}
		response := uint64(out[0]) | uint64(out[1])<<8 | uint64(out[2])<<16 |
			uint64(out[3])<<24 | uint64(out[4])<<32
		response &= 1<<35 - 1

		switch ack := response & 0x7; ack {
		case jtagAckOK:
			return uint32(response >> 3), nil
		case jtagAckWait:
			continue
		default:
			return 0, fmt.Errorf("adiv5: JTAG-DP ack %03b: %w", ack, ErrProtocol)
		}
	}
	return 0, fmt.Errorf("adiv5: JTAG-DP stuck in WAIT: %w", ErrTimeout)
}

func (t *JTAGTransport) ReadReg(addr uint16) (uint32, error) {
	if _, err := t.LowAccess(lowRead, addr, 0); err != nil {
		return 0, err
	}
	return t.LowAccess(lowRead, DPRDBuff, 0)
}

// Abort loads the dedicated ABORT instruction and writes the bits straight
// through, independent of the DPACC transaction flow.
func (t *JTAGTransport) Abort(bits uint32) error {
	if err := t.dev.WriteIR(irAbort); err != nil {
		return err
	}
	return t.dev.ShiftDR(nil, le40(uint64(bits)<<3), 35)
}
