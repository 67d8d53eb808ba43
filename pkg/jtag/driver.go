package jtag

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger()

// TAPDriver is the bit engine boundary: the handful of pin-level primitives
// a platform layer must supply. The scan-chain engine only ever calls these;
// it never touches pin timing itself.
type TAPDriver interface {
	// ResetTAP asserts a hardware TAP reset where the adapter supports one.
	// Drivers without a reset line return ErrNotImplemented; the engine
	// falls back to the five-TMS-ones soft reset.
	ResetTAP() error

	// Next executes one TAP transition: drive TMS and TDI, clock TCK, and
	// return the sampled TDO.
	Next(tms, tdi bool) (bool, error)

	// TMSSequence clocks the low `cycles` bits of pattern (LSB first) on
	// TMS while holding TDI high.
	TMSSequence(pattern uint32, cycles int) error

	// TDISequence shifts `bits` bits from in (LSB of in[0] first) with TMS
	// low, raising TMS on the final bit when finalTMS is set.
	TDISequence(finalTMS bool, in []byte, bits int) error

	// TDITDOSequence is TDISequence with TDO captured into out. out and in
	// may alias; in may be nil to shift all-ones.
	TDITDOSequence(out []byte, finalTMS bool, in []byte, bits int) error
}

// ErrNotImplemented signals that a driver lacks an optional capability.
var ErrNotImplemented = errors.New("jtag: not implemented")

// ValidateShiftBuffer checks that buf can hold the requested bit count and
// returns the byte length needed.
func ValidateShiftBuffer(buf []byte, bits int) (int, error) {
	if bits <= 0 {
		return 0, fmt.Errorf("jtag: bits must be positive, got %d", bits)
	}
	required := (bits + 7) / 8
	if buf != nil && len(buf) < required {
		return 0, fmt.Errorf("jtag: buffer too short, need %d bytes for %d bits", required, bits)
	}
	return required, nil
}
