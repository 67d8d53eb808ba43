package adiv5

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger()

// DP is one Debug Port and the session state riding on it: the AP table
// found during Init and the probe hooks the caller registered. A DP is
// reached through exactly one Transport; reconnecting means building a new
// DP.
type DP struct {
	Transport Transport
	IDCode    uint32

	// AllowTimeout makes reads absorb WAIT exhaustion as a zero value
	// instead of an error. Init uses it while the target may legitimately
	// not answer yet.
	AllowTimeout bool

	// CortexMProbe is called once per valid Mem-AP during Init. Cortex-M
	// cores hang directly off the AP, not off a ROM table entry, so the
	// component walk never dispatches them.
	CortexMProbe func(*AP) error

	// CortexAProbe is called from the component walk when a Cortex-A debug
	// unit is found, with its register base address.
	CortexAProbe func(*AP, uint32) error

	APs []*AP

	fault bool
}

// Fault reports whether a transaction was refused since the last
// ClearStickyErrors.
func (dp *DP) Fault() bool { return dp.fault }

// Read performs a complete register read, applying the DP error policy.
func (dp *DP) Read(addr uint16) (uint32, error) {
	return dp.filter(dp.Transport.ReadReg(addr))
}

// LowAccess performs one raw transaction, applying the DP error policy.
func (dp *DP) LowAccess(rnw bool, addr uint16, value uint32) (uint32, error) {
	return dp.filter(dp.Transport.LowAccess(rnw, addr, value))
}

// Write writes one register.
func (dp *DP) Write(addr uint16, value uint32) error {
	_, err := dp.filter(dp.Transport.LowAccess(lowWrite, addr, value))
	return err
}

// Abort writes the ABORT register through the dedicated path.
func (dp *DP) Abort(bits uint32) error {
	return dp.Transport.Abort(bits)
}

func (dp *DP) filter(value uint32, err error) (uint32, error) {
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, ErrTimeout) && dp.AllowTimeout:
		return 0, nil
	case errors.Is(err, ErrFault):
		dp.fault = true
		return 0, err
	default:
		return 0, err
	}
}

// writeSelect routes a banked AP register access. SELECT is written before
// every access: the DP may have been resynchronized or reset behind our
// back, so no cached routing can be trusted.
func (dp *DP) writeSelect(apsel uint8, addr uint16) error {
	return dp.Write(DPSelect, uint32(apsel)<<24|uint32(addr)&0xF0)
}

// ClearStickyErrors reads CTRL/STAT, clears whichever sticky error flags are
// set through the ABORT register and returns the pre-clear flags. It also
// resets the local fault latch.
func (dp *DP) ClearStickyErrors() (uint32, error) {
	status, err := dp.Read(DPCtrlStat)
	if err != nil {
		return 0, err
	}
	flags := status & stickyErrorMask

	var clear uint32
	if flags&CtrlStatStickyOrun != 0 {
		clear |= AbortOrunErrClr
	}
	if flags&CtrlStatWDataErr != 0 {
		clear |= AbortWDErrClr
	}
	if flags&CtrlStatStickyErr != 0 {
		clear |= AbortStkErrClr
	}
	if flags&CtrlStatStickyCmp != 0 {
		clear |= AbortStkCmpClr
	}
	if clear != 0 {
		if err := dp.Abort(clear); err != nil {
			return flags, err
		}
	}
	dp.fault = false
	return flags, nil
}

// Init brings the debug domain up: it nudges a stuck DP with DAPABORT,
// clears leftover sticky errors, requests system and debug power and waits
// for both acknowledges, then enumerates the 256 possible Access Ports.
func (dp *DP) Init() error {
	dp.APs = nil

	// The very first read may time out on a DP that was left mid
	// transaction; a DAPABORT resets its state machine.
	dp.AllowTimeout = false
	ctrlstat, err := dp.Read(DPCtrlStat)
	if errors.Is(err, ErrTimeout) {
		log.Debug("adiv5: DP not responding, sending abort")
		if err := dp.Abort(AbortDAPAbort); err != nil {
			return err
		}
		ctrlstat, err = dp.Read(DPCtrlStat)
	}
	if err != nil {
		return fmt.Errorf("adiv5: DP unreachable: %w", err)
	}

	if _, err := dp.ClearStickyErrors(); err != nil {
		return err
	}

	ctrlstat |= CtrlStatCSysPwrUpReq | CtrlStatCDbgPwrUpReq
	if err := dp.Write(DPCtrlStat, ctrlstat); err != nil {
		return err
	}
	const acks = CtrlStatCSysPwrUpAck | CtrlStatCDbgPwrUpAck
	for {
		status, err := dp.Read(DPCtrlStat)
		if err != nil {
			return fmt.Errorf("adiv5: waiting for power-up: %w", err)
		}
		if status&acks == acks {
			break
		}
	}

	for apsel := 0; apsel < 256; apsel++ {
		ap, err := dp.probeAP(uint8(apsel))
		if err != nil {
			return err
		}
		if ap == nil {
			continue
		}
		dp.APs = append(dp.APs, ap)
		if dp.CortexMProbe != nil {
			if err := dp.CortexMProbe(ap); err != nil {
				log.Warnf("adiv5: AP %d: core probe: %v", apsel, err)
			}
		}
	}
	return nil
}

// probeAP checks whether an AP select value answers with a usable Mem-AP
// and caches its static registers. Unpopulated selects read IDR as zero;
// that and APs without a debug base address are skipped silently.
func (dp *DP) probeAP(apsel uint8) (*AP, error) {
	ap := &AP{dp: dp, APSel: apsel}

	// An absent AP must read as zero; a timeout here is equally benign on
	// some DPs, so reads are run in absorbing mode.
	prev := dp.AllowTimeout
	dp.AllowTimeout = true
	defer func() { dp.AllowTimeout = prev }()

	idr, err := ap.ReadReg(APIDR)
	if err != nil {
		return nil, err
	}
	if idr == 0 {
		return nil, nil
	}
	ap.IDR = idr

	if !ap.isMemAP() {
		log.Debugf("adiv5: AP %d: IDR=0x%08X not a supported Mem-AP", apsel, idr)
		return nil, nil
	}

	if ap.CFG, err = ap.ReadReg(APCFG); err != nil {
		return nil, err
	}
	if ap.Base, err = ap.ReadReg(APBase); err != nil {
		return nil, err
	}
	if ap.Base == 0xFFFFFFFF {
		// No debug entries behind this AP.
		return nil, nil
	}

	csw, err := ap.ReadReg(APCSW)
	if err != nil {
		return nil, err
	}
	ap.CSW = csw &^ uint32(CSWSizeMask|CSWAddrIncMask)
	if ap.CSW&CSWTrInProg != 0 {
		log.Warn("adiv5: AP transaction in progress, target may not be usable")
		ap.CSW &^= CSWTrInProg
	}

	log.Debugf("adiv5: AP %3d: IDR=%08X CFG=%08X BASE=%08X CSW=%08X",
		apsel, ap.IDR, ap.CFG, ap.Base, ap.CSW)
	return ap, nil
}
