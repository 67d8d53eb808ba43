package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/adiv5"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe/cmsisdap"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe/rpio"
)

var (
	usbVID string
	usbPID string

	pinTCK  uint8
	pinTMS  uint8
	pinTDI  uint8
	pinTDO  uint8
	pinTRST int
)

// addAdapterFlags registers the adapter-specific flags on commands that open
// a probe.
func addAdapterFlags(c *cobra.Command) {
	c.Flags().StringVar(&usbVID, "vid", "0x2E8A", "CMSIS-DAP USB vendor ID")
	c.Flags().StringVar(&usbPID, "pid", "0x000C", "CMSIS-DAP USB product ID")
	c.Flags().Uint8Var(&pinTCK, "tck", 11, "rpio: TCK BCM pin")
	c.Flags().Uint8Var(&pinTMS, "tms", 25, "rpio: TMS BCM pin")
	c.Flags().Uint8Var(&pinTDI, "tdi", 10, "rpio: TDI BCM pin")
	c.Flags().Uint8Var(&pinTDO, "tdo", 9, "rpio: TDO BCM pin")
	c.Flags().IntVar(&pinTRST, "trst", -1, "rpio: TRST BCM pin (-1 for none)")
}

func usbID(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid USB ID %q: %w", s, err)
	}
	return uint16(v), nil
}

func extraDescriptions() ([]jtag.Description, error) {
	if quirksFile == "" {
		return nil, nil
	}
	return jtag.LoadQuirkFile(quirksFile)
}

// simTarget builds the offline fixture: one AHB-AP in front of a small ROM
// table with an SCS and an ITM.
func simTarget() *adiv5.SimTarget {
	const romBase = 0xE00FF000
	target := adiv5.NewSimTarget(0x2BA01477)
	target.SetBase(romBase)
	target.InstallROMTable(romBase, []uint32{0x00001003, 0x00002003})
	target.InstallComponent(romBase+0x1000, adiv5.ClassGenericIP, 0x00C)
	target.InstallComponent(romBase+0x2000, adiv5.ClassDebug, 0x913)
	return target
}

func simTAP() *jtag.SimTAP {
	dev := jtag.NewSimDevice(0x0BA01477, 4)
	dev.Handler = &adiv5.JTAGDPHandler{Target: simTarget()}
	return jtag.NewSimTAP(dev)
}

// openTAPDriver opens the selected JTAG adapter. The returned closer releases
// it; for the simulator it is a no-op.
func openTAPDriver() (jtag.TAPDriver, func() error, error) {
	switch adapterType {
	case "sim", "simulator":
		return simTAP(), func() error { return nil }, nil

	case "cmsisdap", "dap":
		vid, err := usbID(usbVID)
		if err != nil {
			return nil, nil, err
		}
		pid, err := usbID(usbPID)
		if err != nil {
			return nil, nil, err
		}
		d, err := cmsisdap.Open(vid, pid)
		if err != nil {
			return nil, nil, err
		}
		if verbose {
			info := d.Info()
			fmt.Printf("Connected to %s %s (serial %s, firmware %s)\n",
				info.Vendor, info.Product, info.Serial, info.Firmware)
		}
		return d, d.Close, nil

	case "rpio", "gpio":
		pins := rpio.Pins{TCK: pinTCK, TMS: pinTMS, TDI: pinTDI, TDO: pinTDO}
		if pinTRST >= 0 {
			trst := uint8(pinTRST)
			pins.TRST = &trst
		}
		d, err := rpio.Open(pins)
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown adapter type %q (supported: sim, cmsisdap, rpio)", adapterType)
}

// openSWDDriver opens the selected adapter's SWD pins.
func openSWDDriver() (adiv5.SWDDriver, func() error, error) {
	switch adapterType {
	case "sim", "simulator":
		drv := &adiv5.SimSWDDriver{Target: simTarget()}
		return drv, func() error { return nil }, nil

	case "cmsisdap", "dap":
		vid, err := usbID(usbVID)
		if err != nil {
			return nil, nil, err
		}
		pid, err := usbID(usbPID)
		if err != nil {
			return nil, nil, err
		}
		p, err := cmsisdap.OpenSWD(vid, pid)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil

	case "rpio", "gpio":
		s, err := rpio.OpenSWD(rpio.SWDPins{SWCLK: pinTCK, SWDIO: pinTMS})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown adapter type %q (supported: sim, cmsisdap, rpio)", adapterType)
}

// openDebugPort brings up a debug port on the selected wire protocol.
func openDebugPort() (*adiv5.DP, func() error, error) {
	if useSWD {
		drv, closer, err := openSWDDriver()
		if err != nil {
			return nil, nil, err
		}
		dp, err := adiv5.SWDScan(drv)
		if err != nil {
			closer()
			return nil, nil, err
		}
		return dp, closer, nil
	}

	extra, err := extraDescriptions()
	if err != nil {
		return nil, nil, err
	}
	drv, closer, err := openTAPDriver()
	if err != nil {
		return nil, nil, err
	}
	chain, err := jtag.Scan(drv, extra...)
	if err != nil {
		closer()
		return nil, nil, err
	}
	dps := adiv5.JTAGScan(chain)
	if len(dps) == 0 {
		closer()
		return nil, nil, fmt.Errorf("no ARM debug port on the scan chain")
	}
	return dps[0], closer, nil
}
