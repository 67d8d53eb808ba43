package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Enumerate the JTAG scan chain",
	Long: `Reset the TAPs, read every IDCODE on the chain and measure each
device's instruction register.

Examples:
  probe scan --adapter sim
  probe scan --adapter cmsisdap --quirks quirks.txt
  probe scan --adapter rpio --tck 11 --tms 25 --tdi 10 --tdo 9`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	addAdapterFlags(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	extra, err := extraDescriptions()
	if err != nil {
		return err
	}
	drv, closer, err := openTAPDriver()
	if err != nil {
		return err
	}
	defer closer()

	chain, err := jtag.Scan(drv, extra...)
	if err != nil {
		return fmt.Errorf("chain scan failed: %w", err)
	}
	if len(chain.Devices) == 0 {
		fmt.Println("No devices on the scan chain.")
		return nil
	}

	fmt.Printf("Found %d device(s):\n", len(chain.Devices))
	for _, dev := range chain.Devices {
		name := "unknown"
		if dev.Desc != nil {
			name = dev.Desc.Name
		}
		fmt.Printf("  %2d  0x%08X  IR %2d  %-24s %s\n",
			dev.Index, dev.IDCode.Raw, dev.IRLength, name,
			idcode.ManufacturerName(dev.IDCode.Manufacturer))
	}
	return nil
}
