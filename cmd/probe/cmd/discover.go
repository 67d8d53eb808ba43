package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover debug components behind the debug port",
	Long: `Bring up the ARM debug port, enumerate its access ports and walk
each Mem-AP's ROM tables to list the debug components on the bus.

Examples:
  probe discover --adapter sim
  probe discover --adapter cmsisdap
  probe discover --adapter cmsisdap --swd`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	addAdapterFlags(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	dp, closer, err := openDebugPort()
	if err != nil {
		return err
	}
	defer closer()

	if err := dp.Init(); err != nil {
		return fmt.Errorf("debug port init failed: %w", err)
	}

	fmt.Printf("DP 0x%08X: %d access port(s)\n", dp.IDCode, len(dp.APs))
	for _, ap := range dp.APs {
		fmt.Printf("\nAP %d  IDR 0x%08X  base 0x%08X\n", ap.APSel, ap.IDR, ap.Base)

		comps, err := ap.Discover()
		if err != nil {
			return fmt.Errorf("AP %d discovery failed: %w", ap.APSel, err)
		}
		if len(comps) == 0 {
			fmt.Println("  no components found")
			continue
		}
		for _, c := range comps {
			fmt.Printf("  0x%08X  class %X  part 0x%03X  %s\n",
				c.Base, c.Class, c.Part, c.Name)
		}
	}
	return nil
}
