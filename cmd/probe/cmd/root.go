package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose     bool
	adapterType string
	useSWD      bool
	quirksFile  string
)

var rootCmd = &cobra.Command{
	Use:   "probe",
	Short: "ARM debug probe transport tool",
	Long: `Scan JTAG chains, talk ADIv5 to ARM debug ports and read or write
target memory through a Mem-AP.

Examples:
  probe scan --adapter sim                     # Enumerate a simulated chain
  probe discover --adapter cmsisdap            # Walk the ROM tables over JTAG
  probe discover --adapter cmsisdap --swd      # Same over Serial Wire Debug
  probe mem read 0x20000000 64                 # Dump 64 bytes of target RAM`,
	Version: "0.1.0",
	PersistentPreRun: func(*cobra.Command, []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&adapterType, "adapter", "a", "sim",
		"adapter type (sim, cmsisdap, rpio)")
	rootCmd.PersistentFlags().BoolVar(&useSWD, "swd", false,
		"use Serial Wire Debug instead of JTAG")
	rootCmd.PersistentFlags().StringVarP(&quirksFile, "quirks", "q", "",
		"device quirk file for IR-length overrides")
}
