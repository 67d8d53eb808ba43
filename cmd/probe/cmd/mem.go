package cmd

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/adiv5"
)

var apIndex int

var memCmd = &cobra.Command{
	Use:   "mem",
	Short: "Access target memory through a Mem-AP",
}

var memReadCmd = &cobra.Command{
	Use:   "read <addr> [length]",
	Short: "Read target memory",
	Long: `Read target memory and print a hex dump. Address and length accept
decimal or 0x-prefixed hex; length defaults to 64 bytes.

Examples:
  probe mem read 0x20000000
  probe mem read 0x08000000 256 --adapter cmsisdap --swd`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runMemRead,
}

var memWriteCmd = &cobra.Command{
	Use:   "write <addr> <hexbytes>",
	Short: "Write target memory",
	Long: `Write bytes to target memory. The data is a hex string, optionally
0x-prefixed.

Examples:
  probe mem write 0x20000000 deadbeef
  probe mem write 0x20000400 0x0102030405060708`,
	Args: cobra.ExactArgs(2),
	RunE: runMemWrite,
}

func init() {
	rootCmd.AddCommand(memCmd)
	memCmd.AddCommand(memReadCmd)
	memCmd.AddCommand(memWriteCmd)
	memCmd.PersistentFlags().IntVar(&apIndex, "ap", 0, "access port index")
	addAdapterFlags(memReadCmd)
	addAdapterFlags(memWriteCmd)
}

func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint32(v), nil
}

func openMemAP() (*adiv5.AP, func() error, error) {
	dp, closer, err := openDebugPort()
	if err != nil {
		return nil, nil, err
	}
	if err := dp.Init(); err != nil {
		closer()
		return nil, nil, fmt.Errorf("debug port init failed: %w", err)
	}
	if apIndex < 0 || apIndex >= len(dp.APs) {
		closer()
		return nil, nil, fmt.Errorf("AP index %d out of range, %d AP(s) found", apIndex, len(dp.APs))
	}
	return dp.APs[apIndex], closer, nil
}

func runMemRead(cmd *cobra.Command, args []string) error {
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	length := uint64(64)
	if len(args) == 2 {
		if length, err = strconv.ParseUint(args[1], 0, 24); err != nil {
			return fmt.Errorf("invalid length %q: %w", args[1], err)
		}
	}

	ap, closer, err := openMemAP()
	if err != nil {
		return err
	}
	defer closer()

	data := make([]byte, length)
	if err := ap.MemRead(data, addr); err != nil {
		return fmt.Errorf("memory read at 0x%08X failed: %w", addr, err)
	}
	fmt.Print(hex.Dump(data))
	return nil
}

func runMemWrite(cmd *cobra.Command, args []string) error {
	addr, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(strings.TrimPrefix(args[1], "0x"))
	if err != nil {
		return fmt.Errorf("invalid data %q: %w", args[1], err)
	}
	if len(data) == 0 {
		return fmt.Errorf("no data to write")
	}

	ap, closer, err := openMemAP()
	if err != nil {
		return err
	}
	defer closer()

	if err := ap.MemWrite(addr, data); err != nil {
		return fmt.Errorf("memory write at 0x%08X failed: %w", addr, err)
	}
	fmt.Printf("wrote %d byte(s) at 0x%08X\n", len(data), addr)
	return nil
}
