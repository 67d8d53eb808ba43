package jtag

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/participle/v2"
)

// Quirk files let users describe parts the built-in table does not know,
// without rebuilding. One entry per device:
//
//	// Go-style comments are allowed.
//	device "ARM ADIv5 JTAG-DP" idcode 0x0BA00477 mask 0x0FFF0FFF ir 4 expect 0x1
//	device "Mystery FPGA" idcode 0x20000093 mask 0x0FFFFFFF
//
// The ir/expect clause is optional; without it the device is named but its
// instruction register is still measured heuristically.

type quirkFile struct {
	Entries []quirkEntry `parser:"@@*"`
}

type quirkEntry struct {
	Name   string   `parser:"'device' @String"`
	IDCode uint32   `parser:"'idcode' @Int"`
	Mask   uint32   `parser:"'mask' @Int"`
	IR     *quirkIR `parser:"@@?"`
}

type quirkIR struct {
	Length  int    `parser:"'ir' @Int"`
	Capture uint32 `parser:"'expect' @Int"`
}

var quirkParser = participle.MustBuild[quirkFile](
	participle.Unquote("String"),
)

// ParseQuirks reads quirk-file syntax from r and returns the descriptions it
// defines, in file order.
func ParseQuirks(name string, r io.Reader) ([]Description, error) {
	file, err := quirkParser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("jtag: parsing quirk file: %w", err)
	}

	descs := make([]Description, 0, len(file.Entries))
	for _, e := range file.Entries {
		d := Description{
			IDCode: e.IDCode,
			Mask:   e.Mask,
			Name:   e.Name,
		}
		if e.IR != nil {
			if e.IR.Length <= 0 || e.IR.Length > MaxIRLength {
				return nil, fmt.Errorf("jtag: quirk %q: ir length %d out of range 1..%d",
					e.Name, e.IR.Length, MaxIRLength)
			}
			d.Quirk = &IRQuirk{Length: e.IR.Length, Capture: e.IR.Capture}
		}
		descs = append(descs, d)
	}
	return descs, nil
}

// LoadQuirkFile parses the quirk file at path.
func LoadQuirkFile(path string) ([]Description, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("jtag: opening quirk file: %w", err)
	}
	defer f.Close()
	return ParseQuirks(path, f)
}
