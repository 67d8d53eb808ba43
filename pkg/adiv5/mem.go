package adiv5

import (
	"encoding/binary"
	"fmt"
)

// The memory engine drives a Mem-AP's CSW/TAR/DRW triple with auto
// increment. One transfer uses a single access width, the widest that both
// the start address and the length are aligned to, so a 7-byte read at a
// halfword boundary degrades to byte accesses rather than splitting.
//
// The TAR auto-increment is only architected across the low 10 address
// bits. Whenever a transfer steps across a 1 KiB boundary the TAR is
// reprogrammed, and on the read path the pipelined DRW read that went to
// the wrapped address is reissued.

type align uint

const (
	alignByte     align = 0
	alignHalfword align = 1
	alignWord     align = 2
)

func (a align) bytes() uint32 { return 1 << a }

func (a align) cswSize() uint32 {
	switch a {
	case alignByte:
		return CSWSizeByte
	case alignHalfword:
		return CSWSizeHalfword
	default:
		return CSWSizeWord
	}
}

func alignOf(v uint32) align {
	switch {
	case v&3 == 0:
		return alignWord
	case v&1 == 0:
		return alignHalfword
	default:
		return alignByte
	}
}

func minAlign(a, b align) align {
	if a < b {
		return a
	}
	return b
}

// extract pulls the addressed lane out of a DRW word.
func extract(dest []byte, addr, value uint32, a align) {
	switch a {
	case alignByte:
		dest[0] = byte(value >> ((addr & 3) << 3))
	case alignHalfword:
		binary.LittleEndian.PutUint16(dest, uint16(value>>((addr&2)<<3)))
	default:
		binary.LittleEndian.PutUint32(dest, value)
	}
}

// pack places a unit into the lane the Mem-AP expects it on.
func pack(src []byte, addr uint32, a align) uint32 {
	switch a {
	case alignByte:
		return uint32(src[0]) << ((addr & 3) << 3)
	case alignHalfword:
		return uint32(binary.LittleEndian.Uint16(src)) << ((addr & 2) << 3)
	default:
		return binary.LittleEndian.Uint32(src)
	}
}

func wrapped(addr, last uint32) bool {
	return (addr^last)&0xFFFFFC00 != 0
}

// memSetup programs the CSW for auto-incremented access at the given width
// and points the TAR at the start address.
func (ap *AP) memSetup(addr uint32, a align) error {
	csw := ap.CSW | CSWAddrIncSingle | a.cswSize()
	if err := ap.WriteReg(APCSW, csw); err != nil {
		return err
	}
	_, err := ap.dp.LowAccess(lowWrite, APTAR, addr)
	return err
}

// MemRead fills dest from target memory starting at addr.
func (ap *AP) MemRead(dest []byte, addr uint32) error {
	if len(dest) == 0 {
		return nil
	}
	a := minAlign(alignOf(addr), alignOf(uint32(len(dest))))
	units := len(dest) >> a

	if err := ap.memSetup(addr, a); err != nil {
		return err
	}
	// Prime the pipeline: this issues the first read, whose result comes
	// back with the next transaction.
	if _, err := ap.dp.LowAccess(lowRead, APDRW, 0); err != nil {
		return err
	}

	tarBase := addr
	for i := 0; i < units-1; i++ {
		value, err := ap.dp.LowAccess(lowRead, APDRW, 0)
		if err != nil {
			return err
		}
		extract(dest[i<<a:], addr, value, a)
		addr += a.bytes()

		if wrapped(addr, tarBase) {
			tarBase = addr
			if _, err := ap.dp.LowAccess(lowWrite, APTAR, addr); err != nil {
				return err
			}
			// The transaction that returned the last value also issued a
			// read from the wrapped TAR; reissue it at the right address.
			if _, err := ap.dp.LowAccess(lowRead, APDRW, 0); err != nil {
				return err
			}
		}
	}

	// Drain the last result from RDBUFF with a raw access: on a pipelined
	// wire this very transaction returns it.
	value, err := ap.dp.LowAccess(lowRead, DPRDBuff, 0)
	if err != nil {
		return err
	}
	extract(dest[(units-1)<<a:], addr, value, a)

	if ap.dp.Fault() {
		return fmt.Errorf("adiv5: memory read at 0x%08X: %w", addr, ErrFault)
	}
	return nil
}

// MemWrite stores src to target memory starting at addr.
func (ap *AP) MemWrite(addr uint32, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	a := minAlign(alignOf(addr), alignOf(uint32(len(src))))
	units := len(src) >> a

	if err := ap.memSetup(addr, a); err != nil {
		return err
	}

	tarBase := addr
	for i := 0; i < units; i++ {
		value := pack(src[i<<a:], addr, a)
		if _, err := ap.dp.LowAccess(lowWrite, APDRW, value); err != nil {
			return err
		}
		addr += a.bytes()

		if i < units-1 && wrapped(addr, tarBase) {
			tarBase = addr
			if _, err := ap.dp.LowAccess(lowWrite, APTAR, addr); err != nil {
				return err
			}
		}
	}

	if ap.dp.Fault() {
		return fmt.Errorf("adiv5: memory write at 0x%08X: %w", addr, ErrFault)
	}
	return nil
}

// MemRead32 reads one word.
func (ap *AP) MemRead32(addr uint32) (uint32, error) {
	var buf [4]byte
	if err := ap.MemRead(buf[:], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// MemWrite32 writes one word.
func (ap *AP) MemWrite32(addr, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return ap.MemWrite(addr, buf[:])
}
