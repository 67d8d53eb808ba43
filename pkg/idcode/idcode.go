package idcode

import "fmt"

// IDCode is a parsed IEEE 1149.1 device identification register.
type IDCode struct {
	Raw          uint32
	Version      uint8  // [31:28]
	PartNumber   uint16 // [27:12]
	Manufacturer uint16 // [11:1] JEP106
	HasIDCode    bool   // bit 0 reads 1 for a real IDCODE
}

// Parse splits a raw 32-bit IDCODE into its component fields.
func Parse(raw uint32) IDCode {
	return IDCode{
		Raw:          raw,
		Version:      uint8((raw >> 28) & 0xF),
		PartNumber:   uint16((raw >> 12) & 0xFFFF),
		Manufacturer: uint16((raw >> 1) & 0x7FF),
		HasIDCode:    raw&0x1 == 0x1,
	}
}

func (id IDCode) String() string {
	return fmt.Sprintf("0x%08X (mfg: %s, part: 0x%04X, ver: %d)",
		id.Raw, ManufacturerName(id.Manufacturer), id.PartNumber, id.Version)
}
