package idcode

import "fmt"

// manufacturers maps JEP106 codes to names. This is the subset of the JEDEC
// list that turns up on debug scan chains; unknown codes are formatted on
// the fly.
var manufacturers = map[uint16]string{
	0x017: "Texas Instruments",
	0x01F: "Atmel",
	0x020: "STMicroelectronics",
	0x025: "Analog Devices",
	0x02E: "Cypress",
	0x031: "Xilinx",
	0x03D: "Altera",
	0x041: "Lattice",
	0x049: "Infineon",
	0x06E: "Microchip",
	0x093: "ARM",
	0x0B7: "Espressif",
	0x0BD: "Broadcom",
	0x13B: "Nordic Semiconductor",
	0x15A: "NXP",
	0x1F1: "Raspberry Pi",
	0x23B: "ARM", // with continuation code, as seen in ADIv5 designer fields
}

// ManufacturerName returns the JEP106 manufacturer name for a code, or a
// formatted placeholder when the code is not in the table.
func ManufacturerName(code uint16) string {
	if name, ok := manufacturers[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown (0x%03X)", code)
}
