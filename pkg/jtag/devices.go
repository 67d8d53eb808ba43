package jtag

// IRQuirk carries the exact instruction-register capture pattern of a known
// part. When a scanned IDCODE matches a description with a quirk, the IR
// field is terminated at exactly Length bits and the captured value is
// validated bit for bit, instead of relying on the "next 1 begins a new
// device" heuristic.
type IRQuirk struct {
	Length  int
	Capture uint32
}

// Description identifies a device type by masked IDCODE.
type Description struct {
	IDCode uint32
	Mask   uint32
	Name   string
	Quirk  *IRQuirk
}

// Matches reports whether a raw IDCODE belongs to this description.
func (d *Description) Matches(idcode uint32) bool {
	return idcode&d.Mask == d.IDCode
}

// descriptions lists the parts the probe knows something useful about.
// Quirks are only present where silicon is known to capture a fixed IR
// pattern; everything else goes through the heuristic.
var descriptions = []Description{
	{IDCode: 0x0BA00477, Mask: 0x0FFF0FFF, Name: "ARM ADIv5 JTAG-DP", Quirk: &IRQuirk{Length: 4, Capture: 0x1}},
	{IDCode: 0x0BA01477, Mask: 0x0FFF0FFF, Name: "ARM ADIv5 JTAG-DP (Cortex-M)", Quirk: &IRQuirk{Length: 4, Capture: 0x1}},
	{IDCode: 0x06410041, Mask: 0x0FFFFFFF, Name: "STM32, medium density"},
	{IDCode: 0x06412041, Mask: 0x0FFFFFFF, Name: "STM32, low density"},
	{IDCode: 0x06414041, Mask: 0x0FFFFFFF, Name: "STM32, high density"},
	{IDCode: 0x06416041, Mask: 0x0FFFFFFF, Name: "STM32L"},
	{IDCode: 0x06418041, Mask: 0x0FFFFFFF, Name: "STM32, connectivity line"},
	{IDCode: 0x06420041, Mask: 0x0FFFFFFF, Name: "STM32, value line"},
	{IDCode: 0x0BB11477, Mask: 0xFFFFFFFF, Name: "NXP LPC11C24"},
	{IDCode: 0x4BA00477, Mask: 0xFFFFFFFF, Name: "Broadcom BCM2836"},
}

// Describe returns the best description for an IDCODE, consulting extra
// (e.g. entries loaded from a quirk file) before the built-in table. A nil
// return means the part is unknown, which is not an error.
func Describe(idcode uint32, extra []Description) *Description {
	for i := range extra {
		if extra[i].Matches(idcode) {
			return &extra[i]
		}
	}
	for i := range descriptions {
		if descriptions[i].Matches(idcode) {
			return &descriptions[i]
		}
	}
	return nil
}
