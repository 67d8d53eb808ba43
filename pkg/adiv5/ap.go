package adiv5

// AP is one Access Port behind a DP, with the static registers cached at
// probe time. CSW holds the probed control value with the size and
// increment fields cleared; memory accesses OR their own in.
type AP struct {
	dp *DP

	APSel uint8
	IDR   uint32
	CFG   uint32
	Base  uint32
	CSW   uint32
}

// DP returns the Debug Port this AP hangs off.
func (ap *AP) DP() *DP { return ap.dp }

// isMemAP checks the IDR designer and class fields: an ARM-designed Mem-AP
// is the only kind the memory engine can drive.
func (ap *AP) isMemAP() bool {
	continuation := (ap.IDR >> 24) & 0xF
	code := (ap.IDR >> 17) & 0x7F
	class := (ap.IDR >> 13) & 0xF
	return continuation == idrARMContinuation &&
		code == idrARMCode &&
		class == idrClassMemAP
}

// CheckError reports whether a fault latched or a sticky error flag was set
// since the last check, clearing both.
func (ap *AP) CheckError() (bool, error) {
	faulted := ap.dp.Fault()
	flags, err := ap.dp.ClearStickyErrors()
	if err != nil {
		return faulted, err
	}
	return faulted || flags != 0, nil
}

// ReadReg reads a banked AP register.
func (ap *AP) ReadReg(addr uint16) (uint32, error) {
	if err := ap.dp.writeSelect(ap.APSel, addr); err != nil {
		return 0, err
	}
	return ap.dp.Read(APAccess | addr&0xFF)
}

// WriteReg writes a banked AP register.
func (ap *AP) WriteReg(addr uint16, value uint32) error {
	if err := ap.dp.writeSelect(ap.APSel, addr); err != nil {
		return err
	}
	return ap.dp.Write(APAccess|addr&0xFF, value)
}
