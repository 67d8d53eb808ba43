package adiv5

import (
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
)

// jtagDPIDCode matches an ARM ADIv5 JTAG-DP IDCODE with the version and
// part-revision nibbles masked out.
const (
	jtagDPIDCode = 0x0BA00477
	jtagDPMask   = 0x0FFF0FFF
)

// IsJTAGDP reports whether a chain device's IDCODE identifies an ADIv5
// JTAG-DP.
func IsJTAGDP(id uint32) bool {
	return id&jtagDPMask == jtagDPIDCode
}

// JTAGScan wraps every JTAG-DP on a scanned chain in a DP ready for Init.
func JTAGScan(chain *jtag.Chain) []*DP {
	var dps []*DP
	for _, dev := range chain.Devices {
		if !IsJTAGDP(dev.IDCode.Raw) {
			continue
		}
		log.Debugf("adiv5: device %d is a JTAG-DP", dev.Index)
		dps = append(dps, &DP{
			Transport: NewJTAGTransport(dev),
			IDCode:    dev.IDCode.Raw,
		})
	}
	return dps
}
