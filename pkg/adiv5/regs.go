// Package adiv5 implements the ARM Debug Interface v5: Debug Port and
// Access Port transactions over JTAG or SWD, CoreSight component discovery
// and Mem-AP memory access (ARM IHI0031A).
package adiv5

// Register addresses. Bit 8 flags an Access Port register; the low byte is
// the register address, of which bits [7:4] select the bank via SELECT and
// bits [3:2] go on the wire.
const (
	APAccess uint16 = 0x100

	// DP registers.
	DPIDCode   uint16 = 0x0 // read: DPIDR (SWD)
	DPAbort    uint16 = 0x0 // write: ABORT
	DPCtrlStat uint16 = 0x4
	DPSelect   uint16 = 0x8
	DPRDBuff   uint16 = 0xC

	// AP registers.
	APCSW  = APAccess | 0x00
	APTAR  = APAccess | 0x04
	APDRW  = APAccess | 0x0C
	APBD0  = APAccess | 0x10
	APBD1  = APAccess | 0x14
	APBD2  = APAccess | 0x18
	APBD3  = APAccess | 0x1C
	APCFG  = APAccess | 0xF4
	APBase = APAccess | 0xF8
	APIDR  = APAccess | 0xFC
)

// ABORT register bits.
const (
	AbortOrunErrClr = 1 << 4
	AbortWDErrClr   = 1 << 3
	AbortStkErrClr  = 1 << 2
	AbortStkCmpClr  = 1 << 1
	AbortDAPAbort   = 1 << 0
)

// CTRL/STAT register bits.
const (
	CtrlStatCSysPwrUpAck = 1 << 31
	CtrlStatCSysPwrUpReq = 1 << 30
	CtrlStatCDbgPwrUpAck = 1 << 29
	CtrlStatCDbgPwrUpReq = 1 << 28
	CtrlStatCDbgRstAck   = 1 << 27
	CtrlStatCDbgRstReq   = 1 << 26
	CtrlStatWDataErr     = 1 << 7
	CtrlStatReadOK       = 1 << 6
	CtrlStatStickyErr    = 1 << 5
	CtrlStatStickyCmp    = 1 << 4
	CtrlStatStickyOrun   = 1 << 1
	CtrlStatOrunDetect   = 1 << 0
)

// stickyErrorMask selects the CTRL/STAT error flags ClearStickyErrors
// reports and clears.
const stickyErrorMask = CtrlStatWDataErr | CtrlStatStickyErr |
	CtrlStatStickyCmp | CtrlStatStickyOrun

// Mem-AP CSW bits.
const (
	CSWSizeByte      = 0
	CSWSizeHalfword  = 1
	CSWSizeWord      = 2
	CSWSizeMask      = 7 << 0
	CSWAddrIncOff    = 0 << 4
	CSWAddrIncSingle = 1 << 4
	CSWAddrIncMask   = 3 << 4
	CSWDeviceEn      = 1 << 6
	CSWTrInProg      = 1 << 7
	CSWSPIDEN        = 1 << 23
	CSWMasterDebug   = 1 << 29
	CSWHPROT         = 1 << 25
)

// IDR field checks for Access Port validity.
const (
	idrARMContinuation = 0x4  // bits [27:24]
	idrARMCode         = 0x3B // bits [23:17]
	idrClassMemAP      = 0x8  // bits [16:13]

	// IDRAHBAP is the IDR of the stock AHB-AP found on Cortex-M parts.
	IDRAHBAP = 0x24770011
)
