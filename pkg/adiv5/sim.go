package adiv5

// SimTarget is a register-level model of a DP with Mem-APs behind it,
// backed by sparse byte memory. It knows nothing about wire protocols; the
// JTAGDPHandler and SimSWDDriver adapters put it behind a simulated scan
// chain or a simulated SWD link, each adding that wire's own pipelining.
type SimTarget struct {
	DPIDR    uint32
	CtrlStat uint32

	// PendingWaits makes the next transactions answer WAIT. A DAPABORT
	// clears it, like aborting the stuck transaction would.
	PendingWaits int

	// Transaction accounting for tests.
	TARWrites    int
	SelectWrites int
	AbortWrites  []uint32

	sel        uint32
	readBuffer uint32
	aps        map[uint8]*simAP
	mem        map[uint32]byte
}

type simAP struct {
	idr  uint32
	cfg  uint32
	base uint32
	csw  uint32
	tar  uint32
}

// NewSimTarget builds a target with one AHB-AP at AP select 0. The AP's
// debug base address starts invalid; point it at a ROM table with SetBase.
func NewSimTarget(dpidr uint32) *SimTarget {
	return &SimTarget{
		DPIDR: dpidr,
		aps: map[uint8]*simAP{
			0: {idr: IDRAHBAP, base: 0xFFFFFFFF, csw: CSWDeviceEn},
		},
		mem: make(map[uint32]byte),
	}
}

// SetBase points AP 0's debug base address somewhere.
func (t *SimTarget) SetBase(base uint32) {
	t.aps[0].base = base
}

// takeWait consumes one scripted WAIT.
func (t *SimTarget) takeWait() bool {
	if t.PendingWaits > 0 {
		t.PendingWaits--
		return true
	}
	return false
}

// SetWord pokes a word of target memory.
func (t *SimTarget) SetWord(addr, value uint32) {
	for i := uint32(0); i < 4; i++ {
		t.mem[addr+i] = byte(value >> (8 * i))
	}
}

// Word peeks a word of target memory.
func (t *SimTarget) Word(addr uint32) uint32 {
	var v uint32
	for i := uint32(0); i < 4; i++ {
		v |= uint32(t.mem[addr+i]) << (8 * i)
	}
	return v
}

// InstallComponent writes the CIDR/PIDR identification block of a CoreSight
// component at base.
func (t *SimTarget) InstallComponent(base uint32, class uint8, part uint16) {
	pidr := pidrARMBits | uint64(part)
	for i := uint32(0); i < 4; i++ {
		t.SetWord(base+pidr0Offset+4*i, uint32(pidr>>(8*i))&0xFF)
	}
	t.SetWord(base+pidr4Offset, uint32(pidr>>32))

	cidr := cidPreamble | uint32(class)<<12
	for i := uint32(0); i < 4; i++ {
		t.SetWord(base+cidr0Offset+4*i, (cidr>>(8*i))&0xFF)
	}
}

// InstallROMTable writes a ROM table at base with the given raw entries.
func (t *SimTarget) InstallROMTable(base uint32, entries []uint32) {
	t.InstallComponent(base, ClassROMTable, 0x4C7)
	for i, e := range entries {
		t.SetWord(base+4*uint32(i), e)
	}
}

// Access executes one transaction immediately and returns its result. The
// wire adapters stage results to model their pipelines.
func (t *SimTarget) Access(rnw bool, addr uint16, value uint32) uint32 {
	if addr&APAccess != 0 {
		return t.apAccess(rnw, uint8(addr), value)
	}
	if rnw {
		switch addr & 0xC {
		case DPIDCode:
			return t.DPIDR
		case DPCtrlStat:
			return t.CtrlStat
		case DPSelect:
			return t.sel
		case DPRDBuff:
			return t.readBuffer
		}
		return 0
	}
	switch addr & 0xC {
	case DPAbort:
		t.WriteAbort(value)
	case DPCtrlStat:
		t.CtrlStat = value
		// Power comes up instantly in simulation.
		if value&CtrlStatCSysPwrUpReq != 0 {
			t.CtrlStat |= CtrlStatCSysPwrUpAck
		}
		if value&CtrlStatCDbgPwrUpReq != 0 {
			t.CtrlStat |= CtrlStatCDbgPwrUpAck
		}
	case DPSelect:
		t.sel = value
		t.SelectWrites++
	}
	return 0
}

// WriteAbort applies an ABORT register write.
func (t *SimTarget) WriteAbort(value uint32) {
	t.AbortWrites = append(t.AbortWrites, value)
	if value&AbortDAPAbort != 0 {
		t.PendingWaits = 0
	}
	if value&AbortOrunErrClr != 0 {
		t.CtrlStat &^= CtrlStatStickyOrun
	}
	if value&AbortWDErrClr != 0 {
		t.CtrlStat &^= CtrlStatWDataErr
	}
	if value&AbortStkErrClr != 0 {
		t.CtrlStat &^= CtrlStatStickyErr
	}
	if value&AbortStkCmpClr != 0 {
		t.CtrlStat &^= CtrlStatStickyCmp
	}
}

func (t *SimTarget) apAccess(rnw bool, addr uint8, value uint32) uint32 {
	apsel := uint8(t.sel >> 24)
	reg := uint8(t.sel)&0xF0 | addr&0xC
	ap, ok := t.aps[apsel]
	if !ok {
		return 0
	}

	if rnw {
		var v uint32
		switch reg {
		case 0x00:
			v = ap.csw
		case 0x04:
			v = ap.tar
		case 0x0C:
			v = t.drwRead(ap)
		case 0xF4:
			v = ap.cfg
		case 0xF8:
			v = ap.base
		case 0xFC:
			v = ap.idr
		}
		t.readBuffer = v
		return v
	}

	switch reg {
	case 0x00:
		ap.csw = value
	case 0x04:
		ap.tar = value
		t.TARWrites++
	case 0x0C:
		t.drwWrite(ap, value)
	}
	return 0
}

func cswBytes(csw uint32) uint32 {
	switch csw & CSWSizeMask {
	case CSWSizeByte:
		return 1
	case CSWSizeHalfword:
		return 2
	default:
		return 4
	}
}

// incTAR advances the TAR the way the silicon does: the auto-increment is
// only architected across the low 10 bits.
func (ap *simAP) incTAR(size uint32) {
	if ap.csw&CSWAddrIncMask == CSWAddrIncSingle {
		ap.tar = ap.tar&^0x3FF | (ap.tar+size)&0x3FF
	}
}

func (t *SimTarget) drwRead(ap *simAP) uint32 {
	size := cswBytes(ap.csw)
	var v uint32
	switch size {
	case 1:
		v = uint32(t.mem[ap.tar]) << ((ap.tar & 3) * 8)
	case 2:
		a := ap.tar &^ 1
		v = (uint32(t.mem[a]) | uint32(t.mem[a+1])<<8) << ((ap.tar & 2) * 8)
	default:
		v = t.Word(ap.tar &^ 3)
	}
	ap.incTAR(size)
	return v
}

func (t *SimTarget) drwWrite(ap *simAP, value uint32) {
	size := cswBytes(ap.csw)
	switch size {
	case 1:
		t.mem[ap.tar] = byte(value >> ((ap.tar & 3) * 8))
	case 2:
		a := ap.tar &^ 1
		half := uint16(value >> ((ap.tar & 2) * 8))
		t.mem[a] = byte(half)
		t.mem[a+1] = byte(half >> 8)
	default:
		t.SetWord(ap.tar&^3, value)
	}
	ap.incTAR(size)
}

// JTAGDPHandler puts a SimTarget behind a simulated JTAG device: it decodes
// the 35-bit DPACC/APACC/ABORT data registers. The acknowledge captured in
// a scan reflects the DP's readiness for that scan's request; the data bits
// carry the previous completed transaction's result, which is the JTAG-DP
// read pipeline.
type JTAGDPHandler struct {
	Target *SimTarget

	// BadAckNext makes the next transaction answer with an undefined
	// acknowledge code.
	BadAckNext bool

	// Shifts counts DPACC/APACC scans, WAIT-discarded ones included.
	Shifts int

	data uint32
}

func (h *JTAGDPHandler) DRLength(ir uint32) int {
	switch ir {
	case irAbort, irDPACC, irAPACC:
		return 35
	}
	return 0
}

func (h *JTAGDPHandler) CaptureDR(ir uint32) uint64 {
	if ir == irAbort {
		return 0
	}
	ack := uint64(jtagAckOK)
	switch {
	case h.BadAckNext:
		ack = 0x7
	case h.Target.PendingWaits > 0:
		ack = jtagAckWait
	}
	return uint64(h.data)<<3 | ack
}

func (h *JTAGDPHandler) UpdateDR(ir uint32, value uint64) {
	if ir == irAbort {
		h.Target.WriteAbort(uint32(value >> 3))
		return
	}
	h.Shifts++
	if h.BadAckNext {
		h.BadAckNext = false
		return
	}
	if h.Target.takeWait() {
		// Busy: the request is discarded and must be retried.
		return
	}
	rnw := value&1 != 0
	addr := uint16(value>>1&0x3) << 2
	if ir == irAPACC {
		addr |= APAccess
	}
	result := h.Target.Access(rnw, addr, uint32(value>>3))
	if rnw {
		h.data = result
	}
}

func (h *JTAGDPHandler) Reset() {
	h.data = 0
}

// SimSWDDriver puts a SimTarget behind the SWDDriver interface. AP reads
// are posted, delivering the previous read's value; DP reads complete
// immediately.
type SimSWDDriver struct {
	Target *SimTarget

	// Switched records that the JTAG-to-SWD selection sequence arrived
	// after a line reset.
	Switched   bool
	LineResets int

	// BadParity corrupts the next read's parity bit.
	BadParity bool

	// FaultNext makes the next request answer FAULT.
	FaultNext bool

	highRun      int
	ack          uint32
	readValue    uint32
	writeAddr    uint16
	writePending bool
}

func (d *SimSWDDriver) trackReset(value uint32, cycles int) {
	for i := 0; i < cycles; i++ {
		if value&(1<<uint(i)) != 0 {
			d.highRun++
			if d.highRun == 50 {
				d.LineResets++
			}
		} else {
			d.highRun = 0
		}
	}
}

func (d *SimSWDDriver) SeqOut(value uint32, cycles int) error {
	d.trackReset(value, cycles)

	switch {
	case cycles == 16 && uint16(value) == jtagToSWD && d.LineResets > 0:
		d.Switched = true
	case cycles == 8 && value&0x81 == 0x81:
		d.request(uint8(value))
	}
	return nil
}

func (d *SimSWDDriver) request(req uint8) {
	apndp := req&0x02 != 0
	rnw := req&0x04 != 0
	addr := uint16(req>>1) & 0xC
	if apndp {
		addr |= APAccess
	}

	switch {
	case d.FaultNext:
		d.FaultNext = false
		d.ack = swdAckFault
	case d.Target.takeWait():
		d.ack = swdAckWait
	default:
		d.ack = swdAckOK
		if rnw {
			if apndp {
				// Posted: hand out the buffered value, then execute.
				prev := d.Target.readBuffer
				d.Target.Access(rnw, addr, 0)
				d.readValue = prev
			} else {
				d.readValue = d.Target.Access(rnw, addr, 0)
			}
		} else {
			d.writeAddr = addr
			d.writePending = true
		}
	}
}

func (d *SimSWDDriver) SeqOutParity(value uint32, cycles int) error {
	d.trackReset(value, cycles)
	if d.writePending {
		d.writePending = false
		d.Target.Access(lowWrite, d.writeAddr, value)
	}
	return nil
}

func (d *SimSWDDriver) SeqIn(cycles int) (uint32, error) {
	d.highRun = 0
	return d.ack, nil
}

func (d *SimSWDDriver) SeqInParity(cycles int) (uint32, bool, error) {
	d.highRun = 0
	if d.BadParity {
		d.BadParity = false
		return d.readValue, false, nil
	}
	return d.readValue, true, nil
}
