package adiv5

// CoreSight component identification (ADIv5 chapter 14). Every component
// occupies a 4 KiB block whose last registers carry the component and
// peripheral identification words, byte-wise across word reads.
const (
	pidr0Offset = 0xFE0 // PIDR0..3, one byte each
	pidr4Offset = 0xFD0
	cidr0Offset = 0xFF0 // CIDR0..3, one byte each

	cidPreamble  = 0xB105000D
	cidClassMask = 0xF << 12

	pidrRevMask uint64 = 0x0FFF00000
	pidrPNMask  uint64 = 0xFFF
	pidrARMBits uint64 = 0x4000BB000
)

// Component classes from the CIDR class nibble.
const (
	ClassGeneric   = 0x0
	ClassROMTable  = 0x1
	ClassDebug     = 0x9
	ClassPTB       = 0xB
	ClassDESS      = 0xD
	ClassGenericIP = 0xE
	ClassPrimeCell = 0xF
)

// EntryOffset is a ROM table entry's offset from the table base: the entry
// with its low 12 bits dropped, interpreted as a signed two's-complement
// quantity so tables can point below themselves.
type EntryOffset int32

func entryOffset(entry uint32) EntryOffset {
	return EntryOffset(int32(entry &^ 0xFFF))
}

// Component is one identified CoreSight component.
type Component struct {
	Base  uint32
	CIDR  uint32
	PIDR  uint64
	Class uint8
	Part  uint16
	Name  string
}

type coreArch uint8

const (
	archNone coreArch = iota
	archCortexM
	archCortexA
)

type partInfo struct {
	part uint16
	arch coreArch
	name string
}

// partTable maps ARM peripheral ID part numbers to what they are. Cortex-M
// system control spaces are tagged but never dispatched from the walk; the
// cores sit directly behind the AP and are probed there.
var partTable = []partInfo{
	{0x000, archCortexM, "Cortex-M3 SCS"},
	{0x001, archNone, "Cortex-M3 ITM"},
	{0x002, archNone, "Cortex-M3 DWT"},
	{0x003, archNone, "Cortex-M3 FPB"},
	{0x008, archCortexM, "Cortex-M0 SCS"},
	{0x00A, archNone, "Cortex-M0 DWT"},
	{0x00B, archNone, "Cortex-M0 BPU"},
	{0x00C, archCortexM, "Cortex-M4 SCS"},
	{0x4C7, archNone, "Cortex-M7 PPB ROM table"},
	{0x906, archNone, "CoreSight CTI"},
	{0x907, archNone, "CoreSight ETB"},
	{0x908, archNone, "CoreSight trace funnel"},
	{0x912, archNone, "CoreSight TPIU"},
	{0x913, archNone, "CoreSight ITM"},
	{0x914, archNone, "CoreSight SWO"},
	{0x923, archNone, "Cortex-M3 TPIU"},
	{0x924, archNone, "Cortex-M3 ETM"},
	{0x925, archNone, "Cortex-M4 ETM"},
	{0x961, archNone, "CoreSight TMC"},
	{0x962, archNone, "CoreSight STM"},
	{0x9A1, archNone, "Cortex-M4 TPIU"},
	{0xC05, archCortexA, "Cortex-A5 debug unit"},
	{0xC07, archCortexA, "Cortex-A7 debug unit"},
	{0xC08, archCortexA, "Cortex-A8 debug unit"},
	{0xC09, archCortexA, "Cortex-A9 debug unit"},
}

func lookupPart(part uint16) (partInfo, bool) {
	for _, p := range partTable {
		if p.part == part {
			return p, true
		}
	}
	return partInfo{}, false
}

// Discover walks the component structure behind this AP's debug base
// address and returns every identified component. Malformed blocks are
// skipped, not fatal: a half-populated ROM table is everyday hardware.
func (ap *AP) Discover() ([]Component, error) {
	visited := make(map[uint32]bool)
	var comps []Component
	if err := ap.discover(ap.Base, visited, &comps); err != nil {
		return nil, err
	}
	return comps, nil
}

func (ap *AP) discover(addr uint32, visited map[uint32]bool, comps *[]Component) error {
	addr &^= 3
	if visited[addr] {
		log.Warnf("adiv5: 0x%08X: ROM table loops back on itself, skipping", addr)
		return nil
	}
	visited[addr] = true

	var pidr uint64
	for i := uint32(0); i < 4; i++ {
		v, err := ap.MemRead32(addr + pidr0Offset + 4*i)
		if err != nil {
			log.Warnf("adiv5: 0x%08X: fault reading ID registers: %v", addr, err)
			return nil
		}
		pidr |= uint64(v&0xFF) << (8 * i)
	}
	v, err := ap.MemRead32(addr + pidr4Offset)
	if err != nil {
		log.Warnf("adiv5: 0x%08X: fault reading ID registers: %v", addr, err)
		return nil
	}
	pidr |= uint64(v) << 32

	var cidr uint32
	for i := uint32(0); i < 4; i++ {
		v, err := ap.MemRead32(addr + cidr0Offset + 4*i)
		if err != nil {
			log.Warnf("adiv5: 0x%08X: fault reading ID registers: %v", addr, err)
			return nil
		}
		cidr |= (v & 0xFF) << (8 * i)
	}

	if cidr&^uint32(cidClassMask) != cidPreamble {
		log.Debugf("adiv5: 0x%08X: CIDR 0x%08X lacks the component preamble", addr, cidr)
		return nil
	}
	class := uint8((cidr & cidClassMask) >> 12)

	if class == ClassROMTable {
		for i := uint32(0); i < 256; i++ {
			entry, err := ap.MemRead32(addr + 4*i)
			if err != nil {
				log.Warnf("adiv5: 0x%08X: fault reading ROM table entry %d: %v", addr, i, err)
				continue
			}
			if entry == 0 {
				break
			}
			if entry&1 == 0 {
				continue
			}
			child := addr + uint32(entryOffset(entry))
			if err := ap.discover(child, visited, comps); err != nil {
				return err
			}
		}
		return nil
	}

	if pidr&^(pidrRevMask|pidrPNMask) != pidrARMBits {
		log.Debugf("adiv5: 0x%08X: PIDR 0x%09X is not an ARM part", addr, pidr)
		return nil
	}

	part := uint16(pidr & pidrPNMask)
	comp := Component{
		Base:  addr,
		CIDR:  cidr,
		PIDR:  pidr,
		Class: class,
		Part:  part,
	}
	info, known := lookupPart(part)
	if known {
		comp.Name = info.name
	}
	*comps = append(*comps, comp)
	log.Debugf("adiv5: 0x%08X: class %X part 0x%03X %s", addr, class, part, comp.Name)

	if known && info.arch == archCortexA && ap.dp.CortexAProbe != nil {
		if err := ap.dp.CortexAProbe(ap, addr); err != nil {
			log.Warnf("adiv5: 0x%08X: Cortex-A probe: %v", addr, err)
		}
	}
	return nil
}
