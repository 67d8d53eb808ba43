package jtag

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const (
	idARMDP   = 0x0BA00477 // matches the built-in JTAG-DP quirk
	idSTM32   = 0x06418041
	idGeneric = 0x20000093
)

func scanOrFatal(t *testing.T, sim *SimTAP, extra ...Description) *Chain {
	t.Helper()
	chain, err := Scan(sim, extra...)
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	return chain
}

func TestScanEmptyChain(t *testing.T) {
	chain := scanOrFatal(t, NewSimTAP())
	if len(chain.Devices) != 0 {
		t.Fatalf("empty chain reported %d devices", len(chain.Devices))
	}
}

func TestScanEnumeratesDevices(t *testing.T) {
	sim := NewSimTAP(
		NewSimDevice(idARMDP, 4),
		NewSimDevice(idSTM32, 5),
		NewSimDevice(idGeneric, 6),
	)
	chain := scanOrFatal(t, sim)

	type devInfo struct {
		IDCode   uint32
		IRLength int
		Name     string
	}
	var got []devInfo
	for _, d := range chain.Devices {
		info := devInfo{IDCode: d.IDCode.Raw, IRLength: d.IRLength}
		if d.Desc != nil {
			info.Name = d.Desc.Name
		}
		got = append(got, info)
	}
	want := []devInfo{
		{idARMDP, 4, "ARM ADIv5 JTAG-DP"},
		{idSTM32, 5, "STM32, connectivity line"},
		{idGeneric, 6, ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("scanned devices mismatch (-want +got):\n%s", diff)
	}
}

func TestScanQuirkAfterHeuristic(t *testing.T) {
	// The heuristic device consumes the quirk device's leading capture bit;
	// the quirk path must reconstruct it.
	sim := NewSimTAP(
		NewSimDevice(idGeneric, 5),
		NewSimDevice(idARMDP, 4),
	)
	chain := scanOrFatal(t, sim)

	if got := chain.Devices[0].IRLength; got != 5 {
		t.Errorf("heuristic device IR length = %d, want 5", got)
	}
	if got := chain.Devices[1].IRLength; got != 4 {
		t.Errorf("quirk device IR length = %d, want 4", got)
	}
}

func TestScanTooManyDevices(t *testing.T) {
	devices := make([]*SimDevice, MaxDevices+1)
	for i := range devices {
		devices[i] = NewSimDevice(idGeneric, 4)
	}
	chain, err := Scan(NewSimTAP(devices...))
	if err == nil {
		t.Fatal("Scan() accepted an over-long chain")
	}
	if chain != nil && len(chain.Devices) != 0 {
		t.Fatalf("failed scan still reported %d devices", len(chain.Devices))
	}
}

func TestScanRejectsMissingIDCode(t *testing.T) {
	dev := NewSimDevice(idGeneric&^1, 4) // bit 0 clear: no identification register
	if _, err := Scan(NewSimTAP(dev)); err == nil {
		t.Fatal("Scan() accepted a device without IDCODE")
	}
}

func TestScanRejectsOverlongIR(t *testing.T) {
	if _, err := Scan(NewSimTAP(NewSimDevice(idGeneric, MaxIRLength+4))); err == nil {
		t.Fatal("Scan() accepted an IR longer than the limit")
	}
}

func TestScanRejectsQuirkCaptureMismatch(t *testing.T) {
	dev := NewSimDevice(idARMDP, 4)
	dev.IRCapture = 0x5 // disagrees with the table's expected 0x1
	if _, err := Scan(NewSimTAP(dev)); err == nil {
		t.Fatal("Scan() accepted a bad quirk capture")
	}
}

func TestScanExtraDescriptionsTakePriority(t *testing.T) {
	extra := Description{
		IDCode: idGeneric, Mask: 0xFFFFFFFF, Name: "house FPGA",
		Quirk: &IRQuirk{Length: 6, Capture: 0x1},
	}
	sim := NewSimTAP(NewSimDevice(idGeneric, 6))
	chain := scanOrFatal(t, sim, extra)

	d := chain.Devices[0]
	if d.Desc == nil || d.Desc.Name != "house FPGA" {
		t.Fatalf("extra description not applied: %v", d)
	}
	if d.IRLength != 6 {
		t.Fatalf("quirk length not applied: got %d", d.IRLength)
	}
}

func TestWriteIRCaching(t *testing.T) {
	simDev := NewSimDevice(idARMDP, 4)
	sim := NewSimTAP(simDev)
	chain := scanOrFatal(t, sim)
	dev := chain.Devices[0]

	if err := dev.WriteIR(0xA); err != nil {
		t.Fatalf("WriteIR: %v", err)
	}
	if got := simDev.IR(); got != 0xA {
		t.Fatalf("latched IR = 0x%X, want 0xA", got)
	}

	updates := simDev.IRUpdates
	clocks := sim.Clocks
	if err := dev.WriteIR(0xA); err != nil {
		t.Fatalf("repeated WriteIR: %v", err)
	}
	if simDev.IRUpdates != updates || sim.Clocks != clocks {
		t.Fatal("repeated WriteIR of the same instruction touched the chain")
	}

	if err := dev.WriteIR(0xB); err != nil {
		t.Fatalf("WriteIR after cache: %v", err)
	}
	if got := simDev.IR(); got != 0xB {
		t.Fatalf("latched IR = 0x%X, want 0xB", got)
	}
}

func TestWriteIRHoldsNeighboursInBypass(t *testing.T) {
	left := NewSimDevice(idGeneric, 5)
	mid := NewSimDevice(idARMDP, 4)
	right := NewSimDevice(idSTM32, 6)
	sim := NewSimTAP(left, mid, right)
	chain := scanOrFatal(t, sim)

	if err := chain.Devices[1].WriteIR(0xA); err != nil {
		t.Fatalf("WriteIR: %v", err)
	}
	if got := mid.IR(); got != 0xA {
		t.Errorf("target IR = 0x%X, want 0xA", got)
	}
	if got := left.IR(); got != 0x1F {
		t.Errorf("left neighbour IR = 0x%X, want BYPASS 0x1F", got)
	}
	if got := right.IR(); got != 0x3F {
		t.Errorf("right neighbour IR = 0x%X, want BYPASS 0x3F", got)
	}
}

// echoDR is a single scannable register behind one instruction.
type echoDR struct {
	instr   uint32
	length  int
	value   uint64
	updates int
}

func (e *echoDR) DRLength(ir uint32) int {
	if ir == e.instr {
		return e.length
	}
	return 0
}
func (e *echoDR) CaptureDR(uint32) uint64       { return e.value }
func (e *echoDR) UpdateDR(_ uint32, val uint64) { e.value = val; e.updates++ }
func (e *echoDR) Reset()                        { e.value = 0 }

func TestShiftDRBracketsBypassNeighbours(t *testing.T) {
	reg := &echoDR{instr: 0xA, length: 35}
	mid := NewSimDevice(idARMDP, 4)
	mid.Handler = reg
	sim := NewSimTAP(NewSimDevice(idGeneric, 5), mid, NewSimDevice(idSTM32, 6))
	chain := scanOrFatal(t, sim)
	dev := chain.Devices[1]

	// Scan went through Test-Logic-Reset, which cleared the register; load
	// the capture fixture now.
	reg.value = 0x123456789

	if err := dev.WriteIR(0xA); err != nil {
		t.Fatalf("WriteIR: %v", err)
	}

	write := func(v uint64) uint64 {
		t.Helper()
		in := make([]byte, 5)
		out := make([]byte, 5)
		for i := range in {
			in[i] = byte(v >> (8 * uint(i)))
		}
		if err := dev.ShiftDR(out, in, 35); err != nil {
			t.Fatalf("ShiftDR: %v", err)
		}
		var got uint64
		for i, b := range out {
			got |= uint64(b) << (8 * uint(i))
		}
		return got & (1<<35 - 1)
	}

	if got := write(0x5A5A5A5A5); got != 0x123456789 {
		t.Fatalf("first shift captured 0x%X, want 0x123456789", got)
	}
	if got := write(0x000000000); got != 0x5A5A5A5A5 {
		t.Fatalf("second shift captured 0x%X, want 0x5A5A5A5A5", got)
	}
	if reg.updates != 2 {
		t.Fatalf("register updated %d times, want 2", reg.updates)
	}
}

func TestLoadQuirkFileRoundTrip(t *testing.T) {
	const src = `
// parts the factory floor cares about
device "ARM ADIv5 JTAG-DP" idcode 0x0BA00477 mask 0x0FFF0FFF ir 4 expect 0x1
device "Mystery FPGA" idcode 0x20000093 mask 0x0FFFFFFF
`
	got, err := ParseQuirks("test", strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseQuirks: %v", err)
	}
	want := []Description{
		{IDCode: 0x0BA00477, Mask: 0x0FFF0FFF, Name: "ARM ADIv5 JTAG-DP", Quirk: &IRQuirk{Length: 4, Capture: 0x1}},
		{IDCode: 0x20000093, Mask: 0x0FFFFFFF, Name: "Mystery FPGA"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("parsed quirks mismatch (-want +got):\n%s", diff)
	}
}

func TestParseQuirksRejectsBadIRLength(t *testing.T) {
	src := `device "bad" idcode 0x1 mask 0xFFFFFFFF ir 99 expect 0x1`
	if _, err := ParseQuirks("test", strings.NewReader(src)); err == nil {
		t.Fatal("ParseQuirks accepted an out-of-range IR length")
	}
}

func TestParseQuirksRejectsGarbage(t *testing.T) {
	if _, err := ParseQuirks("test", strings.NewReader("device without a name")); err == nil {
		t.Fatal("ParseQuirks accepted malformed input")
	}
}
