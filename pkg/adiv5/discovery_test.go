package adiv5

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const romBase = 0xE00FF000

func newDiscoveryStack(t *testing.T) (*SimTarget, *DP) {
	t.Helper()
	target, _, dp := newJTAGStack(t)
	target.SetBase(romBase)
	return target, dp
}

func initAP(t *testing.T, dp *DP) *AP {
	t.Helper()
	if err := dp.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if len(dp.APs) != 1 {
		t.Fatalf("Init found %d APs, want 1", len(dp.APs))
	}
	return dp.APs[0]
}

func TestDiscoverWalksROMTable(t *testing.T) {
	target, dp := newDiscoveryStack(t)
	// Positive and negative offsets, a non-present entry and a zero
	// terminator with a stale entry behind it.
	target.InstallROMTable(romBase, []uint32{
		0x00001003,             // +0x1000, present
		0xFFFFF003,             // -0x1000, present
		0x00002002,             // not present, skipped
		0,                      // terminator
		0x00003003,             // past the terminator, never read
	})
	target.InstallComponent(romBase+0x1000, ClassGenericIP, 0x00C)
	target.InstallComponent(romBase-0x1000, ClassDebug, 0x913)
	target.InstallComponent(romBase+0x3000, ClassDebug, 0x906)

	ap := initAP(t, dp)
	comps, err := ap.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	type found struct {
		Base uint32
		Name string
	}
	var got []found
	for _, c := range comps {
		got = append(got, found{c.Base, c.Name})
	}
	want := []found{
		{romBase + 0x1000, "Cortex-M4 SCS"},
		{romBase - 0x1000, "CoreSight ITM"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("components mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverSurvivesROMTableCycle(t *testing.T) {
	target, dp := newDiscoveryStack(t)
	// A table pointing at a child that points straight back.
	target.InstallROMTable(romBase, []uint32{0x00001003})
	target.InstallROMTable(romBase+0x1000, []uint32{0xFFFFF003})

	ap := initAP(t, dp)
	comps, err := ap.Discover()
	if err != nil {
		t.Fatalf("Discover on cyclic table: %v", err)
	}
	if len(comps) != 0 {
		t.Fatalf("cyclic tables yielded %d components", len(comps))
	}
}

func TestDiscoverSelfReferencingEntry(t *testing.T) {
	target, dp := newDiscoveryStack(t)
	target.InstallROMTable(romBase, []uint32{0x00000003}) // offset 0: itself

	ap := initAP(t, dp)
	if _, err := ap.Discover(); err != nil {
		t.Fatalf("Discover on self-reference: %v", err)
	}
}

func TestDiscoverSkipsBadPreamble(t *testing.T) {
	target, dp := newDiscoveryStack(t)
	target.InstallROMTable(romBase, []uint32{0x00001003})
	// Garbage where a component should be.
	target.SetWord(romBase+0x1000+cidr0Offset, 0xDEADBEEF)

	ap := initAP(t, dp)
	comps, err := ap.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(comps) != 0 {
		t.Fatalf("bad preamble yielded %d components", len(comps))
	}
}

func TestDiscoverDispatchesCortexA(t *testing.T) {
	target, dp := newDiscoveryStack(t)
	target.InstallROMTable(romBase, []uint32{0x00001003})
	target.InstallComponent(romBase+0x1000, ClassDebug, 0xC09)

	var bases []uint32
	dp.CortexAProbe = func(_ *AP, base uint32) error {
		bases = append(bases, base)
		return nil
	}

	ap := initAP(t, dp)
	if _, err := ap.Discover(); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(bases) != 1 || bases[0] != romBase+0x1000 {
		t.Fatalf("Cortex-A probe calls = %#x, want one at the debug unit", bases)
	}
}

func TestDiscoverDoesNotDispatchCortexM(t *testing.T) {
	// A classic Cortex-M4 layout: the walk must record the SCS but leave
	// core probing to the AP-level hook.
	target, dp := newDiscoveryStack(t)
	target.DPIDR = 0x1BA01477
	target.InstallROMTable(romBase, []uint32{0x00001003})
	target.InstallComponent(romBase+0x1000, ClassGenericIP, 0x00C)

	aCalls := 0
	dp.CortexAProbe = func(*AP, uint32) error { aCalls++; return nil }

	ap := initAP(t, dp)
	comps, err := ap.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(comps) != 1 || comps[0].Part != 0x00C {
		t.Fatalf("components = %+v, want just the SCS", comps)
	}
	if aCalls != 0 {
		t.Fatal("Cortex-M system claimed by the Cortex-A path")
	}
}

func TestEntryOffsetSigned(t *testing.T) {
	tests := []struct {
		entry uint32
		want  EntryOffset
	}{
		{0x00001003, 0x1000},
		{0xFFFFF003, -0x1000},
		{0x00000003, 0},
		{0x80000001, -0x80000000},
	}
	for _, tt := range tests {
		if got := entryOffset(tt.entry); got != tt.want {
			t.Errorf("entryOffset(0x%08X) = %d, want %d", tt.entry, got, tt.want)
		}
	}
}
