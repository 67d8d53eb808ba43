package cmd

import (
	"bytes"
	"testing"
)

func useAdapter(t *testing.T, adapter string, swd bool) {
	t.Helper()
	oldAdapter, oldSWD, oldQuirks := adapterType, useSWD, quirksFile
	adapterType, useSWD, quirksFile = adapter, swd, ""
	t.Cleanup(func() {
		adapterType, useSWD, quirksFile = oldAdapter, oldSWD, oldQuirks
	})
}

func runEndToEnd(t *testing.T) {
	t.Helper()
	dp, closer, err := openDebugPort()
	if err != nil {
		t.Fatalf("openDebugPort: %v", err)
	}
	defer closer()

	if err := dp.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if len(dp.APs) != 1 {
		t.Fatalf("found %d APs, want 1", len(dp.APs))
	}
	ap := dp.APs[0]

	comps, err := ap.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(comps) != 2 {
		t.Fatalf("found %d components, want 2", len(comps))
	}

	src := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03}
	if err := ap.MemWrite(0x20000001, src); err != nil {
		t.Fatalf("MemWrite: %v", err)
	}
	dest := make([]byte, len(src))
	if err := ap.MemRead(dest, 0x20000001); err != nil {
		t.Fatalf("MemRead: %v", err)
	}
	if !bytes.Equal(src, dest) {
		t.Fatalf("round trip: wrote % X, read % X", src, dest)
	}
}

func TestSimulatorEndToEndJTAG(t *testing.T) {
	useAdapter(t, "sim", false)
	runEndToEnd(t)
}

func TestSimulatorEndToEndSWD(t *testing.T) {
	useAdapter(t, "sim", true)
	runEndToEnd(t)
}
