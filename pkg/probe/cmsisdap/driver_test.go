package cmsisdap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type jtagSegment struct {
	Cycles  int
	TMS     bool
	Capture bool
	TDI     []byte
}

// fakeProbe emulates just enough of a CMSIS-DAP probe: JTAG sequences echo
// TDI back on TDO, SWD sequences run through a loopback bit FIFO.
type fakeProbe struct {
	port      byte
	clock     uint32
	resets    int
	jtagCalls int
	segments  []jtagSegment
	swdBits   []bool
	closed    bool
}

func (f *fakeProbe) PacketSize() int { return DefaultPacketSize }

func (f *fakeProbe) Close() error {
	f.closed = true
	return nil
}

func (f *fakeProbe) RoundTrip(cmd []byte) ([]byte, error) {
	switch cmd[0] {
	case CmdInfo:
		var s string
		switch cmd[1] {
		case InfoVendorID:
			s = "Fake"
		case InfoProductID:
			s = "Fake CMSIS-DAP"
		case InfoSerialNum:
			s = "0001"
		case InfoFirmwareVer:
			s = "2.0.0"
		}
		return append([]byte{CmdInfo, byte(len(s))}, s...), nil
	case CmdConnect:
		f.port = cmd[1]
		return []byte{CmdConnect, cmd[1]}, nil
	case CmdDisconnect:
		return []byte{CmdDisconnect, statusOK}, nil
	case CmdResetTarget:
		f.resets++
		return []byte{CmdResetTarget, statusOK, 1}, nil
	case CmdSWJClock:
		f.clock = binary.LittleEndian.Uint32(cmd[1:5])
		return []byte{CmdSWJClock, statusOK}, nil
	case CmdJTAGSequence:
		return f.jtagSequence(cmd), nil
	case CmdSWDSequence:
		return f.swdSequence(cmd), nil
	}
	return nil, fmt.Errorf("fake: unexpected command 0x%02X", cmd[0])
}

func (f *fakeProbe) jtagSequence(cmd []byte) []byte {
	f.jtagCalls++
	resp := []byte{CmdJTAGSequence, statusOK}

	offset := 2
	for i := 0; i < int(cmd[1]); i++ {
		info := cmd[offset]
		offset++
		cycles := int(info & seqTCKMask)
		if cycles == 0 {
			cycles = 64
		}
		n := (cycles + 7) / 8
		tdi := make([]byte, n)
		copy(tdi, cmd[offset:offset+n])
		offset += n

		f.segments = append(f.segments, jtagSegment{
			Cycles:  cycles,
			TMS:     info&seqTMS != 0,
			Capture: info&seqTDO != 0,
			TDI:     tdi,
		})
		if info&seqTDO != 0 {
			tdo := make([]byte, n)
			copy(tdo, tdi)
			if rem := cycles % 8; rem != 0 {
				tdo[n-1] &= byte(1<<uint(rem)) - 1
			}
			resp = append(resp, tdo...)
		}
	}
	return resp
}

func (f *fakeProbe) swdSequence(cmd []byte) []byte {
	info := cmd[2]
	cycles := int(info & swdSeqCountMask)
	if cycles == 0 {
		cycles = 64
	}

	if info&swdSeqInput == 0 {
		data := cmd[3:]
		for i := 0; i < cycles; i++ {
			f.swdBits = append(f.swdBits, data[i/8]&(1<<uint(i%8)) != 0)
		}
		return []byte{CmdSWDSequence, statusOK}
	}

	out := make([]byte, (cycles+7)/8)
	for i := 0; i < cycles; i++ {
		var bit bool
		if len(f.swdBits) > 0 {
			bit = f.swdBits[0]
			f.swdBits = f.swdBits[1:]
		}
		if bit {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return append([]byte{CmdSWDSequence, statusOK}, out...)
}

func newFakeDriver(t *testing.T, port byte) (*fakeProbe, *Driver) {
	t.Helper()
	fake := &fakeProbe{}
	d, err := newDriver(fake, port)
	if err != nil {
		t.Fatalf("newDriver: %v", err)
	}
	return fake, d
}

func TestDriverOpensAndConfigures(t *testing.T) {
	fake, d := newFakeDriver(t, PortJTAG)

	if fake.port != PortJTAG {
		t.Errorf("connected port %d, want %d", fake.port, PortJTAG)
	}
	if fake.clock != 1_000_000 {
		t.Errorf("clock = %d Hz, want 1 MHz", fake.clock)
	}
	want := Info{Vendor: "Fake", Product: "Fake CMSIS-DAP", Serial: "0001", Firmware: "2.0.0"}
	if diff := cmp.Diff(want, d.Info()); diff != "" {
		t.Errorf("info mismatch (-want +got):\n%s", diff)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fake.closed {
		t.Error("Close left the transport open")
	}
}

func TestDriverResetTAP(t *testing.T) {
	fake, d := newFakeDriver(t, PortJTAG)
	if err := d.ResetTAP(); err != nil {
		t.Fatalf("ResetTAP: %v", err)
	}
	if fake.resets != 1 {
		t.Fatalf("reset commands = %d", fake.resets)
	}
}

func TestDriverNextEchoesTDO(t *testing.T) {
	fake, d := newFakeDriver(t, PortJTAG)

	got, err := d.Next(true, true)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !got {
		t.Error("TDI high echoed as low")
	}
	got, err = d.Next(false, false)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got {
		t.Error("TDI low echoed as high")
	}

	last := fake.segments[len(fake.segments)-1]
	if last.Cycles != 1 || last.TMS || !last.Capture {
		t.Errorf("last segment = %+v, want 1 captured cycle with TMS low", last)
	}
}

func TestDriverTMSSequenceRuns(t *testing.T) {
	fake, d := newFakeDriver(t, PortJTAG)

	// The soft reset pattern: five TMS-high cycles then one low.
	if err := d.TMSSequence(0x1F, 6); err != nil {
		t.Fatalf("TMSSequence: %v", err)
	}
	want := []jtagSegment{
		{Cycles: 5, TMS: true, TDI: []byte{0xFF}},
		{Cycles: 1, TMS: false, TDI: []byte{0xFF}},
	}
	if diff := cmp.Diff(want, fake.segments); diff != "" {
		t.Fatalf("segments mismatch (-want +got):\n%s", diff)
	}
}

func TestDriverTDISequenceNilMeansOnes(t *testing.T) {
	fake, d := newFakeDriver(t, PortJTAG)

	if err := d.TDISequence(false, nil, 20); err != nil {
		t.Fatalf("TDISequence: %v", err)
	}
	want := []jtagSegment{{Cycles: 20, TDI: []byte{0xFF, 0xFF, 0x0F}}}
	if diff := cmp.Diff(want, fake.segments); diff != "" {
		t.Fatalf("segments mismatch (-want +got):\n%s", diff)
	}
}

func TestDriverTDITDOSequenceSplitsAndStitches(t *testing.T) {
	fake, d := newFakeDriver(t, PortJTAG)

	const nbits = 100
	in := make([]byte, (nbits+7)/8)
	for i := range in {
		in[i] = byte(i*17 + 3)
	}
	out := make([]byte, len(in))
	if err := d.TDITDOSequence(out, true, in, nbits); err != nil {
		t.Fatalf("TDITDOSequence: %v", err)
	}

	// A 100-bit shift with final TMS: 64 + 35 cycles low, then 1 high.
	var shape []jtagSegment
	for _, s := range fake.segments {
		shape = append(shape, jtagSegment{Cycles: s.Cycles, TMS: s.TMS, Capture: s.Capture})
	}
	want := []jtagSegment{
		{Cycles: 64, Capture: true},
		{Cycles: 35, Capture: true},
		{Cycles: 1, TMS: true, Capture: true},
	}
	if diff := cmp.Diff(want, shape); diff != "" {
		t.Fatalf("segment shape mismatch (-want +got):\n%s", diff)
	}

	mask := append([]byte(nil), in...)
	mask[len(mask)-1] &= 0x0F
	if !bytes.Equal(out, mask) {
		t.Fatalf("echo mismatch:\n in % X\nout % X", mask, out)
	}
}

func TestDriverBatchesOversizedShifts(t *testing.T) {
	fake, d := newFakeDriver(t, PortJTAG)
	fake.jtagCalls = 0

	// 496 captured bits cannot ride in one 64-byte packet.
	const nbits = 496
	in := make([]byte, nbits/8)
	for i := range in {
		in[i] = byte(i)
	}
	out := make([]byte, len(in))
	if err := d.TDITDOSequence(out, false, in, nbits); err != nil {
		t.Fatalf("TDITDOSequence: %v", err)
	}
	if fake.jtagCalls < 2 {
		t.Errorf("shift used %d packets, expected a split", fake.jtagCalls)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("echo mismatch after batching:\n in % X\nout % X", in, out)
	}
}

func TestSWDPortLoopback(t *testing.T) {
	fake, d := newFakeDriver(t, PortSWD)
	p := &SWDPort{d: d}

	if fake.port != PortSWD {
		t.Fatalf("connected port %d, want %d", fake.port, PortSWD)
	}

	if err := p.SeqOut(0x2D, 6); err != nil {
		t.Fatalf("SeqOut: %v", err)
	}
	got, err := p.SeqIn(6)
	if err != nil {
		t.Fatalf("SeqIn: %v", err)
	}
	if got != 0x2D {
		t.Fatalf("loopback = 0x%X, want 0x2D", got)
	}

	if err := p.SeqOutParity(0xDEADBEEF, 32); err != nil {
		t.Fatalf("SeqOutParity: %v", err)
	}
	value, ok, err := p.SeqInParity(32)
	if err != nil {
		t.Fatalf("SeqInParity: %v", err)
	}
	if !ok {
		t.Error("parity failed on a clean loopback")
	}
	if value != 0xDEADBEEF {
		t.Fatalf("value = 0x%08X, want 0xDEADBEEF", value)
	}
}

func TestSWDPortDetectsBadParity(t *testing.T) {
	fake, d := newFakeDriver(t, PortSWD)
	p := &SWDPort{d: d}

	// Value 1 with a zero parity bit: even parity requires one.
	fake.swdBits = make([]bool, 33)
	fake.swdBits[0] = true

	value, ok, err := p.SeqInParity(32)
	if err != nil {
		t.Fatalf("SeqInParity: %v", err)
	}
	if ok {
		t.Error("corrupt parity accepted")
	}
	if value != 1 {
		t.Fatalf("value = %d, want 1", value)
	}
}
