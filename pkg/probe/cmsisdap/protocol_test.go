package cmsisdap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSequenceCycles(t *testing.T) {
	tests := []struct {
		cycles int
		want   int
	}{
		{1, 1},
		{35, 35},
		{63, 63},
		{64, 64}, // encoded as 0
	}
	for _, tt := range tests {
		s := NewSequence(tt.cycles, false, false, nil)
		if got := s.Cycles(); got != tt.want {
			t.Errorf("Cycles() for %d = %d", tt.cycles, got)
		}
	}
}

func TestEncodeJTAGSequence(t *testing.T) {
	p := NewProtocol(DefaultPacketSize)
	seqs := []Sequence{
		NewSequence(5, true, false, []byte{0x1F}),
		NewSequence(9, false, true, []byte{0xAA, 0x01}),
	}
	got := p.EncodeJTAGSequence(seqs)
	want := []byte{
		CmdJTAGSequence, 2,
		0x45, 0x1F,
		0x89, 0xAA, 0x01,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("command bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeJTAGSequence(t *testing.T) {
	p := NewProtocol(DefaultPacketSize)
	// First segment does not capture; the others take 2 and 1 TDO bytes.
	seqs := []Sequence{
		NewSequence(5, true, false, []byte{0x1F}),
		NewSequence(9, false, true, []byte{0, 0}),
		NewSequence(3, false, true, []byte{0}),
	}
	resp := []byte{CmdJTAGSequence, statusOK, 0x55, 0x01, 0x07}
	got, err := p.DecodeJTAGSequence(resp, seqs)
	if err != nil {
		t.Fatalf("DecodeJTAGSequence: %v", err)
	}
	want := [][]byte{{0x55, 0x01}, {0x07}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("TDO payloads mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeJTAGSequenceTruncated(t *testing.T) {
	p := NewProtocol(DefaultPacketSize)
	seqs := []Sequence{NewSequence(16, false, true, []byte{0, 0})}
	resp := []byte{CmdJTAGSequence, statusOK, 0xFF} // one byte short
	if _, err := p.DecodeJTAGSequence(resp, seqs); err == nil {
		t.Fatal("truncated TDO data accepted")
	}
}

func TestDecodeStatusFailure(t *testing.T) {
	p := NewProtocol(DefaultPacketSize)
	if err := p.DecodeSetClock([]byte{CmdSWJClock, 0xFF}); err == nil {
		t.Fatal("failing status accepted")
	}
	if err := p.DecodeSetClock([]byte{CmdConnect, statusOK}); err == nil {
		t.Fatal("mismatched command ID accepted")
	}
}

func TestDecodeInfo(t *testing.T) {
	p := NewProtocol(DefaultPacketSize)
	got, err := p.DecodeInfo([]byte{CmdInfo, 4, 'D', 'A', 'P', '1'})
	if err != nil {
		t.Fatalf("DecodeInfo: %v", err)
	}
	if got != "DAP1" {
		t.Fatalf("info string = %q", got)
	}
	if _, err := p.DecodeInfo([]byte{CmdInfo, 9, 'x'}); err == nil {
		t.Fatal("truncated info string accepted")
	}
}

func TestEncodeSWDSequence(t *testing.T) {
	p := NewProtocol(DefaultPacketSize)

	out := p.EncodeSWDSequence(8, []byte{0xA5}, false)
	if diff := cmp.Diff([]byte{CmdSWDSequence, 1, 0x08, 0xA5}, out); diff != "" {
		t.Fatalf("output command mismatch (-want +got):\n%s", diff)
	}

	in := p.EncodeSWDSequence(3, nil, true)
	if diff := cmp.Diff([]byte{CmdSWDSequence, 1, 0x83}, in); diff != "" {
		t.Fatalf("input command mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeSWDSequence(t *testing.T) {
	p := NewProtocol(DefaultPacketSize)
	got, err := p.DecodeSWDSequence([]byte{CmdSWDSequence, statusOK, 0x05}, 3, true)
	if err != nil {
		t.Fatalf("DecodeSWDSequence: %v", err)
	}
	if len(got) != 1 || got[0] != 0x05 {
		t.Fatalf("captured bits = % X", got)
	}
	if _, err := p.DecodeSWDSequence([]byte{CmdSWDSequence, statusOK}, 8, true); err == nil {
		t.Fatal("truncated SWD data accepted")
	}
}
