package idcode

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		raw          uint32
		version      uint8
		partNumber   uint16
		manufacturer uint16
		hasIDCode    bool
	}{
		{0x0BA00477, 0x0, 0xBA00, 0x23B, true},
		{0x06418041, 0x0, 0x6418, 0x020, true},
		{0x4BA00477, 0x4, 0xBA00, 0x23B, true},
		{0x00000000, 0x0, 0x0000, 0x000, false},
	}
	for _, tt := range tests {
		id := Parse(tt.raw)
		if id.Version != tt.version || id.PartNumber != tt.partNumber ||
			id.Manufacturer != tt.manufacturer || id.HasIDCode != tt.hasIDCode {
			t.Errorf("Parse(0x%08X) = %+v", tt.raw, id)
		}
	}
}

func TestManufacturerName(t *testing.T) {
	if got := ManufacturerName(0x23B); got != "ARM" {
		t.Errorf("ManufacturerName(0x23B) = %q", got)
	}
	if got := ManufacturerName(0x7FF); got != "unknown (0x7FF)" {
		t.Errorf("ManufacturerName(0x7FF) = %q", got)
	}
}
