package jtag

// ones is a bucket of don't-care TDI bits, long enough to flush the largest
// possible prescan/postscan window (MaxDevices devices of MaxIRLength bits).
var ones = func() []byte {
	buf := make([]byte, (MaxDevices*MaxIRLength+7)/8)
	for i := range buf {
		buf[i] = 0xFF
	}
	return buf
}()

func bitOf(buf []byte, i int) bool {
	return buf[i/8]&(1<<(uint(i)%8)) != 0
}

func setBit(buf []byte, i int, v bool) {
	if v {
		buf[i/8] |= 1 << (uint(i) % 8)
	} else {
		buf[i/8] &^= 1 << (uint(i) % 8)
	}
}

func uint32FromBits(buf []byte) uint32 {
	var v uint32
	for i := 0; i < 4 && i < len(buf); i++ {
		v |= uint32(buf[i]) << (8 * uint(i))
	}
	return v
}

func bitsFromUint32(v uint32, bits int) []byte {
	buf := make([]byte, (bits+7)/8)
	for i := 0; i < len(buf); i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
	if rem := bits % 8; rem != 0 {
		buf[len(buf)-1] &= byte(1<<uint(rem)) - 1
	}
	return buf
}
