package cmsisdap

import (
	"fmt"
	"sync"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
)

// roundTripper is the packet pipe the driver talks through; tests substitute
// an in-memory implementation.
type roundTripper interface {
	RoundTrip(cmd []byte) ([]byte, error)
	PacketSize() int
	Close() error
}

// Info identifies the probe on the other end of the pipe.
type Info struct {
	Vendor   string
	Product  string
	Serial   string
	Firmware string
}

// Driver exposes a CMSIS-DAP probe as a JTAG bit engine. The DAP protocol
// shifts fixed-TMS segments of up to 64 cycles, so the per-bit primitives
// are regrouped into segment runs.
type Driver struct {
	rt    roundTripper
	proto *Protocol
	info  Info

	mu sync.Mutex
}

// Open connects to the probe at vid:pid in JTAG mode and sets the default
// 1 MHz clock.
func Open(vid, pid uint16) (*Driver, error) {
	t, err := OpenTransport(vid, pid)
	if err != nil {
		return nil, err
	}
	d, err := newDriver(t, PortJTAG)
	if err != nil {
		t.Close()
		return nil, err
	}
	return d, nil
}

func newDriver(rt roundTripper, port byte) (*Driver, error) {
	d := &Driver{rt: rt, proto: NewProtocol(rt.PacketSize())}

	if err := d.queryInfo(); err != nil {
		return nil, err
	}
	if err := d.connect(port); err != nil {
		return nil, err
	}
	if err := d.SetClock(1_000_000); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) queryInfo() error {
	read := func(id byte) (string, error) {
		resp, err := d.rt.RoundTrip(d.proto.EncodeInfo(id))
		if err != nil {
			return "", err
		}
		return d.proto.DecodeInfo(resp)
	}
	var err error
	if d.info.Vendor, err = read(InfoVendorID); err != nil {
		return err
	}
	d.info.Product, _ = read(InfoProductID)
	d.info.Serial, _ = read(InfoSerialNum)
	d.info.Firmware, _ = read(InfoFirmwareVer)
	return nil
}

func (d *Driver) connect(port byte) error {
	resp, err := d.rt.RoundTrip(d.proto.EncodeConnect(port))
	if err != nil {
		return err
	}
	got, err := d.proto.DecodeConnect(resp)
	if err != nil {
		return err
	}
	if got != port {
		return fmt.Errorf("cmsisdap: probe connected port %d, wanted %d", got, port)
	}
	return nil
}

// Info returns the probe identification strings.
func (d *Driver) Info() Info { return d.info }

// SetClock sets the TCK/SWCLK frequency.
func (d *Driver) SetClock(hz uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.rt.RoundTrip(d.proto.EncodeSetClock(hz))
	if err != nil {
		return err
	}
	return d.proto.DecodeSetClock(resp)
}

// Close disconnects the probe and releases the pipe.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, _ = d.rt.RoundTrip(d.proto.EncodeDisconnect())
	return d.rt.Close()
}

// ResetTAP asserts the probe's target reset.
func (d *Driver) ResetTAP() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	resp, err := d.rt.RoundTrip(d.proto.EncodeResetTarget())
	if err != nil {
		return err
	}
	return d.proto.DecodeResetTarget(resp)
}

// Next clocks a single TCK cycle and samples TDO.
func (d *Driver) Next(tms, tdi bool) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data := []byte{0}
	if tdi {
		data[0] = 1
	}
	seqs := []Sequence{NewSequence(1, tms, true, data)}
	tdos, err := d.run(seqs)
	if err != nil {
		return false, err
	}
	return len(tdos) == 1 && tdos[0][0]&1 != 0, nil
}

// TMSSequence clocks the low cycles bits of pattern on TMS, TDI high. Each
// run of equal TMS becomes one segment.
func (d *Driver) TMSSequence(pattern uint32, cycles int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var seqs []Sequence
	for i := 0; i < cycles; {
		tms := pattern&(1<<uint(i)) != 0
		run := 1
		for i+run < cycles && (pattern&(1<<uint(i+run)) != 0) == tms {
			run++
		}
		tdi := make([]byte, (run+7)/8)
		for j := range tdi {
			tdi[j] = 0xFF
		}
		seqs = append(seqs, NewSequence(run, tms, false, tdi))
		i += run
	}
	_, err := d.run(seqs)
	return err
}

// TDISequence shifts bits with TMS low, raising TMS on the last bit when
// finalTMS is set.
func (d *Driver) TDISequence(finalTMS bool, in []byte, bits int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := jtag.ValidateShiftBuffer(in, bits); err != nil {
		return err
	}
	_, err := d.run(buildShift(finalTMS, in, bits, false))
	return err
}

// TDITDOSequence is TDISequence with TDO captured into out.
func (d *Driver) TDITDOSequence(out []byte, finalTMS bool, in []byte, bits int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := jtag.ValidateShiftBuffer(in, bits); err != nil {
		return err
	}
	if _, err := jtag.ValidateShiftBuffer(out, bits); err != nil {
		return err
	}

	seqs := buildShift(finalTMS, in, bits, true)
	tdos, err := d.run(seqs)
	if err != nil {
		return err
	}

	// Stitch the per-segment TDO payloads back into one bit stream.
	pos := 0
	si := 0
	for _, s := range seqs {
		if !s.Captures() {
			continue
		}
		for b := 0; b < s.Cycles(); b++ {
			v := tdos[si][b/8]&(1<<uint(b%8)) != 0
			if v {
				out[pos/8] |= 1 << uint(pos%8)
			} else {
				out[pos/8] &^= 1 << uint(pos%8)
			}
			pos++
		}
		si++
	}
	return nil
}

// buildShift splits a shift into 64-cycle TMS-low segments plus, when
// finalTMS is set, a one-cycle TMS-high segment for the last bit. Segment
// boundaries land on 64-bit multiples so the TDI slices stay byte aligned.
func buildShift(finalTMS bool, in []byte, bits int, capture bool) []Sequence {
	body := bits
	if finalTMS {
		body = bits - 1
	}

	var seqs []Sequence
	for pos := 0; pos < body; pos += 64 {
		n := body - pos
		if n > 64 {
			n = 64
		}
		tdi := make([]byte, (n+7)/8)
		if in == nil {
			for j := range tdi {
				tdi[j] = 0xFF
			}
		} else {
			copy(tdi, in[pos/8:])
		}
		if rem := n % 8; rem != 0 {
			tdi[len(tdi)-1] &= byte(1<<uint(rem)) - 1
		}
		seqs = append(seqs, NewSequence(n, false, capture, tdi))
	}

	if finalTMS {
		last := byte(1)
		if in != nil {
			i := bits - 1
			if in[i/8]&(1<<uint(i%8)) == 0 {
				last = 0
			}
		}
		seqs = append(seqs, NewSequence(1, true, capture, []byte{last}))
	}
	return seqs
}

// run ships segments to the probe, batching them so neither the command nor
// the response outgrows a packet.
func (d *Driver) run(seqs []Sequence) ([][]byte, error) {
	var tdos [][]byte

	for start := 0; start < len(seqs); {
		cmdSize := 2
		respSize := 2
		end := start
		for end < len(seqs) {
			s := seqs[end]
			c := 1 + len(s.TDI)
			r := 0
			if s.Captures() {
				r = (s.Cycles() + 7) / 8
			}
			if end > start &&
				(cmdSize+c > d.proto.PacketSize || respSize+r > d.proto.PacketSize) {
				break
			}
			cmdSize += c
			respSize += r
			end++
		}

		batch := seqs[start:end]
		resp, err := d.rt.RoundTrip(d.proto.EncodeJTAGSequence(batch))
		if err != nil {
			return nil, err
		}
		batchTDOs, err := d.proto.DecodeJTAGSequence(resp, batch)
		if err != nil {
			return nil, err
		}
		tdos = append(tdos, batchTDOs...)
		start = end
	}
	return tdos, nil
}
