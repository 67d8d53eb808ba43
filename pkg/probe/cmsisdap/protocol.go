// Package cmsisdap drives CMSIS-DAP probes over USB and exposes them as
// JTAG and SWD bit engines.
package cmsisdap

import (
	"encoding/binary"
	"fmt"
)

// CMSIS-DAP command IDs.
const (
	CmdInfo         = 0x00
	CmdHostStatus   = 0x01
	CmdConnect      = 0x02
	CmdDisconnect   = 0x03
	CmdResetTarget  = 0x0A
	CmdSWJClock     = 0x11
	CmdSWJSequence  = 0x12
	CmdJTAGSequence = 0x14
	CmdSWDSequence  = 0x1D
)

// DAP_Info IDs.
const (
	InfoVendorID    = 0x01
	InfoProductID   = 0x02
	InfoSerialNum   = 0x03
	InfoFirmwareVer = 0x04
	InfoPacketSize  = 0xFF
)

// Connection ports.
const (
	PortDefault = 0
	PortSWD     = 1
	PortJTAG    = 2
)

const statusOK = 0x00

// JTAG sequence info byte flags.
const (
	seqTCKMask = 0x3F // bits [5:0]: TCK count, 0 means 64
	seqTMS     = 0x40
	seqTDO     = 0x80
)

// SWD sequence info byte flags.
const (
	swdSeqCountMask = 0x3F
	swdSeqInput     = 0x80
)

// Sequence is one JTAG shift segment: a fixed TMS level for up to 64 TCK
// cycles, optionally capturing TDO.
type Sequence struct {
	Info byte
	TDI  []byte
}

// NewSequence builds a segment descriptor.
func NewSequence(cycles int, tms, capture bool, tdi []byte) Sequence {
	info := byte(cycles & seqTCKMask)
	if tms {
		info |= seqTMS
	}
	if capture {
		info |= seqTDO
	}
	return Sequence{Info: info, TDI: tdi}
}

// Cycles returns the TCK count of this segment.
func (s *Sequence) Cycles() int {
	n := int(s.Info & seqTCKMask)
	if n == 0 {
		return 64
	}
	return n
}

// Captures reports whether TDO is returned for this segment.
func (s *Sequence) Captures() bool {
	return s.Info&seqTDO != 0
}

// Protocol encodes and decodes CMSIS-DAP packets.
type Protocol struct {
	PacketSize int
}

func NewProtocol(packetSize int) *Protocol {
	return &Protocol{PacketSize: packetSize}
}

func (p *Protocol) EncodeInfo(id byte) []byte {
	return []byte{CmdInfo, id}
}

func (p *Protocol) DecodeInfo(resp []byte) (string, error) {
	if err := checkHeader(resp, CmdInfo); err != nil {
		return "", err
	}
	n := int(resp[1])
	if len(resp) < 2+n {
		return "", fmt.Errorf("cmsisdap: truncated info string")
	}
	return string(resp[2 : 2+n]), nil
}

func (p *Protocol) EncodeConnect(port byte) []byte {
	return []byte{CmdConnect, port}
}

func (p *Protocol) DecodeConnect(resp []byte) (byte, error) {
	if err := checkHeader(resp, CmdConnect); err != nil {
		return 0, err
	}
	if resp[1] == 0 {
		return 0, fmt.Errorf("cmsisdap: connect refused")
	}
	return resp[1], nil
}

func (p *Protocol) EncodeDisconnect() []byte {
	return []byte{CmdDisconnect}
}

func (p *Protocol) EncodeSetClock(hz uint32) []byte {
	cmd := make([]byte, 5)
	cmd[0] = CmdSWJClock
	binary.LittleEndian.PutUint32(cmd[1:], hz)
	return cmd
}

func (p *Protocol) DecodeSetClock(resp []byte) error {
	return checkStatus(resp, CmdSWJClock)
}

func (p *Protocol) EncodeResetTarget() []byte {
	return []byte{CmdResetTarget}
}

func (p *Protocol) DecodeResetTarget(resp []byte) error {
	return checkStatus(resp, CmdResetTarget)
}

// EncodeJTAGSequence builds a DAP_JTAG_Sequence command: a count byte then
// info byte and TDI payload per segment.
func (p *Protocol) EncodeJTAGSequence(seqs []Sequence) []byte {
	size := 2
	for _, s := range seqs {
		size += 1 + len(s.TDI)
	}
	cmd := make([]byte, 2, size)
	cmd[0] = CmdJTAGSequence
	cmd[1] = byte(len(seqs))
	for _, s := range seqs {
		cmd = append(cmd, s.Info)
		cmd = append(cmd, s.TDI...)
	}
	return cmd
}

// DecodeJTAGSequence extracts the TDO payload of every capturing segment.
func (p *Protocol) DecodeJTAGSequence(resp []byte, seqs []Sequence) ([][]byte, error) {
	if err := checkStatus(resp, CmdJTAGSequence); err != nil {
		return nil, err
	}
	var out [][]byte
	offset := 2
	for _, s := range seqs {
		if !s.Captures() {
			continue
		}
		n := (s.Cycles() + 7) / 8
		if offset+n > len(resp) {
			return nil, fmt.Errorf("cmsisdap: truncated TDO data")
		}
		tdo := make([]byte, n)
		copy(tdo, resp[offset:offset+n])
		out = append(out, tdo)
		offset += n
	}
	return out, nil
}

// EncodeSWDSequence builds a DAP_SWD_Sequence command. Output segments
// carry their data; input segments carry only the info byte.
func (p *Protocol) EncodeSWDSequence(cycles int, data []byte, input bool) []byte {
	info := byte(cycles & swdSeqCountMask)
	if input {
		info |= swdSeqInput
		return []byte{CmdSWDSequence, 1, info}
	}
	cmd := []byte{CmdSWDSequence, 1, info}
	return append(cmd, data[:(cycles+7)/8]...)
}

// DecodeSWDSequence returns the captured bits of an input segment.
func (p *Protocol) DecodeSWDSequence(resp []byte, cycles int, input bool) ([]byte, error) {
	if err := checkStatus(resp, CmdSWDSequence); err != nil {
		return nil, err
	}
	if !input {
		return nil, nil
	}
	n := (cycles + 7) / 8
	if len(resp) < 2+n {
		return nil, fmt.Errorf("cmsisdap: truncated SWD data")
	}
	return resp[2 : 2+n], nil
}

func checkHeader(resp []byte, cmd byte) error {
	if len(resp) < 2 {
		return fmt.Errorf("cmsisdap: response too short")
	}
	if resp[0] != cmd {
		return fmt.Errorf("cmsisdap: response for command 0x%02X, expected 0x%02X", resp[0], cmd)
	}
	return nil
}

func checkStatus(resp []byte, cmd byte) error {
	if err := checkHeader(resp, cmd); err != nil {
		return err
	}
	if resp[1] != statusOK {
		return fmt.Errorf("cmsisdap: command 0x%02X failed with status 0x%02X", cmd, resp[1])
	}
	return nil
}
