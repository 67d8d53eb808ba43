package cmsisdap

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/gousb"
)

const (
	// DefaultPacketSize is the CMSIS-DAP v1/v2 packet size before the
	// endpoint descriptor says otherwise.
	DefaultPacketSize = 64
	DefaultTimeout    = 5 * time.Second
)

// Transport is the USB bulk pipe to a CMSIS-DAP probe. Commands and
// responses travel as fixed-size packets on a vendor-class interface.
type Transport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	intf *gousb.Interface

	epOut *gousb.OutEndpoint
	epIn  *gousb.InEndpoint

	packetSize int
	timeout    time.Duration
}

// OpenTransport opens the first device matching vid:pid and claims its
// vendor interface.
func OpenTransport(vid, pid uint16) (*Transport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("cmsisdap: opening device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("cmsisdap: no device %04X:%04X found", vid, pid)
	}

	// Linux needs the kernel HID driver off the interface; elsewhere this
	// can fail harmlessly.
	_ = dev.SetAutoDetach(true)

	t := &Transport{
		ctx:        ctx,
		dev:        dev,
		packetSize: DefaultPacketSize,
		timeout:    DefaultTimeout,
	}
	if err := t.claim(); err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	return t, nil
}

// claim finds the vendor-class interface and its bulk endpoint pair.
func (t *Transport) claim() error {
	cfg, err := t.dev.Config(1)
	if err != nil {
		return fmt.Errorf("cmsisdap: reading config: %w", err)
	}

	num := -1
	for _, intf := range cfg.Desc.Interfaces {
		if len(intf.AltSettings) > 0 &&
			intf.AltSettings[0].Class == gousb.ClassVendorSpec {
			num = intf.Number
			break
		}
	}
	if num == -1 {
		num = 0
	}

	intf, err := cfg.Interface(num, 0)
	if err != nil {
		return fmt.Errorf("cmsisdap: claiming interface %d: %w", num, err)
	}
	t.intf = intf

	var outNum, inNum int
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionOut:
			if outNum == 0 {
				outNum = ep.Number
			}
		case gousb.EndpointDirectionIn:
			if inNum == 0 {
				inNum = ep.Number
				t.packetSize = ep.MaxPacketSize
			}
		}
	}
	if outNum == 0 || inNum == 0 {
		intf.Close()
		return fmt.Errorf("cmsisdap: bulk endpoint pair not found")
	}

	if t.epOut, err = intf.OutEndpoint(outNum); err != nil {
		intf.Close()
		return fmt.Errorf("cmsisdap: opening OUT endpoint: %w", err)
	}
	if t.epIn, err = intf.InEndpoint(inNum); err != nil {
		intf.Close()
		return fmt.Errorf("cmsisdap: opening IN endpoint: %w", err)
	}
	return nil
}

// PacketSize reports the probe's packet size.
func (t *Transport) PacketSize() int { return t.packetSize }

// RoundTrip sends one command packet and reads the response packet.
func (t *Transport) RoundTrip(cmd []byte) ([]byte, error) {
	packet := make([]byte, t.packetSize)
	copy(packet, cmd)
	if _, err := t.epOut.Write(packet); err != nil {
		return nil, fmt.Errorf("cmsisdap: USB write: %w", err)
	}

	resp := make([]byte, t.packetSize)
	n, err := t.epIn.Read(resp)
	if err != nil {
		return nil, fmt.Errorf("cmsisdap: USB read: %w", err)
	}
	return resp[:n], nil
}

// Close releases the interface and the USB context.
func (t *Transport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		t.ctx.Close()
		t.ctx = nil
	}
	return nil
}

// ProbeInfo describes one enumerated CMSIS-DAP probe.
type ProbeInfo struct {
	VID, PID     uint16
	SerialNumber string
	Description  string
}

// Enumerate lists connected probes whose USB product string advertises
// CMSIS-DAP.
func Enumerate() ([]ProbeInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(*gousb.DeviceDesc) bool { return true })
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("cmsisdap: enumerating devices: %w", err)
	}

	var probes []ProbeInfo
	for _, dev := range devs {
		product, _ := dev.Product()
		if !strings.Contains(product, "CMSIS-DAP") {
			dev.Close()
			continue
		}
		serial, _ := dev.SerialNumber()
		manufacturer, _ := dev.Manufacturer()
		probes = append(probes, ProbeInfo{
			VID:          uint16(dev.Desc.Vendor),
			PID:          uint16(dev.Desc.Product),
			SerialNumber: serial,
			Description:  fmt.Sprintf("%s %s", manufacturer, product),
		})
		dev.Close()
	}
	return probes, nil
}
