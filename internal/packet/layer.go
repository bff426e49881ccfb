package packet

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/lansim/internal/core"
)

// LayerTypeLAN identifies the simulator's frame header in gopacket.
var LayerTypeLAN = gopacket.RegisterLayerType(2121, gopacket.LayerTypeMetadata{
	Name:    "LAN",
	Decoder: gopacket.DecodeFunc(decodeLAN),
})

// LAN is the 12-byte simulator header. It decodes and serializes like any
// other gopacket layer, so frames written by the tap can be read back with
// gopacket.NewPacket(data, LayerTypeLAN, gopacket.Default).
type LAN struct {
	layers.BaseLayer
	SrcAddr netip.Addr
	DstAddr netip.Addr
	SrcPort uint16
	DstPort uint16
}

func (l *LAN) LayerType() gopacket.LayerType     { return LayerTypeLAN }
func (l *LAN) CanDecode() gopacket.LayerClass    { return LayerTypeLAN }
func (l *LAN) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

// NetworkFlow returns the address pair of the frame.
func (l *LAN) NetworkFlow() gopacket.Flow {
	src, dst := l.SrcAddr.As4(), l.DstAddr.As4()
	return gopacket.NewFlow(layers.EndpointIPv4, src[:], dst[:])
}

// DecodeFromBytes parses the header; the remainder becomes the layer payload.
func (l *LAN) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < core.HeaderLen {
		df.SetTruncated()
		return fmt.Errorf("%w: %d bytes", core.ErrPacketTooShort, len(data))
	}
	l.SrcAddr = netip.AddrFrom4([4]byte(data[offSrcAddr : offSrcAddr+core.AddressLen]))
	l.DstAddr = netip.AddrFrom4([4]byte(data[offDstAddr : offDstAddr+core.AddressLen]))
	l.SrcPort = binary.LittleEndian.Uint16(data[offSrcPort:])
	l.DstPort = binary.LittleEndian.Uint16(data[offDstPort:])
	l.BaseLayer = layers.BaseLayer{Contents: data[:core.HeaderLen], Payload: data[core.HeaderLen:]}
	return nil
}

// SerializeTo prepends the header to whatever is already in b.
func (l *LAN) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	src, err := core.CheckAddress(l.SrcAddr)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	dst, err := core.CheckAddress(l.DstAddr)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	bytes, err := b.PrependBytes(core.HeaderLen)
	if err != nil {
		return err
	}
	s4, d4 := src.As4(), dst.As4()
	copy(bytes[offSrcAddr:], s4[:])
	copy(bytes[offDstAddr:], d4[:])
	binary.LittleEndian.PutUint16(bytes[offSrcPort:], l.SrcPort)
	binary.LittleEndian.PutUint16(bytes[offDstPort:], l.DstPort)
	return nil
}

func decodeLAN(data []byte, p gopacket.PacketBuilder) error {
	lan := &LAN{}
	if err := lan.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(lan)
	p.SetNetworkLayer(lan)
	return p.NextDecoder(lan.NextLayerType())
}
