// Package packet implements the simulator wire format:
//
//	[src_address:4][dst_address:4][src_port:2][dst_port:2][payload:N]
//
// Ports are little-endian, addresses are raw network-order bytes. There is
// no checksum and no length field; the payload runs to the end of the buffer.
package packet

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/google/gopacket"

	"firestige.xyz/lansim/internal/core"
)

const (
	offSrcAddr = 0
	offDstAddr = 4
	offSrcPort = 8
	offDstPort = 10
)

var serializeOpts = gopacket.SerializeOptions{}

// Header holds the four addressing fields of a packet.
type Header struct {
	Src     netip.Addr
	Dst     netip.Addr
	SrcPort uint16
	DstPort uint16
}

// Encode frames payload behind h. The returned slice is freshly allocated.
func Encode(h Header, payload []byte) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	lan := &LAN{SrcAddr: h.Src, DstAddr: h.Dst, SrcPort: h.SrcPort, DstPort: h.DstPort}
	if err := gopacket.SerializeLayers(buf, serializeOpts, lan, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("encode packet: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode splits b into its header and a copy of its payload.
func Decode(b []byte) (Header, []byte, error) {
	var lan LAN
	if err := lan.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		return Header{}, nil, err
	}
	payload := make([]byte, len(lan.Payload))
	copy(payload, lan.Payload)
	return Header{
		Src:     lan.SrcAddr,
		Dst:     lan.DstAddr,
		SrcPort: lan.SrcPort,
		DstPort: lan.DstPort,
	}, payload, nil
}

// DestinationAddress reads bytes 4..7 of b.
func DestinationAddress(b []byte) (netip.Addr, error) {
	if len(b) < offDstAddr+core.AddressLen {
		return netip.Addr{}, fmt.Errorf("%w: no destination address in %d bytes", core.ErrPacketTooShort, len(b))
	}
	return core.AddressFrom4(b[offDstAddr : offDstAddr+core.AddressLen])
}

// DestinationPort reads the little-endian transport port at bytes 10..11.
func DestinationPort(b []byte) (uint16, error) {
	if len(b) < core.HeaderLen {
		return 0, fmt.Errorf("%w: no destination port in %d bytes", core.ErrPacketTooShort, len(b))
	}
	return binary.LittleEndian.Uint16(b[offDstPort:]), nil
}

// Payload returns the bytes following the header, aliasing b.
func Payload(b []byte) ([]byte, error) {
	if len(b) < core.HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", core.ErrPacketTooShort, len(b))
	}
	return b[core.HeaderLen:], nil
}
