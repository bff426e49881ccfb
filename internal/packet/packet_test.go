package packet

import (
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/lansim/internal/core"
)

var (
	addrX = netip.MustParseAddr("10.0.0.1")
	addrY = netip.MustParseAddr("10.0.0.2")
)

func TestEncodeLayout(t *testing.T) {
	b, err := Encode(Header{Src: addrX, Dst: addrY, SrcPort: 0x0102, DstPort: 20}, []byte("hi"))
	require.NoError(t, err)

	want := []byte{
		10, 0, 0, 1,
		10, 0, 0, 2,
		0x02, 0x01,
		20, 0,
		'h', 'i',
	}
	assert.Equal(t, want, b)
	assert.Len(t, b, core.HeaderLen+2)
}

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		h       Header
		payload []byte
	}{
		{"Zero ports", Header{addrX, addrY, 0, 0}, []byte("x")},
		{"Max ports", Header{addrY, addrX, 65535, 65535}, []byte("payload")},
		{"Mixed ports", Header{addrX, addrX, 10, 40000}, []byte{0, 1, 2, 3, 255}},
		{"Empty payload", Header{addrX, addrY, 255, 256}, []byte{}},
		{"Broadcast-ish", Header{netip.MustParseAddr("255.255.255.255"), netip.MustParseAddr("0.0.0.0"), 1, 2}, []byte("b")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(tt.h, tt.payload)
			require.NoError(t, err)
			assert.Len(t, b, core.HeaderLen+len(tt.payload))

			h, payload, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, tt.h, h)
			assert.Equal(t, tt.payload, payload)
		})
	}
}

func TestDecodeCopiesPayload(t *testing.T) {
	b, err := Encode(Header{Src: addrX, Dst: addrY, SrcPort: 1, DstPort: 2}, []byte("abc"))
	require.NoError(t, err)

	_, payload, err := Decode(b)
	require.NoError(t, err)
	b[core.HeaderLen] = 'z'
	assert.Equal(t, []byte("abc"), payload)
}

func TestDecodeTooShort(t *testing.T) {
	_, _, err := Decode(make([]byte, core.HeaderLen-1))
	assert.ErrorIs(t, err, core.ErrPacketTooShort)

	_, err = DestinationPort([]byte{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrPacketTooShort)

	_, err = DestinationAddress([]byte{1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, core.ErrPacketTooShort)

	_, err = Payload(nil)
	assert.ErrorIs(t, err, core.ErrPacketTooShort)
}

func TestEncodeRejectsNonIPv4(t *testing.T) {
	_, err := Encode(Header{Src: addrX, Dst: netip.MustParseAddr("fe80::1")}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidAddress)

	_, err = Encode(Header{Dst: addrY}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidAddress)
}

func TestFieldAccessors(t *testing.T) {
	b, err := Encode(Header{Src: addrX, Dst: addrY, SrcPort: 10, DstPort: 513}, []byte("data"))
	require.NoError(t, err)

	dst, err := DestinationAddress(b)
	require.NoError(t, err)
	assert.Equal(t, addrY, dst)

	port, err := DestinationPort(b)
	require.NoError(t, err)
	assert.Equal(t, uint16(513), port)

	payload, err := Payload(b)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), payload)
}

func TestGopacketDecoding(t *testing.T) {
	b, err := Encode(Header{Src: addrX, Dst: addrY, SrcPort: 7, DstPort: 9}, []byte("frame"))
	require.NoError(t, err)

	pkt := gopacket.NewPacket(b, LayerTypeLAN, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())

	layer := pkt.Layer(LayerTypeLAN)
	require.NotNil(t, layer)
	lan := layer.(*LAN)
	assert.Equal(t, addrX, lan.SrcAddr)
	assert.Equal(t, addrY, lan.DstAddr)
	assert.Equal(t, uint16(7), lan.SrcPort)
	assert.Equal(t, uint16(9), lan.DstPort)

	require.NotNil(t, pkt.NetworkLayer())
	assert.Equal(t, "10.0.0.1->10.0.0.2", pkt.NetworkLayer().NetworkFlow().String())

	require.NotNil(t, pkt.ApplicationLayer())
	assert.Equal(t, []byte("frame"), pkt.ApplicationLayer().Payload())
}

func TestGopacketTruncated(t *testing.T) {
	pkt := gopacket.NewPacket([]byte{1, 2, 3}, LayerTypeLAN, gopacket.Default)
	assert.NotNil(t, pkt.ErrorLayer())
}
