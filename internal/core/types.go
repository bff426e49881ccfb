// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net/netip"
)

const (
	// AddressLen is the size of a host address on the wire.
	AddressLen = 4

	// HeaderLen is the fixed packet header: src, dst, sport, dport.
	HeaderLen = 2*AddressLen + 2 + 2

	// MinTransportPort and MaxTransportPort bound a transport port number.
	MinTransportPort = 0
	MaxTransportPort = 65535
)

// ValidTransportPort reports whether p fits in a 16-bit transport port.
func ValidTransportPort(p int) bool {
	return p >= MinTransportPort && p <= MaxTransportPort
}

// ParseAddress parses a dotted IPv4 host address.
func ParseAddress(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return CheckAddress(addr)
}

// CheckAddress verifies addr is usable as a host address and returns it in
// its 4-byte form.
func CheckAddress(addr netip.Addr) (netip.Addr, error) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %s is not IPv4", ErrInvalidAddress, addr)
	}
	return addr, nil
}

// AddressFrom4 builds an address from its raw wire bytes.
func AddressFrom4(b []byte) (netip.Addr, error) {
	if len(b) != AddressLen {
		return netip.Addr{}, fmt.Errorf("%w: %d bytes", ErrInvalidAddress, len(b))
	}
	return netip.AddrFrom4([AddressLen]byte(b)), nil
}
