// Package privacy masks client addresses before they reach access logs.
package privacy

import (
	"net"
	"net/netip"
)

// AnonymizeIP keeps the network part of an address: the /24 of an IPv4
// address (192.168.1.47 -> 192.168.1.0) and the /48 of an IPv6 address
// (2001:db8:85a3::8a2e:370:7334 -> 2001:db8:85a3::).
//
// Host:port pairs are accepted. Empty input yields "unknown" and anything
// unparseable "invalid".
func AnonymizeIP(addr string) string {
	if addr == "" || addr == "unknown" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return "invalid"
	}
	ip = ip.Unmap().WithZone("")

	bits := 48
	if ip.Is4() {
		bits = 24
	}
	prefix, err := ip.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}
