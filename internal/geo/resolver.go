// Package geo resolves client IP addresses to ISO country codes.
//
// Resolvers never fail: malformed, private, loopback or otherwise
// unroutable input is reported as a miss.
package geo

import (
	"net/netip"
	"strings"
)

// Resolver looks up the country code for an IP address.
type Resolver interface {
	Lookup(ip string) (country string, ok bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ip string) (string, bool)

// Lookup calls f(ip).
func (f ResolverFunc) Lookup(ip string) (string, bool) {
	return f(ip)
}

// Nop never resolves anything.
var Nop Resolver = ResolverFunc(func(string) (string, bool) { return "", false })

// parsePublic parses ip and reports whether it is a globally routable unicast address.
func parsePublic(ip string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return netip.Addr{}, false
	}
	addr = addr.Unmap().WithZone("")
	if !addr.IsValid() ||
		addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() {
		return netip.Addr{}, false
	}
	return addr, true
}
