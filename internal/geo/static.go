package geo

import (
	"fmt"
	"net/netip"
	"strings"
)

// StaticResolver resolves addresses against a fixed CIDR table.
// The most specific matching prefix wins.
type StaticResolver struct {
	entries []staticEntry
}

type staticEntry struct {
	prefix  netip.Prefix
	country string
}

// NewStaticResolver builds a resolver from CIDR (or bare IP) → country pairs.
func NewStaticResolver(table map[string]string) (*StaticResolver, error) {
	r := &StaticResolver{entries: make([]staticEntry, 0, len(table))}
	for raw, country := range table {
		prefix, err := parsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("geo: invalid prefix %q: %w", raw, err)
		}
		code := strings.ToUpper(strings.TrimSpace(country))
		if code == "" {
			return nil, fmt.Errorf("geo: empty country for prefix %q", raw)
		}
		r.entries = append(r.entries, staticEntry{prefix: prefix.Masked(), country: code})
	}
	return r, nil
}

// Lookup implements Resolver.
func (r *StaticResolver) Lookup(ip string) (string, bool) {
	addr, ok := parsePublic(ip)
	if !ok || r == nil {
		return "", false
	}

	best := -1
	country := ""
	for _, e := range r.entries {
		if e.prefix.Contains(addr) && e.prefix.Bits() > best {
			best = e.prefix.Bits()
			country = e.country
		}
	}
	return country, best >= 0
}

func parsePrefix(raw string) (netip.Prefix, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.Contains(trimmed, "/") {
		return netip.ParsePrefix(trimmed)
	}
	addr, err := netip.ParseAddr(trimmed)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
