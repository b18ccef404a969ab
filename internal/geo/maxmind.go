package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

// MaxMindResolver resolves countries from a GeoLite2/GeoIP2 Country or City database.
type MaxMindResolver struct {
	reader *geoip2.Reader
	log    *zap.Logger
}

// OpenMaxMind opens the mmdb file at path.
func OpenMaxMind(path string, log *zap.Logger) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geo: open %s: %w", path, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MaxMindResolver{reader: reader, log: log}, nil
}

// Lookup implements Resolver. Database errors are logged and reported as a miss.
func (r *MaxMindResolver) Lookup(ip string) (string, bool) {
	addr, ok := parsePublic(ip)
	if !ok {
		return "", false
	}

	record, err := r.reader.Country(net.IP(addr.AsSlice()))
	if err != nil {
		r.log.Debug("geoip lookup failed", zap.String("ip", ip), zap.Error(err))
		return "", false
	}

	code := record.Country.IsoCode
	if code == "" {
		code = record.RegisteredCountry.IsoCode
	}
	if code == "" {
		return "", false
	}
	return code, true
}

// Close releases the underlying database.
func (r *MaxMindResolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}
