// Package geo resolves relay addresses to a country and coordinates using a
// MaxMind GeoIP2/GeoLite2 City database.
package geo

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/Shugur-Network/torstatus/internal/logger"
	"github.com/Shugur-Network/torstatus/internal/metrics"
	"github.com/Shugur-Network/torstatus/internal/models"
	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

// Location is the geographic information attached to a relay.
type Location struct {
	Country   string // lower-case ISO 3166-1 alpha-2
	Latitude  float64
	Longitude float64
}

// Resolver looks up the location of an IPv4 address. Lookup returns nil when
// the address is unknown.
type Resolver interface {
	Lookup(ip string) *Location
}

// CityResolver reads a GeoIP2 City database.
type CityResolver struct {
	cityDB *geoip2.Reader
	owned  bool
}

// Open opens the City database at path.
func Open(path string) (*CityResolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening geoip city database %s: %w", path, err)
	}
	logger.Info("GeoIP database opened", zap.String("path", path), zap.String("type", db.Metadata().DatabaseType))
	return &CityResolver{cityDB: db, owned: true}, nil
}

// NewResolver wraps an already open reader. The caller keeps ownership.
func NewResolver(cityDB *geoip2.Reader) (*CityResolver, error) {
	if cityDB == nil {
		return nil, errors.New("cityDB is nil")
	}
	return &CityResolver{cityDB: cityDB}, nil
}

// Close releases the database if Open created it.
func (r *CityResolver) Close() error {
	if r.owned {
		return r.cityDB.Close()
	}
	return nil
}

func (r *CityResolver) Lookup(ip string) *Location {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil
	}

	rec, err := r.cityDB.City(parsed)
	if err != nil {
		logger.Debug("geoip city lookup failed", zap.String("ip", ip), zap.Error(err))
		return nil
	}
	if rec.Country.IsoCode == "" {
		return nil
	}
	return &Location{
		Country:   strings.ToLower(rec.Country.IsoCode),
		Latitude:  rec.Location.Latitude,
		Longitude: rec.Location.Longitude,
	}
}

// Enrich fills in the location of a relay that lacks one. It reports whether
// the relay was changed. Existing data is never overwritten.
func Enrich(r Resolver, relay *models.Relay) bool {
	if r == nil || relay.HasGeo() {
		metrics.RelaysEnriched.WithLabelValues("skipped").Inc()
		return false
	}

	loc := r.Lookup(relay.Address)
	if loc == nil {
		metrics.RelaysEnriched.WithLabelValues("miss").Inc()
		return false
	}

	if relay.Country == "" {
		relay.Country = loc.Country
	}
	if relay.Latitude == 0 && relay.Longitude == 0 {
		relay.Latitude, relay.Longitude = loc.Latitude, loc.Longitude
	}
	metrics.RelaysEnriched.WithLabelValues("hit").Inc()
	return true
}
