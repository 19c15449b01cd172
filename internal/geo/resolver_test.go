package geo

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/maxmind/mmdbwriter"
	"github.com/maxmind/mmdbwriter/mmdbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shugur-Network/torstatus/internal/models"
)

func writeCityDB(t *testing.T) string {
	t.Helper()
	w, err := mmdbwriter.New(mmdbwriter.Options{DatabaseType: "GeoLite2-City", RecordSize: 24})
	require.NoError(t, err)

	_, network, err := net.ParseCIDR("1.1.1.0/24")
	require.NoError(t, err)
	require.NoError(t, w.Insert(network, mmdbtype.Map{
		"country": mmdbtype.Map{
			"iso_code": mmdbtype.String("DE"),
			"names":    mmdbtype.Map{"en": mmdbtype.String("Germany")},
		},
		"location": mmdbtype.Map{
			"latitude":  mmdbtype.Float64(52.52),
			"longitude": mmdbtype.Float64(13.405),
		},
	}))

	path := filepath.Join(t.TempDir(), "city.mmdb")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = w.WriteTo(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return path
}

func openResolver(t *testing.T) *CityResolver {
	t.Helper()
	r, err := Open(writeCityDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestCityResolver_Lookup(t *testing.T) {
	t.Parallel()
	r := openResolver(t)

	loc := r.Lookup("1.1.1.1")
	require.NotNil(t, loc)
	assert.Equal(t, "de", loc.Country)
	assert.InDelta(t, 52.52, loc.Latitude, 1e-9)
	assert.InDelta(t, 13.405, loc.Longitude, 1e-9)

	assert.Nil(t, r.Lookup("1.1.2.1"))
	assert.Nil(t, r.Lookup("not-an-ip"))
}

func TestOpen_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := Open(filepath.Join(t.TempDir(), "missing.mmdb"))
	require.Error(t, err)

	_, err = NewResolver(nil)
	require.Error(t, err)
}

type fixed map[string]*Location

func (f fixed) Lookup(ip string) *Location { return f[ip] }

func TestEnrich(t *testing.T) {
	t.Parallel()
	res := fixed{"1.1.1.1": {Country: "de", Latitude: 52.5, Longitude: 13.4}}

	bare := models.Relay{Address: "1.1.1.1"}
	assert.True(t, Enrich(res, &bare))
	assert.Equal(t, "de", bare.Country)
	assert.InDelta(t, 52.5, bare.Latitude, 1e-9)

	// a known country is kept, only coordinates are filled in
	partial := models.Relay{Address: "1.1.1.1", Country: "at"}
	assert.True(t, Enrich(res, &partial))
	assert.Equal(t, "at", partial.Country)
	assert.InDelta(t, 13.4, partial.Longitude, 1e-9)

	done := models.Relay{Address: "1.1.1.1", Country: "fr", Latitude: 1, Longitude: 2}
	assert.False(t, Enrich(res, &done))
	assert.Equal(t, "fr", done.Country)

	unknown := models.Relay{Address: "9.9.9.9"}
	assert.False(t, Enrich(res, &unknown))
	assert.False(t, Enrich(nil, &unknown))
	assert.Empty(t, unknown.Country)
}
