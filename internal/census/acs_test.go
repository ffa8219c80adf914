package census

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasatch-geo/blocktrends/internal/fetcher"
	"github.com/wasatch-geo/blocktrends/internal/model"
)

// acsFixture mimics the Census API array-of-arrays response: two block
// groups, one with a suppressed income and a null home value.
const acsFixture = `[
["NAME","B25034_001E","B25034_002E","B25034_003E","B25034_004E","B25024_008E","B25024_009E","B25024_010E","B25077_001E","B25003_002E","B25003_003E","B01003_001E","B19013_001E","B15003_022E","B15003_023E","B15003_024E","B15003_025E","state","county","tract","block group"],
["Block Group 1; Census Tract 1001; Salt Lake County; Utah","400","40","60","80","10","5","0","350000","250","100","900","72000","150","40","10","5","49","35","100100","1"],
["Block Group 2; Census Tract 1001; Salt Lake County; Utah","200","0","10","20",null,"0","0",null,"80","90","500","-666666666","60","20","0","0","49","35","100100","2"]
]`

func acsServer(t *testing.T, payload string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "for=block+group")
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchACS(t *testing.T) {
	srv := acsServer(t, acsFixture)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})

	records, err := FetchACS(context.Background(), f, ACSOptions{
		Vintage:   2023,
		StateFIPS: "49",
		BaseURL:   srv.URL,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "490351001001", first.GEOID.String())
	assert.Equal(t, 400.0, model.Zero(first.TotalHousingUnits))
	assert.Equal(t, 40.0, model.Zero(first.Built2020Plus))
	assert.Equal(t, 350000.0, model.Zero(first.MedianHomeValue))
	assert.Nil(t, first.Lat, "API rows carry no coordinates")

	second := records[1]
	assert.Equal(t, "490351001002", second.GEOID.String())
	assert.Nil(t, second.MedianHomeValue, "JSON null becomes nil")
	assert.Nil(t, second.MedianHHIncome, "suppression sentinel repaired to nil at ingest")
	assert.Nil(t, second.Units10to19)
}

func TestFetchACSCacheRoundTrip(t *testing.T) {
	srv := acsServer(t, acsFixture)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	cache := filepath.Join(t.TempDir(), "acs_housing.csv")

	opts := ACSOptions{Vintage: 2023, StateFIPS: "49", BaseURL: srv.URL, CachePath: cache}

	fetched, err := FetchACS(context.Background(), f, opts)
	require.NoError(t, err)

	// Second call must read the cache verbatim, not the API.
	opts.BaseURL = "http://127.0.0.1:1" // unreachable; cache hit must not touch it
	cached, err := FetchACS(context.Background(), f, opts)
	require.NoError(t, err)

	require.Len(t, cached, len(fetched))
	for i := range fetched {
		assert.Equal(t, fetched[i].GEOID, cached[i].GEOID)
		assert.Equal(t, model.Zero(fetched[i].TotalHousingUnits), model.Zero(cached[i].TotalHousingUnits))
		assert.Equal(t, fetched[i].MedianHHIncome == nil, cached[i].MedianHHIncome == nil)
	}
}

func TestFetchACSMalformedRowIsFatal(t *testing.T) {
	// County code wider than its 3-digit field.
	bad := `[
["NAME","B25034_001E","state","county","tract","block group"],
["somewhere","100","49","0351","100100","1"]
]`
	srv := acsServer(t, bad)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})

	_, err := FetchACS(context.Background(), f, ACSOptions{Vintage: 2023, StateFIPS: "49", BaseURL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestFetchACSMissingGeographyColumns(t *testing.T) {
	srv := acsServer(t, `[["NAME","B25034_001E"],["x","1"]]`)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})

	_, err := FetchACS(context.Background(), f, ACSOptions{Vintage: 2023, StateFIPS: "49", BaseURL: srv.URL})
	require.Error(t, err)
}

func TestParseMeasure(t *testing.T) {
	assert.Nil(t, parseMeasure(""))
	assert.Nil(t, parseMeasure("null"))
	assert.Nil(t, parseMeasure("not-a-number"))
	assert.Nil(t, parseMeasure("-666666666"), "suppression sentinel repaired")
	require.NotNil(t, parseMeasure("42.5"))
	assert.Equal(t, 42.5, *parseMeasure("42.5"))
}
