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
)

// atlasFixture has one Utah tract, one Utah tract without a score, one
// out-of-state tract, and float-typed geography columns as exported.
const atlasFixture = `state,county,tract,kfr_pooled_pooled_p25,other
49,35,100100,0.43,x
49,35,100200,,x
8,1,50100,0.51,x
49,49.0,101.0,0.39,x
`

func TestFetchMobility(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(atlasFixture))
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	scores, err := FetchMobility(context.Background(), f, MobilityOptions{
		URL:       srv.URL,
		StateFIPS: "49",
	})
	require.NoError(t, err)
	require.Len(t, scores, 2)

	assert.Equal(t, 0.43, scores["49035100100"])
	assert.Equal(t, 0.39, scores["49049000101"], "float-typed components are normalized and padded")
	assert.NotContains(t, scores, "08001050100", "other states filtered out")
}

func TestFetchMobilityCacheRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(atlasFixture))
	}))
	defer srv.Close()

	cache := filepath.Join(t.TempDir(), "opportunity_atlas.csv")
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})

	opts := MobilityOptions{URL: srv.URL, StateFIPS: "49", CachePath: cache}
	fetched, err := FetchMobility(context.Background(), f, opts)
	require.NoError(t, err)

	opts.URL = "http://127.0.0.1:1" // cache hit must not touch the network
	cached, err := FetchMobility(context.Background(), f, opts)
	require.NoError(t, err)
	assert.Equal(t, fetched, cached)
}

func TestFetchMobilityMissingGeographyColumn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("state,county\n49,35\n"))
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	_, err := FetchMobility(context.Background(), f, MobilityOptions{URL: srv.URL, StateFIPS: "49"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tract")
}

func TestNumericComponent(t *testing.T) {
	assert.Equal(t, "35", numericComponent("35"))
	assert.Equal(t, "35", numericComponent("35.0"))
	assert.Equal(t, "", numericComponent(""))
	assert.Equal(t, "", numericComponent("abc"))
	assert.Equal(t, "", numericComponent("-3"))
}
