package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasatch-geo/blocktrends/internal/model"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "map.html")
	require.NoError(t, os.WriteFile(mapPath, []byte("<html>map</html>"), 0o644))

	ds := &model.Dataset{
		StateAvgPctNew: 0.084,
		Records: []model.BlockGroupRecord{
			{GEOID: "490351001001", CountyFIPS: "49035", CountyName: "Salt Lake",
				Lat: model.Float(40.7), Lon: model.Float(-111.9), TierLabel: "High"},
			{GEOID: "490111254002", CountyFIPS: "49011", CountyName: "Davis",
				Lat: model.Float(41.0), Lon: model.Float(-111.95), TierLabel: "Minimal"},
		},
	}
	return newServeRouter(ds, mapPath, filepath.Join(dir, "journal.db"))
}

func TestServeHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestServeMapPage(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "map")
}

func TestServeBlockGroups(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/blockgroups", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var records []model.BlockGroupRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 2)
}

func TestServeBlockGroupsCountyFilter(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/blockgroups?county=49011", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var records []model.BlockGroupRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Davis", records[0].CountyName)
}

func TestServeBlockGroupByID(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/blockgroups/490351001001", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var record model.BlockGroupRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "Salt Lake", record.CountyName)

	rec = httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/blockgroups/000000000000", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeSummary(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var summary struct {
		BlockGroups    int            `json:"block_groups"`
		StateAvgPctNew float64        `json:"state_avg_pct_new"`
		TierCounts     map[string]int `json:"tier_counts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.BlockGroups)
	assert.InDelta(t, 0.084, summary.StateAvgPctNew, 1e-12)
	assert.Equal(t, 1, summary.TierCounts["High"])
}

func TestServeRunsEmptyJournal(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
