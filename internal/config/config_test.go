package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Run from a directory with no config.yaml so only defaults apply.
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2023, cfg.Census.Vintage)
	assert.Equal(t, "49", cfg.Census.StateFIPS)
	assert.Equal(t, 0.60, cfg.Mobility.MatchFloor)
	assert.Equal(t, "data/cache", cfg.Paths.CacheDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)

	require.Len(t, cfg.Tiers, 5)
	assert.NoError(t, cfg.Tiers.Validate())
	assert.Equal(t, "Construction hotspot", cfg.Tiers[4].Label)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("BLOCKTRENDS_CENSUS_STATE_FIPS", "08")
	t.Setenv("BLOCKTRENDS_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "08", cfg.Census.StateFIPS)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsBadTierFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	// Tiers leaving a gap between 0.5 and 0.6 must abort startup.
	bad := `tiers:
  - label: low
    min: 0.0
    max: 0.5
    color: "#111111"
  - label: high
    min: 0.6
    max: 1.0
    color: "#222222"
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(bad), 0o644))

	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tiers")
}

func TestPathHelpers(t *testing.T) {
	p := PathsConfig{CacheDir: "data/cache", ReferenceDir: "data/reference", OutputDir: "output"}
	assert.Equal(t, "data/cache/acs_housing.csv", p.ACSCache())
	assert.Equal(t, "data/cache/gazetteer_49.csv", p.GazetteerCache("49"))
	assert.Equal(t, "data/cache/opportunity_atlas.csv", p.MobilityCache())
	assert.Equal(t, "data/cache/counties_49.geojson", p.CountyGeoJSONCache("49"))
	assert.Equal(t, "data/reference/county_fips_lookup.csv", p.CountyLookup())
	assert.Equal(t, "data/cache/block_groups_enriched.csv", p.EnrichedOutput())
	assert.Equal(t, "output/building_trends.html", p.MapOutput())
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
