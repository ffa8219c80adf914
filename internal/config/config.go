// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wasatch-geo/blocktrends/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Census   CensusConfig   `yaml:"census" mapstructure:"census"`
	Mobility MobilityConfig `yaml:"mobility" mapstructure:"mobility"`
	Paths    PathsConfig    `yaml:"paths" mapstructure:"paths"`
	Tiers    model.TierSet  `yaml:"tiers" mapstructure:"tiers"`
	Map      MapConfig      `yaml:"map" mapstructure:"map"`
	Journal  JournalConfig  `yaml:"journal" mapstructure:"journal"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// CensusConfig configures the ACS primary source and TIGER downloads.
type CensusConfig struct {
	Vintage     int    `yaml:"vintage" mapstructure:"vintage"`
	StateFIPS   string `yaml:"state_fips" mapstructure:"state_fips"`
	APIKey      string `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// MobilityConfig configures the Opportunity Atlas source.
type MobilityConfig struct {
	URL        string  `yaml:"url" mapstructure:"url"`
	MatchFloor float64 `yaml:"match_floor" mapstructure:"match_floor"`
}

// PathsConfig holds the on-disk cache, reference, and output locations.
type PathsConfig struct {
	CacheDir     string `yaml:"cache_dir" mapstructure:"cache_dir"`
	ReferenceDir string `yaml:"reference_dir" mapstructure:"reference_dir"`
	OutputDir    string `yaml:"output_dir" mapstructure:"output_dir"`
	PrimaryCSV   string `yaml:"primary_csv" mapstructure:"primary_csv"`
}

// ACSCache returns the cache path for the primary statistics artifact.
func (p PathsConfig) ACSCache() string {
	return filepath.Join(p.CacheDir, "acs_housing.csv")
}

// GazetteerCache returns the cache path for block-group centroids.
func (p PathsConfig) GazetteerCache(stateFIPS string) string {
	return filepath.Join(p.CacheDir, "gazetteer_"+stateFIPS+".csv")
}

// MobilityCache returns the cache path for the Opportunity Atlas extract.
func (p PathsConfig) MobilityCache() string {
	return filepath.Join(p.CacheDir, "opportunity_atlas.csv")
}

// CountyGeoJSONCache returns the cache path for county boundaries.
func (p PathsConfig) CountyGeoJSONCache(stateFIPS string) string {
	return filepath.Join(p.CacheDir, "counties_"+stateFIPS+".geojson")
}

// TractGeoJSONCache returns the cache path for tract boundaries.
func (p PathsConfig) TractGeoJSONCache(stateFIPS string) string {
	return filepath.Join(p.CacheDir, "tracts_"+stateFIPS+".geojson")
}

// ShapefileDir returns the scratch directory for downloaded shapefile
// archives and their extracted contents.
func (p PathsConfig) ShapefileDir() string {
	return filepath.Join(p.CacheDir, "shapefiles")
}

// XLSXOutput returns the path of the Excel export.
func (p PathsConfig) XLSXOutput() string {
	return filepath.Join(p.OutputDir, "building_trends.xlsx")
}

// CountyLookup returns the reference path for the county FIPS lookup table.
func (p PathsConfig) CountyLookup() string {
	return filepath.Join(p.ReferenceDir, "county_fips_lookup.csv")
}

// EnrichedOutput returns the path of the enriched dataset artifact.
func (p PathsConfig) EnrichedOutput() string {
	return filepath.Join(p.CacheDir, "block_groups_enriched.csv")
}

// MapOutput returns the path of the rendered map page.
func (p PathsConfig) MapOutput() string {
	return filepath.Join(p.OutputDir, "building_trends.html")
}

// MapConfig holds map rendering defaults.
type MapConfig struct {
	CenterLat       float64 `yaml:"center_lat" mapstructure:"center_lat"`
	CenterLon       float64 `yaml:"center_lon" mapstructure:"center_lon"`
	Zoom            int     `yaml:"zoom" mapstructure:"zoom"`
	MarkerMinRadius float64 `yaml:"marker_min_radius" mapstructure:"marker_min_radius"`
	MarkerMaxRadius float64 `yaml:"marker_max_radius" mapstructure:"marker_max_radius"`
	Title           string  `yaml:"title" mapstructure:"title"`
}

// JournalConfig configures the SQLite run journal.
type JournalConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the preview server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BLOCKTRENDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("census.vintage", 2023)
	v.SetDefault("census.state_fips", "49")
	v.SetDefault("census.timeout_secs", 120)
	v.SetDefault("mobility.url", "https://opportunityinsights.org/wp-content/uploads/2018/10/tract_outcomes_simple.csv")
	v.SetDefault("mobility.match_floor", 0.60)
	v.SetDefault("paths.cache_dir", "data/cache")
	v.SetDefault("paths.reference_dir", "data/reference")
	v.SetDefault("paths.output_dir", "output")
	v.SetDefault("tiers", defaultTierMaps())
	v.SetDefault("map.center_lat", 40.65)
	v.SetDefault("map.center_lon", -111.9)
	v.SetDefault("map.zoom", 10)
	v.SetDefault("map.marker_min_radius", 3)
	v.SetDefault("map.marker_max_radius", 15)
	v.SetDefault("map.title", "Utah Building Trends Explorer")
	v.SetDefault("journal.path", "data/blocktrends.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// A non-exhaustive tier table corrupts every classification downstream,
	// so it aborts startup rather than surfacing mid-run.
	if err := cfg.Tiers.Validate(); err != nil {
		return nil, eris.Wrap(err, "config: tiers")
	}

	return &cfg, nil
}

// defaultTierMaps renders the stock tier set as viper-compatible defaults.
func defaultTierMaps() []map[string]any {
	tiers := model.DefaultTiers()
	out := make([]map[string]any, len(tiers))
	for i, t := range tiers {
		out[i] = map[string]any{
			"label": t.Label,
			"min":   t.Min,
			"max":   t.Max,
			"color": t.Color,
		}
	}
	return out
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
