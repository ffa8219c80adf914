package census

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCountyLookupFallback(t *testing.T) {
	lookup, err := LoadCountyLookup(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.NoError(t, err)
	assert.Len(t, lookup, 29)
	assert.Equal(t, "Salt Lake", lookup["49035"])
	assert.Equal(t, "Weber", lookup["49057"])
}

func TestLoadCountyLookupReferenceFileWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "county_fips_lookup.csv")
	// A reference file that disagrees with the fallback is authoritative.
	data := "county_fips,county_name\n49035,Salt Lake County\n49011,Davis County\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	lookup, err := LoadCountyLookup(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, lookup, 2)
	assert.Equal(t, "Salt Lake County", lookup["49035"])
}

func TestLoadCountyLookupEmptyReferenceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "county_fips_lookup.csv")
	require.NoError(t, os.WriteFile(path, []byte("county_fips,county_name\n"), 0o644))

	_, err := LoadCountyLookup(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable rows")
}
