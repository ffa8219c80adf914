package store

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasatch-geo/blocktrends/internal/model"
)

func sampleDataset() *model.Dataset {
	return &model.Dataset{
		StateAvgPctNew: 0.05,
		Records: []model.BlockGroupRecord{
			{
				GEOID: "490351001001", Name: "Block Group 1", CountyFIPS: "49035",
				CountyName: "Salt Lake", TractFIPS: "49035100100",
				Lat: model.Float(40.7), Lon: model.Float(-111.9),
				TotalHousingUnits: model.Float(400), Built2020Plus: model.Float(40),
				MedianHHIncome:  model.Float(72000),
				MedianHomeValue: nil, // suppressed upstream
				PctNewHousing:   0.1, PctRenter: 0.25, PctCollege: 0.4,
				TierLabel: "High", TierColor: "#0570B0",
				StateAvgPctNew: 0.05, MobilityScore: model.Float(0.43),
			},
			{
				GEOID: "490111254002", CountyFIPS: "49011", CountyName: "Davis",
				TractFIPS: "49011125400",
				Lat:       model.Float(41.0), Lon: model.Float(-111.9),
				TierLabel: model.NoDataLabel, TierColor: model.NoDataColor,
				StateAvgPctNew: 0.05,
			},
		},
	}
}

func TestWriteDatasetCSVDisplaySentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "enriched.csv")
	require.NoError(t, WriteDatasetCSV(path, sampleDataset()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	header := rows[0]
	col := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		t.Fatalf("column %s not found", name)
		return -1
	}

	// Absent currency medians get the display sentinel, absent non-currency
	// measures an empty cell.
	assert.Equal(t, strconv.Itoa(model.DisplayNA), rows[1][col("median_home_value")])
	assert.Equal(t, "72000", rows[1][col("median_hh_income")])
	assert.Equal(t, "", rows[2][col("total_housing_units")])
	assert.Equal(t, "", rows[2][col("mobility_score")])
	assert.Equal(t, "490351001001", rows[1][col("geoid")])
}

func TestDatasetCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enriched.csv")
	in := sampleDataset()
	require.NoError(t, WriteDatasetCSV(path, in))

	out, err := ReadDatasetCSV(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, out.Records, 2)

	first := out.Records[0]
	assert.Equal(t, in.Records[0].GEOID, first.GEOID)
	assert.Nil(t, first.MedianHomeValue, "display sentinel reads back as absence")
	require.NotNil(t, first.MedianHHIncome)
	assert.Equal(t, 72000.0, *first.MedianHHIncome)
	require.NotNil(t, first.MobilityScore)
	assert.Equal(t, 0.43, *first.MobilityScore)
	assert.Equal(t, "High", first.TierLabel)
	assert.InDelta(t, 0.05, out.StateAvgPctNew, 1e-12)

	second := out.Records[1]
	assert.Nil(t, second.TotalHousingUnits)
	assert.Nil(t, second.MobilityScore)
	assert.Equal(t, model.NoDataLabel, second.TierLabel)
}

func TestReadDatasetCSVMalformedGeoid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enriched.csv")
	require.NoError(t, os.WriteFile(path,
		[]byte("geoid,name\nnot-a-geoid,x\n"), 0o644))

	_, err := ReadDatasetCSV(context.Background(), path)
	require.Error(t, err)
}

func TestReadDatasetCSVMissingGeoidColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enriched.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,lat\nx,1\n"), 0o644))

	_, err := ReadDatasetCSV(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geoid")
}
