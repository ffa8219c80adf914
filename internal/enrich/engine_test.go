package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasatch-geo/blocktrends/internal/census"
	"github.com/wasatch-geo/blocktrends/internal/geoid"
	"github.com/wasatch-geo/blocktrends/internal/model"
)

func testCounties() map[string]string {
	return map[string]string{"49035": "Salt Lake", "49011": "Davis"}
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Options{Tiers: model.DefaultTiers(), MobilityFloor: 0.60})
	require.NoError(t, err)
	return e
}

func TestNewRejectsInvalidTiers(t *testing.T) {
	_, err := New(Options{Tiers: model.TierSet{
		{Label: "Only", Min: 0.2, Max: 1.0, Color: "#000000"},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tier")
}

func TestRunEmptyPrimaryIsFatal(t *testing.T) {
	_, _, err := testEngine(t).Run(Inputs{Counties: testCounties()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary")
}

func TestRunStateBenchmark(t *testing.T) {
	// Weighted benchmark: (10+90)/(100+300) = 0.25, not the mean of the
	// per-record fractions (0.2).
	in := Inputs{
		Primary: []model.BlockGroupRecord{
			{GEOID: "490351001001", Lat: model.Float(40.7), Lon: model.Float(-111.9),
				TotalHousingUnits: model.Float(100), Built2020Plus: model.Float(10)},
			{GEOID: "490351001002", Lat: model.Float(40.8), Lon: model.Float(-111.8),
				TotalHousingUnits: model.Float(300), Built2020Plus: model.Float(90)},
		},
		Counties: testCounties(),
	}

	ds, report, err := testEngine(t).Run(in)
	require.NoError(t, err)
	require.Equal(t, 2, report.RowsOut)

	assert.InDelta(t, 0.25, ds.StateAvgPctNew, 1e-12)
	for _, rec := range ds.Records {
		assert.InDelta(t, 0.25, rec.StateAvgPctNew, 1e-12, "benchmark broadcast to every record")
	}
	assert.InDelta(t, 0.1, ds.Records[0].PctNewHousing, 1e-12)
	assert.InDelta(t, 0.3, ds.Records[1].PctNewHousing, 1e-12)
}

func TestRunCentroidJoinDropsUnmatched(t *testing.T) {
	in := Inputs{
		Primary: []model.BlockGroupRecord{
			{GEOID: "490351001001", TotalHousingUnits: model.Float(100)},
			{GEOID: "490351001002", TotalHousingUnits: model.Float(100)},
			{GEOID: "490351001003", TotalHousingUnits: model.Float(100)},
		},
		Centroids: map[geoid.GEOID]census.Centroid{
			"490351001001": {Lat: 40.7, Lon: -111.9},
			"490351001003": {Lat: 40.8, Lon: -111.8},
		},
		Counties: testCounties(),
	}

	ds, report, err := testEngine(t).Run(in)
	require.NoError(t, err)

	assert.Equal(t, 3, report.RowsIn)
	assert.Equal(t, 2, report.RowsOut)
	assert.Equal(t, 1, report.DroppedNoCentroid)
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[0], "dropped 1 of 3")

	for _, rec := range ds.Records {
		assert.True(t, rec.HasCoordinates())
	}
}

func TestRunCoordinateJoinIdempotent(t *testing.T) {
	in := Inputs{
		Primary: []model.BlockGroupRecord{
			{GEOID: "490351001001", Lat: model.Float(40.7), Lon: model.Float(-111.9),
				TotalHousingUnits: model.Float(100)},
		},
		// A centroid table that would move the record if the join ran.
		Centroids: map[geoid.GEOID]census.Centroid{
			"490351001001": {Lat: 0, Lon: 0},
		},
		Counties: testCounties(),
	}

	ds, report, err := testEngine(t).Run(in)
	require.NoError(t, err)
	assert.Equal(t, 0, report.DroppedNoCentroid)
	assert.Equal(t, 40.7, *ds.Records[0].Lat, "existing coordinates preserved")
}

func TestRunRerunOnOwnOutputIsStable(t *testing.T) {
	in := Inputs{
		Primary: []model.BlockGroupRecord{
			{GEOID: "490351001001", Lat: model.Float(40.7), Lon: model.Float(-111.9),
				TotalHousingUnits: model.Float(100), Built2020Plus: model.Float(10)},
			{GEOID: "490111254002", Lat: model.Float(41.0), Lon: model.Float(-111.9),
				TotalHousingUnits: model.Float(50)},
		},
		Counties: testCounties(),
	}
	e := testEngine(t)

	first, _, err := e.Run(in)
	require.NoError(t, err)

	second, report, err := e.Run(Inputs{Primary: first.Records, Counties: testCounties()})
	require.NoError(t, err)
	assert.Equal(t, len(first.Records), report.RowsOut)
	assert.Equal(t, first.Records, second.Records)
}

func TestRunCountyEnrichment(t *testing.T) {
	in := Inputs{
		Primary: []model.BlockGroupRecord{
			{GEOID: "490351001001", Lat: model.Float(40.7), Lon: model.Float(-111.9),
				TotalHousingUnits: model.Float(1)},
			{GEOID: "499991001001", Lat: model.Float(40.7), Lon: model.Float(-111.9),
				TotalHousingUnits: model.Float(1)},
		},
		Counties: testCounties(),
	}

	ds, report, err := testEngine(t).Run(in)
	require.NoError(t, err)

	assert.Equal(t, "49035", ds.Records[0].CountyFIPS)
	assert.Equal(t, "Salt Lake", ds.Records[0].CountyName)
	assert.Equal(t, UnknownCountyName, ds.Records[1].CountyName, "unresolved lookup keeps the row")
	assert.Equal(t, 1, report.UnknownCounties)
}

func TestRunDerivedRatios(t *testing.T) {
	in := Inputs{
		Primary: []model.BlockGroupRecord{
			{
				GEOID: "490351001001", Lat: model.Float(40.7), Lon: model.Float(-111.9),
				TotalHousingUnits:  model.Float(200),
				Built2020Plus:      model.Float(30),
				OwnerOccupied:      model.Float(120),
				RenterOccupied:     model.Float(60),
				TotalPop:           model.Float(500),
				Bachelors:          model.Float(80),
				Masters:            model.Float(30),
				ProfessionalDegree: model.Float(5),
				Doctorate:          model.Float(5),
				Units10to19:        model.Float(10),
				Units20to49:        model.Float(20),
				Units50Plus:        model.Float(5),
			},
			// Zero denominators everywhere: ratios are 0.0, not NaN.
			{GEOID: "490351001002", Lat: model.Float(40.8), Lon: model.Float(-111.8)},
		},
		Counties: testCounties(),
	}

	ds, _, err := testEngine(t).Run(in)
	require.NoError(t, err)

	full := ds.Records[0]
	assert.InDelta(t, 0.15, full.PctNewHousing, 1e-12)
	assert.InDelta(t, 60.0/180.0, full.PctRenter, 1e-12)
	assert.InDelta(t, 120.0/500.0, full.PctCollege, 1e-12)
	assert.Equal(t, 35.0, full.Units10Plus)

	empty := ds.Records[1]
	assert.Zero(t, empty.PctNewHousing)
	assert.Zero(t, empty.PctRenter)
	assert.Zero(t, empty.PctCollege)
	assert.Equal(t, "Minimal new construction", empty.TierLabel, "zero fraction is real data, not no-data")
}

func TestRunTierAssignment(t *testing.T) {
	in := Inputs{
		Primary: []model.BlockGroupRecord{
			{GEOID: "490351001001", Lat: model.Float(40.7), Lon: model.Float(-111.9),
				TotalHousingUnits: model.Float(100), Built2020Plus: model.Float(20)},
		},
		Counties: testCounties(),
	}

	ds, _, err := testEngine(t).Run(in)
	require.NoError(t, err)
	assert.Equal(t, "Construction hotspot", ds.Records[0].TierLabel)
	assert.Equal(t, "#034E7B", ds.Records[0].TierColor)
}

func TestRunMobilityJoinManyToOne(t *testing.T) {
	in := Inputs{
		Primary: []model.BlockGroupRecord{
			// Two block groups in the same tract, one in another.
			{GEOID: "490351001001", Lat: model.Float(40.7), Lon: model.Float(-111.9),
				TotalHousingUnits: model.Float(1)},
			{GEOID: "490351001002", Lat: model.Float(40.7), Lon: model.Float(-111.9),
				TotalHousingUnits: model.Float(1)},
			{GEOID: "490111254001", Lat: model.Float(41.0), Lon: model.Float(-111.9),
				TotalHousingUnits: model.Float(1)},
		},
		Counties: testCounties(),
		Mobility: map[string]float64{"49035100100": 0.43},
	}

	// 2 of 3 rows match; a 0.75 floor makes that a data-quality warning.
	e, err := New(Options{Tiers: model.DefaultTiers(), MobilityFloor: 0.75})
	require.NoError(t, err)
	ds, report, err := e.Run(in)
	require.NoError(t, err)

	require.NotNil(t, ds.Records[0].MobilityScore)
	require.NotNil(t, ds.Records[1].MobilityScore)
	assert.Equal(t, 0.43, *ds.Records[0].MobilityScore, "siblings share the tract score")
	assert.Equal(t, 0.43, *ds.Records[1].MobilityScore)
	assert.Nil(t, ds.Records[2].MobilityScore, "unmatched rows keep a null score")

	assert.Equal(t, 2, report.MobilityMatched)
	assert.Equal(t, 3, report.MobilityTotal)
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[len(report.Warnings)-1], "below floor")
}

func TestRunMobilityAbsentSourceSkipsJoin(t *testing.T) {
	in := Inputs{
		Primary: []model.BlockGroupRecord{
			{GEOID: "490351001001", Lat: model.Float(40.7), Lon: model.Float(-111.9),
				TotalHousingUnits: model.Float(1)},
		},
		Counties: testCounties(),
	}

	ds, report, err := testEngine(t).Run(in)
	require.NoError(t, err)
	assert.Nil(t, ds.Records[0].MobilityScore)
	assert.Zero(t, report.MobilityTotal)
	assert.Empty(t, report.Warnings, "absent optional source is not a warning")
}

func TestRunSentinelRepair(t *testing.T) {
	in := Inputs{
		Primary: []model.BlockGroupRecord{
			{GEOID: "490351001001", Lat: model.Float(40.7), Lon: model.Float(-111.9),
				TotalHousingUnits: model.Float(100),
				MedianHomeValue:   model.Float(model.SuppressedValue),
				MedianHHIncome:    model.Float(model.SuppressedValue)},
		},
		Counties: testCounties(),
	}

	ds, report, err := testEngine(t).Run(in)
	require.NoError(t, err)
	assert.Equal(t, 2, report.SentinelsRepaired)
	assert.Nil(t, ds.Records[0].MedianHomeValue)
	assert.Nil(t, ds.Records[0].MedianHHIncome)
}

func TestRunCoordinateGate(t *testing.T) {
	// No centroid source at all: rows without coordinates fall at the gate.
	in := Inputs{
		Primary: []model.BlockGroupRecord{
			{GEOID: "490351001001", Lat: model.Float(40.7), Lon: model.Float(-111.9),
				TotalHousingUnits: model.Float(1)},
			{GEOID: "490351001002", TotalHousingUnits: model.Float(1)},
		},
		Counties: testCounties(),
	}

	ds, report, err := testEngine(t).Run(in)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RowsOut)
	assert.Equal(t, 1, report.DroppedNoCoordinates)
	assert.Len(t, ds.Records, 1)
}

func TestRunDoesNotMutateInput(t *testing.T) {
	primary := []model.BlockGroupRecord{
		{GEOID: "490351001001", TotalHousingUnits: model.Float(100)},
	}
	_, _, err := testEngine(t).Run(Inputs{
		Primary: primary,
		Centroids: map[geoid.GEOID]census.Centroid{
			"490351001001": {Lat: 40.7, Lon: -111.9},
		},
		Counties: testCounties(),
	})
	require.NoError(t, err)
	assert.Nil(t, primary[0].Lat, "caller's slice untouched")
	assert.Empty(t, primary[0].CountyName)
}
