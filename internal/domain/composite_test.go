package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolvedAlbemarle(t *testing.T) Region {
	t.Helper()
	region, _, err := Resolve(albemarle(), YearSpec{Start: 2020, End: 2020})
	require.NoError(t, err)
	return region
}

func collectionIDs(req CompositeRequest) []string {
	ids := make([]string, len(req.Sources))
	for i, s := range req.Sources {
		ids[i] = s.CollectionID
	}
	return ids
}

func TestBuildRequest_Deterministic(t *testing.T) {
	region := resolvedAlbemarle(t)
	for year := 1984; year <= 2024; year++ {
		a, err := BuildRequest(year, region, DefaultExportOptions())
		require.NoError(t, err)
		b, err := BuildRequest(year, region, DefaultExportOptions())
		require.NoError(t, err)

		if diff := cmp.Diff(a, b); diff != "" {
			t.Fatalf("year %d: requests differ (-first +second):\n%s", year, diff)
		}
	}
}

func TestBuildRequest_SourcesByYear(t *testing.T) {
	region := resolvedAlbemarle(t)

	cases := []struct {
		year int
		want []string
	}{
		{1985, []string{"LANDSAT/LT05/C02/T1_L2"}},
		{2005, []string{"LANDSAT/LE07/C02/T1_L2", "LANDSAT/LT05/C02/T1_L2"}},
		{2012, []string{"LANDSAT/LE07/C02/T1_L2", "LANDSAT/LT05/C02/T1_L2"}},
		{2013, []string{"LANDSAT/LC08/C02/T1_L2", "LANDSAT/LE07/C02/T1_L2"}},
		{2020, []string{"LANDSAT/LC08/C02/T1_L2", "LANDSAT/LE07/C02/T1_L2"}},
	}
	for _, tc := range cases {
		req, err := BuildRequest(tc.year, region, ExportOptions{})
		require.NoError(t, err)
		assert.Equal(t, tc.want, collectionIDs(req), "year %d", tc.year)
	}
}

func TestBuildRequest_HarmonizesBands(t *testing.T) {
	req, err := BuildRequest(2013, resolvedAlbemarle(t), ExportOptions{})
	require.NoError(t, err)
	require.Len(t, req.Sources, 2)

	l8, l7 := req.Sources[0], req.Sources[1]
	assert.Equal(t, "LANDSAT_8", l8.Sensor)
	assert.Equal(t, BandMapping{NIR: "SR_B5", Red: "SR_B4", QA: "QA_PIXEL"}, l8.Bands)
	assert.Equal(t, "LANDSAT_7", l7.Sensor)
	assert.Equal(t, BandMapping{NIR: "SR_B4", Red: "SR_B3", QA: "QA_PIXEL"}, l7.Bands)

	for _, s := range req.Sources {
		assert.Equal(t, MaskSpec{Band: "QA_PIXEL", Bits: []uint{3, 5}}, s.CloudMask)
	}
	assert.Equal(t, IndexSpec{Name: "NDVI", Bands: [2]string{"nir", "red"}}, req.Index)
	assert.Equal(t, ReducerMedian, req.Reducer)
}

func TestBuildRequest_DateWindowAndDefaults(t *testing.T) {
	req, err := BuildRequest(2020, resolvedAlbemarle(t), ExportOptions{Scale: 60})
	require.NoError(t, err)

	assert.Equal(t, "2020-01-01", req.DateStart)
	assert.Equal(t, "2021-01-01", req.DateEnd)
	assert.InDelta(t, 60.0, req.Scale, 0)
	assert.Equal(t, DefaultCRS, req.CRS)
	assert.InDelta(t, DefaultMaxPixels, req.MaxPixels, 0)
	assert.Regexp(t, `^ndvi-2020-[0-9a-f]{16}$`, req.Key)
}

func TestBuildRequest_CatalogOrderIrrelevant(t *testing.T) {
	region := resolvedAlbemarle(t)
	reversed := make([]Sensor, len(landsatCatalog))
	for i, s := range landsatCatalog {
		reversed[len(landsatCatalog)-1-i] = s
	}

	for _, year := range []int{2000, 2013, 2020} {
		a, err := buildRequest(landsatCatalog, year, region, ExportOptions{})
		require.NoError(t, err)
		b, err := buildRequest(reversed, year, region, ExportOptions{})
		require.NoError(t, err)
		if diff := cmp.Diff(a, b); diff != "" {
			t.Fatalf("year %d: catalog order changed request (-want +got):\n%s", year, diff)
		}
	}
}

func TestBuildRequest_KeyDependsOnContent(t *testing.T) {
	region := resolvedAlbemarle(t)
	a, err := BuildRequest(2020, region, ExportOptions{})
	require.NoError(t, err)
	b, err := BuildRequest(2021, region, ExportOptions{})
	require.NoError(t, err)
	c, err := BuildRequest(2020, region, ExportOptions{Scale: 60})
	require.NoError(t, err)

	assert.NotEqual(t, a.Key, b.Key)
	assert.NotEqual(t, a.Key, c.Key)
}

func TestBuildRequest_NoCoverage(t *testing.T) {
	_, err := BuildRequest(1980, resolvedAlbemarle(t), ExportOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCoverage)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "NDVI_2020_Albemarle.tif", FileName("NDVI", 2020, "Albemarle"))

	seen := map[string]bool{}
	for year := 1985; year <= 2020; year++ {
		name := FileName("NDVI", year, "Albemarle")
		assert.False(t, seen[name], "duplicate file name %s", name)
		seen[name] = true
	}
}

func TestExportTask_Observe(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	req, err := BuildRequest(2020, resolvedAlbemarle(t), ExportOptions{})
	require.NoError(t, err)

	task := NewExportTask("run-1", req, "GEE_Exports", "NDVI_2020_Albemarle.tif", "projects/p/operations/op1")
	assert.Equal(t, StatusSubmitted, task.Status)
	assert.Equal(t, req.Key, task.RequestKey)
	assert.Equal(t, fake.Now(), task.SubmittedAt)

	fake.Advance(time.Minute)
	assert.True(t, task.Observe(StatusRunning))
	assert.False(t, task.Observe(StatusRunning))
	assert.Equal(t, fake.Now(), task.UpdatedAt)
	assert.Equal(t, "projects/p/operations/op1", task.Handle)
	assert.Equal(t, 2020, task.Year)
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusCompleted, ParseStatus("completed"))
	assert.Equal(t, StatusUnknown, ParseStatus("CANCELLED"))
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusRunning.Terminal())
}

func TestExportRequestID_DistinctPerDestinationAndRun(t *testing.T) {
	req, err := BuildRequest(2020, resolvedAlbemarle(t), DefaultExportOptions())
	require.NoError(t, err)

	base := ExportRequestID(req, "run-1", "GEE_Exports", "NDVI_2020_Albemarle.tif")
	assert.Equal(t, base, ExportRequestID(req, "run-1", "GEE_Exports", "NDVI_2020_Albemarle.tif"))
	assert.NotEqual(t, req.Key, base)

	others := []string{
		ExportRequestID(req, "run-1", "Other_Folder", "NDVI_2020_Albemarle.tif"),
		ExportRequestID(req, "run-1", "GEE_Exports", "EVI_2020_Albemarle.tif"),
		ExportRequestID(req, "run-2", "GEE_Exports", "NDVI_2020_Albemarle.tif"),
		// Field boundaries are kept: moving text between parts changes the ID.
		ExportRequestID(req, "run-1", "GEE_ExportsN", "DVI_2020_Albemarle.tif"),
	}
	for _, id := range others {
		assert.NotEqual(t, base, id)
	}
}
