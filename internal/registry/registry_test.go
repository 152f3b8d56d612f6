package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubeau_DistinctStationForms(t *testing.T) {
	descriptors := Hubeau()

	piezoStations, ok := descriptors["piezo"].Lookup("stations")
	require.True(t, ok)
	assert.Equal(t, "stations", piezoStations.Path)

	hydroStations, ok := descriptors["hydro"].Lookup("stations")
	require.True(t, ok)
	assert.Equal(t, "referentiel/stations", hydroStations.Path)
}

func TestHubeau_QualitySurfaceEndpointForms(t *testing.T) {
	descriptors := Hubeau()

	stationPC, ok := descriptors["quality_surface"].Lookup("station_pc")
	require.True(t, ok)
	assert.Equal(t, []string{"code_station"}, stationPC.RequiredFields)

	analysePC, ok := descriptors["quality_surface"].Lookup("analyse_pc")
	require.True(t, ok)
	assert.Equal(t, []string{"code_station", "date_prelevement"}, analysePC.RequiredFields)
}

func TestHubeau_PrelevementsKeepsSubDailyGranularity(t *testing.T) {
	descriptors := Hubeau()

	chroniques, ok := descriptors["prelevements"].Lookup("chroniques")
	require.True(t, ok)
	require.NotNil(t, chroniques.Dedup)
	assert.False(t, chroniques.Dedup.TruncateToDay)
}

func TestHubeau_OtherEndpointsTruncateToDay(t *testing.T) {
	descriptors := Hubeau()

	piezoChroniques, ok := descriptors["piezo"].Lookup("chroniques")
	require.True(t, ok)
	require.NotNil(t, piezoChroniques.Dedup)
	assert.True(t, piezoChroniques.Dedup.TruncateToDay)
}

func TestMeteo_IsWFSGMLFamily(t *testing.T) {
	descriptors := Meteo()

	grid, ok := descriptors["meteo"].Lookup("grid")
	require.True(t, ok)
	assert.Equal(t, FamilyWFSGML, grid.Family)
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	overlayPath := filepath.Join(dir, "overlay.yaml")
	content := `
apis:
  piezo:
    chroniques:
      page_size: 500
      lookback_days: 30
`
	require.NoError(t, os.WriteFile(overlayPath, []byte(content), 0o644))

	descriptors := Hubeau()
	err := LoadOverlay(overlayPath, descriptors)
	require.NoError(t, err)

	spec, ok := descriptors["piezo"].Lookup("chroniques")
	require.True(t, ok)
	assert.Equal(t, 500, spec.PageSize)
	assert.Equal(t, 30, spec.LookbackDays)
}

func TestLoadOverlay_UnknownAPI(t *testing.T) {
	dir := t.TempDir()
	overlayPath := filepath.Join(dir, "overlay.yaml")
	content := `
apis:
  nonexistent:
    stations:
      page_size: 500
`
	require.NoError(t, os.WriteFile(overlayPath, []byte(content), 0o644))

	descriptors := Hubeau()
	err := LoadOverlay(overlayPath, descriptors)
	assert.Error(t, err)
}
