package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "5250", cfg.Server.Port)
	assert.Equal(t, "2020-01-01", cfg.Backfill.StartDate)
	assert.Equal(t, "2024-12-31", cfg.Backfill.EndDate)
	assert.Equal(t, 24, cfg.Backfill.CurrentDataMonths)
	assert.InDelta(t, 0.7, cfg.Backfill.ConfidenceThreshold, 1e-9)
	assert.Equal(t, []string{"timeseries", "gbt"}, cfg.Backfill.Models)
	assert.False(t, cfg.Backfill.ScheduleEnabled)
	assert.Equal(t, []string{"residential_sale"}, cfg.Backfill.PropertyTypes)
	assert.Equal(t, 100, cfg.BatchProcessing.MaxBatchSize)
	assert.Equal(t, 2, cfg.BatchProcessing.ProcessorCount)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("BACKFILL_MODELS", "timeseries,rf,gbt")
	t.Setenv("BACKFILL_CONFIDENCE_THRESHOLD", "0.5")
	t.Setenv("BACKFILL_SCHEDULE_ENABLED", "true")
	t.Setenv("BACKFILL_PROPERTY_TYPES", "residential_sale,residential_rent")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"timeseries", "rf", "gbt"}, cfg.Backfill.Models)
	assert.InDelta(t, 0.5, cfg.Backfill.ConfidenceThreshold, 1e-9)
	assert.True(t, cfg.Backfill.ScheduleEnabled)
	assert.Equal(t, []string{"residential_sale", "residential_rent"}, cfg.Backfill.PropertyTypes)
}

func TestLoadConfig_ClampsOutOfRangeValues(t *testing.T) {
	t.Setenv("BACKFILL_CURRENT_DATA_MONTHS", "0")
	t.Setenv("BACKFILL_CONFIDENCE_THRESHOLD", "1.5")
	t.Setenv("BATCH_PROCESSOR_COUNT", "-2")
	t.Setenv("BACKFILL_SCHEDULE_HOUR", "25")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Backfill.CurrentDataMonths)
	assert.InDelta(t, 1.0, cfg.Backfill.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 1, cfg.BatchProcessing.ProcessorCount)
	assert.Equal(t, 2, cfg.Backfill.ScheduleHour)
}

func TestNormalizeLocationCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"IST-001", "IST-001"},
		{"ist-001", "IST-001"},
		{"  ank-002  ", "ANK-002"},
		{"izm 001", "IZM-001"},
		{" ist   004 ", "IST-004"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeLocationCode(tt.input))
		})
	}
}

func TestGetLocationByCode(t *testing.T) {
	loc := GetLocationByCode("IST-001")
	require.NotNil(t, loc)
	assert.Equal(t, "Kadikoy", loc.Name)
	assert.Equal(t, "istanbul", loc.Region)

	assert.Nil(t, GetLocationByCode("XXX-999"))
}

func TestGetLocationCodes(t *testing.T) {
	codes := GetLocationCodes()
	assert.Len(t, codes, len(SupportedLocations))
	assert.Contains(t, codes, "IST-001")
	assert.Contains(t, codes, "IZM-002")
}

func resetRegionConfig(t *testing.T) {
	t.Helper()
	regionLock.Lock()
	regionConfig = nil
	regionLock.Unlock()
	t.Cleanup(func() {
		regionLock.Lock()
		regionConfig = nil
		regionLock.Unlock()
	})
}

func TestDefaultRegionConfig_GroupsRegistry(t *testing.T) {
	resetRegionConfig(t)

	regions := GetRegions()
	require.Len(t, regions, 3)
	assert.Equal(t, "istanbul", regions[0].Name)
	assert.Equal(t, []string{"IST-001", "IST-002", "IST-003", "IST-004"}, regions[0].Locations)
	assert.Equal(t, "ankara", regions[1].Name)
	assert.Equal(t, "izmir", regions[2].Name)
}

func TestGetRegionByName(t *testing.T) {
	resetRegionConfig(t)

	region := GetRegionByName("ankara")
	require.NotNil(t, region)
	assert.Equal(t, []string{"ANK-001", "ANK-002"}, region.Locations)

	assert.Nil(t, GetRegionByName("bursa"))
}

func TestUpdateRegion(t *testing.T) {
	resetRegionConfig(t)

	UpdateRegion(Region{Name: "izmir", Locations: []string{"IZM-001"}})
	region := GetRegionByName("izmir")
	require.NotNil(t, region)
	assert.Equal(t, []string{"IZM-001"}, region.Locations)

	UpdateRegion(Region{Name: "bursa", Locations: []string{"BUR-001"}})
	assert.Len(t, GetRegions(), 4)
	require.NotNil(t, GetRegionByName("bursa"))
}

func TestLoadRegionConfig_MissingFileFallsBack(t *testing.T) {
	resetRegionConfig(t)

	original := regionPath
	regionPath = t.TempDir() + "/regions.json"
	t.Cleanup(func() { regionPath = original })

	require.NoError(t, LoadRegionConfig())
	assert.Len(t, GetRegions(), 3)
}

func TestSaveAndLoadRegionConfig(t *testing.T) {
	resetRegionConfig(t)

	original := regionPath
	regionPath = t.TempDir() + "/regions.json"
	t.Cleanup(func() { regionPath = original })

	UpdateRegion(Region{Name: "bursa", Locations: []string{"BUR-001"}})
	require.NoError(t, SaveRegionConfig())

	regionLock.Lock()
	regionConfig = nil
	regionLock.Unlock()

	require.NoError(t, LoadRegionConfig())
	region := GetRegionByName("bursa")
	require.NotNil(t, region)
	assert.Equal(t, []string{"BUR-001"}, region.Locations)
}
