package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emlakindex/server/internal/models"
)

func setupDatabase(t *testing.T) *Database {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDatabase(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })
	return db
}

func insertObservation(t *testing.T, db *Database, loc, propertyType, date string, price, size float64) {
	_, err := db.GetDB().Exec(`
		INSERT INTO price_observations (location_code, property_type, date, price, size_m2, price_per_m2)
		VALUES (?, ?, ?, ?, ?, ?)
	`, loc, propertyType, date, price, size, price/size)
	require.NoError(t, err)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := setupDatabase(t)
	assert.NoError(t, db.RunMigrations())
}

func TestGetObservations_Filters(t *testing.T) {
	db := setupDatabase(t)
	insertObservation(t, db, "IST-001", "residential_sale", "2024-01-01", 4500000, 100)
	insertObservation(t, db, "IST-001", "residential_sale", "2024-02-01", 4600000, 100)
	insertObservation(t, db, "ANK-001", "residential_rent", "2024-01-01", 30000, 100)

	all, err := db.GetObservations("", "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	sales, err := db.GetObservations("", "", "residential_sale")
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, models.PropertyResidentialSale, sales[0].PropertyType)
	assert.Equal(t, "2024-01", sales[0].MonthKey())
	assert.InDelta(t, 45000, sales[0].PricePerM2, 1e-9)

	feb, err := db.GetObservations("2024-02-01", "", "")
	require.NoError(t, err)
	assert.Len(t, feb, 1)

	jan, err := db.GetObservations("", "2024-01-31", "")
	require.NoError(t, err)
	assert.Len(t, jan, 2)
}

func TestGetObservations_Ordering(t *testing.T) {
	db := setupDatabase(t)
	insertObservation(t, db, "IZM-001", "residential_sale", "2024-03-01", 3000000, 100)
	insertObservation(t, db, "ANK-001", "residential_sale", "2024-02-01", 2000000, 100)
	insertObservation(t, db, "ANK-001", "residential_sale", "2024-01-01", 1900000, 100)

	obs, err := db.GetObservations("", "", "")
	require.NoError(t, err)
	require.Len(t, obs, 3)
	assert.Equal(t, "ANK-001", obs[0].LocationCode)
	assert.Equal(t, "2024-01", obs[0].MonthKey())
	assert.Equal(t, "2024-02", obs[1].MonthKey())
	assert.Equal(t, "IZM-001", obs[2].LocationCode)
}

func TestGetObservationCount(t *testing.T) {
	db := setupDatabase(t)
	insertObservation(t, db, "IST-001", "residential_sale", "2024-01-01", 4500000, 100)
	insertObservation(t, db, "IST-001", "residential_rent", "2024-01-01", 35000, 100)

	total, err := db.GetObservationCount("")
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	rent, err := db.GetObservationCount("residential_rent")
	require.NoError(t, err)
	assert.Equal(t, 1, rent)
}

func backfillFixture() models.BackfillResult {
	return models.BackfillResult{
		LocationCode:  "IST-001",
		PropertyType:  models.PropertyResidentialSale,
		FilledPeriods: []string{"2020-01", "2020-02"},
		Predictions: []models.BackfillPrediction{
			{Period: "2020-01", PredictedPricePerM2: 28000, Confidence: 0.9, IsPredicted: true},
			{Period: "2020-02", PredictedPricePerM2: 28400, Confidence: 0.8, IsPredicted: true},
		},
		ModelUsed: models.ModelTimeSeries,
		RMSE:      120.5,
		MAE:       95.2,
		R2Score:   0.93,
	}
}

func TestBackfillPersistenceRoundTrip(t *testing.T) {
	db := setupDatabase(t)
	result := backfillFixture()

	require.NoError(t, db.SaveBackfillPredictions("20260101_120000", result))
	require.NoError(t, db.SaveBackfillMetadata("20260101_120000", result))

	results, err := db.GetBackfillResults("20260101_120000")
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.Equal(t, "IST-001", got.LocationCode)
	assert.Equal(t, models.PropertyResidentialSale, got.PropertyType)
	assert.Equal(t, models.ModelTimeSeries, got.ModelUsed)
	assert.Equal(t, []string{"2020-01", "2020-02"}, got.FilledPeriods)
	assert.InDelta(t, 120.5, got.RMSE, 1e-9)
	require.Len(t, got.Predictions, 2)
	assert.True(t, got.Predictions[0].IsPredicted)
	assert.InDelta(t, 0.9, got.Predictions[0].Confidence, 1e-9)
}

func TestSaveBackfillPredictions_ReplacesOnRerun(t *testing.T) {
	db := setupDatabase(t)
	result := backfillFixture()
	require.NoError(t, db.SaveBackfillPredictions("s1", result))

	result.Predictions[0].PredictedPricePerM2 = 29000
	require.NoError(t, db.SaveBackfillPredictions("s1", result))
	require.NoError(t, db.SaveBackfillMetadata("s1", result))

	results, err := db.GetBackfillResults("s1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Predictions, 2)
	assert.InDelta(t, 29000, results[0].Predictions[0].PredictedPricePerM2, 1e-9)
}

func TestGetLatestSessionID(t *testing.T) {
	db := setupDatabase(t)

	latest, err := db.GetLatestSessionID()
	require.NoError(t, err)
	assert.Equal(t, "", latest)

	result := backfillFixture()
	require.NoError(t, db.SaveBackfillMetadata("20260101_080000", result))
	require.NoError(t, db.SaveBackfillMetadata("20260102_080000", result))

	latest, err = db.GetLatestSessionID()
	require.NoError(t, err)
	assert.Equal(t, "20260102_080000", latest)
}

func TestGetBackfillResults_UnknownSession(t *testing.T) {
	db := setupDatabase(t)
	results, err := db.GetBackfillResults("never-ran")
	require.NoError(t, err)
	assert.Empty(t, results)
}
