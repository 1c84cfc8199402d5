package mlmodel

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emlakindex/server/internal/models"
)

// trendObservations builds a monthly series with a linear trend starting at
// the given month.
func trendObservations(loc string, start time.Time, months int, base, slope float64) []models.PriceObservation {
	obs := make([]models.PriceObservation, months)
	for m := 0; m < months; m++ {
		obs[m] = models.PriceObservation{
			LocationCode: loc,
			PropertyType: models.PropertyResidentialSale,
			Date:         start.AddDate(0, m, 0),
			PricePerM2:   base + slope*float64(m),
		}
	}
	return obs
}

func TestSeasonalForecaster_InsufficientObservations(t *testing.T) {
	f := NewSeasonalForecaster(logrus.New())
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := trendObservations("IST-001", start, 11, 30000, 100)

	_, err := f.TrainLocationModel(obs, "IST-001")
	assert.True(t, errors.Is(err, ErrInsufficientData))
	assert.False(t, f.HasModel("IST-001"))
}

func TestSeasonalForecaster_UnknownLocation(t *testing.T) {
	f := NewSeasonalForecaster(logrus.New())
	_, err := f.PredictMissingPeriods("NOPE-001", []string{"2024-01"})
	assert.True(t, errors.Is(err, ErrNoModelForLocation))

	_, err = f.Metrics("NOPE-001")
	assert.True(t, errors.Is(err, ErrNoModelForLocation))
}

func TestSeasonalForecaster_FiltersOtherLocations(t *testing.T) {
	f := NewSeasonalForecaster(logrus.New())
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := append(
		trendObservations("IST-001", start, 24, 40000, 150),
		trendObservations("ANK-001", start, 5, 20000, 50)...,
	)

	_, err := f.TrainLocationModel(obs, "IST-001")
	require.NoError(t, err)
	assert.True(t, f.HasModel("IST-001"))
	assert.False(t, f.HasModel("ANK-001"))
	assert.Equal(t, []string{"IST-001"}, f.Locations())
}

func TestSeasonalForecaster_BackcastsTrend(t *testing.T) {
	f := NewSeasonalForecaster(logrus.New())

	// Observations cover 2023-01 through 2025-12; the gap to fill lies
	// entirely before the observed range.
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := trendObservations("IST-001", start, 36, 30000, 200)

	metrics, err := f.TrainLocationModel(obs, "IST-001")
	require.NoError(t, err)
	assert.InDelta(t, 0, metrics.TrainRMSE, 1e-6)

	forecasts, err := f.PredictMissingPeriods("IST-001", []string{"2022-01", "2022-07", "2021-06"})
	require.NoError(t, err)
	require.Len(t, forecasts, 3)

	// A noiseless linear series extrapolates exactly
	assert.Equal(t, "2022-01", forecasts[0].Period)
	assert.InDelta(t, 30000-12*200, forecasts[0].Value, 1e-6)
	assert.InDelta(t, 30000-6*200, forecasts[1].Value, 1e-6)
	assert.InDelta(t, 30000-19*200, forecasts[2].Value, 1e-6)

	for _, fc := range forecasts {
		assert.LessOrEqual(t, fc.Lower, fc.Value)
		assert.GreaterOrEqual(t, fc.Upper, fc.Value)
		assert.GreaterOrEqual(t, fc.Confidence, 0.0)
		assert.LessOrEqual(t, fc.Confidence, 1.0)
	}
}

func TestSeasonalForecaster_IntervalsWidenWithDistance(t *testing.T) {
	f := NewSeasonalForecaster(logrus.New())
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := trendObservations("IST-001", start, 36, 30000, 200)

	// Perturb a few months so the residual spread is nonzero
	obs[5].PricePerM2 += 500
	obs[17].PricePerM2 -= 400
	obs[29].PricePerM2 += 300

	_, err := f.TrainLocationModel(obs, "IST-001")
	require.NoError(t, err)

	forecasts, err := f.PredictMissingPeriods("IST-001", []string{"2022-12", "2020-01"})
	require.NoError(t, err)
	require.Len(t, forecasts, 2)

	nearWidth := forecasts[0].Upper - forecasts[0].Lower
	farWidth := forecasts[1].Upper - forecasts[1].Lower
	assert.Greater(t, farWidth, nearWidth)
	assert.Greater(t, forecasts[0].Confidence, forecasts[1].Confidence)
}

func TestSeasonalForecaster_HoldoutMetrics(t *testing.T) {
	f := NewSeasonalForecaster(logrus.New())
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	obs := trendObservations("IST-001", start, 30, 25000, 100)

	metrics, err := f.TrainLocationModel(obs, "IST-001")
	require.NoError(t, err)

	// Trailing 20% holdout of a noiseless trend is predicted exactly
	assert.InDelta(t, 0, metrics.TestRMSE, 1e-6)
	assert.InDelta(t, 0, metrics.TestMAE, 1e-6)

	stored, err := f.Metrics("IST-001")
	require.NoError(t, err)
	assert.Equal(t, metrics, stored)
}
