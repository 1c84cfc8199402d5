package models

import (
	"fmt"
	"time"
)

// ModelKind identifies a backfill model family. The set is closed: anything
// not produced by ParseModelKind is rejected before a run starts.
type ModelKind string

const (
	ModelTimeSeries       ModelKind = "timeseries"
	ModelGBT              ModelKind = "gbt"
	ModelRandomForest     ModelKind = "random_forest"
	ModelGradientBoosting ModelKind = "gradient_boosting"
)

// ParseModelKind validates a model identifier string.
func ParseModelKind(s string) (ModelKind, error) {
	switch ModelKind(s) {
	case ModelTimeSeries, ModelGBT, ModelRandomForest, ModelGradientBoosting:
		return ModelKind(s), nil
	}
	return "", fmt.Errorf("unsupported model kind: %q", s)
}

// IsRegression reports whether the kind is a shared tree-ensemble model, as
// opposed to the per-location time-series model.
func (k ModelKind) IsRegression() bool {
	return k == ModelGBT || k == ModelRandomForest || k == ModelGradientBoosting
}

// BackfillConfig holds the parameters of one backfill run.
type BackfillConfig struct {
	StartDate           time.Time   `json:"start_date"`
	EndDate             time.Time   `json:"end_date"`
	CurrentDataMonths   int         `json:"current_data_months"`
	ConfidenceThreshold float64     `json:"confidence_threshold"`
	ModelsToUse         []ModelKind `json:"models_to_use"`
}

// Validate rejects configurations that would make a run meaningless.
func (c BackfillConfig) Validate() error {
	if c.StartDate.After(c.EndDate) {
		return fmt.Errorf("invalid date range: start %s after end %s",
			c.StartDate.Format("2006-01-02"), c.EndDate.Format("2006-01-02"))
	}
	if c.CurrentDataMonths <= 0 {
		return fmt.Errorf("current_data_months must be positive, got %d", c.CurrentDataMonths)
	}
	if len(c.ModelsToUse) == 0 {
		return fmt.Errorf("no models configured")
	}
	for _, k := range c.ModelsToUse {
		if _, err := ParseModelKind(string(k)); err != nil {
			return err
		}
	}
	return nil
}

// MissingPeriodMap maps a location code to its sorted missing month keys
// ("YYYY-MM") within the requested range. Computed fresh per detection call.
type MissingPeriodMap map[string][]string

// BackfillPrediction is one estimated (location, month) value.
type BackfillPrediction struct {
	Period              string  `json:"period"`
	PredictedPricePerM2 float64 `json:"predicted_price_per_m2"`
	Confidence          float64 `json:"confidence"`
	IsPredicted         bool    `json:"is_predicted"`
}

// BackfillResult aggregates the predictions for one (location, property type)
// pair together with the training-time quality metrics of the model used.
type BackfillResult struct {
	LocationCode  string               `json:"location_code"`
	PropertyType  PropertyType         `json:"property_type"`
	FilledPeriods []string             `json:"filled_periods"`
	Predictions   []BackfillPrediction `json:"predictions"`
	ModelUsed     ModelKind            `json:"model_used"`
	RMSE          float64              `json:"rmse"`
	MAE           float64              `json:"mae"`
	R2Score       float64              `json:"r2_score"`
}

// AvgConfidence returns the mean confidence across the result's predictions.
func (r BackfillResult) AvgConfidence() float64 {
	if len(r.Predictions) == 0 {
		return 0
	}
	var sum float64
	for _, p := range r.Predictions {
		sum += p.Confidence
	}
	return sum / float64(len(r.Predictions))
}

// SkippedLocation records why a location produced no predictions.
type SkippedLocation struct {
	LocationCode string `json:"location_code"`
	Reason       string `json:"reason"`
}

// RunSummary is the top-level status record returned to the invoking layer.
// Confidence scores are normalized against the current batch, not globally
// calibrated; ConfidenceBasis flags this for any user-facing display.
type RunSummary struct {
	Success             bool              `json:"success"`
	BackfilledLocations int               `json:"backfilled_locations"`
	TotalPredictions    int               `json:"total_predictions"`
	AvgConfidence       float64           `json:"avg_confidence"`
	ModelsUsed          []string          `json:"models_used"`
	SessionID           string            `json:"session_id"`
	ConfidenceBasis     string            `json:"confidence_basis"`
	SkippedLocations    []SkippedLocation `json:"skipped_locations,omitempty"`
	Error               string            `json:"error,omitempty"`
}
