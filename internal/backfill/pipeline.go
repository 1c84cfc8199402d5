package backfill

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"emlakindex/server/internal/features"
	"emlakindex/server/internal/macro"
	"emlakindex/server/internal/mlmodel"
	"emlakindex/server/internal/models"
)

const (
	// Time-series models are fit for the highest-volume locations only.
	maxTrainedLocations = 10

	// Predictions are produced for the locations with the largest gaps.
	maxPredictedLocations = 5

	sessionIDLayout = "20060102_150405"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	GetObservations(startDate, endDate, propertyType string) ([]models.PriceObservation, error)
	SaveBackfillPredictions(sessionID string, result models.BackfillResult) error
	SaveBackfillMetadata(sessionID string, result models.BackfillResult) error
}

// Pipeline runs backfill estimation for one property type: detect the months
// each location is missing, train models on recent observations, predict the
// gaps and persist predictions flagged as estimated. Model state lives only
// for the duration of one run.
type Pipeline struct {
	store        Store
	macro        *macro.Provider
	logger       *logrus.Logger
	propertyType models.PropertyType
	now          func() time.Time
}

func NewPipeline(store Store, provider *macro.Provider, propertyType models.PropertyType, logger *logrus.Logger) *Pipeline {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if provider == nil {
		provider = macro.NewProvider(logger)
	}
	if propertyType == "" {
		propertyType = models.PropertyResidentialSale
	}
	return &Pipeline{
		store:        store,
		macro:        provider,
		logger:       logger,
		propertyType: propertyType,
		now:          time.Now,
	}
}

// Detect loads the stored observations and returns the missing-period map
// for the configured range.
func (p *Pipeline) Detect(ctx context.Context, cfg models.BackfillConfig) (models.MissingPeriodMap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obs, err := p.store.GetObservations("", "", string(p.propertyType))
	if err != nil {
		return nil, fmt.Errorf("failed to load observations: %w", err)
	}
	return DetectMissingPeriods(obs, cfg), nil
}

// Run executes a full backfill pass. Configuration, data-volume and
// persistence problems fail the whole run; problems confined to a single
// location are recorded in the summary's skipped list and the run continues.
func (p *Pipeline) Run(ctx context.Context, cfg models.BackfillConfig) models.RunSummary {
	summary := models.RunSummary{
		SessionID:       p.now().Format(sessionIDLayout),
		ConfidenceBasis: "batch_relative",
	}
	if err := cfg.Validate(); err != nil {
		summary.Error = err.Error()
		return summary
	}

	p.logger.WithFields(logrus.Fields{
		"session":       summary.SessionID,
		"property_type": p.propertyType,
		"range_start":   cfg.StartDate.Format("2006-01-02"),
		"range_end":     cfg.EndDate.Format("2006-01-02"),
	}).Info("Starting backfill run")

	obs, err := p.store.GetObservations("", "", string(p.propertyType))
	if err != nil {
		summary.Error = fmt.Sprintf("failed to load observations: %v", err)
		return summary
	}

	missing := DetectMissingPeriods(obs, cfg)
	if len(missing) == 0 {
		p.logger.Info("No missing periods detected, nothing to backfill")
		summary.Success = true
		return summary
	}
	if err := ctx.Err(); err != nil {
		summary.Error = err.Error()
		return summary
	}

	training := p.prepareTrainingData(obs, cfg)
	if len(training) < mlmodel.MinTrainingRows {
		summary.Error = fmt.Sprintf("insufficient training data: %d usable rows in the last %d months (minimum %d required)",
			len(training), cfg.CurrentDataMonths, mlmodel.MinTrainingRows)
		return summary
	}

	forecaster, modelsUsed, err := p.trainModels(ctx, cfg, training)
	if err != nil {
		summary.Error = err.Error()
		return summary
	}
	summary.ModelsUsed = modelsUsed

	results, skipped := p.runPredictions(cfg, forecaster, missing)
	summary.SkippedLocations = skipped

	// A save failure is fatal to the run: results already in memory must not
	// be reported as successfully backfilled when the store rejected them.
	var confidenceSum float64
	for _, r := range results {
		if err := p.persistResult(summary.SessionID, r); err != nil {
			p.logger.WithError(err).WithField("location", r.LocationCode).Error("Failed to persist backfill result")
			summary.Error = fmt.Sprintf("failed to persist results for %s: %v", r.LocationCode, err)
			return summary
		}
		summary.BackfilledLocations++
		summary.TotalPredictions += len(r.Predictions)
		for _, pr := range r.Predictions {
			confidenceSum += pr.Confidence
		}
	}
	if summary.TotalPredictions > 0 {
		summary.AvgConfidence = confidenceSum / float64(summary.TotalPredictions)
	}
	summary.Success = true

	p.logger.WithFields(logrus.Fields{
		"session":     summary.SessionID,
		"locations":   summary.BackfilledLocations,
		"predictions": summary.TotalPredictions,
		"skipped":     len(summary.SkippedLocations),
	}).Info("Backfill run completed")
	return summary
}

// prepareTrainingData keeps the trailing window of observations and derives
// price_per_m2 where it is missing. Rows without a usable target are dropped.
func (p *Pipeline) prepareTrainingData(obs []models.PriceObservation, cfg models.BackfillConfig) []models.PriceObservation {
	cutoff := p.now().AddDate(0, -cfg.CurrentDataMonths, 0)

	var clean []models.PriceObservation
	var dropped int
	for _, o := range obs {
		if o.Date.Before(cutoff) {
			continue
		}
		if o.PricePerM2 <= 0 {
			if o.Price > 0 && o.SizeM2 > 0 {
				o.PricePerM2 = o.Price / o.SizeM2
			} else {
				dropped++
				continue
			}
		}
		clean = append(clean, o)
	}
	if dropped > 0 {
		p.logger.WithField("dropped", dropped).Warn("Dropped observations without a derivable price per m2")
	}
	return clean
}

// trainModels fits every configured model family on the training window.
// The regression families share one feature table; the time-series family is
// fit per location, capped to the highest-volume locations.
func (p *Pipeline) trainModels(ctx context.Context, cfg models.BackfillConfig, training []models.PriceObservation) (*mlmodel.SeasonalForecaster, []string, error) {
	var forecaster *mlmodel.SeasonalForecaster
	var modelsUsed []string

	var table *features.Table
	for _, kind := range cfg.ModelsToUse {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		switch {
		case kind == models.ModelTimeSeries:
			forecaster = mlmodel.NewSeasonalForecaster(p.logger)
			trained := 0
			for _, loc := range topLocations(training, maxTrainedLocations) {
				if _, err := forecaster.TrainLocationModel(training, loc); err != nil {
					p.logger.WithError(err).WithField("location", loc).Warn("Skipping time-series model for location")
					continue
				}
				trained++
			}
			if trained > 0 {
				modelsUsed = append(modelsUsed, string(kind))
			}
		case kind.IsRegression():
			if table == nil {
				engine := features.NewEngine(p.macro, p.logger)
				var err error
				table, err = engine.PrepareFeatures(training)
				if err != nil {
					return nil, nil, fmt.Errorf("feature preparation failed: %w", err)
				}
			}
			reg, err := mlmodel.NewRegressor(kind, p.logger)
			if err != nil {
				return nil, nil, err
			}
			if _, err := reg.Train(table); err != nil {
				return nil, nil, fmt.Errorf("training %s failed: %w", kind, err)
			}
			modelsUsed = append(modelsUsed, string(kind))
		}
	}
	return forecaster, modelsUsed, nil
}

// runPredictions backcasts the largest gaps. Only the time-series family can
// estimate months with no observed feature row, so locations without a
// trained per-location model are skipped rather than silently handed to a
// regression model.
func (p *Pipeline) runPredictions(cfg models.BackfillConfig, forecaster *mlmodel.SeasonalForecaster, missing models.MissingPeriodMap) ([]models.BackfillResult, []models.SkippedLocation) {
	locs := make([]string, 0, len(missing))
	for loc := range missing {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool {
		if len(missing[locs[i]]) != len(missing[locs[j]]) {
			return len(missing[locs[i]]) > len(missing[locs[j]])
		}
		return locs[i] < locs[j]
	})
	if len(locs) > maxPredictedLocations {
		locs = locs[:maxPredictedLocations]
	}

	var results []models.BackfillResult
	var skipped []models.SkippedLocation
	for _, loc := range locs {
		if forecaster == nil || !forecaster.HasModel(loc) {
			skipped = append(skipped, models.SkippedLocation{
				LocationCode: loc,
				Reason:       "no time-series model available for this location",
			})
			continue
		}

		forecasts, err := forecaster.PredictMissingPeriods(loc, missing[loc])
		if err != nil {
			skipped = append(skipped, models.SkippedLocation{
				LocationCode: loc,
				Reason:       fmt.Sprintf("prediction failed: %v", err),
			})
			continue
		}

		// The threshold is advisory: confidence is relative to the current
		// batch, so gating on it could drop an entire run's output. Every
		// prediction is persisted; low-confidence ones are only flagged.
		var belowThreshold int
		preds := make([]models.BackfillPrediction, 0, len(forecasts))
		for _, f := range forecasts {
			if f.Confidence < cfg.ConfidenceThreshold {
				belowThreshold++
			}
			preds = append(preds, models.BackfillPrediction{
				Period:              f.Period,
				PredictedPricePerM2: f.Value,
				Confidence:          f.Confidence,
				IsPredicted:         true,
			})
		}
		if belowThreshold > 0 {
			p.logger.WithFields(logrus.Fields{
				"location":  loc,
				"below":     belowThreshold,
				"threshold": cfg.ConfidenceThreshold,
			}).Warn("Predictions below the configured confidence threshold")
		}

		metrics, _ := forecaster.Metrics(loc)
		result := models.BackfillResult{
			LocationCode: loc,
			PropertyType: p.propertyType,
			Predictions:  preds,
			ModelUsed:    models.ModelTimeSeries,
			RMSE:         metrics.TestRMSE,
			MAE:          metrics.TestMAE,
			R2Score:      metrics.TestR2,
		}
		for _, pr := range preds {
			result.FilledPeriods = append(result.FilledPeriods, pr.Period)
		}
		results = append(results, result)
	}
	return results, skipped
}

func (p *Pipeline) persistResult(sessionID string, result models.BackfillResult) error {
	if err := p.store.SaveBackfillPredictions(sessionID, result); err != nil {
		return err
	}
	return p.store.SaveBackfillMetadata(sessionID, result)
}

// topLocations ranks locations by observation volume, ties broken by name.
func topLocations(obs []models.PriceObservation, limit int) []string {
	counts := make(map[string]int)
	for _, o := range obs {
		counts[o.LocationCode]++
	}
	locs := make([]string, 0, len(counts))
	for loc := range counts {
		locs = append(locs, loc)
	}
	sort.Slice(locs, func(i, j int) bool {
		if counts[locs[i]] != counts[locs[j]] {
			return counts[locs[i]] > counts[locs[j]]
		}
		return locs[i] < locs[j]
	})
	if len(locs) > limit {
		locs = locs[:limit]
	}
	return locs
}
