package mlmodel

import (
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"emlakindex/server/internal/models"
)

// MinLocationObservations is the minimum distinct observed months a location
// needs before a per-location forecast model is fit for it.
const MinLocationObservations = 12

const monthKeyLayout = "2006-01"

// Forecast is one backcast month produced by a location model.
type Forecast struct {
	Period     string  `json:"period"`
	Value      float64 `json:"value"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Confidence float64 `json:"confidence"`
}

// locationModel is an additive decomposition of a location's monthly
// price-per-m2 series: a linear trend on the month index plus a per-calendar-
// month seasonal offset. Unlike recursive smoothers it extrapolates in either
// direction, which matters because backfill targets months before the
// observed range.
type locationModel struct {
	startYear   int
	startMonth  time.Month
	firstIndex  int
	lastIndex   int
	intercept   float64
	slope       float64
	seasonal    [12]float64
	residualStd float64
	metrics     Metrics
}

// SeasonalForecaster trains and holds per-location time-series models.
type SeasonalForecaster struct {
	logger *logrus.Logger
	byLoc  map[string]*locationModel
}

func NewSeasonalForecaster(logger *logrus.Logger) *SeasonalForecaster {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &SeasonalForecaster{logger: logger, byLoc: make(map[string]*locationModel)}
}

// HasModel reports whether a trained model exists for the location.
func (f *SeasonalForecaster) HasModel(loc string) bool {
	_, ok := f.byLoc[loc]
	return ok
}

// Locations returns the locations with a trained model, sorted.
func (f *SeasonalForecaster) Locations() []string {
	out := make([]string, 0, len(f.byLoc))
	for loc := range f.byLoc {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

type monthPoint struct {
	index int // months since the location's first observed month
	month time.Month
	value float64
}

// TrainLocationModel fits a model for one location from its observations.
// Months with several observations are averaged first. Locations with fewer
// than MinLocationObservations distinct months return ErrInsufficientData.
// Holdout metrics come from refitting on the leading 80% of months and
// scoring the trailing 20%; the returned model is fit on the full series.
func (f *SeasonalForecaster) TrainLocationModel(obs []models.PriceObservation, loc string) (Metrics, error) {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, o := range obs {
		if o.LocationCode != loc || o.PricePerM2 <= 0 {
			continue
		}
		key := o.MonthKey()
		sums[key] += o.PricePerM2
		counts[key]++
	}
	if len(sums) < MinLocationObservations {
		return Metrics{}, fmt.Errorf("%w: location %s has %d observed months (minimum %d)",
			ErrInsufficientData, loc, len(sums), MinLocationObservations)
	}

	keys := make([]string, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start, err := time.Parse(monthKeyLayout, keys[0])
	if err != nil {
		return Metrics{}, fmt.Errorf("invalid month key %q: %w", keys[0], err)
	}
	points := make([]monthPoint, len(keys))
	for i, k := range keys {
		t, err := time.Parse(monthKeyLayout, k)
		if err != nil {
			return Metrics{}, fmt.Errorf("invalid month key %q: %w", k, err)
		}
		points[i] = monthPoint{
			index: monthsBetween(start, t),
			month: t.Month(),
			value: sums[k] / float64(counts[k]),
		}
	}

	nTrain := len(points) - len(points)/5
	if nTrain < 2 {
		nTrain = len(points)
	}
	m := Metrics{}
	if nTrain < len(points) {
		eval := fitDecomposition(points[:nTrain])
		holdout := points[nTrain:]
		actual := make([]float64, len(holdout))
		pred := make([]float64, len(holdout))
		for i, p := range holdout {
			actual[i] = p.value
			pred[i] = eval.forecast(p.index, p.month)
		}
		m.TestRMSE = safeMetric(RMSE(actual, pred))
		m.TestMAE = safeMetric(MAE(actual, pred))
		m.TestR2 = safeMetric(R2(actual, pred))
	}

	model := fitDecomposition(points)
	model.startYear = start.Year()
	model.startMonth = start.Month()
	trainActual := make([]float64, len(points))
	trainPred := make([]float64, len(points))
	for i, p := range points {
		trainActual[i] = p.value
		trainPred[i] = model.forecast(p.index, p.month)
	}
	m.TrainRMSE = safeMetric(RMSE(trainActual, trainPred))
	m.TrainMAE = safeMetric(MAE(trainActual, trainPred))
	m.TrainR2 = safeMetric(R2(trainActual, trainPred))
	model.metrics = m

	f.byLoc[loc] = model
	f.logger.WithFields(logrus.Fields{
		"location":  loc,
		"months":    len(points),
		"test_rmse": m.TestRMSE,
	}).Info("Time-series model trained")
	return m, nil
}

// Metrics returns the training metrics of a location's model.
func (f *SeasonalForecaster) Metrics(loc string) (Metrics, error) {
	model, ok := f.byLoc[loc]
	if !ok {
		return Metrics{}, fmt.Errorf("%w: %s", ErrNoModelForLocation, loc)
	}
	return model.metrics, nil
}

// PredictMissingPeriods backcasts the given month keys for a location.
// Intervals are ±1.96 residual standard deviations, widened with distance
// outside the observed range; confidence is batch-relative over the interval
// widths.
func (f *SeasonalForecaster) PredictMissingPeriods(loc string, monthKeys []string) ([]Forecast, error) {
	model, ok := f.byLoc[loc]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoModelForLocation, loc)
	}
	start := time.Date(model.startYear, model.startMonth, 1, 0, 0, 0, 0, time.UTC)

	out := make([]Forecast, len(monthKeys))
	widths := make([]float64, len(monthKeys))
	for i, key := range monthKeys {
		t, err := time.Parse(monthKeyLayout, key)
		if err != nil {
			return nil, fmt.Errorf("invalid month key %q: %w", key, err)
		}
		idx := monthsBetween(start, t)
		value := model.forecast(idx, t.Month())

		dist := 0
		if idx < model.firstIndex {
			dist = model.firstIndex - idx
		} else if idx > model.lastIndex {
			dist = idx - model.lastIndex
		}
		half := 1.96 * model.residualStd * math.Sqrt(1+float64(dist)/12)
		out[i] = Forecast{
			Period: key,
			Value:  value,
			Lower:  value - half,
			Upper:  value + half,
		}
		widths[i] = 2 * half
	}
	for i, c := range ConfidenceScores(widths) {
		out[i].Confidence = c
	}
	return out, nil
}

func (lm *locationModel) forecast(index int, month time.Month) float64 {
	return lm.intercept + lm.slope*float64(index) + lm.seasonal[int(month)-1]
}

// fitDecomposition estimates trend by least squares on the month index, then
// seasonal offsets as the mean trend residual per calendar month.
func fitDecomposition(points []monthPoint) *locationModel {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = float64(p.index)
		ys[i] = p.value
	}
	intercept, slope := stat.LinearRegression(xs, ys, nil, false)

	var offsetSum [12]float64
	var offsetCount [12]int
	for _, p := range points {
		resid := p.value - (intercept + slope*float64(p.index))
		offsetSum[int(p.month)-1] += resid
		offsetCount[int(p.month)-1]++
	}
	model := &locationModel{
		intercept:  intercept,
		slope:      slope,
		firstIndex: points[0].index,
		lastIndex:  points[len(points)-1].index,
	}
	for i := range model.seasonal {
		if offsetCount[i] > 0 {
			model.seasonal[i] = offsetSum[i] / float64(offsetCount[i])
		}
	}

	var sq float64
	for _, p := range points {
		r := p.value - model.forecast(p.index, p.month)
		sq += r * r
	}
	model.residualStd = math.Sqrt(sq / float64(len(points)))
	return model
}

// monthsBetween counts whole calendar months from a to b; negative when b
// precedes a.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()-a.Month())
}
