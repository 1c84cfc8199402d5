package features

import (
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"emlakindex/server/internal/macro"
	"emlakindex/server/internal/models"
)

// ColTarget is the prediction target column.
const ColTarget = "price_per_m2"

// featureEpoch anchors the days_since_epoch feature.
var featureEpoch = time.Date(2016, time.January, 1, 0, 0, 0, 0, time.UTC)

var lagPeriods = []int{1, 3, 6, 12}
var rollingWindows = []int{3, 6, 12}

// featureColumns is the fixed column order of every prepared table. Later
// steps depend on columns created earlier, so the order is part of the
// contract.
var featureColumns = buildColumnList()

func buildColumnList() []string {
	cols := []string{
		"year", "month", "quarter", "day_of_year", "days_since_epoch",
		"month_sin", "month_cos", "quarter_sin", "quarter_cos",
	}
	for _, lag := range lagPeriods {
		cols = append(cols, lagCol(lag))
	}
	for _, w := range rollingWindows {
		cols = append(cols, rollMeanCol(w), rollStdCol(w))
	}
	cols = append(cols,
		"index_level", "interest_rate", "fx_rate",
		"index_growth", "interest_change", "fx_growth",
		"location_price_mean", "location_price_std", "location_count",
		"location_price_min", "location_price_max", "price_vs_location_mean",
		"location_encoded", "property_type_encoded",
		ColTarget,
	)
	return cols
}

func lagCol(lag int) string    { return ColTarget + "_lag_" + strconv.Itoa(lag) }
func rollMeanCol(w int) string { return ColTarget + "_rolling_mean_" + strconv.Itoa(w) }
func rollStdCol(w int) string  { return ColTarget + "_rolling_std_" + strconv.Itoa(w) }

// Engine turns raw price observations into a model-ready feature table.
// It is a pure transformation over its input; the only state it carries is
// the pair of categorical encoders, fitted on first use and reused for every
// call within the same run.
type Engine struct {
	macro  *macro.Provider
	logger *logrus.Logger
	locEnc *CategoryEncoder
	typEnc *CategoryEncoder
}

// NewEngine creates a feature engine backed by the given macro provider.
func NewEngine(provider *macro.Provider, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Engine{
		macro:  provider,
		logger: logger,
		locEnc: NewCategoryEncoder(),
		typEnc: NewCategoryEncoder(),
	}
}

// Encoders exposes the fitted categorical encoders so callers can verify the
// mapping used for a run.
func (e *Engine) Encoders() (location, propertyType *CategoryEncoder) {
	return e.locEnc, e.typEnc
}

// PrepareFeatures builds the full feature table for the given observations.
// Rows are ordered by (location, date); every column is numeric and, after
// the fill policy (forward, then backward, then zero), free of missing
// values.
func (e *Engine) PrepareFeatures(obs []models.PriceObservation) (*Table, error) {
	e.logger.WithField("records", len(obs)).Info("Preparing features")

	sorted := make([]models.PriceObservation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].LocationCode != sorted[j].LocationCode {
			return sorted[i].LocationCode < sorted[j].LocationCode
		}
		return sorted[i].Date.Before(sorted[j].Date)
	})

	n := len(sorted)
	t := &Table{
		Cols: append([]string(nil), featureColumns...),
		Rows: make([][]float64, n),
		Meta: make([]RowMeta, n),
	}
	for i, o := range sorted {
		row := make([]float64, len(t.Cols))
		for j := range row {
			row[j] = math.NaN()
		}
		t.Rows[i] = row
		t.Meta[i] = RowMeta{
			LocationCode: o.LocationCode,
			PropertyType: o.PropertyType,
			Date:         o.Date,
		}
	}

	target := make([]float64, n)
	for i, o := range sorted {
		target[i] = o.PricePerM2
	}
	t.setColumn(ColTarget, target)

	e.addTimeFeatures(t, sorted)
	e.addLagAndRollingFeatures(t, target)
	e.addMacroFeatures(t, sorted)
	e.addLocationFeatures(t, target)
	e.addCategoricalFeatures(t, sorted)
	fillMissing(t)

	e.logger.WithFields(logrus.Fields{
		"rows":    t.NumRows(),
		"columns": len(t.Cols),
	}).Info("Feature preparation complete")
	return t, nil
}

func (e *Engine) addTimeFeatures(t *Table, obs []models.PriceObservation) {
	for i, o := range obs {
		d := o.Date
		month := float64(d.Month())
		quarter := float64((int(d.Month())-1)/3 + 1)

		t.set(i, "year", float64(d.Year()))
		t.set(i, "month", month)
		t.set(i, "quarter", quarter)
		t.set(i, "day_of_year", float64(d.YearDay()))
		t.set(i, "days_since_epoch", d.Sub(featureEpoch).Hours()/24)
		t.set(i, "month_sin", math.Sin(2*math.Pi*month/12))
		t.set(i, "month_cos", math.Cos(2*math.Pi*month/12))
		t.set(i, "quarter_sin", math.Sin(2*math.Pi*quarter/4))
		t.set(i, "quarter_cos", math.Cos(2*math.Pi*quarter/4))
	}
}

// addLagAndRollingFeatures computes per-location shifts and trailing-window
// statistics over the target, relying on the (location, date) row order.
// Lags are undefined at a series start; rolling stats accept a single point
// so early rows get a degenerate statistic instead of a gap.
func (e *Engine) addLagAndRollingFeatures(t *Table, target []float64) {
	for start, end := 0, 0; start < len(t.Meta); start = end {
		loc := t.Meta[start].LocationCode
		for end = start; end < len(t.Meta) && t.Meta[end].LocationCode == loc; end++ {
		}
		group := target[start:end]

		for _, lag := range lagPeriods {
			for i := range group {
				if i >= lag {
					t.set(start+i, lagCol(lag), group[i-lag])
				}
			}
		}
		for _, w := range rollingWindows {
			for i := range group {
				lo := i - w + 1
				if lo < 0 {
					lo = 0
				}
				seg := group[lo : i+1]
				t.set(start+i, rollMeanCol(w), stat.Mean(seg, nil))
				if len(seg) > 1 {
					t.set(start+i, rollStdCol(w), stat.StdDev(seg, nil))
				} else {
					t.set(start+i, rollStdCol(w), 0)
				}
			}
		}
	}
}

// addMacroFeatures joins the macro indicators per observation month and adds
// period-over-period deltas across the table. The first row of each delta
// series is undefined and resolved by the fill policy.
func (e *Engine) addMacroFeatures(t *Table, obs []models.PriceObservation) {
	idx := make([]float64, len(obs))
	rate := make([]float64, len(obs))
	fx := make([]float64, len(obs))
	for i, o := range obs {
		f := e.macro.MacroFeatures(o.Date.Format("2006-01-02"))
		idx[i], rate[i], fx[i] = f.IndexLevel, f.InterestRate, f.FXRate
	}
	t.setColumn("index_level", idx)
	t.setColumn("interest_rate", rate)
	t.setColumn("fx_rate", fx)

	for i := 1; i < len(obs); i++ {
		if idx[i-1] != 0 {
			t.set(i, "index_growth", idx[i]/idx[i-1]-1)
		}
		t.set(i, "interest_change", rate[i]-rate[i-1])
		if fx[i-1] != 0 {
			t.set(i, "fx_growth", fx[i]/fx[i-1]-1)
		}
	}
}

// addLocationFeatures joins per-location aggregate statistics of the target
// back onto every row of that location, plus the price normalized by the
// location mean.
func (e *Engine) addLocationFeatures(t *Table, target []float64) {
	for start, end := 0, 0; start < len(t.Meta); start = end {
		loc := t.Meta[start].LocationCode
		for end = start; end < len(t.Meta) && t.Meta[end].LocationCode == loc; end++ {
		}
		group := target[start:end]

		mean := stat.Mean(group, nil)
		sd := 0.0
		if len(group) > 1 {
			sd = stat.StdDev(group, nil)
		}
		lo, hi := floats.Min(group), floats.Max(group)

		for i := start; i < end; i++ {
			t.set(i, "location_price_mean", mean)
			t.set(i, "location_price_std", sd)
			t.set(i, "location_count", float64(len(group)))
			t.set(i, "location_price_min", lo)
			t.set(i, "location_price_max", hi)
			if mean != 0 {
				t.set(i, "price_vs_location_mean", target[i]/mean)
			}
		}
	}
}

func (e *Engine) addCategoricalFeatures(t *Table, obs []models.PriceObservation) {
	if !e.locEnc.Fitted() {
		locs := make([]string, len(obs))
		types := make([]string, len(obs))
		for i, o := range obs {
			locs[i] = o.LocationCode
			types[i] = string(o.PropertyType)
		}
		e.locEnc.Fit(locs)
		e.typEnc.Fit(types)
	}
	for i, o := range obs {
		t.set(i, "location_encoded", float64(e.locEnc.Code(o.LocationCode)))
		t.set(i, "property_type_encoded", float64(e.typEnc.Code(string(o.PropertyType))))
	}
}

// fillMissing resolves remaining gaps: forward-fill down the (location, date)
// ordered rows, then backward-fill, then zero.
func fillMissing(t *Table) {
	for j := range t.Cols {
		last := math.NaN()
		for i := range t.Rows {
			if math.IsNaN(t.Rows[i][j]) {
				t.Rows[i][j] = last
			} else {
				last = t.Rows[i][j]
			}
		}
		next := math.NaN()
		for i := len(t.Rows) - 1; i >= 0; i-- {
			if math.IsNaN(t.Rows[i][j]) {
				t.Rows[i][j] = next
			} else {
				next = t.Rows[i][j]
			}
		}
		for i := range t.Rows {
			if math.IsNaN(t.Rows[i][j]) {
				t.Rows[i][j] = 0
			}
		}
	}
}

func (t *Table) set(row int, col string, v float64) {
	if idx := t.ColumnIndex(col); idx >= 0 {
		t.Rows[row][idx] = v
	}
}

func (t *Table) setColumn(col string, vals []float64) {
	idx := t.ColumnIndex(col)
	if idx < 0 {
		return
	}
	for i, v := range vals {
		t.Rows[i][idx] = v
	}
}
