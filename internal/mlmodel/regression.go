package mlmodel

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/sirupsen/logrus"

	"emlakindex/server/internal/features"
	"emlakindex/server/internal/models"
)

// MinTrainingRows is the minimum cleaned-row count required to fit a
// regression backfill model.
const MinTrainingRows = 100

const (
	testFraction = 0.2
	splitSeed    = 42
	nEstimators  = 200
	learningRate = 0.1
)

// Regressor wraps a tree-ensemble regression model with feature scaling, a
// seeded train/test split and a prediction-with-uncertainty interface. The
// scaler and the training feature-column order are captured at fit time and
// replayed exactly at inference.
type Regressor struct {
	kind   models.ModelKind
	logger *logrus.Logger

	cols    []string
	scaler  StandardScaler
	trees   []*treeNode
	base    float64 // boosting initialization (training-target mean)
	trained bool
}

// NewRegressor builds an untrained regressor of the given family. Only the
// regression kinds are accepted; the time-series family lives in
// SeasonalForecaster.
func NewRegressor(kind models.ModelKind, logger *logrus.Logger) (*Regressor, error) {
	if !kind.IsRegression() {
		return nil, fmt.Errorf("not a regression model kind: %q", kind)
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Regressor{kind: kind, logger: logger}, nil
}

// Kind returns the model family of this regressor.
func (r *Regressor) Kind() models.ModelKind {
	return r.kind
}

// FeatureColumns returns the exact ordered feature columns seen at fit time.
func (r *Regressor) FeatureColumns() []string {
	return append([]string(nil), r.cols...)
}

// Train fits the ensemble on the table's feature columns against the
// price-per-m2 target. 20% of rows are held out (fixed seed, reproducible)
// and the scaler is fit on the train split only. Metric values that come out
// NaN or Inf are reported as 0.
func (r *Regressor) Train(t *features.Table) (Metrics, error) {
	n := t.NumRows()
	if n < MinTrainingRows {
		return Metrics{}, fmt.Errorf("%w: %d rows (minimum %d required)",
			ErrInsufficientData, n, MinTrainingRows)
	}
	r.logger.WithFields(logrus.Fields{
		"model":   r.kind,
		"samples": n,
	}).Info("Training regression backfill model")

	y := t.Column(features.ColTarget)
	xt := t.Drop(features.ColTarget)
	r.cols = append([]string(nil), xt.Cols...)

	rng := rand.New(rand.NewSource(splitSeed))
	perm := rng.Perm(n)
	nTest := int(float64(n) * testFraction)
	if nTest < 1 {
		nTest = 1
	}
	testIdx, trainIdx := perm[:nTest], perm[nTest:]

	trainRows := make([][]float64, len(trainIdx))
	trainY := make([]float64, len(trainIdx))
	for i, src := range trainIdx {
		trainRows[i] = xt.Rows[src]
		trainY[i] = y[src]
	}
	testRows := make([][]float64, len(testIdx))
	testY := make([]float64, len(testIdx))
	for i, src := range testIdx {
		testRows[i] = xt.Rows[src]
		testY[i] = y[src]
	}

	r.scaler = StandardScaler{}
	r.scaler.Fit(trainRows)
	scaledTrain := r.scaler.Transform(trainRows)
	scaledTest := r.scaler.Transform(testRows)

	r.fit(scaledTrain, trainY, rng)
	r.trained = true

	predTrain := r.predictRows(scaledTrain)
	predTest := r.predictRows(scaledTest)
	m := Metrics{
		TrainRMSE: safeMetric(RMSE(trainY, predTrain)),
		TrainMAE:  safeMetric(MAE(trainY, predTrain)),
		TrainR2:   safeMetric(R2(trainY, predTrain)),
		TestRMSE:  safeMetric(RMSE(testY, predTest)),
		TestMAE:   safeMetric(MAE(testY, predTest)),
		TestR2:    safeMetric(R2(testY, predTest)),
	}
	r.logger.WithFields(logrus.Fields{
		"model":     r.kind,
		"test_r2":   m.TestR2,
		"test_rmse": m.TestRMSE,
	}).Info("Regression model trained")
	return m, nil
}

func (r *Regressor) fit(X [][]float64, y []float64, rng *rand.Rand) {
	switch r.kind {
	case models.ModelRandomForest:
		r.fitForest(X, y, rng)
	default:
		r.fitBoosted(X, y, rng)
	}
}

// fitForest grows bagged trees on bootstrap resamples.
func (r *Regressor) fitForest(X [][]float64, y []float64, rng *rand.Rand) {
	cfg := treeConfig{maxDepth: 10, minLeaf: 2, rng: rng}
	r.trees = make([]*treeNode, nEstimators)
	for b := 0; b < nEstimators; b++ {
		sample := make([]int, len(X))
		for i := range sample {
			sample[i] = rng.Intn(len(X))
		}
		r.trees[b] = growTree(X, y, sample, 0, cfg)
	}
}

// fitBoosted runs gradient boosting on squared loss: each stage fits the
// current residuals. The gbt variant additionally subsamples rows and
// features per stage.
func (r *Regressor) fitBoosted(X [][]float64, y []float64, rng *rand.Rand) {
	cfg := treeConfig{maxDepth: 6, minLeaf: 2, rng: rng}
	subsample := 1.0
	if r.kind == models.ModelGBT {
		subsample = 0.8
		cfg.maxFeatures = int(math.Ceil(math.Sqrt(float64(len(X[0])))))
	}

	r.base = 0
	for _, v := range y {
		r.base += v
	}
	r.base /= float64(len(y))

	resid := make([]float64, len(y))
	for i, v := range y {
		resid[i] = v - r.base
	}

	r.trees = make([]*treeNode, 0, nEstimators)
	for b := 0; b < nEstimators; b++ {
		idx := make([]int, 0, len(X))
		for i := range X {
			if subsample >= 1.0 || rng.Float64() < subsample {
				idx = append(idx, i)
			}
		}
		if len(idx) < 2*cfg.minLeaf {
			break
		}
		tree := growTree(X, resid, idx, 0, cfg)
		r.trees = append(r.trees, tree)
		for i := range X {
			resid[i] -= learningRate * tree.predict(X[i])
		}
	}
}

func (r *Regressor) predictRows(X [][]float64) []float64 {
	out := make([]float64, len(X))
	switch r.kind {
	case models.ModelRandomForest:
		for i, row := range X {
			var sum float64
			for _, tree := range r.trees {
				sum += tree.predict(row)
			}
			out[i] = sum / float64(len(r.trees))
		}
	default:
		for i, row := range X {
			pred := r.base
			for _, tree := range r.trees {
				pred += learningRate * tree.predict(row)
			}
			out[i] = pred
		}
	}
	return out
}

// Predict aligns the input to the training feature columns (absent columns
// become 0), applies the fitted scaler and returns point predictions.
func (r *Regressor) Predict(t *features.Table) ([]float64, error) {
	if !r.trained {
		return nil, ErrModelNotTrained
	}
	aligned := t.Drop(features.ColTarget).Select(r.cols)
	return r.predictRows(r.scaler.Transform(aligned.Rows)), nil
}

// PredictWithUncertainty returns point predictions plus batch-relative
// confidence scores. For the forest, uncertainty is the spread of the
// individual trees' predictions; the boosting variants fall back to 10% of
// the predicted magnitude as the uncertainty proxy.
func (r *Regressor) PredictWithUncertainty(t *features.Table) (predictions, confidence []float64, err error) {
	if !r.trained {
		return nil, nil, ErrModelNotTrained
	}
	aligned := t.Drop(features.ColTarget).Select(r.cols)
	scaled := r.scaler.Transform(aligned.Rows)
	predictions = r.predictRows(scaled)

	uncertainties := make([]float64, len(scaled))
	if r.kind == models.ModelRandomForest {
		for i, row := range scaled {
			var sum, sq float64
			for _, tree := range r.trees {
				p := tree.predict(row)
				sum += p
				sq += p * p
			}
			n := float64(len(r.trees))
			variance := sq/n - (sum/n)*(sum/n)
			if variance < 0 {
				variance = 0
			}
			uncertainties[i] = math.Sqrt(variance)
		}
	} else {
		for i, p := range predictions {
			uncertainties[i] = 0.1 * math.Abs(p)
		}
	}
	return predictions, ConfidenceScores(uncertainties), nil
}
