package features

import (
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emlakindex/server/internal/macro"
	"emlakindex/server/internal/models"
)

func testObservations(locations []string, months int, base float64) []models.PriceObservation {
	var obs []models.PriceObservation
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for li, loc := range locations {
		for m := 0; m < months; m++ {
			price := base + float64(li)*5000 + float64(m)*120
			obs = append(obs, models.PriceObservation{
				LocationCode: loc,
				PropertyType: models.PropertyResidentialSale,
				Date:         start.AddDate(0, m, 0),
				Price:        price * 100,
				SizeM2:       100,
				PricePerM2:   price,
			})
		}
	}
	return obs
}

func TestPrepareFeatures_NoMissingValues(t *testing.T) {
	engine := NewEngine(macro.NewProvider(logrus.New()), logrus.New())
	obs := testObservations([]string{"ANK-001", "IST-001", "IZM-001"}, 18, 30000)

	table, err := engine.PrepareFeatures(obs)
	require.NoError(t, err)
	require.Equal(t, len(obs), table.NumRows())

	for i, row := range table.Rows {
		for j, v := range row {
			assert.False(t, math.IsNaN(v), "NaN at row %d col %s", i, table.Cols[j])
			assert.False(t, math.IsInf(v, 0), "Inf at row %d col %s", i, table.Cols[j])
		}
	}
}

func TestPrepareFeatures_LagAndRolling(t *testing.T) {
	engine := NewEngine(macro.NewProvider(logrus.New()), logrus.New())
	obs := testObservations([]string{"IST-001"}, 14, 40000)

	table, err := engine.PrepareFeatures(obs)
	require.NoError(t, err)

	target := table.Column(ColTarget)
	lag1 := table.Column("price_per_m2_lag_1")
	lag12 := table.Column("price_per_m2_lag_12")
	mean3 := table.Column("price_per_m2_rolling_mean_3")
	std3 := table.Column("price_per_m2_rolling_std_3")

	// Shift by one month within the location
	assert.InDelta(t, target[0], lag1[1], 1e-9)
	assert.InDelta(t, target[5], lag1[6], 1e-9)
	assert.InDelta(t, target[1], lag12[13], 1e-9)

	// Trailing window includes the current row; a single point has zero spread
	assert.InDelta(t, target[0], mean3[0], 1e-9)
	assert.InDelta(t, 0, std3[0], 1e-9)
	assert.InDelta(t, (target[2]+target[3]+target[4])/3, mean3[4], 1e-9)
}

func TestPrepareFeatures_LocationStats(t *testing.T) {
	engine := NewEngine(macro.NewProvider(logrus.New()), logrus.New())
	obs := testObservations([]string{"ANK-001", "IST-001"}, 6, 25000)

	table, err := engine.PrepareFeatures(obs)
	require.NoError(t, err)

	target := table.Column(ColTarget)
	locMean := table.Column("location_price_mean")
	locCount := table.Column("location_count")
	relative := table.Column("price_vs_location_mean")

	// Rows are ordered by location, so the first 6 rows are ANK-001
	var sum float64
	for i := 0; i < 6; i++ {
		sum += target[i]
	}
	mean := sum / 6
	for i := 0; i < 6; i++ {
		assert.InDelta(t, mean, locMean[i], 1e-9)
		assert.InDelta(t, 6, locCount[i], 1e-9)
		assert.InDelta(t, target[i]/mean, relative[i], 1e-9)
	}
}

func TestPrepareFeatures_Deterministic(t *testing.T) {
	obs := testObservations([]string{"IST-001", "IZM-001"}, 12, 35000)

	first := NewEngine(macro.NewProvider(logrus.New()), logrus.New())
	second := NewEngine(macro.NewProvider(logrus.New()), logrus.New())

	a, err := first.PrepareFeatures(obs)
	require.NoError(t, err)
	b, err := second.PrepareFeatures(obs)
	require.NoError(t, err)

	require.Equal(t, a.Cols, b.Cols)
	require.Equal(t, a.NumRows(), b.NumRows())
	for i := range a.Rows {
		for j := range a.Rows[i] {
			assert.Equal(t, a.Rows[i][j], b.Rows[i][j], "row %d col %s", i, a.Cols[j])
		}
	}
}

func TestPrepareFeatures_TimeFeatures(t *testing.T) {
	engine := NewEngine(macro.NewProvider(logrus.New()), logrus.New())
	obs := []models.PriceObservation{{
		LocationCode: "IST-001",
		PropertyType: models.PropertyResidentialSale,
		Date:         time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		PricePerM2:   42000,
	}}

	table, err := engine.PrepareFeatures(obs)
	require.NoError(t, err)

	assert.InDelta(t, 2024, table.Column("year")[0], 1e-9)
	assert.InDelta(t, 7, table.Column("month")[0], 1e-9)
	assert.InDelta(t, 3, table.Column("quarter")[0], 1e-9)
	assert.InDelta(t, math.Sin(2*math.Pi*7/12), table.Column("month_sin")[0], 1e-9)
	assert.InDelta(t, math.Cos(2*math.Pi*7/12), table.Column("month_cos")[0], 1e-9)
}

func TestTable_SelectReindexes(t *testing.T) {
	table := &Table{
		Cols: []string{"a", "b"},
		Rows: [][]float64{{1, 2}, {3, 4}},
		Meta: make([]RowMeta, 2),
	}

	out := table.Select([]string{"b", "missing", "a"})
	require.Equal(t, []string{"b", "missing", "a"}, out.Cols)
	assert.Equal(t, []float64{2, 0, 1}, out.Rows[0])
	assert.Equal(t, []float64{4, 0, 3}, out.Rows[1])
}

func TestCategoryEncoder(t *testing.T) {
	enc := NewCategoryEncoder()
	assert.False(t, enc.Fitted())

	enc.Fit([]string{"IZM-001", "ANK-001", "IST-001", "ANK-001"})
	assert.True(t, enc.Fitted())

	// Codes follow sorted label order regardless of input order
	assert.Equal(t, 0, enc.Code("ANK-001"))
	assert.Equal(t, 1, enc.Code("IST-001"))
	assert.Equal(t, 2, enc.Code("IZM-001"))

	// Unseen labels get the next code and become part of the mapping
	assert.Equal(t, 3, enc.Code("BUR-001"))
	assert.Equal(t, 3, enc.Code("BUR-001"))
	assert.Equal(t, []string{"ANK-001", "IST-001", "IZM-001", "BUR-001"}, enc.Labels())
}
