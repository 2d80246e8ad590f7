package forecast

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/MAUNA/internal/dataset"
)

// syntheticSeries generates a quarterly series with a rising trend and an
// annual cycle, resembling the CO2 record.
func syntheticSeries(t *testing.T, from float64, n int) *dataset.Series {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	times := make([]float64, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		tt := from + 0.25*float64(i)
		times[i] = tt
		values[i] = 315.0 + 1.5*(tt-from) + 3.0*math.Sin(2.0*math.Pi*tt) + 0.1*rng.NormFloat64()
	}
	s, err := dataset.New(times, values)
	require.NoError(t, err)
	return s
}

func testConfig() Config {
	return Config{
		CutoffYear:        1980,
		Stride:            2,
		MaxIterations:     25,
		GradientTolerance: 1e-5,
		Confidence:        0.95,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 1996.0, cfg.CutoffYear)
	assert.Equal(t, 4, cfg.Stride)
	assert.Equal(t, 0.95, cfg.Confidence)
}

func TestFitAndForecast(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fit in short mode")
	}

	series := syntheticSeries(t, 1958.0, 120)
	f := New(testConfig(), nil)

	fit, err := f.Fit(context.Background(), series)
	require.NoError(t, err)

	// Cutoff 1980 keeps 88 of 120 quarterly points; stride 2 halves that.
	assert.Equal(t, 44, fit.Training().Len())

	// The fit never ends above its starting objective.
	assert.LessOrEqual(t, fit.Result.NegLogLik, fit.Result.InitialNegLogLik+1e-9)
	assert.NoError(t, fit.Params.Validate())

	grid := Grid(1958.0, 1998.0, 100)
	res, err := fit.Forecast(grid)
	require.NoError(t, err)

	require.Len(t, res.T, 100)
	require.Len(t, res.Mean, 100)
	require.Len(t, res.Std, 100)
	require.Len(t, res.Lower, 100)
	require.Len(t, res.Upper, 100)
	assert.Equal(t, fit.Training().T, res.TrainT)
	assert.Equal(t, fit.Training().Y, res.TrainY)

	z := 1.959963984540054 // 97.5% standard normal quantile
	for i := range res.T {
		assert.GreaterOrEqual(t, res.Std[i], 0.0, "std at grid point %d", i)
		assert.LessOrEqual(t, res.Lower[i], res.Mean[i], "band at grid point %d", i)
		assert.GreaterOrEqual(t, res.Upper[i], res.Mean[i], "band at grid point %d", i)
		assert.InDelta(t, z*res.Std[i], res.Upper[i]-res.Mean[i], 1e-9)
	}

	// Inside the training window the posterior tracks the data.
	train := fit.Training()
	mid := train.Len() / 2
	pred, err := fit.Forecast([]float64{train.T[mid]})
	require.NoError(t, err)
	assert.InDelta(t, train.Y[mid], pred.Mean[0], 2.0)
}

func TestFitRejectsShortWindow(t *testing.T) {
	series := syntheticSeries(t, 1958.0, 10)
	f := New(testConfig(), nil)

	_, err := f.Fit(context.Background(), series)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "training window")
}

func TestFitCancelledContext(t *testing.T) {
	series := syntheticSeries(t, 1958.0, 120)
	f := New(testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fit(ctx, series)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitZeroCutoffDisablesTrimming(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fit in short mode")
	}

	series := syntheticSeries(t, 1958.0, 60)
	cfg := testConfig()
	cfg.CutoffYear = 0
	cfg.Stride = 1
	f := New(cfg, nil)

	fit, err := f.Fit(context.Background(), series)
	require.NoError(t, err)
	assert.Equal(t, series.Len(), fit.Training().Len())
}

func TestGrid(t *testing.T) {
	tests := []struct {
		name string
		from float64
		to   float64
		n    int
		want []float64
	}{
		{"even spacing", 0, 10, 11, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
		{"two points", 1958, 2000, 2, []float64{1958, 2000}},
		{"single point", 5, 9, 1, []float64{5}},
		{"non-positive count", 5, 9, 0, []float64{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Grid(tt.from, tt.to, tt.n)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], got[i], 1e-12)
			}
		})
	}
}
