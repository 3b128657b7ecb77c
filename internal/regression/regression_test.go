package regression

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearData(n int, seed int64, noise float64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		rain := 500 + 800*rng.Float64()
		irr := 20 + 70*rng.Float64()
		fert := 50 + 200*rng.Float64()
		X[i] = []float64{rain, irr, fert}
		y[i] = 1.5 + 0.002*rain + 0.03*irr - 0.004*fert + noise*rng.NormFloat64()
	}
	return X, y
}

func TestFitScaler(t *testing.T) {
	X := [][]float64{{1, 10, 5}, {3, 10, 5}, {5, 10, 5}}

	s, err := FitScaler(X)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{3, 10, 5}, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(8.0/3.0), s.Scale[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[1], "zero variance column keeps unit scale")

	got := s.Transform([]float64{3, 12, 5})
	assert.InDeltaSlice(t, []float64{0, 2, 0}, got, 1e-12)

	_, err = FitScaler(nil)
	assert.Error(t, err)
}

func TestFitOLS_RecoversNoiselessCoefficients(t *testing.T) {
	X, y := linearData(40, 1, 0)

	m, err := FitOLS(X, y)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{0.002, 0.03, -0.004}, m.Coef, 1e-9)
	assert.InDelta(t, 1.5, m.Intercept, 1e-7)
	assert.InDelta(t, 1.5+0.002*1000+0.03*50-0.004*100, m.Predict([]float64{1000, 50, 100}), 1e-7)
}

func TestFitOLS_Degenerate(t *testing.T) {
	tests := []struct {
		name string
		X    [][]float64
		y    []float64
	}{
		{"constant features", [][]float64{{1, 2}, {1, 2}, {1, 2}}, []float64{1, 2, 3}},
		{"collinear features", [][]float64{{1, 2}, {2, 4}, {3, 6}, {4, 8}}, []float64{2, 4, 6, 8}},
		{"single row", [][]float64{{5, 5}}, []float64{7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := FitOLS(tt.X, tt.y)
			require.NoError(t, err)
			for _, c := range m.Coef {
				assert.False(t, math.IsNaN(c))
			}
			// fitted values reproduce the mean at the mean input
			assert.False(t, math.IsNaN(m.Predict(tt.X[0])))
		})
	}

	_, err := FitOLS(nil, nil)
	assert.Error(t, err)
	_, err = FitOLS([][]float64{{1}}, []float64{1, 2})
	assert.Error(t, err)
}

func TestFitOLS_CollinearMinimumNorm(t *testing.T) {
	X := [][]float64{{1, 2}, {2, 4}, {3, 6}, {4, 8}}
	y := []float64{5, 10, 15, 20}

	m, err := FitOLS(X, y)
	require.NoError(t, err)

	// y = 5*x1 = 2.5*x2; minimum norm splits along (1, 2)
	assert.InDelta(t, 1.0, m.Coef[0], 1e-9)
	assert.InDelta(t, 2.0, m.Coef[1], 1e-9)
	assert.InDelta(t, 25.0, m.Predict([]float64{5, 10}), 1e-9)
}

func TestFitTree(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {10}, {11}, {12}}
	y := []float64{1, 1, 1, 5, 5, 5}

	tree := FitTree(X, y, []int{0, 1, 2, 3, 4, 5}, TreeOptions{})

	assert.Equal(t, 1, tree.Depth())
	assert.Equal(t, 2, tree.Leaves())
	assert.Equal(t, 1.0, tree.Predict([]float64{0}))
	assert.Equal(t, 1.0, tree.Predict([]float64{6.5}))
	assert.Equal(t, 5.0, tree.Predict([]float64{6.6}))

	// unlimited depth memorizes distinct targets
	yy := []float64{1, 2, 3, 4, 5, 6}
	full := FitTree(X, yy, []int{0, 1, 2, 3, 4, 5}, TreeOptions{})
	for i, row := range X {
		assert.Equal(t, yy[i], full.Predict(row))
	}

	stump := FitTree(X, yy, []int{0, 1, 2, 3, 4, 5}, TreeOptions{MaxDepth: 1})
	assert.Equal(t, 1, stump.Depth())
}

func TestFitForest_Deterministic(t *testing.T) {
	X, y := linearData(60, 2, 0.1)
	opts := ForestOptions{Trees: 20, Seed: 42}

	a, err := FitForest(context.Background(), X, y, opts)
	require.NoError(t, err)
	b, err := FitForest(context.Background(), X, y, opts)
	require.NoError(t, err)

	assert.Equal(t, 20, a.Size())
	probe := []float64{900, 60, 150}
	assert.Equal(t, a.Predict(probe), b.Predict(probe))

	// predictions stay within the target range
	lo, hi := y[0], y[0]
	for _, v := range y {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	p := a.Predict(probe)
	assert.GreaterOrEqual(t, p, lo)
	assert.LessOrEqual(t, p, hi)
}

func TestFitForest_Cancelled(t *testing.T) {
	X, y := linearData(60, 3, 0.1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FitForest(ctx, X, y, ForestOptions{Trees: 10, Seed: 1})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = FitForest(context.Background(), X, y, ForestOptions{Trees: 0})
	assert.Error(t, err)
}

func TestTrainerFactory(t *testing.T) {
	factory := NewTrainerFactory(ForestOptions{Trees: 5, Seed: 42})

	for _, mt := range []ModelType{ModelTypeLinear, ModelTypeForest} {
		trainer, err := factory.GetTrainer(mt)
		require.NoError(t, err)
		assert.Equal(t, mt, trainer.Type())
	}

	_, err := factory.GetTrainer("neural_network")
	assert.Error(t, err)
}

func TestTrain_ScaledLinearMatchesRaw(t *testing.T) {
	X, y := linearData(30, 4, 0)
	factory := NewTrainerFactory(ForestOptions{Trees: 5, Seed: 42})
	trainer, err := factory.GetTrainer(ModelTypeLinear)
	require.NoError(t, err)

	m, err := Train(context.Background(), trainer, X, y)
	require.NoError(t, err)

	assert.Equal(t, ModelTypeLinear, m.Type)
	assert.Equal(t, 30, m.Rows)
	probe := []float64{750, 35, 120}
	assert.InDelta(t, 1.5+0.002*750+0.03*35-0.004*120, m.Predict(probe), 1e-8)
}
