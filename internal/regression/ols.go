package regression

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Singular values below rankTolerance times the largest are treated as zero.
const rankTolerance = 1e-12

// LinearModel is an ordinary least squares fit y = Intercept + Coef·x.
type LinearModel struct {
	Coef      []float64
	Intercept float64
}

// FitOLS fits an unregularized least squares model with intercept. Columns are
// centered and the minimum-norm solution is taken from a thin SVD, so
// collinear or constant columns do not fail the fit.
func FitOLS(X [][]float64, y []float64) (*LinearModel, error) {
	n := len(X)
	if n == 0 {
		return nil, errors.New("ols: no rows")
	}
	if len(y) != n {
		return nil, fmt.Errorf("ols: %d rows but %d targets", n, len(y))
	}
	p := len(X[0])
	if p == 0 {
		return nil, errors.New("ols: no features")
	}

	xMean := make([]float64, p)
	for _, row := range X {
		if len(row) != p {
			return nil, errors.New("ols: ragged input")
		}
		floats.Add(xMean, row)
	}
	floats.Scale(1/float64(n), xMean)
	yMean := floats.Sum(y) / float64(n)

	a := mat.NewDense(n, p, nil)
	b := mat.NewVecDense(n, nil)
	for i, row := range X {
		for j, v := range row {
			a.Set(i, j, v-xMean[j])
		}
		b.SetVec(i, y[i]-yMean)
	}

	coef := make([]float64, p)

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, errors.New("ols: svd factorization did not converge")
	}
	if rank := svd.Rank(rankTolerance); rank > 0 {
		var sol mat.VecDense
		svd.SolveVecTo(&sol, b, rank)
		for j := range coef {
			coef[j] = sol.AtVec(j)
		}
	}

	for _, c := range coef {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, errors.New("ols: non-finite coefficient")
		}
	}

	return &LinearModel{
		Coef:      coef,
		Intercept: yMean - floats.Dot(xMean, coef),
	}, nil
}

// Predict evaluates the model at x.
func (m *LinearModel) Predict(x []float64) float64 {
	return m.Intercept + floats.Dot(m.Coef, x)
}
