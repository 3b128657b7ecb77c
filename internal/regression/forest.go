package regression

import (
	"context"
	"errors"
	"math/rand"
)

// ForestOptions controls a random forest. Every tree sees a bootstrap sample
// of the rows and considers all features at each split.
type ForestOptions struct {
	Trees    int
	Seed     int64
	MaxDepth int
}

// RandomForest averages the predictions of bagged regression trees.
type RandomForest struct {
	trees []*RegressionTree
}

// FitForest grows opts.Trees trees. The result is a pure function of the
// inputs and the seed. ctx is checked between trees.
func FitForest(ctx context.Context, X [][]float64, y []float64, opts ForestOptions) (*RandomForest, error) {
	n := len(X)
	if n == 0 || len(y) != n {
		return nil, errors.New("forest: empty or mismatched input")
	}
	if opts.Trees <= 0 {
		return nil, errors.New("forest: tree count must be positive")
	}

	seeds := rand.New(rand.NewSource(opts.Seed))
	forest := &RandomForest{trees: make([]*RegressionTree, 0, opts.Trees)}
	idx := make([]int, n)

	for t := 0; t < opts.Trees; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rng := rand.New(rand.NewSource(seeds.Int63()))
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		forest.trees = append(forest.trees, FitTree(X, y, idx, TreeOptions{MaxDepth: opts.MaxDepth}))
	}
	return forest, nil
}

// Predict returns the mean of the tree predictions.
func (f *RandomForest) Predict(x []float64) float64 {
	sum := 0.0
	for _, t := range f.trees {
		sum += t.Predict(x)
	}
	return sum / float64(len(f.trees))
}

// Size returns the number of trees.
func (f *RandomForest) Size() int { return len(f.trees) }
