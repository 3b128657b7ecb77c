package regression

import (
	"math"
	"sort"
)

// TreeOptions controls the growth of a regression tree. Zero MaxDepth means
// unlimited; trees then grow until leaves are pure or hold one sample.
type TreeOptions struct {
	MaxDepth       int
	MinSamplesLeaf int
}

type treeNode struct {
	feature   int // -1 for leaves
	threshold float64
	left      int
	right     int
	value     float64
}

// RegressionTree is a CART tree minimizing squared error.
type RegressionTree struct {
	nodes []treeNode
}

// Predict walks x down to a leaf and returns its mean target.
func (t *RegressionTree) Predict(x []float64) float64 {
	i := 0
	for t.nodes[i].feature >= 0 {
		n := t.nodes[i]
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
	return t.nodes[i].value
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *RegressionTree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.nodes[i]
		if n.feature < 0 {
			return 0
		}
		return 1 + max(walk(n.left), walk(n.right))
	}
	return walk(0)
}

// Leaves returns the number of leaf nodes.
func (t *RegressionTree) Leaves() int {
	count := 0
	for _, n := range t.nodes {
		if n.feature < 0 {
			count++
		}
	}
	return count
}

// FitTree grows a tree on the rows of X selected by idx (duplicates allowed,
// as produced by bootstrap sampling).
func FitTree(X [][]float64, y []float64, idx []int, opts TreeOptions) *RegressionTree {
	if opts.MinSamplesLeaf < 1 {
		opts.MinSamplesLeaf = 1
	}
	b := &treeBuilder{X: X, y: y, opts: opts}
	work := make([]int, len(idx))
	copy(work, idx)
	b.grow(work, 0)
	return &RegressionTree{nodes: b.nodes}
}

type treeBuilder struct {
	X     [][]float64
	y     []float64
	opts  TreeOptions
	nodes []treeNode
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	sum := 0.0
	for _, i := range idx {
		sum += b.y[i]
	}
	id := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{feature: -1, value: sum / float64(len(idx))})

	if len(idx) < 2*b.opts.MinSamplesLeaf || b.pure(idx) {
		return id
	}
	if b.opts.MaxDepth > 0 && depth >= b.opts.MaxDepth {
		return id
	}

	feature, threshold, ok := b.bestSplit(idx, sum)
	if !ok {
		return id
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].feature = feature
	b.nodes[id].threshold = threshold
	b.nodes[id].left = l
	b.nodes[id].right = r
	return id
}

func (b *treeBuilder) pure(idx []int) bool {
	first := b.y[idx[0]]
	for _, i := range idx[1:] {
		if b.y[i] != first {
			return false
		}
	}
	return true
}

// bestSplit scans every feature for the threshold maximizing the reduction in
// squared error. Candidate thresholds are midpoints between adjacent distinct
// values. Minimizing child SSE equals maximizing sumL²/nL + sumR²/nR.
func (b *treeBuilder) bestSplit(idx []int, total float64) (int, float64, bool) {
	n := len(idx)
	minLeaf := b.opts.MinSamplesLeaf
	parent := total * total / float64(n)

	bestFeature, bestThreshold := -1, 0.0
	bestScore := parent

	sorted := make([]int, n)
	for f := range b.X[idx[0]] {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.X[sorted[a]][f] < b.X[sorted[c]][f]
		})

		left := 0.0
		for k := 1; k < n; k++ {
			left += b.y[sorted[k-1]]
			if k < minLeaf || n-k < minLeaf {
				continue
			}
			lo, hi := b.X[sorted[k-1]][f], b.X[sorted[k]][f]
			if lo == hi {
				continue
			}
			right := total - left
			score := left*left/float64(k) + right*right/float64(n-k)
			if score > bestScore+1e-12*math.Abs(bestScore) {
				bestScore = score
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}
