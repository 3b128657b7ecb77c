package services

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"agri-yield-platform/internal/models"
)

// summary holds mean, sample standard deviation and count of one group.
type summary struct {
	mean  models.NullFloat
	std   models.NullFloat
	count int
}

func summarize(values []float64) summary {
	switch len(values) {
	case 0:
		return summary{mean: models.NaN(), std: models.NaN()}
	case 1:
		return summary{mean: models.NullFloat(values[0]), std: models.NaN(), count: 1}
	}
	mean, std := stat.MeanStdDev(values, nil)
	return summary{mean: models.NullFloat(mean), std: models.NullFloat(std), count: len(values)}
}

// groupYields collects yields by the label of field, keeping first-seen order.
func groupYields(rows []models.Record, field models.Field) ([]string, map[string][]float64) {
	var keys []string
	groups := make(map[string][]float64)
	for i := range rows {
		k := rows[i].Label(field)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], rows[i].Yield)
	}
	return keys, groups
}

// rankedMeans returns group labels ordered by descending mean yield, ties by label.
func rankedMeans(rows []models.Record, field models.Field) ([]string, map[string]float64) {
	keys, groups := groupYields(rows, field)
	means := make(map[string]float64, len(keys))
	for _, k := range keys {
		means[k] = stat.Mean(groups[k], nil)
	}
	sort.Slice(keys, func(i, j int) bool {
		if means[keys[i]] != means[keys[j]] {
			return means[keys[i]] > means[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys, means
}

func column(rows []models.Record, field models.Field) []float64 {
	out := make([]float64, len(rows))
	for i := range rows {
		out[i], _ = rows[i].Numeric(field)
	}
	return out
}

func featureMatrix(rows []models.Record) ([][]float64, []float64) {
	X := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i := range rows {
		X[i] = rows[i].Features()
		y[i] = rows[i].Yield
	}
	return X, y
}

// pearson is NaN when either column has zero variance or fewer than two rows.
func pearson(x, y []float64) models.NullFloat {
	if len(x) < 2 || variance(x) == 0 || variance(y) == 0 {
		return models.NaN()
	}
	r := stat.Correlation(x, y, nil)
	return models.NullFloat(math.Max(-1, math.Min(1, r)))
}

func variance(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.Variance(x, nil)
}

// quantile interpolates linearly between order statistics (pos = q*(n-1)).
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// quantileEdges returns up to bins+1 distinct ascending bin edges.
func quantileEdges(values []float64, bins int) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	edges := make([]float64, 0, bins+1)
	for k := 0; k <= bins; k++ {
		e := quantile(sorted, float64(k)/float64(bins))
		if len(edges) == 0 || e > edges[len(edges)-1] {
			edges = append(edges, e)
		}
	}
	return edges
}

// binIndex places v in the right-closed interval (edges[i], edges[i+1]];
// the lowest edge belongs to the first bin.
func binIndex(edges []float64, v float64) int {
	i := sort.SearchFloat64s(edges, v)
	if i > 0 {
		i--
	}
	if i > len(edges)-2 {
		i = len(edges) - 2
	}
	return i
}

func binLabel(edges []float64, i int) string {
	if i == 0 {
		return fmt.Sprintf("[%.2f, %.2f]", edges[0], edges[1])
	}
	return fmt.Sprintf("(%.2f, %.2f]", edges[i], edges[i+1])
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
