package engine

import (
	"math"
	"sort"

	"immunetrial/internal/errors"

	"gonum.org/v1/gonum/stat/distuv"
)

// stdNormal is shared by every test invocation so all p-values come from the
// same formulation, never a per-call choice.
var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// MannWhitneyU runs a two-sided Mann-Whitney U test between two groups of
// observations. The reported statistic is U of the first group. The p-value
// uses the normal approximation with tie correction and a 0.5 continuity
// correction, the same formulation for every call.
func MannWhitneyU(group1, group2 []float64) (u, p float64, err error) {
	n1 := len(group1)
	n2 := len(group2)
	if n1 == 0 || n2 == 0 {
		return 0, 0, errors.InsufficientData("mann-whitney requires observations in both groups")
	}

	combined := make([]float64, 0, n1+n2)
	combined = append(combined, group1...)
	combined = append(combined, group2...)
	ranks := tiedRanks(combined)

	rankSum1 := 0.0
	for i := 0; i < n1; i++ {
		rankSum1 += ranks[i]
	}
	u = rankSum1 - float64(n1)*float64(n1+1)/2.0

	n := float64(n1 + n2)
	mu := float64(n1) * float64(n2) / 2.0

	// Tie-corrected variance of U
	tieTerm := 0.0
	for _, t := range tieGroupSizes(combined) {
		tf := float64(t)
		tieTerm += tf*tf*tf - tf
	}
	sigma2 := float64(n1) * float64(n2) / 12.0 * ((n + 1) - tieTerm/(n*(n-1)))
	if sigma2 <= 0 {
		// Every observation identical: no evidence either way
		return u, 1.0, nil
	}

	diff := math.Abs(u-mu) - 0.5 // continuity correction
	if diff < 0 {
		diff = 0
	}
	z := diff / math.Sqrt(sigma2)
	p = 2 * (1 - stdNormal.CDF(z))
	if p > 1 {
		p = 1
	}
	return u, p, nil
}

// tiedRanks assigns 1-based ranks, averaging within tie groups
func tiedRanks(data []float64) []float64 {
	n := len(data)
	type pair struct {
		value float64
		index int
	}
	pairs := make([]pair, n)
	for i, v := range data {
		pairs[i] = pair{value: v, index: i}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].value < pairs[j].value })

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i + 1
		for j < n && pairs[j].value == pairs[i].value {
			j++
		}
		avgRank := float64(i+1) + float64(j-i-1)/2.0
		for k := i; k < j; k++ {
			ranks[pairs[k].index] = avgRank
		}
		i = j
	}
	return ranks
}

// tieGroupSizes returns the size of each group of equal values
func tieGroupSizes(data []float64) []int {
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	var sizes []int
	i := 0
	for i < len(sorted) {
		j := i + 1
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		sizes = append(sizes, j-i)
		i = j
	}
	return sizes
}
