package engine

import (
	"sort"
)

// BenjaminiHochberg applies step-up FDR correction to one stratum's raw
// p-values and returns q-values aligned to the input order. The caller must
// pass only performed tests: populations with no performed test never consume
// a rank slot. Sort ascending with rank i out of m, adjust p*m/i, enforce
// monotonicity with a running minimum from the largest rank down, clip to [0,1].
func BenjaminiHochberg(pvalues []float64) []float64 {
	m := len(pvalues)
	if m == 0 {
		return nil
	}

	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return pvalues[order[i]] < pvalues[order[j]]
	})

	adjusted := make([]float64, m)
	for rank, idx := range order {
		adjusted[rank] = pvalues[idx] * float64(m) / float64(rank+1)
	}

	// Running minimum from the largest rank down
	for rank := m - 2; rank >= 0; rank-- {
		if adjusted[rank] > adjusted[rank+1] {
			adjusted[rank] = adjusted[rank+1]
		}
	}

	qvalues := make([]float64, m)
	for rank, idx := range order {
		q := adjusted[rank]
		if q > 1 {
			q = 1
		}
		if q < 0 {
			q = 0
		}
		qvalues[idx] = q
	}
	return qvalues
}
