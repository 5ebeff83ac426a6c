package indicators

import (
	"math"
	"sort"

	"wheel-screener/market"
)

const (
	// MaxLevels is the number of support and resistance slots kept per side.
	MaxLevels = 3

	clusterTolerance = 0.02
	nearTolerance    = 0.03
)

// Levels holds up to three supports below price and three resistances above price,
// closest first. Empty slots stay nil.
type Levels struct {
	Supports    [MaxLevels]*float64
	Resistances [MaxLevels]*float64
}

// SupportResistance finds local extrema of lows and highs inside a centered window,
// clusters them and keeps the closest levels on each side of price.
func SupportResistance(bars []market.PriceBar, price float64, window int) Levels {
	var out Levels
	if window <= 0 || len(bars) < 2*window+1 {
		return out
	}

	var supports, resistances []float64
	for i := window; i < len(bars)-window; i++ {
		lo, hi := bars[i].Low, bars[i].High
		isMin, isMax := true, true
		for j := i - window; j <= i+window; j++ {
			if bars[j].Low < lo {
				isMin = false
			}
			if bars[j].High > hi {
				isMax = false
			}
		}
		if isMin {
			supports = append(supports, lo)
		}
		if isMax {
			resistances = append(resistances, hi)
		}
	}

	var below []float64
	for _, s := range clusterLevels(supports, clusterTolerance) {
		if s < price {
			below = append(below, s)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(below)))

	var above []float64
	for _, r := range clusterLevels(resistances, clusterTolerance) {
		if r > price {
			above = append(above, r)
		}
	}
	sort.Float64s(above)

	for i := 0; i < MaxLevels && i < len(below); i++ {
		v := below[i]
		out.Supports[i] = &v
	}
	for i := 0; i < MaxLevels && i < len(above); i++ {
		v := above[i]
		out.Resistances[i] = &v
	}
	return out
}

// clusterLevels sorts levels and merges neighbours that sit within tolerance of the last
// accepted value of the running cluster. Each cluster collapses to its median.
func clusterLevels(levels []float64, tolerance float64) []float64 {
	if len(levels) == 0 {
		return nil
	}
	sorted := append([]float64(nil), levels...)
	sort.Float64s(sorted)

	var out []float64
	cluster := []float64{sorted[0]}
	for _, v := range sorted[1:] {
		last := cluster[len(cluster)-1]
		if last != 0 && math.Abs(v-last)/last <= tolerance {
			cluster = append(cluster, v)
			continue
		}
		out = append(out, median(cluster))
		cluster = []float64{v}
	}
	return append(out, median(cluster))
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// NearLevel reports whether price is within 3% of any non-nil level.
func NearLevel(price float64, levels [MaxLevels]*float64) bool {
	for _, l := range levels {
		if l == nil || *l == 0 {
			continue
		}
		if math.Abs(price-*l)/(*l) <= nearTolerance {
			return true
		}
	}
	return false
}
