package calculations

import (
	"math"
	"sort"
)

// PercentFor converts one model group's usage into a share of the quota.
// ceiling is only consulted for weight-type entries.
func PercentFor(entry ModelEntry, rawTokens, weightedTokens, ceiling float64) float64 {
	var pct float64
	switch entry.EffectiveType() {
	case TypeLimit:
		if entry.Limit != nil {
			pct = ratio(weightedTokens, *entry.Limit)
		} else {
			pct = ratio(weightedTokens, ceiling)
		}
	case TypeInterpolate:
		if len(entry.DataPoints) == 0 {
			pct = ratio(weightedTokens, ceiling)
		} else {
			pct = Interpolate(entry.DataPoints, rawTokens)
		}
	default:
		pct = ratio(weightedTokens, ceiling)
	}
	if pct < 0 || math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0
	}
	return pct
}

func ratio(weighted, ceiling float64) float64 {
	if ceiling <= 0 {
		return 0
	}
	return weighted / ceiling * 100
}

// Interpolate evaluates the piecewise-linear curve through points at x.
// Below the first point the curve scales from the origin. Past the last
// point the final segment's slope is extended, except that a single point
// caps the curve at its percent.
func Interpolate(points []DataPoint, x float64) float64 {
	pts := make([]DataPoint, 0, len(points)+1)
	for _, p := range points {
		if p.RawTokens >= 0 {
			pts = append(pts, p)
		}
	}
	if len(pts) == 0 {
		return 0
	}
	if len(pts) == 1 {
		p := pts[0]
		if x >= p.RawTokens || p.RawTokens == 0 {
			return p.Percent
		}
		return lerp(DataPoint{}, p, x)
	}

	sort.SliceStable(pts, func(i, j int) bool { return pts[i].RawTokens < pts[j].RawTokens })
	if pts[0].RawTokens > 0 {
		pts = append([]DataPoint{{}}, pts...)
	}

	for i := 1; i < len(pts); i++ {
		if x <= pts[i].RawTokens {
			return lerp(pts[i-1], pts[i], x)
		}
	}
	return lerp(pts[len(pts)-2], pts[len(pts)-1], x)
}

func lerp(a, b DataPoint, x float64) float64 {
	switch x {
	case a.RawTokens:
		return a.Percent
	case b.RawTokens:
		return b.Percent
	}
	dx := b.RawTokens - a.RawTokens
	if dx == 0 {
		return b.Percent
	}
	return a.Percent + (x-a.RawTokens)*(b.Percent-a.Percent)/dx
}
