package service

import (
	"math"
	"strconv"
	"strings"
)

// DivisionByZero is displayed instead of a percentage change whose baseline is zero.
const DivisionByZero = "#DIV/0!"

// SeverityScale buckets a measurement into one of four ordinal bands.
// Ascending scales use inclusive upper bounds (v <= cutoff); inverse scales use
// inclusive lower bounds (v >= cutoff) for measurements that worsen as they decrease.
type SeverityScale struct {
	Cutoffs [3]float64
	Labels  [4]string
	Inverse bool
}

// Classify returns the band label for v. The last band catches everything past the final cutoff.
func (s SeverityScale) Classify(v float64) string {
	for i, cutoff := range s.Cutoffs {
		if s.Inverse {
			if v >= cutoff {
				return s.Labels[i]
			}
			continue
		}
		if v <= cutoff {
			return s.Labels[i]
		}
	}
	return s.Labels[3]
}

var (
	increasedMasculine = [4]string{"Норма", "Умеренно увеличен", "Значительно увеличен", "Резко увеличен"}
	increasedFeminine  = [4]string{"Норма", "Умеренно увеличена", "Значительно увеличена", "Резко увеличена"}
	decreasedNeuter    = [4]string{"Норма", "Умеренно снижено", "Значительно снижено", "Резко снижено"}
)

// Severity scales of the report rows.
var (
	ImpedanceScale      = SeverityScale{Cutoffs: [3]float64{144, 170, 215}, Labels: increasedMasculine}
	Resistance5Scale    = SeverityScale{Cutoffs: [3]float64{137, 164, 211}, Labels: increasedMasculine}
	Resistance20Scale   = SeverityScale{Cutoffs: [3]float64{136, 167, 220}, Labels: increasedMasculine}
	FrequencyDepScale   = SeverityScale{Cutoffs: [3]float64{0.09, 0.17, 0.32}, Labels: increasedFeminine}
	ReactanceScale      = SeverityScale{Cutoffs: [3]float64{-0.15, -0.27, -0.47}, Labels: decreasedNeuter, Inverse: true}
	ReactanceShiftScale = SeverityScale{Cutoffs: [3]float64{0.16, 0.27, 0.46}, Labels: increasedMasculine}
	ResonanceFreqScale  = SeverityScale{Cutoffs: [3]float64{15, 21, 32}, Labels: increasedFeminine}
)

// RoundNumber rounds n to precision decimals, halves toward positive infinity, and
// formats the result with exactly precision decimals and a decimal comma.
// Negative zero is printed without a sign, so -0.005 at precision 2 gives "0,00".
func RoundNumber(n float64, precision int) string {
	if precision < 0 {
		precision = 0
	}
	scale := math.Pow(10, float64(precision))
	rounded := roundHalfUp(n*scale) / scale
	if rounded == 0 {
		rounded = 0
	}
	return strings.Replace(strconv.FormatFloat(rounded, 'f', precision, 64), ".", ",", 1)
}

func roundHalfUp(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	f := math.Floor(x)
	if x-f >= 0.5 {
		f++
	}
	return f
}

// percentChange returns ((after-before)/before)*100. ok is false when before is zero.
func percentChange(before, after float64) (value float64, ok bool) {
	if before == 0 {
		return 0, false
	}
	return ((after - before) / before) * 100, true
}
