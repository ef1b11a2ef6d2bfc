package table

import "math"

// ColumnTotal returns the sum of a column's values across all twelve months.
// Missing cells count as zero. Totals are recomputed on every call; the
// document never caches aggregates.
func (d *Document) ColumnTotal(column string) float64 {
	var sum float64
	for _, m := range Months {
		sum += d.Data[m][column]
	}
	return sum
}

// Totals returns the per-column totals for all columns, rounded to two
// decimals for presentation.
func (d *Document) Totals() map[string]float64 {
	out := make(map[string]float64, len(d.Columns))
	for _, c := range d.Columns {
		out[c] = Round2(d.ColumnTotal(c))
	}
	return out
}

// Round2 rounds v to two decimal places, the precision used for display.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
