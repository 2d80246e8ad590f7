// Package dataset holds the observed time series the regression core is
// conditioned on: decimal-year timestamps paired with CO2 concentrations in
// ppm.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// ErrLengthMismatch reports time and observation sequences of different
// lengths.
var ErrLengthMismatch = errors.New("times have a different length than observations")

// Series is an ordered univariate time series. Observation i corresponds to
// time i. A validated Series contains only finite values with strictly
// increasing times.
type Series struct {
	// T holds times as fractional years.
	T []float64
	// Y holds observed values (ppm).
	Y []float64
}

// New validates and constructs a Series. The inputs are copied.
func New(t, y []float64) (*Series, error) {
	if len(t) != len(y) {
		return nil, fmt.Errorf(
			"times have length %d, but observations have length %d: %w",
			len(t), len(y), ErrLengthMismatch,
		)
	}
	if len(t) == 0 {
		return nil, errors.New("series must not be empty")
	}
	for i := range t {
		if math.IsNaN(t[i]) || math.IsInf(t[i], 0) {
			return nil, fmt.Errorf("time %d is not finite: %v", i, t[i])
		}
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			return nil, fmt.Errorf("observation %d is not finite: %v", i, y[i])
		}
		if i > 0 && t[i] <= t[i-1] {
			return nil, fmt.Errorf("times must be strictly increasing: t[%d]=%v, t[%d]=%v",
				i-1, t[i-1], i, t[i])
		}
	}
	return &Series{
		T: append([]float64(nil), t...),
		Y: append([]float64(nil), y...),
	}, nil
}

// Len returns the number of observations.
func (s *Series) Len() int { return len(s.T) }

// Mean returns the empirical mean of the observations. It is the usual
// initializer for the model's constant mean offset.
func (s *Series) Mean() float64 {
	return stat.Mean(s.Y, nil)
}

// Before returns the subsequence with times strictly below the cutoff.
func (s *Series) Before(cutoff float64) *Series {
	n := 0
	for n < len(s.T) && s.T[n] < cutoff {
		n++
	}
	return &Series{T: s.T[:n:n], Y: s.Y[:n:n]}
}

// Stride keeps every n-th observation starting from the first. A stride of
// 1 or less returns the series unchanged.
func (s *Series) Stride(n int) *Series {
	if n <= 1 {
		return s
	}
	t := make([]float64, 0, (len(s.T)+n-1)/n)
	y := make([]float64, 0, cap(t))
	for i := 0; i < len(s.T); i += n {
		t = append(t, s.T[i])
		y = append(y, s.Y[i])
	}
	return &Series{T: t, Y: y}
}

// FromCSV reads a two-column CSV of (decimal year, value). A header row is
// skipped when its first field does not parse as a number. Rows with
// non-finite or non-positive values are dropped, matching how the published
// CO2 record marks missing months.
func FromCSV(r io.Reader) (*Series, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var t, y []float64
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV: %w", err)
		}
		line++
		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: expected at least 2 columns, got %d", line, len(record))
		}

		tv, terr := strconv.ParseFloat(record[0], 64)
		yv, yerr := strconv.ParseFloat(record[1], 64)
		if terr != nil || yerr != nil {
			if line == 1 {
				// Header row.
				continue
			}
			return nil, fmt.Errorf("line %d: invalid numeric fields %q, %q", line, record[0], record[1])
		}
		if math.IsNaN(yv) || math.IsInf(yv, 0) || yv <= 0 {
			continue
		}
		t = append(t, tv)
		y = append(y, yv)
	}

	return New(t, y)
}
