// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package metric

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrEmptySeries = errors.New("empty series")

// PoolMethod selects how per-frame values are reduced to a single score.
type PoolMethod int

const (
	PoolMin PoolMethod = iota + 1
	PoolMax
	PoolMean
	PoolHarmonicMean
)

func (m PoolMethod) String() string {
	switch m {
	case PoolMin:
		return "min"
	case PoolMax:
		return "max"
	case PoolMean:
		return "mean"
	case PoolHarmonicMean:
		return "harmonic_mean"
	}
	return fmt.Sprintf("PoolMethod(%d)", int(m))
}

// Pool reduces values with method m.
//
// Harmonic mean is computed on values offset by one and the offset is
// removed afterwards, so a zero score does not collapse the whole series.
func Pool(values []float64, m PoolMethod) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptySeries
	}
	switch m {
	case PoolMin:
		return floats.Min(values), nil
	case PoolMax:
		return floats.Max(values), nil
	case PoolMean:
		return stat.Mean(values, nil), nil
	case PoolHarmonicMean:
		shifted := make([]float64, len(values))
		copy(shifted, values)
		floats.AddConst(1, shifted)
		return stat.HarmonicMean(shifted, nil) - 1, nil
	}
	return 0, fmt.Errorf("unsupported pool method %v", m)
}

// Summary holds descriptive statistics of a metric series.
type Summary struct {
	Min          float64
	Max          float64
	Mean         float64
	HarmonicMean float64
	StDev        float64
	Variance     float64
}

// Summarize computes Summary over values.
func Summarize(values []float64) (Summary, error) {
	var s Summary
	if len(values) == 0 {
		return s, ErrEmptySeries
	}
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	s.Mean, s.StDev = stat.MeanStdDev(values, nil)
	s.Variance = stat.Variance(values, nil)
	s.HarmonicMean, _ = Pool(values, PoolHarmonicMean)
	return s, nil
}
