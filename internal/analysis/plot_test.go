// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Tests for plotting related functionality.

package analysis

import (
	"math"
	"os"
	"path"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolution-gaming/vmafscore/internal/vmaflog"
)

var metricsFile = "../../testdata/vqm/libvmaf_v2.3.1.json"

func fixLog(t *testing.T) *vmaflog.Log {
	t.Helper()
	l, err := vmaflog.Read(metricsFile)
	require.NoError(t, err)
	return l
}

// getVmafValues fixture provides a slice of synthetic VMAF-like values.
func getVmafValues() []float64 {
	values := make([]float64, 500)
	for i := range values {
		values[i] = 85 + 10*math.Sin(float64(i)/20)
	}
	return values
}

func Test_CreateHistogramPlot(t *testing.T) {
	vmafs := getVmafValues()
	title := "Test plot title"

	t.Run("Creating historgram plot should succeed", func(t *testing.T) {
		got, err := CreateHistogramPlot(vmafs, title)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		if diff := cmp.Diff(title, got.X.Label.Text); diff != "" {
			t.Errorf("Plot title mismatch (-want +got):\n%s", diff)
		}
	})
}

func Test_CreateVqmPlot(t *testing.T) {
	vmafs := getVmafValues()
	title := "Test plot title"

	t.Run("Creating VQM plot should succeed", func(t *testing.T) {
		got, err := CreateVqmPlot(vmafs, title)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		if diff := cmp.Diff(title, got.Y.Label.Text); diff != "" {
			t.Errorf("Plot title mismatch (-want +got):\n%s", diff)
		}
	})
}

func Test_CreateCDFPlot(t *testing.T) {
	vmafs := getVmafValues()
	orig := append([]float64(nil), vmafs...)
	title := "Test plot title"

	t.Run("Creating CDF plot should succeed", func(t *testing.T) {
		got, err := CreateCDFPlot(vmafs, title)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		if diff := cmp.Diff(title, got.X.Label.Text); diff != "" {
			t.Errorf("Plot title mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Input should stay unsorted", func(t *testing.T) {
		if diff := cmp.Diff(orig, vmafs); diff != "" {
			t.Errorf("Input mutated (-want +got):\n%s", diff)
		}
	})
}

func Test_EmptyValues(t *testing.T) {
	tests := map[string]func([]float64, string) (interface{}, error){
		"VQM":       func(v []float64, n string) (interface{}, error) { return CreateVqmPlot(v, n) },
		"Histogram": func(v []float64, n string) (interface{}, error) { return CreateHistogramPlot(v, n) },
		"CDF":       func(v []float64, n string) (interface{}, error) { return CreateCDFPlot(v, n) },
	}
	for name, create := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := create(nil, "vmaf")
			assert.ErrorIs(t, err, ErrNoValues)
		})
	}
}

func Test_MultiPlotVqm(t *testing.T) {
	vmafs := getVmafValues()
	outDir := t.TempDir()

	t.Run("Creating VQM multi-plot should succeed", func(t *testing.T) {
		outFile := path.Join(outDir, "vqm.png")
		err := MultiPlotVqm(vmafs, "VMAF", "Test plot title", outFile)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		fi, err := os.Stat(outFile)
		if err != nil {
			t.Fatalf("Unexpected error from os.Stat: %v", err)
		}

		// We can't realistically check generated image, instead will do some
		// reasonable check on file properties.
		if fi.Size() <= 10 {
			t.Errorf("Resulting plot file size too small: %+v", fi)
		}
	})

	t.Run("Unwritable output should fail", func(t *testing.T) {
		err := MultiPlotVqm(vmafs, "VMAF", "title", path.Join(outDir, "missing", "vqm.png"))
		assert.Error(t, err)
	})
}

func Test_MultiPlotLog(t *testing.T) {
	l := fixLog(t)
	outDir := t.TempDir()

	outFile := path.Join(outDir, "psnr.png")
	require.NoError(t, MultiPlotLog(l, "psnr_y", "clip", outFile))
	fi, err := os.Stat(outFile)
	require.NoError(t, err)
	assert.Greater(t, fi.Size(), int64(10))

	err = MultiPlotLog(l, "vmaf_neg", "clip", path.Join(outDir, "x.png"))
	assert.ErrorIs(t, err, ErrMetricMissing)
}

func Test_ComparePlotLog(t *testing.T) {
	l := fixLog(t)
	outDir := t.TempDir()

	p, err := CreateComparePlot(l, "vmaf", "psnr_y")
	require.NoError(t, err)
	assert.InDelta(t, 93.124701*1.1, p.Y.Max, 1e-9)

	outFile := path.Join(outDir, "compare.png")
	require.NoError(t, ComparePlotLog(l, "clip", outFile, "vmaf", "psnr_y", "psnr_cb"))
	_, err = os.Stat(outFile)
	assert.NoError(t, err)

	_, err = CreateComparePlot(l)
	assert.ErrorIs(t, err, ErrNoValues)
	_, err = CreateComparePlot(l, "nope")
	assert.ErrorIs(t, err, ErrMetricMissing)
}
