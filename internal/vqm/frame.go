// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Video frame related abstractions.

package vqm

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/evolution-gaming/vmafscore/internal/metric"
)

// FrameMetric contains VQMs for a single frame.
type FrameMetric struct {
	FrameNum int
	Values   map[string]float64
}

type FrameMetrics []FrameMetric

// Older libvmaf releases report some metrics under different names.
var metricAliases = map[string]string{
	"psnr":    "psnr_y",
	"ssim":    "float_ssim",
	"ms_ssim": "float_ms_ssim",
}

// This and following are helper structs for libvmaf JSON result.
type ffmpegVMAFResult struct {
	Version string  `json:"version"`
	FPS     float64 `json:"fps"`
	Frames  []frame `json:"frames"`
}

type frame struct {
	FrameNum int                `json:"frameNum"`
	Metrics  map[string]float64 `json:"metrics"`
}

// FromFfmpegVMAF will Unmarshal libvmaf's JSON into FrameMetrics.
func (fm *FrameMetrics) FromFfmpegVMAF(jsonReader io.Reader) error {
	b, err := io.ReadAll(jsonReader)
	if err != nil {
		return fmt.Errorf("FromFfmpegVMAF() reading: %w", err)
	}
	res := &ffmpegVMAFResult{}

	if err := json.Unmarshal(b, res); err != nil {
		return fmt.Errorf("FromFfmpegVMAF() unmarshal JSON: %w", err)
	}

	for _, v := range res.Frames {
		values := make(map[string]float64, len(v.Metrics))
		for k, x := range v.Metrics {
			if alias, ok := metricAliases[k]; ok {
				k = alias
			}
			values[k] = x
		}
		*fm = append(*fm, FrameMetric{FrameNum: v.FrameNum, Values: values})
	}
	return nil
}

// Collect appends metrics accepted by keep into c.
func (fm FrameMetrics) Collect(c *metric.Collector, keep func(name string) bool) {
	for _, f := range fm {
		values := make(map[string]float64, len(f.Values))
		for k, v := range f.Values {
			if keep == nil || keep(k) {
				values[k] = v
			}
		}
		c.AppendFrame(f.FrameNum, values)
	}
}

// featureFilter keeps metrics produced by the named feature extractors,
// e.g. "psnr" keeps psnr_y, psnr_cb and psnr_cr.
func featureFilter(features []string) func(string) bool {
	return func(name string) bool {
		for _, f := range features {
			if strings.HasPrefix(name, f) {
				return true
			}
		}
		return false
	}
}
