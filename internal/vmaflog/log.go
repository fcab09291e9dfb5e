// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package vmaflog writes and reads VMAF result logs in the layouts libvmaf
// uses: XML, JSON, CSV and SUB.
package vmaflog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/evolution-gaming/vmafscore/internal/metric"
	"github.com/evolution-gaming/vmafscore/internal/vmaf"
)

// Version reported in logs.
const Version = "vmafscore-1"

var ErrUnsupportedFormat = errors.New("unsupported log format")

// Log is the full result of a scoring run.
type Log struct {
	Version string
	FPS     float64
	Frames  []Frame
	// Pooled statistics per metric.
	Pooled map[string]Pooled
	// Aggregate holds stream level model scores.
	Aggregate map[string]float64
}

type Frame struct {
	Num     int                `json:"frameNum"`
	Metrics map[string]float64 `json:"metrics"`
}

type Pooled struct {
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	HarmonicMean float64 `json:"harmonic_mean"`
}

// FromCollector builds a Log out of collected per-frame metrics. Pooled
// statistics are computed over all frames carrying a metric.
func FromCollector(c *metric.Collector, fps float64) *Log {
	l := &Log{
		Version:   Version,
		FPS:       fps,
		Pooled:    make(map[string]Pooled),
		Aggregate: c.Aggregate(),
	}
	series := make(map[string][]float64)
	for _, i := range c.Frames() {
		f, _ := c.Frame(i)
		l.Frames = append(l.Frames, Frame{Num: i, Metrics: f})
		for name, v := range f {
			series[name] = append(series[name], v)
		}
	}
	for name, values := range series {
		s, err := metric.Summarize(values)
		if err != nil {
			continue
		}
		l.Pooled[name] = Pooled{Min: s.Min, Max: s.Max, Mean: s.Mean, HarmonicMean: s.HarmonicMean}
	}
	return l
}

// MetricNames returns the sorted union of metric names over all frames.
func (l *Log) MetricNames() []string {
	set := make(map[string]struct{})
	for _, f := range l.Frames {
		for name := range f.Metrics {
			set[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Series returns per-frame values of metric name, frames missing it are
// skipped.
func (l *Log) Series(name string) []float64 {
	values := make([]float64, 0, len(l.Frames))
	for _, f := range l.Frames {
		if v, ok := f.Metrics[name]; ok {
			values = append(values, v)
		}
	}
	return values
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode writes l to w in format.
func Encode(w io.Writer, format vmaf.OutputFormat, l *Log) error {
	switch format {
	case vmaf.OutputFormatXML:
		return encodeXML(w, l)
	case vmaf.OutputFormatJSON:
		return encodeJSON(w, l)
	case vmaf.OutputFormatCSV:
		return encodeCSV(w, l)
	case vmaf.OutputFormatSUB:
		return encodeSUB(w, l)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// Write creates file path and encodes l into it.
func Write(path string, format vmaf.OutputFormat, l *Log) (err error) {
	fd, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating log: %w", err)
	}
	defer func() {
		if cerr := fd.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing log: %w", cerr)
		}
	}()
	if err := Encode(fd, format, l); err != nil {
		return fmt.Errorf("writing %s log: %w", format, err)
	}
	return nil
}

type jsonLog struct {
	Version   string             `json:"version"`
	FPS       float64            `json:"fps"`
	Frames    []Frame            `json:"frames"`
	Pooled    map[string]Pooled  `json:"pooled_metrics"`
	Aggregate map[string]float64 `json:"aggregate_metrics"`
}

func encodeJSON(w io.Writer, l *Log) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonLog{
		Version:   l.Version,
		FPS:       l.FPS,
		Frames:    l.Frames,
		Pooled:    l.Pooled,
		Aggregate: l.Aggregate,
	})
}

// Read parses a JSON encoded log, libvmaf's own included.
func Read(path string) (*Log, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	var jl jsonLog
	if err := json.Unmarshal(b, &jl); err != nil {
		return nil, fmt.Errorf("parsing log %s: %w", path, err)
	}
	return &Log{
		Version:   jl.Version,
		FPS:       jl.FPS,
		Frames:    jl.Frames,
		Pooled:    jl.Pooled,
		Aggregate: jl.Aggregate,
	}, nil
}
