// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vmaftest

import (
	"errors"
	"fmt"
	"math"

	"github.com/evolution-gaming/vmafscore/internal/metric"
	"github.com/evolution-gaming/vmafscore/internal/vmaf"
	"github.com/evolution-gaming/vmafscore/internal/vmaflog"
)

var errFlushed = errors.New("context already flushed")

// FPS reported in written logs.
const FPS = 25

// Context is a fake vmaf.Context. It records every call for inspection.
type Context struct {
	engine *Engine
	Config vmaf.Configuration

	collector *metric.Collector
	models    []*Model
	features  []string
	gpu       vmaf.GPUState
	frames    []int
	chroma    map[int]bool
	flushes   int
	writes    int
	closes    int
}

func (c *Context) UseFeaturesFromModel(m vmaf.ModelHandle) error {
	return c.useModel(m.(*Model))
}

func (c *Context) UseFeaturesFromModelCollection(m vmaf.CollectionHandle) error {
	return c.useModel(m.(*Model))
}

func (c *Context) useModel(m *Model) error {
	if c.engine.Faults.UseFeatures[m.Version] {
		return ErrInjected
	}
	c.models = append(c.models, m)
	return nil
}

func (c *Context) UseFeature(name string, _ map[string]string) error {
	if c.engine.Faults.UseFeature[name] {
		return ErrInjected
	}
	c.features = append(c.features, name)
	return nil
}

func (c *Context) ImportGPUState(s vmaf.GPUState) error {
	if c.engine.Faults.GPUImport {
		return ErrInjected
	}
	c.gpu = s
	return nil
}

func (c *Context) ReadPictures(ref, dist *vmaf.Picture, index int) error {
	if c.flushes > 0 {
		return errFlushed
	}
	if c.engine.Faults.ReadAt[index] {
		return ErrInjected
	}
	if ref == nil || dist == nil || ref.Data[0] == nil || dist.Data[0] == nil {
		return errors.New("missing picture")
	}

	c.chroma[index] = hasChroma(ref) || hasChroma(dist)
	c.collector.AppendFrame(index, c.frameMetrics(ref, dist))
	c.frames = append(c.frames, index)

	ref.Unref()
	dist.Unref()
	return nil
}

func (c *Context) frameMetrics(ref, dist *vmaf.Picture) map[string]float64 {
	luma := planePSNR(ref, dist, 0)
	peak := maxPSNR(ref.BitDepth)
	m := make(map[string]float64)
	for _, model := range c.models {
		score := 100 * luma / peak
		if model.Collection {
			m[model.Name()+"_bagging"] = score
			m[model.Name()+"_stddev"] = 0
			m[model.Name()+"_ci_p95_lo"] = score
			m[model.Name()+"_ci_p95_hi"] = score
		}
		m[model.Name()] = score
	}
	for _, f := range c.features {
		switch f {
		case "psnr", "psnr_hvs":
			m[f+"_y"] = luma
			m[f+"_cb"] = planePSNR(ref, dist, 1)
			m[f+"_cr"] = planePSNR(ref, dist, 2)
		case "ciede":
			m["ciede2000"] = (planePSNR(ref, dist, 1) + planePSNR(ref, dist, 2)) / 2
		default:
			m[f] = luma / peak
		}
	}
	return m
}

func hasChroma(p *vmaf.Picture) bool {
	for plane := 1; plane < p.PixelFormat.Planes(); plane++ {
		for _, b := range p.Data[plane] {
			if b != 0 {
				return true
			}
		}
	}
	return false
}

func maxPSNR(bitDepth int) float64 {
	return float64(6*bitDepth + 12)
}

// planePSNR compares one plane, capped at maxPSNR.
func planePSNR(ref, dist *vmaf.Picture, plane int) float64 {
	bps := ref.BytesPerSample()
	var sum float64
	n := 0
	for y := 0; y < ref.Height[plane]; y++ {
		r := ref.Data[plane][y*ref.Stride[plane]:]
		d := dist.Data[plane][y*dist.Stride[plane]:]
		for x := 0; x < ref.Width[plane]; x++ {
			diff := float64(sample(r, x, bps)) - float64(sample(d, x, bps))
			sum += diff * diff
			n++
		}
	}
	peak := maxPSNR(ref.BitDepth)
	if n == 0 || sum == 0 {
		return peak
	}
	top := float64(int(1)<<ref.BitDepth - 1)
	return math.Min(peak, 10*math.Log10(top*top/(sum/float64(n))))
}

func sample(row []byte, x, bps int) int {
	if bps == 1 {
		return int(row[x])
	}
	return int(row[2*x]) | int(row[2*x+1])<<8
}

func (c *Context) Flush() error {
	c.flushes++
	if c.engine.Faults.Flush {
		return ErrInjected
	}
	if c.flushes > 1 {
		return errFlushed
	}
	return nil
}

func (c *Context) ScorePooled(m vmaf.ModelHandle, method vmaf.PoolMethod, start, end int) (float64, error) {
	model := m.(*Model)
	if c.engine.Faults.Score[model.Version] {
		return 0, ErrInjected
	}
	v, err := c.collector.Pooled(model.Name(), method, start, end)
	if err != nil {
		return 0, err
	}
	c.collector.SetAggregate(model.Name(), v)
	return v, nil
}

func (c *Context) ScorePooledModelCollection(m vmaf.CollectionHandle, method vmaf.PoolMethod, start, end int) (vmaf.CollectionScore, error) {
	model := m.(*Model)
	var s vmaf.CollectionScore
	if c.engine.Faults.Score[model.Version] {
		return s, ErrInjected
	}
	for suffix, dst := range map[string]*float64{
		"_bagging":   &s.Bagging,
		"_stddev":    &s.StdDev,
		"_ci_p95_lo": &s.CILo,
		"_ci_p95_hi": &s.CIHi,
	} {
		v, err := c.collector.Pooled(model.Name()+suffix, method, start, end)
		if err != nil {
			return s, err
		}
		*dst = v
		c.collector.SetAggregate(model.Name()+suffix, v)
	}
	return s, nil
}

func (c *Context) WriteOutput(path string, format vmaf.OutputFormat) error {
	c.writes++
	if c.engine.Faults.Write {
		return ErrInjected
	}
	if c.flushes == 0 {
		return fmt.Errorf("write before flush")
	}
	return vmaflog.Write(path, format, vmaflog.FromCollector(c.collector, FPS))
}

func (c *Context) Close() error {
	c.closes++
	if c.engine.Faults.CloseContext {
		return ErrInjected
	}
	return nil
}

// Frames lists submitted frame indices in submission order.
func (c *Context) Frames() []int { return append([]int(nil), c.frames...) }

// ChromaSeen reports whether frame index carried non-zero chroma samples.
func (c *Context) ChromaSeen(index int) bool { return c.chroma[index] }

// Features lists registered feature extractors.
func (c *Context) Features() []string { return append([]string(nil), c.features...) }

// GPU returns the imported accelerator state.
func (c *Context) GPU() vmaf.GPUState { return c.gpu }

func (c *Context) Collector() *metric.Collector { return c.collector }

func (c *Context) Flushes() int { return c.flushes }
func (c *Context) Writes() int  { return c.writes }
func (c *Context) Closes() int  { return c.closes }
