// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Centralised store of per-frame quality metrics produced by a scoring
// engine.

package metric

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrFrameNotFound  = errors.New("frame not found")
	ErrMetricNotFound = errors.New("metric not found")
)

// Frame holds all metric values reported for a single frame index.
type Frame map[string]float64

// Collector accumulates metric values keyed by frame index and metric name.
// It is safe for concurrent use.
type Collector struct {
	mu        sync.RWMutex
	frames    map[int]Frame
	names     map[string]struct{}
	aggregate map[string]float64
}

func NewCollector() *Collector {
	return &Collector{
		frames:    make(map[int]Frame),
		names:     make(map[string]struct{}),
		aggregate: make(map[string]float64),
	}
}

// Append stores value of metric name for frame index, replacing any
// previous value.
func (c *Collector) Append(index int, name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.frames[index]
	if !ok {
		f = make(Frame)
		c.frames[index] = f
	}
	f[name] = value
	c.names[name] = struct{}{}
}

// AppendFrame stores all metrics of a single frame.
func (c *Collector) AppendFrame(index int, metrics map[string]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.frames[index]
	if !ok {
		f = make(Frame, len(metrics))
		c.frames[index] = f
	}
	for name, v := range metrics {
		f[name] = v
		c.names[name] = struct{}{}
	}
}

func (c *Collector) Get(index int, name string) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.frames[index]
	if !ok {
		return 0, fmt.Errorf("getting frame %d: %w", index, ErrFrameNotFound)
	}
	v, ok := f[name]
	if !ok {
		return 0, fmt.Errorf("getting %s of frame %d: %w", name, index, ErrMetricNotFound)
	}

	return v, nil
}

// Frame returns a copy of all metrics stored for frame index.
func (c *Collector) Frame(index int) (Frame, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.frames[index]
	if !ok {
		return nil, fmt.Errorf("getting frame %d: %w", index, ErrFrameNotFound)
	}
	cp := make(Frame, len(f))
	for k, v := range f {
		cp[k] = v
	}

	return cp, nil
}

// Frames returns stored frame indices in ascending order.
func (c *Collector) Frames() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx := make([]int, 0, len(c.frames))
	for i := range c.frames {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Names returns the sorted set of metric names seen so far.
func (c *Collector) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.names))
	for n := range c.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether at least one frame carries metric name.
func (c *Collector) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.names[name]
	return ok
}

// Series returns values of metric name for frames [start, end], both ends
// inclusive. Every frame in range must carry the metric.
func (c *Collector) Series(name string, start, end int) ([]float64, error) {
	if start < 0 || end < start {
		return nil, fmt.Errorf("invalid frame range [%d, %d]", start, end)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	values := make([]float64, 0, end-start+1)
	for i := start; i <= end; i++ {
		f, ok := c.frames[i]
		if !ok {
			return nil, fmt.Errorf("series %s: frame %d: %w", name, i, ErrFrameNotFound)
		}
		v, ok := f[name]
		if !ok {
			return nil, fmt.Errorf("series %s: frame %d: %w", name, i, ErrMetricNotFound)
		}
		values = append(values, v)
	}

	return values, nil
}

// Pooled pools metric name over frames [start, end] with method m.
func (c *Collector) Pooled(name string, m PoolMethod, start, end int) (float64, error) {
	values, err := c.Series(name, start, end)
	if err != nil {
		return 0, err
	}
	return Pool(values, m)
}

// SetAggregate records a stream level score, e.g. a pooled model score.
func (c *Collector) SetAggregate(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aggregate[name] = value
}

// Aggregate returns a copy of stream level scores.
func (c *Collector) Aggregate() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cp := make(map[string]float64, len(c.aggregate))
	for k, v := range c.aggregate {
		cp[k] = v
	}
	return cp
}
