// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package source

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/evolution-gaming/vmafscore/internal/vmaf"
)

// Memory serves packed planar frames held in memory.
type Memory struct {
	info        vmaf.VideoInfo
	layout      layout
	frames      [][]byte
	outstanding atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewMemory creates a source from packed frames, planes follow each other
// without padding. NumFrames of info is set from len(frames).
func NewMemory(info vmaf.VideoInfo, frames [][]byte) (*Memory, error) {
	l, err := newLayout(info)
	if err != nil {
		return nil, err
	}
	for i, f := range frames {
		if len(f) != l.size {
			return nil, fmt.Errorf("%w: frame %d has %d bytes, want %d", ErrFrameSize, i, len(f), l.size)
		}
	}
	info.NumFrames = len(frames)
	return &Memory{info: info, layout: l, frames: frames}, nil
}

func (m *Memory) Info() vmaf.VideoInfo { return m.info }

func (m *Memory) GetFrame(ctx context.Context, n int) (vmaf.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if n < 0 || n >= len(m.frames) {
		return nil, fmt.Errorf("%w: %d", ErrOutOfRange, n)
	}
	m.outstanding.Add(1)
	return newFrame(&m.layout, m.frames[n], func() { m.outstanding.Add(-1) }), nil
}

// Outstanding is the number of frames handed out and not yet freed.
func (m *Memory) Outstanding() int { return int(m.outstanding.Load()) }

// Close drops the frames, it is safe to call more than once.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.frames = nil
	return nil
}

// TestSrc describes a synthetic moving pattern.
type TestSrc struct {
	Width, Height, Frames int
	// BitDepth of 8, 10, 12 or 16.
	BitDepth int
	// SubSampling is 420, 422 or 444.
	SubSampling int
	// Noise is the maximum absolute deviation added to every luma sample,
	// 0 renders a clean pattern.
	Noise int
	Seed  int64
}

// Info returns the VideoInfo of frames NewTestSrc renders.
func (t TestSrc) Info() (vmaf.VideoInfo, error) {
	f := vmaf.VideoFormat{
		ColorFamily:   vmaf.ColorFamilyYUV,
		SampleType:    vmaf.SampleInteger,
		BitsPerSample: t.BitDepth,
		NumPlanes:     3,
	}
	switch t.SubSampling {
	case 420:
		f.SubSamplingW, f.SubSamplingH = 1, 1
	case 422:
		f.SubSamplingW = 1
	case 444:
	default:
		return vmaf.VideoInfo{}, fmt.Errorf("%w: subsampling %d", ErrPixelFormat, t.SubSampling)
	}
	switch t.BitDepth {
	case 8, 10, 12, 16:
	default:
		return vmaf.VideoInfo{}, fmt.Errorf("%w: bit depth %d", ErrPixelFormat, t.BitDepth)
	}
	return vmaf.VideoInfo{Format: f, Width: t.Width, Height: t.Height, NumFrames: t.Frames}, nil
}

// NewTestSrc renders a diagonal gradient scrolling by a few samples per
// frame, with optional deterministic noise.
func NewTestSrc(t TestSrc) (*Memory, error) {
	info, err := t.Info()
	if err != nil {
		return nil, err
	}
	l, err := newLayout(info)
	if err != nil {
		return nil, err
	}
	rnd := rand.New(rand.NewSource(t.Seed)) //#nosec G404
	maxV := 1<<t.BitDepth - 1
	bps := info.Format.BytesPerSample()

	frames := make([][]byte, t.Frames)
	for n := range frames {
		buf := make([]byte, l.size)
		off := 0
		for p := 0; p < l.planes; p++ {
			for y := 0; y < l.height[p]; y++ {
				for x := 0; x < l.width[p]; x++ {
					v := maxV / 2
					if p == 0 {
						v = ((x + y + 4*n) * maxV / (l.width[0] + l.height[0])) % (maxV + 1)
						if t.Noise > 0 {
							v += rnd.Intn(2*t.Noise+1) - t.Noise
						}
					}
					v = clamp(v, 0, maxV)
					if bps == 2 {
						buf[off] = byte(v)
						buf[off+1] = byte(v >> 8)
					} else {
						buf[off] = byte(v)
					}
					off += bps
				}
			}
		}
		frames[n] = buf
	}
	return NewMemory(info, frames)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
