// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vmaftest

import (
	"context"
	"sync"

	"github.com/evolution-gaming/vmafscore/internal/vmaf"
)

// Pattern returns the sample value at (x, y) of plane in frame n.
type Pattern func(n, plane, x, y int) int

// Flat fills luma with luma and both chroma planes with chroma.
func Flat(luma, chroma int) Pattern {
	return func(_, plane, _, _ int) int {
		if plane == 0 {
			return luma
		}
		return chroma
	}
}

// Gradient is a moving diagonal ramp, distinct per frame.
func Gradient(bitDepth int) Pattern {
	mask := 1<<bitDepth - 1
	return func(n, plane, x, y int) int {
		return (x + 2*y + 3*n + 50*plane) & mask
	}
}

// hostPadding is added to every host row so host and engine strides differ.
const hostPadding = 24

// Source is a fake vmaf.Source that synthesizes frames from a Pattern and
// tracks frame ownership.
type Source struct {
	info    vmaf.VideoInfo
	pattern Pattern
	// FailAt makes GetFrame fail for these indices.
	FailAt map[int]bool

	mu          sync.Mutex
	outstanding int
	requests    []int
	closed      int
}

// NewSource returns a Source of info filled with pattern.
func NewSource(info vmaf.VideoInfo, pattern Pattern) *Source {
	return &Source{info: info, pattern: pattern}
}

// YUV is a shortcut for a constant format planar YUV VideoInfo.
func YUV(bitDepth, ssw, ssh, width, height, frames int) vmaf.VideoInfo {
	return vmaf.VideoInfo{
		Format: vmaf.VideoFormat{
			ColorFamily:   vmaf.ColorFamilyYUV,
			SampleType:    vmaf.SampleInteger,
			BitsPerSample: bitDepth,
			SubSamplingW:  ssw,
			SubSamplingH:  ssh,
			NumPlanes:     3,
		},
		Width:     width,
		Height:    height,
		NumFrames: frames,
	}
}

func (s *Source) Info() vmaf.VideoInfo { return s.info }

func (s *Source) GetFrame(_ context.Context, n int) (vmaf.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, n)
	if s.FailAt[n] {
		return nil, ErrInjected
	}
	s.outstanding++
	return s.render(n), nil
}

func (s *Source) render(n int) *frame {
	f := s.info.Format
	bps := f.BytesPerSample()
	fr := &frame{src: s}
	for p := 0; p < f.NumPlanes; p++ {
		w, h := s.info.Width, s.info.Height
		if p > 0 {
			w = (w + (1<<f.SubSamplingW - 1)) >> f.SubSamplingW
			h = (h + (1<<f.SubSamplingH - 1)) >> f.SubSamplingH
		}
		stride := w*bps + hostPadding
		buf := make([]byte, stride*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := s.pattern(n, p, x, y)
				off := y*stride + x*bps
				buf[off] = byte(v)
				if bps == 2 {
					buf[off+1] = byte(v >> 8)
				}
			}
		}
		fr.width[p], fr.height[p], fr.stride[p], fr.data[p] = w, h, stride, buf
	}
	return fr
}

// Outstanding counts frames handed out and not yet freed.
func (s *Source) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outstanding
}

// Requests lists requested frame indices in order.
func (s *Source) Requests() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.requests...)
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Closed tells how many times Close was called.
func (s *Source) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type frame struct {
	src    *Source
	data   [3][]byte
	stride [3]int
	width  [3]int
	height [3]int
	freed  bool
}

func (f *frame) ReadPtr(plane int) []byte { return f.data[plane] }
func (f *frame) Stride(plane int) int     { return f.stride[plane] }
func (f *frame) Width(plane int) int      { return f.width[plane] }
func (f *frame) Height(plane int) int     { return f.height[plane] }

// Free panics on double free, ownership bugs should not go unnoticed.
func (f *frame) Free() {
	if f.freed {
		panic("vmaftest: frame freed twice")
	}
	f.freed = true
	f.src.mu.Lock()
	f.src.outstanding--
	f.src.mu.Unlock()
}
