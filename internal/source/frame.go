// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Host frame sources feeding the VMAF filter: an ffmpeg rawvideo decoder
// and an in-memory source with a synthetic pattern generator.
package source

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/evolution-gaming/vmafscore/internal/vmaf"
)

var (
	ErrClosed       = errors.New("source closed")
	ErrOutOfRange   = errors.New("frame index out of range")
	ErrOutOfOrder   = errors.New("frames must be requested sequentially")
	ErrFrameSize    = errors.New("frame size does not match video info")
	ErrPixelFormat  = errors.New("unsupported pixel format")
	ErrFrameCount   = errors.New("unknown frame count")
	ErrUnknownShape = errors.New("video info has no constant format")
)

// layout describes how a packed planar frame is split into planes.
type layout struct {
	planes int
	width  [3]int
	height [3]int
	// Row size in bytes.
	row  [3]int
	size int
}

func newLayout(info vmaf.VideoInfo) (layout, error) {
	var l layout
	if !info.IsConstantFormat() {
		return l, ErrUnknownShape
	}
	f := info.Format
	l.planes = f.NumPlanes
	if l.planes < 1 || l.planes > 3 {
		return l, fmt.Errorf("%w: %d planes", ErrPixelFormat, l.planes)
	}
	bps := f.BytesPerSample()
	for i := 0; i < l.planes; i++ {
		w, h := info.Width, info.Height
		if i > 0 {
			w = (w + (1<<f.SubSamplingW - 1)) >> f.SubSamplingW
			h = (h + (1<<f.SubSamplingH - 1)) >> f.SubSamplingH
		}
		l.width[i], l.height[i], l.row[i] = w, h, w*bps
		l.size += w * bps * h
	}
	return l, nil
}

// frame is a packed planar frame, it implements vmaf.Frame.
type frame struct {
	l     *layout
	data  [3][]byte
	freed atomic.Bool
	free  func()
}

// newFrame slices buf into planes, buf must be l.size bytes long.
func newFrame(l *layout, buf []byte, free func()) *frame {
	f := &frame{l: l, free: free}
	off := 0
	for i := 0; i < l.planes; i++ {
		n := l.row[i] * l.height[i]
		f.data[i] = buf[off : off+n : off+n]
		off += n
	}
	return f
}

func (f *frame) ReadPtr(plane int) []byte { return f.data[plane] }
func (f *frame) Stride(plane int) int     { return f.l.row[plane] }
func (f *frame) Width(plane int) int      { return f.l.width[plane] }
func (f *frame) Height(plane int) int     { return f.l.height[plane] }

func (f *frame) Free() {
	if f.freed.Swap(true) {
		return
	}
	f.data = [3][]byte{}
	if f.free != nil {
		f.free()
	}
}
