// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vmaf

import (
	"errors"
	"fmt"
)

// Subsampling is the chroma subsampling class of a stream.
type Subsampling int

const (
	Subsampling420 Subsampling = iota
	Subsampling422
	Subsampling444
)

func (s Subsampling) String() string {
	switch s {
	case Subsampling420:
		return "4:2:0"
	case Subsampling422:
		return "4:2:2"
	case Subsampling444:
		return "4:4:4"
	}
	return fmt.Sprintf("Subsampling(%d)", int(s))
}

// PixelFormat derives the engine pixel format for the subsampling class.
func (s Subsampling) PixelFormat() PixelFormat {
	switch s {
	case Subsampling420:
		return PixelFormatYUV420P
	case Subsampling422:
		return PixelFormatYUV422P
	default:
		return PixelFormatYUV444P
	}
}

// StreamDescriptor is derived once from the host VideoInfo and stays fixed
// for the lifetime of a Filter.
type StreamDescriptor struct {
	Width       int
	Height      int
	BitDepth    int
	Subsampling Subsampling
	FrameCount  int
}

var (
	errFormat      = errors.New("only constant YUV format integer input supported")
	errBitDepth    = errors.New("only 8, 10, 12 and 16 bit depth supported")
	errSubsampling = errors.New("only 420/422/444 chroma subsampling is supported")
)

// Describe validates host stream info and derives its StreamDescriptor.
func Describe(info VideoInfo) (StreamDescriptor, error) {
	f := info.Format
	if !info.IsConstantFormat() || f.ColorFamily != ColorFamilyYUV || f.SampleType != SampleInteger {
		return StreamDescriptor{}, errFormat
	}
	switch f.BitsPerSample {
	case 8, 10, 12, 16:
	default:
		return StreamDescriptor{}, errBitDepth
	}

	d := StreamDescriptor{
		Width:      info.Width,
		Height:     info.Height,
		BitDepth:   f.BitsPerSample,
		FrameCount: info.NumFrames,
	}
	switch {
	case f.SubSamplingW == 1 && f.SubSamplingH == 1:
		d.Subsampling = Subsampling420
	case f.SubSamplingW == 1 && f.SubSamplingH == 0:
		d.Subsampling = Subsampling422
	case f.SubSamplingW == 0 && f.SubSamplingH == 0:
		d.Subsampling = Subsampling444
	default:
		return StreamDescriptor{}, errSubsampling
	}

	return d, nil
}

// sameShape reports whether two streams share format and dimensions.
func sameShape(a, b VideoInfo) bool {
	return a.Format == b.Format && a.Width == b.Width && a.Height == b.Height
}
