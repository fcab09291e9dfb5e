// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vmaf

import "context"

// ColorFamily of a host video format.
type ColorFamily int

const (
	ColorFamilyUndefined ColorFamily = iota
	ColorFamilyGray
	ColorFamilyRGB
	ColorFamilyYUV
)

// SampleType of a host video format.
type SampleType int

const (
	SampleInteger SampleType = iota
	SampleFloat
)

// VideoFormat describes the planar layout of host frames. SubSamplingW and
// SubSamplingH are log2 chroma subsampling factors.
type VideoFormat struct {
	ColorFamily   ColorFamily
	SampleType    SampleType
	BitsPerSample int
	SubSamplingW  int
	SubSamplingH  int
	NumPlanes     int
}

// BytesPerSample is the storage size of one sample.
func (f VideoFormat) BytesPerSample() int {
	return (f.BitsPerSample + 7) / 8
}

// VideoInfo describes a host stream. A zero Format means the format may
// change from frame to frame.
type VideoInfo struct {
	Format    VideoFormat
	Width     int
	Height    int
	NumFrames int
}

// IsConstantFormat reports whether format and dimensions are fixed for the
// whole stream.
func (v VideoInfo) IsConstantFormat() bool {
	return v.Format.ColorFamily != ColorFamilyUndefined && v.Width > 0 && v.Height > 0
}

// Frame is a decoded host frame. Plane data is only valid until Free is
// called.
type Frame interface {
	// ReadPtr returns the raw bytes of plane, rows are Stride(plane) apart.
	ReadPtr(plane int) []byte
	Stride(plane int) int
	// Width and Height of plane in samples.
	Width(plane int) int
	Height(plane int) int
	// Free hands ownership of the frame back to the host.
	Free()
}

// Source supplies frames by index on demand.
type Source interface {
	Info() VideoInfo
	GetFrame(ctx context.Context, n int) (Frame, error)
}
