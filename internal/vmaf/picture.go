// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vmaf

import (
	"errors"
	"fmt"
)

// PixelFormat of engine pictures.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatYUV420P
	PixelFormatYUV422P
	PixelFormatYUV444P
	PixelFormatYUV400P
)

func (pf PixelFormat) String() string {
	switch pf {
	case PixelFormatYUV420P:
		return "yuv420p"
	case PixelFormatYUV422P:
		return "yuv422p"
	case PixelFormatYUV444P:
		return "yuv444p"
	case PixelFormatYUV400P:
		return "yuv400p"
	}
	return "unknown"
}

// chromaShift returns log2 chroma subsampling in both directions.
func (pf PixelFormat) chromaShift() (w, h uint) {
	switch pf {
	case PixelFormatYUV420P:
		return 1, 1
	case PixelFormatYUV422P:
		return 1, 0
	}
	return 0, 0
}

// Planes is the number of planes a picture of this format carries.
func (pf PixelFormat) Planes() int {
	if pf == PixelFormatYUV400P {
		return 1
	}
	return 3
}

const pictureAlign = 32

// Picture is an engine side planar picture. Samples wider than 8 bits are
// stored little endian in two bytes.
type Picture struct {
	PixelFormat PixelFormat
	BitDepth    int
	Width       [3]int
	Height      [3]int
	Stride      [3]int
	Data        [3][]byte

	release func()
}

var errPictureGeometry = errors.New("invalid picture geometry")

// NewPicture allocates a zeroed picture with 32 byte aligned strides.
// Engines use it to back AllocPicture.
func NewPicture(pf PixelFormat, bitDepth, width, height int) (*Picture, error) {
	if pf == PixelFormatUnknown || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %s %dx%d", errPictureGeometry, pf, width, height)
	}
	if bitDepth < 8 || bitDepth > 16 {
		return nil, fmt.Errorf("%w: bit depth %d", errPictureGeometry, bitDepth)
	}
	bps := 1
	if bitDepth > 8 {
		bps = 2
	}
	ssw, ssh := pf.chromaShift()

	p := &Picture{PixelFormat: pf, BitDepth: bitDepth}
	for i := 0; i < pf.Planes(); i++ {
		w, h := width, height
		if i > 0 {
			w = (width + (1<<ssw - 1)) >> ssw
			h = (height + (1<<ssh - 1)) >> ssh
		}
		stride := (w*bps + pictureAlign - 1) / pictureAlign * pictureAlign
		p.Width[i], p.Height[i], p.Stride[i] = w, h, stride
		p.Data[i] = make([]byte, stride*h)
	}
	return p, nil
}

// OnRelease registers fn to run on the first Unref.
func (p *Picture) OnRelease(fn func()) {
	p.release = fn
}

// BytesPerSample of the picture's planes.
func (p *Picture) BytesPerSample() int {
	if p.BitDepth > 8 {
		return 2
	}
	return 1
}

// Unref releases the picture buffers. It is safe to call more than once.
func (p *Picture) Unref() {
	if p == nil || p.Data[0] == nil {
		return
	}
	p.Data = [3][]byte{}
	if p.release != nil {
		p.release()
		p.release = nil
	}
}

// bitblt copies height rows of rowSize bytes between buffers with
// different strides.
func bitblt(dst []byte, dstStride int, src []byte, srcStride int, rowSize, height int) {
	if dstStride == srcStride && srcStride == rowSize {
		copy(dst[:rowSize*height], src[:rowSize*height])
		return
	}
	for y := 0; y < height; y++ {
		copy(dst[y*dstStride:y*dstStride+rowSize], src[y*srcStride:y*srcStride+rowSize])
	}
}

// pictureBridge converts host frames into engine pictures. Format and
// geometry are fixed once at setup.
type pictureBridge struct {
	engine      Engine
	pixelFormat PixelFormat
	bitDepth    int
	width       int
	height      int
	// chroma planes are copied only when some extractor reads them.
	chroma bool
}

func (b *pictureBridge) allocate() (*Picture, error) {
	return b.engine.AllocPicture(b.pixelFormat, b.bitDepth, b.width, b.height)
}

// fill copies luma, and chroma when enabled, from f into p.
func (b *pictureBridge) fill(p *Picture, f Frame) {
	planes := 1
	if b.chroma {
		planes = 3
	}
	bps := p.BytesPerSample()
	for i := 0; i < planes; i++ {
		bitblt(p.Data[i], p.Stride[i], f.ReadPtr(i), f.Stride(i), f.Width(i)*bps, f.Height(i))
	}
}

// convert allocates a picture pair and fills it from the host frames. On
// failure nothing stays allocated.
func (b *pictureBridge) convert(ref, dist Frame) (refPic, distPic *Picture, err error) {
	if refPic, err = b.allocate(); err != nil {
		return nil, nil, err
	}
	if distPic, err = b.allocate(); err != nil {
		refPic.Unref()
		return nil, nil, err
	}
	b.fill(refPic, ref)
	b.fill(distPic, dist)
	return refPic, distPic, nil
}
