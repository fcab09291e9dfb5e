// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package source

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolution-gaming/vmafscore/internal/tools"
	"github.com/evolution-gaming/vmafscore/internal/video"
	"github.com/evolution-gaming/vmafscore/internal/vmaf"
)

func yuv420(w, h, frames int) vmaf.VideoInfo {
	f, _ := FormatFromPixFmt("yuv420p")
	return vmaf.VideoInfo{Format: f, Width: w, Height: h, NumFrames: frames}
}

func TestFormatFromPixFmt(t *testing.T) {
	tests := map[string]struct {
		bits, ssw, ssh int
	}{
		"yuv420p":     {8, 1, 1},
		"yuvj420p":    {8, 1, 1},
		"yuv422p10le": {10, 1, 0},
		"yuv444p12le": {12, 0, 0},
		"yuv420p16le": {16, 1, 1},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f, err := FormatFromPixFmt(name)
			require.NoError(t, err)
			assert.Equal(t, vmaf.ColorFamilyYUV, f.ColorFamily)
			assert.Equal(t, tc.bits, f.BitsPerSample)
			assert.Equal(t, tc.ssw, f.SubSamplingW)
			assert.Equal(t, tc.ssh, f.SubSamplingH)
		})
	}

	for _, pf := range []string{"rgb24", "gray", "yuv420p10be", "nv12", ""} {
		_, err := FormatFromPixFmt(pf)
		assert.ErrorIs(t, err, ErrPixelFormat, pf)
	}
}

func TestLayoutOddDimensions(t *testing.T) {
	l, err := newLayout(yuv420(5, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, [3]int{5, 3, 3}, l.width)
	assert.Equal(t, [3]int{3, 2, 2}, l.height)
	assert.Equal(t, 5*3+2*3*2, l.size)

	_, err = newLayout(vmaf.VideoInfo{Width: 5, Height: 3})
	assert.ErrorIs(t, err, ErrUnknownShape)
}

func TestMemory(t *testing.T) {
	info := yuv420(4, 2, 0)
	frame0 := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	frame1 := []byte{20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31}
	m, err := NewMemory(info, [][]byte{frame0, frame1})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Info().NumFrames)

	// Random access is fine.
	f, err := m.GetFrame(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{20, 21, 22, 23, 24, 25, 26, 27}, f.ReadPtr(0))
	assert.Equal(t, []byte{28, 29}, f.ReadPtr(1))
	assert.Equal(t, []byte{30, 31}, f.ReadPtr(2))
	assert.Equal(t, 4, f.Stride(0))
	assert.Equal(t, 2, f.Width(1))
	assert.Equal(t, 1, f.Height(2))
	assert.Equal(t, 1, m.Outstanding())
	f.Free()
	f.Free()
	assert.Zero(t, m.Outstanding())
	assert.Nil(t, f.ReadPtr(0))

	_, err = m.GetFrame(context.Background(), 2)
	assert.ErrorIs(t, err, ErrOutOfRange)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.GetFrame(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, m.Close())
	_, err = m.GetFrame(context.Background(), 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryFrameSize(t *testing.T) {
	_, err := NewMemory(yuv420(4, 2, 0), [][]byte{make([]byte, 11)})
	assert.ErrorIs(t, err, ErrFrameSize)
}

func TestTestSrc(t *testing.T) {
	spec := TestSrc{Width: 16, Height: 8, Frames: 3, BitDepth: 8, SubSampling: 420}

	clean, err := NewTestSrc(spec)
	require.NoError(t, err)
	again, err := NewTestSrc(spec)
	require.NoError(t, err)
	spec.Noise, spec.Seed = 3, 42
	noisy, err := NewTestSrc(spec)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := clean.GetFrame(ctx, 1)
	require.NoError(t, err)
	b, err := again.GetFrame(ctx, 1)
	require.NoError(t, err)
	c, err := noisy.GetFrame(ctx, 1)
	require.NoError(t, err)
	next, err := clean.GetFrame(ctx, 2)
	require.NoError(t, err)

	assert.Equal(t, a.ReadPtr(0), b.ReadPtr(0), "deterministic")
	assert.NotEqual(t, a.ReadPtr(0), c.ReadPtr(0), "noise")
	assert.NotEqual(t, a.ReadPtr(0), next.ReadPtr(0), "motion")
	assert.Equal(t, a.ReadPtr(1), c.ReadPtr(1), "chroma untouched")
	for _, v := range a.ReadPtr(1) {
		assert.EqualValues(t, 127, v)
	}
}

func TestTestSrcHighBitDepth(t *testing.T) {
	m, err := NewTestSrc(TestSrc{Width: 8, Height: 4, Frames: 1, BitDepth: 10, SubSampling: 444, Noise: 1000})
	require.NoError(t, err)
	assert.Equal(t, 10, m.Info().Format.BitsPerSample)

	f, err := m.GetFrame(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, f.ReadPtr(0), 8*4*2)
	for i := 0; i < len(f.ReadPtr(0)); i += 2 {
		v := int(f.ReadPtr(0)[i]) | int(f.ReadPtr(0)[i+1])<<8
		assert.LessOrEqual(t, v, 1023)
	}
	// Little endian mid grey.
	assert.Equal(t, []byte{0xff, 0x01}, f.ReadPtr(1)[:2])
}

func TestTestSrcInvalid(t *testing.T) {
	_, err := NewTestSrc(TestSrc{Width: 8, Height: 4, Frames: 1, BitDepth: 9, SubSampling: 420})
	assert.ErrorIs(t, err, ErrPixelFormat)
	_, err = NewTestSrc(TestSrc{Width: 8, Height: 4, Frames: 1, BitDepth: 8, SubSampling: 411})
	assert.ErrorIs(t, err, ErrPixelFormat)
}

func probeStub(meta video.Metadata, err error) video.MetadataExtractor {
	return video.ExtractorFunc(func(string) (video.Metadata, error) { return meta, err })
}

func TestNewFFmpeg_Negative(t *testing.T) {
	errProbe := errors.New("probe failed")
	tests := map[string]struct {
		cfg     FFmpegConfig
		wantErr error
	}{
		"Probe failure": {
			cfg:     FFmpegConfig{Probe: probeStub(video.Metadata{}, errProbe)},
			wantErr: errProbe,
		},
		"Unsupported pixel format": {
			cfg:     FFmpegConfig{Probe: probeStub(video.Metadata{PixFmt: "rgb24", Width: 4, Height: 4, FrameCount: 1}, nil)},
			wantErr: ErrPixelFormat,
		},
		"Unknown frame count": {
			cfg:     FFmpegConfig{Probe: probeStub(video.Metadata{PixFmt: "yuv420p", Width: 4, Height: 4}, nil)},
			wantErr: ErrFrameCount,
		},
		"No dimensions": {
			cfg:     FFmpegConfig{Probe: probeStub(video.Metadata{PixFmt: "yuv420p", FrameCount: 3}, nil)},
			wantErr: ErrUnknownShape,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			tc.cfg.FfmpegPath = "/nonexistent/ffmpeg"
			_, err := NewFFmpeg("in.mp4", tc.cfg)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestFFmpegPixFmtOverride(t *testing.T) {
	s, err := NewFFmpeg("in.mp4", FFmpegConfig{
		FfmpegPath: "/nonexistent/ffmpeg",
		GlobalArgs: "-threads 2",
		PixFmt:     "yuv444p10le",
		Probe:      probeStub(video.Metadata{PixFmt: "rgb24", Width: 6, Height: 4, FrameCount: 2}, nil),
	})
	require.NoError(t, err)
	assert.Equal(t, 10, s.Info().Format.BitsPerSample)
	assert.Equal(t, 2, s.Info().NumFrames)

	args, err := s.args()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-hide_banner", "-nostdin", "-v", "error", "-threads", "2",
		"-i", "in.mp4", "-map", "0:v:0", "-f", "rawvideo", "-pix_fmt", "yuv444p10le", "pipe:1",
	}, args)

	// Order is checked before any process is started.
	_, err = s.GetFrame(context.Background(), 1)
	assert.ErrorIs(t, err, ErrOutOfOrder)
	_, err = s.GetFrame(context.Background(), 2)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.NoError(t, s.Close())
	_, err = s.GetFrame(context.Background(), 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFFmpegDecode(t *testing.T) {
	ffmpeg, err := tools.FfmpegPath()
	if err != nil {
		t.Skip("ffmpeg not available")
	}
	if _, err := tools.FfprobePath(); err != nil {
		t.Skip("ffprobe not available")
	}
	clip := filepath.Join(t.TempDir(), "testsrc.mkv")
	out, err := exec.Command(ffmpeg, "-hide_banner", "-v", "error",
		"-f", "lavfi", "-i", "testsrc=size=64x48:rate=25:duration=0.4",
		"-pix_fmt", "yuv420p", "-c:v", "ffv1", clip).CombinedOutput()
	require.NoError(t, err, string(out))

	s, err := NewFFmpeg(clip, FFmpegConfig{FfmpegPath: ffmpeg})
	require.NoError(t, err)
	info := s.Info()
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 48, info.Height)
	assert.Equal(t, 10, info.NumFrames)

	for n := 0; n < info.NumFrames; n++ {
		f, err := s.GetFrame(context.Background(), n)
		require.NoError(t, err, "frame %d", n)
		assert.Len(t, f.ReadPtr(0), 64*48)
		assert.Len(t, f.ReadPtr(1), 32*24)
		f.Free()
	}
	assert.NoError(t, s.Close())
}

func TestFFmpegEarlyClose(t *testing.T) {
	ffmpeg, err := tools.FfmpegPath()
	if err != nil {
		t.Skip("ffmpeg not available")
	}
	if _, err := tools.FfprobePath(); err != nil {
		t.Skip("ffprobe not available")
	}
	clip := filepath.Join(t.TempDir(), "testsrc.mkv")
	out, err := exec.Command(ffmpeg, "-hide_banner", "-v", "error",
		"-f", "lavfi", "-i", "testsrc=size=320x240:rate=25:duration=2",
		"-pix_fmt", "yuv420p", "-c:v", "ffv1", clip).CombinedOutput()
	require.NoError(t, err, string(out))

	s, err := NewFFmpeg(clip, FFmpegConfig{FfmpegPath: ffmpeg})
	require.NoError(t, err)
	f, err := s.GetFrame(context.Background(), 0)
	require.NoError(t, err)
	f.Free()
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
