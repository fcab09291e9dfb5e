// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/google/shlex"

	"github.com/evolution-gaming/vmafscore/internal/logging"
	"github.com/evolution-gaming/vmafscore/internal/lw"
	"github.com/evolution-gaming/vmafscore/internal/tools"
	"github.com/evolution-gaming/vmafscore/internal/video"
	"github.com/evolution-gaming/vmafscore/internal/vmaf"
)

// Pixel formats a decoder may hand over as is.
var pixFmts = func() map[string]vmaf.VideoFormat {
	m := make(map[string]vmaf.VideoFormat)
	for _, ss := range []struct {
		name string
		w, h int
	}{{"420", 1, 1}, {"422", 1, 0}, {"444", 0, 0}} {
		for _, bits := range []int{8, 10, 12, 16} {
			name := "yuv" + ss.name + "p"
			if bits > 8 {
				name += fmt.Sprintf("%dle", bits)
			}
			m[name] = vmaf.VideoFormat{
				ColorFamily:   vmaf.ColorFamilyYUV,
				SampleType:    vmaf.SampleInteger,
				BitsPerSample: bits,
				SubSamplingW:  ss.w,
				SubSamplingH:  ss.h,
				NumPlanes:     3,
			}
		}
	}
	// Full range JPEG variants share the layout.
	m["yuvj420p"] = m["yuv420p"]
	m["yuvj422p"] = m["yuv422p"]
	m["yuvj444p"] = m["yuv444p"]
	return m
}()

// FormatFromPixFmt maps an ffmpeg pixel format name to a VideoFormat.
func FormatFromPixFmt(pixFmt string) (vmaf.VideoFormat, error) {
	f, ok := pixFmts[pixFmt]
	if !ok {
		return f, fmt.Errorf("%w: %q", ErrPixelFormat, pixFmt)
	}
	return f, nil
}

// FFmpegConfig exposes parameters for FFmpeg source creation.
type FFmpegConfig struct {
	FfmpegPath string
	// Extra ffmpeg arguments placed before the input.
	GlobalArgs string
	// PixFmt converts decoded frames, empty keeps the stream's format.
	PixFmt string
	// Probe defaults to ffprobe.
	Probe video.MetadataExtractor
}

// FFmpeg decodes a video file to raw frames through an ffmpeg process.
// Frames must be requested in order starting at 0.
type FFmpeg struct {
	path   string
	cfg    FFmpegConfig
	meta   video.Metadata
	info   vmaf.VideoInfo
	layout layout

	mu     sync.Mutex
	cmd    *exec.Cmd
	out    io.ReadCloser
	rd     *bufio.Reader
	stderr *lw.TailWriter
	next   int
	closed bool
}

// NewFFmpeg probes path and prepares a decoder, ffmpeg starts on the first
// GetFrame.
func NewFFmpeg(path string, cfg FFmpegConfig) (*FFmpeg, error) {
	if cfg.FfmpegPath == "" {
		p, err := tools.FfmpegPath()
		if err != nil {
			return nil, err
		}
		cfg.FfmpegPath = p
	}
	if cfg.Probe == nil {
		cfg.Probe = video.ExtractorFunc(tools.FfprobeExtractMetadata)
	}

	meta, err := cfg.Probe.ExtractMetadata(path)
	if err != nil {
		return nil, err
	}
	pixFmt := meta.PixFmt
	if cfg.PixFmt != "" {
		pixFmt = cfg.PixFmt
	}
	format, err := FormatFromPixFmt(pixFmt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if meta.FrameCount <= 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrFrameCount)
	}
	cfg.PixFmt = pixFmt

	s := &FFmpeg{
		path: path,
		cfg:  cfg,
		meta: meta,
		info: vmaf.VideoInfo{
			Format:    format,
			Width:     meta.Width,
			Height:    meta.Height,
			NumFrames: meta.FrameCount,
		},
	}
	if s.layout, err = newLayout(s.info); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *FFmpeg) Info() vmaf.VideoInfo { return s.info }

// Metadata as reported by the probe.
func (s *FFmpeg) Metadata() video.Metadata { return s.meta }

func (s *FFmpeg) args() ([]string, error) {
	global, err := shlex.Split(s.cfg.GlobalArgs)
	if err != nil {
		return nil, fmt.Errorf("prepare command: %w", err)
	}
	args := []string{"-hide_banner", "-nostdin", "-v", "error"}
	args = append(args, global...)
	args = append(args,
		"-i", s.path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", s.cfg.PixFmt,
		"pipe:1",
	)
	return args, nil
}

func (s *FFmpeg) start() error {
	args, err := s.args()
	if err != nil {
		return err
	}
	cmd := exec.Command(s.cfg.FfmpegPath, args...) //#nosec G204
	out, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	s.stderr = lw.NewTailWriter(4 << 10)
	cmd.Stderr = s.stderr
	logging.Debugf("Running: %s", cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting decoder: %w", err)
	}
	s.cmd, s.out = cmd, out
	s.rd = bufio.NewReaderSize(out, s.layout.size)
	return nil
}

// GetFrame returns frame n, which must be the one after the previously
// returned frame.
func (s *FFmpeg) GetFrame(ctx context.Context, n int) (vmaf.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return nil, ErrClosed
	case n < 0 || n >= s.info.NumFrames:
		return nil, fmt.Errorf("%w: %d", ErrOutOfRange, n)
	case n != s.next:
		return nil, fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, n, s.next)
	}
	if s.cmd == nil {
		if err := s.start(); err != nil {
			return nil, err
		}
	}

	buf := make([]byte, s.layout.size)
	if _, err := io.ReadFull(s.rd, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%s: decoder ended at frame %d: %w\n%s", s.path, n, err, s.stderr)
		}
		return nil, fmt.Errorf("%s: reading frame %d: %w", s.path, n, err)
	}
	s.next++
	return newFrame(&s.layout, buf, nil), nil
}

// Close stops the decoder. It is safe to call more than once.
func (s *FFmpeg) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cmd == nil {
		return nil
	}
	s.out.Close()
	finished := s.next >= s.info.NumFrames
	if !finished {
		_ = s.cmd.Process.Kill()
	}
	err := s.cmd.Wait()
	if !finished {
		// Killed on purpose.
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Closing stdout early makes ffmpeg fail on a broken pipe.
		logging.Debugf("%s: decoder exit: %v", s.path, err)
		return nil
	}
	return err
}
