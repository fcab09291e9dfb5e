// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vqm

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolution-gaming/vmafscore/internal/tools"
	"github.com/evolution-gaming/vmafscore/internal/vmaf"
	"github.com/evolution-gaming/vmafscore/internal/vmaf/vmaftest"
	"github.com/evolution-gaming/vmafscore/internal/vmaflog"
)

// newTestEngine does not need ffmpeg to be installed.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(EngineConfig{FfmpegPath: "/nonexistent/ffmpeg", ModelDir: t.TempDir()})
	require.NoError(t, err)
	return e
}

func TestFilterGraph(t *testing.T) {
	vmafModel := &model{name: "vmaf", version: "vmaf_v0.6.1"}
	custom := &model{name: "custom", path: "/models/custom.json"}

	tests := map[string]struct {
		params filterParams
		want   string
	}{
		"Features only": {
			params: filterParams{logPath: "/tmp/log.json", threads: 4, features: []string{"name=psnr"}},
			want:   "[0:v][1:v]libvmaf=log_fmt=json:log_path=/tmp/log.json:n_threads=4:n_subsample=1:feature=name=psnr",
		},
		"Models and features": {
			params: filterParams{
				logPath:  "/tmp/log.json",
				threads:  1,
				models:   []*model{vmafModel, custom},
				features: []string{"name=psnr", "name=float_ssim"},
			},
			want: "[0:v][1:v]libvmaf=log_fmt=json:log_path=/tmp/log.json:n_threads=1:n_subsample=1:" +
				`model=version=vmaf_v0.6.1\\:name=vmaf|path=/models/custom.json\\:name=custom:` +
				"feature=name=psnr|name=float_ssim",
		},
		"CUDA": {
			params: filterParams{logPath: "l.json", threads: 2, models: []*model{vmafModel}, cuda: &CUDAState{DeviceName: "0"}},
			want: "[0:v]hwupload_cuda[dist];[1:v]hwupload_cuda[ref];[dist][ref]libvmaf_cuda=" +
				`log_fmt=json:log_path=l.json:n_threads=2:n_subsample=1:model=version=vmaf_v0.6.1\\:name=vmaf`,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, filterGraph(tc.params))
		})
	}
}

func TestRawPixFmt(t *testing.T) {
	tests := map[string]struct {
		pf       vmaf.PixelFormat
		bitDepth int
		want     string
		wantErr  bool
	}{
		"420 8-bit":   {pf: vmaf.PixelFormatYUV420P, bitDepth: 8, want: "yuv420p"},
		"422 10-bit":  {pf: vmaf.PixelFormatYUV422P, bitDepth: 10, want: "yuv422p10le"},
		"444 12-bit":  {pf: vmaf.PixelFormatYUV444P, bitDepth: 12, want: "yuv444p12le"},
		"420 16-bit":  {pf: vmaf.PixelFormatYUV420P, bitDepth: 16, want: "yuv420p16le"},
		"Gray":        {pf: vmaf.PixelFormatYUV400P, bitDepth: 8, wantErr: true},
		"9-bit depth": {pf: vmaf.PixelFormatYUV420P, bitDepth: 9, wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := rawPixFmt(tc.pf, tc.bitDepth)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFfmpegArgsKeepFilterIntact(t *testing.T) {
	graph := filterGraph(filterParams{
		logPath: "/tmp/log.json",
		threads: 8,
		models:  []*model{{name: "vmaf", version: "vmaf_v0.6.1"}},
	})
	args, err := ffmpegArgs(DefaultFfmpegVMAFTemplate, commandParams{
		GlobalArgs: "-loglevel error",
		HWInit:     hwInit(&CUDAState{DeviceName: "1"}),
		PixFmt:     "yuv420p",
		Width:      1920,
		Height:     1080,
		FPS:        25,
		Filter:     graph,
	})
	require.NoError(t, err)

	wantPrefix := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-init_hw_device", "cuda=cu:1", "-filter_hw_device", "cu",
		"-f", "rawvideo", "-pix_fmt", "yuv420p", "-s", "1920x1080", "-r", "25", "-i", "pipe:3",
	}
	assert.Equal(t, wantPrefix, args[:len(wantPrefix)])
	assert.Equal(t, []string{"-lavfi", graph, "-f", "null", "-"}, args[len(args)-5:])
}

func TestFfmpegArgsBadTemplate(t *testing.T) {
	_, err := ffmpegArgs("{{.Nope", commandParams{})
	assert.ErrorContains(t, err, "parse template")

	_, err = ffmpegArgs("{{.Unknown}}", commandParams{})
	assert.ErrorContains(t, err, "execute template")
}

func TestEngineLoadModel(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.cfg.ModelDir, "custom_v1.json"), []byte("{}"), 0o644))

	t.Run("Builtin model", func(t *testing.T) {
		h, err := e.LoadModel(vmaf.ModelConfig{Name: "vmaf_neg"}, "vmaf_v0.6.1neg")
		require.NoError(t, err)
		assert.Equal(t, "vmaf_neg", h.Name())
		assert.NoError(t, h.Close())
		assert.Error(t, h.Close(), "second close")
	})

	t.Run("Model file", func(t *testing.T) {
		h, err := e.LoadModel(vmaf.ModelConfig{Name: "custom"}, "custom_v1")
		require.NoError(t, err)
		m := h.(*model)
		assert.Equal(t, filepath.Join(e.cfg.ModelDir, "custom_v1.json"), m.path)
		assert.Contains(t, m.spec(), "path=")
	})

	t.Run("Unknown model", func(t *testing.T) {
		_, err := e.LoadModel(vmaf.ModelConfig{Name: "x"}, "vmaf_v9.9.9")
		assert.ErrorIs(t, err, ErrUnknownModel)
	})

	t.Run("Collection is not a model", func(t *testing.T) {
		_, err := e.LoadModel(vmaf.ModelConfig{Name: "vmaf_b"}, "vmaf_b_v0.6.3")
		assert.ErrorIs(t, err, ErrUnknownModel)
	})

	t.Run("Collection", func(t *testing.T) {
		h, err := e.LoadModelCollection(vmaf.ModelConfig{Name: "vmaf_b"}, "vmaf_b_v0.6.3")
		require.NoError(t, err)
		assert.True(t, h.(*model).collection)
	})

	t.Run("Model is not a collection", func(t *testing.T) {
		_, err := e.LoadModelCollection(vmaf.ModelConfig{Name: "vmaf"}, "vmaf_v0.6.1")
		assert.ErrorIs(t, err, ErrNotACollection)
	})
}

func TestEngineNewContext(t *testing.T) {
	e := newTestEngine(t)

	c, err := e.NewContext(vmaf.Configuration{Threads: 1, Subsample: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, c.(*Context).threads)

	c, err = e.NewContext(vmaf.Configuration{Threads: 1000})
	require.NoError(t, err)
	assert.LessOrEqual(t, c.(*Context).threads, 32)

	_, err = e.NewContext(vmaf.Configuration{Subsample: 2})
	assert.Error(t, err)
}

func TestContextRegistration(t *testing.T) {
	e := newTestEngine(t)
	vc, err := e.NewContext(vmaf.Configuration{})
	require.NoError(t, err)
	c := vc.(*Context)

	m, err := e.LoadModel(vmaf.ModelConfig{Name: "vmaf"}, "vmaf_v0.6.1")
	require.NoError(t, err)
	coll, err := e.LoadModelCollection(vmaf.ModelConfig{Name: "vmaf_b"}, "vmaf_b_v0.6.3")
	require.NoError(t, err)

	assert.NoError(t, c.UseFeaturesFromModel(m))
	assert.ErrorIs(t, c.UseFeaturesFromModel(coll), ErrUnknownModel)
	assert.NoError(t, c.UseFeaturesFromModelCollection(coll))
	assert.NoError(t, c.UseFeature("psnr", map[string]string{"enable_chroma": "true", "a": "b"}))
	assert.NoError(t, c.UseFeature("float_ssim", nil))

	assert.Len(t, c.models, 2)
	assert.Equal(t, []string{"psnr", "float_ssim"}, c.features)
	assert.Equal(t, []string{`name=psnr\\:a=b\\:enable_chroma=true`, "name=float_ssim"}, c.featureSpecs)

	assert.Error(t, c.ImportGPUState(gpu("metal")))
}

type gpu string

func (g gpu) Device() string { return string(g) }

func TestContextLifecycle(t *testing.T) {
	e := newTestEngine(t)
	vc, err := e.NewContext(vmaf.Configuration{})
	require.NoError(t, err)
	m, err := e.LoadModel(vmaf.ModelConfig{Name: "vmaf"}, "vmaf_v0.6.1")
	require.NoError(t, err)

	_, err = vc.ScorePooled(m, vmaf.PoolMean, 0, 0)
	assert.ErrorIs(t, err, ErrContextNotReady)
	assert.ErrorIs(t, vc.WriteOutput(filepath.Join(t.TempDir(), "log.json"), vmaf.OutputFormatJSON), ErrContextNotReady)

	// Nothing was read, so no process is ever started.
	assert.NoError(t, vc.Flush())
	assert.ErrorIs(t, vc.Flush(), ErrContextFlushed)

	p, err := vmaf.NewPicture(vmaf.PixelFormatYUV420P, 8, 16, 16)
	require.NoError(t, err)
	assert.ErrorIs(t, vc.ReadPictures(p, p, 0), ErrContextFlushed)

	_, err = vc.ScorePooled(m, vmaf.PoolMean, 0, 0)
	assert.Error(t, err, "no frames scored")

	assert.NoError(t, vc.Close())
	assert.NoError(t, vc.Close())
}

func TestWritePicture(t *testing.T) {
	p, err := vmaf.NewPicture(vmaf.PixelFormatYUV420P, 8, 5, 3)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for j := range p.Data[i] {
			p.Data[i][j] = 0xee // stride padding
		}
		for y := 0; y < p.Height[i]; y++ {
			for x := 0; x < p.Width[i]; x++ {
				p.Data[i][y*p.Stride[i]+x] = byte(i*100 + y*10 + x)
			}
		}
	}

	var buf bytes.Buffer
	require.NoError(t, writePicture(&buf, p))

	want := []byte{
		0, 1, 2, 3, 4,
		10, 11, 12, 13, 14,
		20, 21, 22, 23, 24,
		100, 101, 102,
		110, 111, 112,
		200, 201, 202,
		210, 211, 212,
	}
	assert.Equal(t, want, buf.Bytes())
}

func TestWritePicture16Bit(t *testing.T) {
	p, err := vmaf.NewPicture(vmaf.PixelFormatYUV444P, 10, 4, 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writePicture(&buf, p))
	assert.Equal(t, 3*4*2*2, buf.Len())
}

// Runs the whole pipeline through a real ffmpeg, when it has libvmaf.
func TestFfmpegEngineScoresIdenticalStreams(t *testing.T) {
	ffmpeg, err := tools.FfmpegPath()
	if err != nil || !tools.FfmpegHasFilter(ffmpeg, "libvmaf") {
		t.Skip("ffmpeg with libvmaf not available")
	}
	e, err := NewEngine(EngineConfig{FfmpegPath: ffmpeg})
	require.NoError(t, err)

	const frames = 5
	info := vmaftest.YUV(8, 1, 1, 64, 48, frames)
	ref := vmaftest.NewSource(info, vmaftest.Gradient(8))
	dist := vmaftest.NewSource(info, vmaftest.Gradient(8))
	logPath := filepath.Join(t.TempDir(), "vmaf.json")

	f, err := vmaf.New(e, ref, dist, vmaf.Options{
		LogPath:   logPath,
		LogFormat: 1,
		Models:    []int{int(vmaf.ModelVMAF)},
		Features:  []int{int(vmaf.FeaturePSNR)},
		Threads:   2,
	})
	require.NoError(t, err)
	for n := 0; n < frames; n++ {
		fr, err := f.GetFrame(context.Background(), n)
		require.NoError(t, err)
		fr.Free()
	}
	require.NoError(t, f.Close())

	l, err := vmaflog.Read(logPath)
	require.NoError(t, err)
	require.Len(t, l.Frames, frames)
	assert.Contains(t, l.MetricNames(), "vmaf")
	assert.Contains(t, l.MetricNames(), "psnr_y")
	assert.Greater(t, l.Pooled["vmaf"].Mean, 80.0)
	assert.Zero(t, ref.Outstanding())
	assert.Zero(t, dist.Outstanding())
}
