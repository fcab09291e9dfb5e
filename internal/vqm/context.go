// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vqm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/evolution-gaming/vmafscore/internal/logging"
	"github.com/evolution-gaming/vmafscore/internal/lw"
	"github.com/evolution-gaming/vmafscore/internal/metric"
	"github.com/evolution-gaming/vmafscore/internal/tools"
	"github.com/evolution-gaming/vmafscore/internal/vmaf"
	"github.com/evolution-gaming/vmafscore/internal/vmaflog"
)

// How much of ffmpeg's stderr is kept for error reports.
const stderrTail = 16 << 10

// Context implements vmaf.Context. The ffmpeg process is started by the
// first ReadPictures call, when picture geometry becomes known, and ends
// on Flush.
type Context struct {
	cfg          EngineConfig
	threads      int
	models       []*model
	features     []string
	featureSpecs []string
	cuda         *CUDAState

	cmd       *exec.Cmd
	pipes     [2]*os.File // distorted, reference
	stderr    *lw.TailWriter
	logPath   string
	submitted int
	flushed   bool
	closed    bool
	collector *metric.Collector
}

func newContext(cfg EngineConfig, threads int) *Context {
	return &Context{cfg: cfg, threads: threads, collector: metric.NewCollector()}
}

func (c *Context) addModel(h interface{ Name() string }, collection bool) error {
	if c.cmd != nil {
		return errors.New("models must be registered before the first picture")
	}
	m, ok := h.(*model)
	if !ok || m.collection != collection {
		return fmt.Errorf("%w: %s", ErrUnknownModel, h.Name())
	}
	c.models = append(c.models, m)
	return nil
}

func (c *Context) UseFeaturesFromModel(h vmaf.ModelHandle) error {
	return c.addModel(h, false)
}

func (c *Context) UseFeaturesFromModelCollection(h vmaf.CollectionHandle) error {
	return c.addModel(h, true)
}

// UseFeature registers a libvmaf feature extractor, opts become extractor
// parameters.
func (c *Context) UseFeature(name string, opts map[string]string) error {
	if c.cmd != nil {
		return errors.New("features must be registered before the first picture")
	}
	spec := "name=" + name
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		spec += fmt.Sprintf("\\\\:%s=%s", k, opts[k])
	}
	c.features = append(c.features, name)
	c.featureSpecs = append(c.featureSpecs, spec)
	return nil
}

func (c *Context) ImportGPUState(s vmaf.GPUState) error {
	cuda, ok := s.(*CUDAState)
	if !ok {
		return fmt.Errorf("unsupported accelerator %s", s.Device())
	}
	if !tools.FfmpegHasFilter(c.cfg.FfmpegPath, "libvmaf_cuda") {
		return fmt.Errorf("%s has no libvmaf_cuda filter", c.cfg.FfmpegPath)
	}
	c.cuda = cuda
	return nil
}

func (c *Context) start(p *vmaf.Picture) (err error) {
	pixFmt, err := rawPixFmt(p.PixelFormat, p.BitDepth)
	if err != nil {
		return err
	}

	log, err := os.CreateTemp("", "vmaf_log_*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	c.logPath = log.Name()
	if err := log.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	graph := filterGraph(filterParams{
		logPath:  c.logPath,
		threads:  c.threads,
		models:   c.models,
		features: c.featureSpecs,
		cuda:     c.cuda,
	})
	args, err := ffmpegArgs(DefaultFfmpegVMAFTemplate, commandParams{
		GlobalArgs: c.cfg.GlobalArgs,
		HWInit:     hwInit(c.cuda),
		PixFmt:     pixFmt,
		Width:      p.Width[0],
		Height:     p.Height[0],
		FPS:        c.cfg.FPS,
		Filter:     graph,
	})
	if err != nil {
		return err
	}

	var readers [2]*os.File
	defer func() {
		for _, r := range readers {
			if r != nil {
				r.Close()
			}
		}
		if err != nil {
			c.closePipes()
		}
	}()
	for i := range c.pipes {
		if readers[i], c.pipes[i], err = os.Pipe(); err != nil {
			return fmt.Errorf("creating pipe: %w", err)
		}
	}

	cmd := exec.Command(c.cfg.FfmpegPath, args...) //#nosec G204
	cmd.ExtraFiles = readers[:]
	c.stderr = lw.NewTailWriter(stderrTail)
	cmd.Stderr = c.stderr
	logging.Debugf("VQM tool command: %v", cmd.Args)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}
	c.cmd = cmd
	return nil
}

func (c *Context) closePipes() {
	for i, p := range c.pipes {
		if p != nil {
			p.Close()
			c.pipes[i] = nil
		}
	}
}

// ReadPictures writes both pictures to ffmpeg and takes ownership of them.
func (c *Context) ReadPictures(ref, dist *vmaf.Picture, index int) error {
	if c.flushed {
		return ErrContextFlushed
	}
	if ref == nil || dist == nil {
		return errors.New("missing picture")
	}
	if c.cmd == nil {
		if err := c.start(ref); err != nil {
			return err
		}
	}

	var (
		wg   sync.WaitGroup
		errs [2]error
	)
	for i, p := range []*vmaf.Picture{dist, ref} {
		wg.Add(1)
		go func(i int, p *vmaf.Picture) {
			defer wg.Done()
			errs[i] = writePicture(c.pipes[i], p)
		}(i, p)
	}
	wg.Wait()
	if err := errors.Join(errs[:]...); err != nil {
		return fmt.Errorf("writing frame %d: %w\n%s", index, err, c.stderr)
	}

	ref.Unref()
	dist.Unref()
	c.submitted++
	return nil
}

// writePicture writes the visible area of every plane as packed rawvideo.
func writePicture(w io.Writer, p *vmaf.Picture) error {
	bps := p.BytesPerSample()
	var size uint
	for i := 0; i < p.PixelFormat.Planes(); i++ {
		size += uint(p.Width[i] * bps * p.Height[i])
	}
	// Never write more than exactly one frame, a short or long frame would
	// desync the stream.
	bw := bufio.NewWriterSize(lw.LimitWriter(w, size), 1<<16)
	for i := 0; i < p.PixelFormat.Planes(); i++ {
		rowSize := p.Width[i] * bps
		for y := 0; y < p.Height[i]; y++ {
			off := y * p.Stride[i]
			if _, err := bw.Write(p.Data[i][off : off+rowSize]); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// Flush ends both input streams, waits for ffmpeg and loads its log.
func (c *Context) Flush() error {
	if c.flushed {
		return ErrContextFlushed
	}
	c.flushed = true
	if c.cmd == nil {
		return nil
	}

	c.closePipes()
	if err := c.cmd.Wait(); err != nil {
		logging.Infof("VQM tool execution failure:\n%s", c.cmd.String())
		return fmt.Errorf("VQM calculation error: %w\n%s", err, c.stderr)
	}

	j, err := os.Open(c.logPath)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer j.Close()

	var metrics FrameMetrics
	if err := metrics.FromFfmpegVMAF(j); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}
	// Without a model libvmaf scores its default one, keep features only.
	var keep func(string) bool
	if len(c.models) == 0 {
		keep = featureFilter(c.features)
	}
	metrics.Collect(c.collector, keep)
	logging.Debugf("vqm: %d frames submitted, %d scored", c.submitted, len(metrics))
	return nil
}

func (c *Context) ScorePooled(h vmaf.ModelHandle, method vmaf.PoolMethod, start, end int) (float64, error) {
	if !c.flushed {
		return 0, ErrContextNotReady
	}
	v, err := c.collector.Pooled(h.Name(), method, start, end)
	if err != nil {
		return 0, err
	}
	c.collector.SetAggregate(h.Name(), v)
	return v, nil
}

func (c *Context) ScorePooledModelCollection(h vmaf.CollectionHandle, method vmaf.PoolMethod, start, end int) (vmaf.CollectionScore, error) {
	var s vmaf.CollectionScore
	if !c.flushed {
		return s, ErrContextNotReady
	}
	for _, m := range []struct {
		suffix string
		dst    *float64
	}{
		{"_bagging", &s.Bagging},
		{"_stddev", &s.StdDev},
		{"_ci_p95_lo", &s.CILo},
		{"_ci_p95_hi", &s.CIHi},
	} {
		name := h.Name() + m.suffix
		v, err := c.collector.Pooled(name, method, start, end)
		if err != nil {
			return s, err
		}
		*m.dst = v
		c.collector.SetAggregate(name, v)
	}
	return s, nil
}

func (c *Context) WriteOutput(path string, format vmaf.OutputFormat) error {
	if !c.flushed {
		return ErrContextNotReady
	}
	return vmaflog.Write(path, format, vmaflog.FromCollector(c.collector, c.cfg.FPS))
}

// Collector exposes per-frame metrics parsed from ffmpeg's log.
func (c *Context) Collector() *metric.Collector { return c.collector }

// Close stops ffmpeg if still running and removes temporary files.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var err error
	if c.cmd != nil && !c.flushed {
		c.closePipes()
		if kerr := c.cmd.Process.Kill(); kerr != nil {
			err = kerr
		}
		_ = c.cmd.Wait()
	}
	if c.logPath != "" {
		if rerr := os.Remove(c.logPath); rerr != nil && !os.IsNotExist(rerr) {
			err = errors.Join(err, rerr)
		}
	}
	return err
}
