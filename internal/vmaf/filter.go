// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package vmaf scores a distorted video stream against a reference with a
// VMAF engine.
//
// A Filter pulls frame pairs from two Sources, hands them to the engine in
// index order and returns the reference frame unchanged, so it can sit in
// a frame pipeline as a pass-through. Pooled scores are computed and the
// result log is written when the Filter is closed.
package vmaf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime"
	"sync"

	"github.com/evolution-gaming/vmafscore/internal/logging"
)

// DefaultName prefixes Filter error messages unless Options.Name is set.
const DefaultName = "VMAF"

// Options configure a Filter.
type Options struct {
	// Name scopes error and log messages.
	Name string
	// LogPath is where the result log is written on Close, required.
	LogPath string
	// LogFormat selects the log encoding: 0 XML, 1 JSON, 2 CSV, 3 SUB.
	LogFormat int
	// Models and Features are selector lists, see Model and Feature.
	Models   []int
	Features []int
	// Threads hint for the engine, defaults to the number of CPUs.
	Threads int
	// GPU state to import into the scoring context, optional.
	GPU GPUState
}

// Filter is a frame synchronized VMAF scoring pipeline over a reference and
// a distorted Source. It owns both sources: those implementing io.Closer
// are closed with the Filter.
//
// Frames must be requested in increasing index order starting at 0. After
// the first failed frame every further request fails. The same Source may
// be passed as both reference and distorted, each frame is then fetched
// once.
type Filter struct {
	name      string
	reference Source
	distorted Source
	shared    bool
	info      VideoInfo
	desc      StreamDescriptor
	logPath   string
	logFormat OutputFormat

	sc       *scoringContext
	registry *modelRegistry
	bridge   pictureBridge

	mu        sync.Mutex
	failed    bool
	closed    bool
	closeOnce sync.Once
	closeErr  error
	scores    []Score
}

// New validates both streams and the requested models and features, and
// prepares a scoring context on engine. Any error is a *Error with
// StageConfiguration, and leaves no engine resource allocated.
func New(engine Engine, reference, distorted Source, opts Options) (_ *Filter, err error) {
	f := &Filter{
		name:      opts.Name,
		reference: reference,
		distorted: distorted,
		logPath:   opts.LogPath,
		shared:    sameSource(reference, distorted),
	}
	if f.name == "" {
		f.name = DefaultName
	}
	defer func() {
		if err != nil {
			f.abort()
		}
	}()
	fail := func(kind, cause error) error {
		return configError(f.name, kind, cause)
	}

	f.info = reference.Info()
	if f.desc, err = Describe(f.info); err != nil {
		return nil, fail(err, nil)
	}
	if opts.LogPath == "" {
		return nil, fail(errMissingLogPath, nil)
	}
	if f.logFormat, err = LogFormatOutput(opts.LogFormat); err != nil {
		return nil, fail(err, nil)
	}
	models, err := parseModels(opts.Models)
	if err != nil {
		return nil, fail(err, nil)
	}
	features, err := parseFeatures(opts.Features)
	if err != nil {
		return nil, fail(err, nil)
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if f.sc, err = newScoringContext(engine, threads); err != nil {
		return nil, fail(errContextInit, err)
	}
	if opts.GPU != nil {
		if err = f.sc.ctx.ImportGPUState(opts.GPU); err != nil {
			return nil, fail(errGPUImport, err)
		}
	}

	dinfo := distorted.Info()
	if !sameShape(dinfo, f.info) {
		return nil, fail(errShapeMismatch, nil)
	}
	if dinfo.NumFrames != f.info.NumFrames {
		return nil, fail(errFrameMismatch, nil)
	}

	f.registry = &modelRegistry{engine: engine, ctx: f.sc.ctx}
	for _, m := range models {
		if err = f.registry.resolveModel(m); err != nil {
			return nil, fail(err, nil)
		}
	}
	for _, ft := range features {
		if err = f.registry.resolveFeature(ft); err != nil {
			return nil, fail(err, nil)
		}
	}

	f.bridge = pictureBridge{
		engine:      engine,
		pixelFormat: f.desc.Subsampling.PixelFormat(),
		bitDepth:    f.desc.BitDepth,
		width:       f.desc.Width,
		height:      f.desc.Height,
		chroma:      f.registry.chroma,
	}
	logging.Debugf("%s: %dx%d %d-bit %s, %d frames, models %v, features %v, chroma %t",
		f.name, f.desc.Width, f.desc.Height, f.desc.BitDepth, f.desc.Subsampling,
		f.desc.FrameCount, models, features, f.bridge.chroma)

	return f, nil
}

// abort releases whatever setup managed to acquire.
func (f *Filter) abort() {
	if f.registry != nil {
		for _, err := range f.registry.release() {
			logging.Debugf("%s: releasing model: %v", f.name, err)
		}
	}
	if err := f.sc.destroy(); err != nil {
		logging.Debugf("%s: closing context: %v", f.name, err)
	}
	f.releaseSources()
}

func (f *Filter) releaseSources() {
	sources := []Source{f.reference, f.distorted}
	if f.shared {
		sources = sources[:1]
	}
	for _, s := range sources {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logging.Debugf("%s: closing source: %v", f.name, err)
			}
		}
	}
}

// GetFrame scores frame n and returns the reference frame as output. The
// caller owns the returned frame and must Free it.
func (f *Filter) GetFrame(ctx context.Context, n int) (Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case f.closed:
		return nil, frameError(f.name, n, ErrClosed, nil)
	case f.failed:
		return nil, frameError(f.name, n, ErrStreamFailed, nil)
	case n < 0 || n >= f.desc.FrameCount:
		return nil, frameError(f.name, n, ErrFrameRequest,
			fmt.Errorf("frame %d out of range [0, %d)", n, f.desc.FrameCount))
	}

	ref, dist, err := f.fetch(ctx, n)
	if err != nil {
		f.failed = true
		return nil, frameError(f.name, n, ErrFrameRequest, err)
	}

	refPic, distPic, err := f.bridge.convert(ref, dist)
	if err != nil {
		f.release(ref, dist)
		f.failed = true
		return nil, frameError(f.name, n, ErrPictureAlloc, err)
	}
	if err := f.sc.submit(n, refPic, distPic); err != nil {
		refPic.Unref()
		distPic.Unref()
		f.release(ref, dist)
		f.failed = true
		return nil, frameError(f.name, n, ErrPictureRead, err)
	}

	if !f.shared {
		dist.Free()
	}
	return ref, nil
}

// release frees a fetched frame pair, a shared frame only once.
func (f *Filter) release(ref, dist Frame) {
	ref.Free()
	if !f.shared {
		dist.Free()
	}
}

// sameSource reports whether a and b are one and the same Source value.
func sameSource(a, b Source) bool {
	ta := reflect.TypeOf(a)
	return ta != nil && ta == reflect.TypeOf(b) && ta.Comparable() && a == b
}

// fetch requests frame n from both sources at once and waits for both.
func (f *Filter) fetch(ctx context.Context, n int) (ref, dist Frame, err error) {
	if f.shared {
		fr, err := f.reference.GetFrame(ctx, n)
		if err != nil {
			return nil, nil, fmt.Errorf("reference: %w", err)
		}
		return fr, fr, nil
	}
	var (
		wg              sync.WaitGroup
		refErr, distErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ref, refErr = f.reference.GetFrame(ctx, n)
	}()
	go func() {
		defer wg.Done()
		dist, distErr = f.distorted.GetFrame(ctx, n)
	}()
	wg.Wait()

	if refErr == nil && distErr == nil {
		return ref, dist, nil
	}
	if refErr == nil && ref != nil {
		ref.Free()
	}
	if distErr == nil && dist != nil {
		dist.Free()
	}
	if refErr != nil {
		refErr = fmt.Errorf("reference: %w", refErr)
	}
	if distErr != nil {
		distErr = fmt.Errorf("distorted: %w", distErr)
	}
	return nil, nil, errors.Join(refErr, distErr)
}

// Name is the filter scoped message prefix.
func (f *Filter) Name() string { return f.name }

// VideoInfo of the output stream, identical to the reference.
func (f *Filter) VideoInfo() VideoInfo { return f.info }

// Descriptor is the stream shape both sources were validated against.
func (f *Filter) Descriptor() StreamDescriptor { return f.desc }

// Chroma reports whether chroma planes are passed to the engine.
func (f *Filter) Chroma() bool { return f.bridge.chroma }

// Models returns the resolved models in request order.
func (f *Filter) Models() []LoadedModel {
	return append([]LoadedModel(nil), f.registry.loaded...)
}

// Failed reports whether some frame failed to process.
func (f *Filter) Failed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

// Submitted is the number of frames handed to the engine so far.
func (f *Filter) Submitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sc.submitted
}
