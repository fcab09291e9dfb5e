// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Contains a VMAF scoring engine that feeds raw pictures to ffmpeg's libvmaf
// filter along with related data structures.

package vqm

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/evolution-gaming/vmafscore/internal/logging"
	"github.com/evolution-gaming/vmafscore/internal/tools"
	"github.com/evolution-gaming/vmafscore/internal/vmaf"
)

var (
	ErrUnknownModel    = errors.New("unknown model")
	ErrNotACollection  = errors.New("not a model collection")
	ErrContextFlushed  = errors.New("context already flushed")
	ErrContextNotReady = errors.New("context not flushed")
)

// Models ffmpeg's libvmaf knows without a model file.
var (
	builtinModels = map[string]bool{
		"vmaf_v0.6.1":    true,
		"vmaf_v0.6.1neg": true,
		"vmaf_4k_v0.6.1": true,
	}
	builtinCollections = map[string]bool{
		"vmaf_b_v0.6.3":    true,
		"vmaf_4k_b_v0.6.3": true,
	}
)

// EngineConfig exposes parameters for Engine creation.
type EngineConfig struct {
	FfmpegPath string
	// Extra ffmpeg arguments placed before inputs, split like a shell would.
	GlobalArgs string
	// Directory searched for <version>.json model files before the usual
	// locations.
	ModelDir string
	// Frame rate declared for the raw inputs, it only shows up in logs.
	FPS float64
}

// Engine is a vmaf.Engine backed by an ffmpeg process per context.
type Engine struct {
	cfg EngineConfig
}

// NewEngine will initialize an ffmpeg and libvmaf based scoring engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.FfmpegPath == "" {
		p, err := tools.FfmpegPath()
		if err != nil {
			return nil, err
		}
		cfg.FfmpegPath = p
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 25
	}
	return &Engine{cfg: cfg}, nil
}

// model implements vmaf.ModelHandle and vmaf.CollectionHandle.
type model struct {
	name       string
	version    string
	path       string
	collection bool
	closed     bool
}

func (m *model) Name() string { return m.name }

func (m *model) Close() error {
	if m.closed {
		return errors.New("model already closed")
	}
	m.closed = true
	return nil
}

// spec renders the libvmaf model option. The ':' between model parameters
// is escaped twice, once for the filter graph and once for the option
// parser.
func (m *model) spec() string {
	if m.path != "" {
		return fmt.Sprintf("path=%s\\\\:name=%s", m.path, m.name)
	}
	return fmt.Sprintf("version=%s\\\\:name=%s", m.version, m.name)
}

func (e *Engine) LoadModel(cfg vmaf.ModelConfig, version string) (vmaf.ModelHandle, error) {
	if builtinCollections[version] {
		return nil, fmt.Errorf("%w: %s is a model collection", ErrUnknownModel, version)
	}
	m := &model{name: cfg.Name, version: version}
	if p, err := tools.FindLibvmafModel(version, e.cfg.ModelDir); err == nil {
		m.path = p
	} else if !builtinModels[version] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, err)
	}
	logging.Debugf("vqm: loaded model %s (%s)", version, m.spec())
	return m, nil
}

func (e *Engine) LoadModelCollection(cfg vmaf.ModelConfig, version string) (vmaf.CollectionHandle, error) {
	if !builtinCollections[version] {
		return nil, fmt.Errorf("%w: %s", ErrNotACollection, version)
	}
	m := &model{name: cfg.Name, version: version, collection: true}
	logging.Debugf("vqm: loaded model collection %s", version)
	return m, nil
}

func (e *Engine) AllocPicture(pf vmaf.PixelFormat, bitDepth, width, height int) (*vmaf.Picture, error) {
	return vmaf.NewPicture(pf, bitDepth, width, height)
}

func (e *Engine) NewContext(cfg vmaf.Configuration) (vmaf.Context, error) {
	if cfg.Subsample > 1 {
		return nil, fmt.Errorf("subsample %d not supported", cfg.Subsample)
	}
	// Too much CPU threads are also bad. This was an issue on 128 threaded AMD
	// EPYC, ffmpeg was deadlocking at some point during VMAF calculations.
	nThreads := 32
	if cfg.Threads > 0 && cfg.Threads < nThreads {
		nThreads = cfg.Threads
	}
	if runtime.NumCPU() < nThreads {
		nThreads = runtime.NumCPU()
	}
	return newContext(e.cfg, nThreads), nil
}

// CUDAState selects a CUDA device for libvmaf_cuda. It implements
// vmaf.GPUState.
type CUDAState struct {
	// DeviceName as understood by ffmpeg -init_hw_device, e.g. "0".
	DeviceName string
}

func (c *CUDAState) Device() string { return "cuda:" + c.DeviceName }
