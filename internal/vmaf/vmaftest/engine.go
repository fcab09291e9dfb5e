// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package vmaftest provides an in-memory vmaf.Engine for tests, with fault
// injection and bookkeeping of every engine resource.
//
// Scores are simple functions of the luma mean squared error: identical
// pictures score the maximum of every metric, 100 for models.
package vmaftest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/evolution-gaming/vmafscore/internal/metric"
	"github.com/evolution-gaming/vmafscore/internal/vmaf"
)

// ErrInjected is returned by every injected failure.
var ErrInjected = errors.New("injected failure")

// Faults selects which engine calls fail.
type Faults struct {
	NewContext bool
	GPUImport  bool
	// LoadModel fails the singleton load of these versions, LoadCollection
	// the collection load.
	LoadModel      map[string]bool
	LoadCollection map[string]bool
	// UseFeatures fails feature registration of these model versions.
	UseFeatures map[string]bool
	// UseFeature fails registration of these feature extractors.
	UseFeature map[string]bool
	// AllocAfter fails picture allocation once that many pictures were
	// allocated. Zero disables it.
	AllocAfter int
	// ReadAt fails submission of these frame indices.
	ReadAt map[int]bool
	Flush  bool
	// Score fails pooling of these model versions.
	Score        map[string]bool
	Write        bool
	CloseModel   bool
	CloseContext bool
}

// Engine is a fake vmaf.Engine. The zero value loads every known version
// as a singleton model, except bootstrap versions which only load as
// collections.
type Engine struct {
	Faults Faults
	// Collections lists versions that fail singleton load and succeed as a
	// model collection. Nil means vmaf_b_v0.6.3 only.
	Collections map[string]bool

	mu       sync.Mutex
	allocs   int
	live     int
	models   []*Model
	contexts []*Context
}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) isCollection(version string) bool {
	if e.Collections == nil {
		return version == vmaf.ModelVMAFBootstrap.Version()
	}
	return e.Collections[version]
}

func (e *Engine) NewContext(cfg vmaf.Configuration) (vmaf.Context, error) {
	if e.Faults.NewContext {
		return nil, ErrInjected
	}
	c := &Context{
		engine:    e,
		Config:    cfg,
		collector: metric.NewCollector(),
		chroma:    make(map[int]bool),
	}
	e.mu.Lock()
	e.contexts = append(e.contexts, c)
	e.mu.Unlock()
	return c, nil
}

func (e *Engine) LoadModel(cfg vmaf.ModelConfig, version string) (vmaf.ModelHandle, error) {
	if e.Faults.LoadModel[version] {
		return nil, ErrInjected
	}
	if e.isCollection(version) {
		return nil, fmt.Errorf("no such model %s", version)
	}
	return e.newModel(cfg, version, false), nil
}

func (e *Engine) LoadModelCollection(cfg vmaf.ModelConfig, version string) (vmaf.CollectionHandle, error) {
	if e.Faults.LoadCollection[version] {
		return nil, ErrInjected
	}
	if !e.isCollection(version) {
		return nil, fmt.Errorf("no such model collection %s", version)
	}
	return e.newModel(cfg, version, true), nil
}

func (e *Engine) newModel(cfg vmaf.ModelConfig, version string, collection bool) *Model {
	m := &Model{engine: e, Config: cfg, Version: version, Collection: collection}
	e.mu.Lock()
	e.models = append(e.models, m)
	e.mu.Unlock()
	return m
}

func (e *Engine) AllocPicture(pf vmaf.PixelFormat, bitDepth, width, height int) (*vmaf.Picture, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Faults.AllocAfter > 0 && e.allocs >= e.Faults.AllocAfter {
		return nil, ErrInjected
	}
	p, err := vmaf.NewPicture(pf, bitDepth, width, height)
	if err != nil {
		return nil, err
	}
	e.allocs++
	e.live++
	p.OnRelease(func() {
		e.mu.Lock()
		e.live--
		e.mu.Unlock()
	})
	return p, nil
}

// LivePictures is the number of allocated pictures not yet released.
func (e *Engine) LivePictures() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live
}

// Allocations counts successful picture allocations.
func (e *Engine) Allocations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allocs
}

// Models returns every model and collection loaded so far.
func (e *Engine) Models() []*Model {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Model(nil), e.models...)
}

// OpenModels counts loaded models not yet closed.
func (e *Engine) OpenModels() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, m := range e.models {
		if m.closed == 0 {
			n++
		}
	}
	return n
}

// Contexts returns every context created so far.
func (e *Engine) Contexts() []*Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Context(nil), e.contexts...)
}

// Model implements both vmaf.ModelHandle and vmaf.CollectionHandle.
type Model struct {
	engine     *Engine
	Config     vmaf.ModelConfig
	Version    string
	Collection bool
	closed     int
}

func (m *Model) Name() string { return m.Config.Name }

func (m *Model) Close() error {
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()
	m.closed++
	if m.engine.Faults.CloseModel {
		return ErrInjected
	}
	return nil
}

// Closed tells how many times Close was called.
func (m *Model) Closed() int {
	m.engine.mu.Lock()
	defer m.engine.mu.Unlock()
	return m.closed
}
