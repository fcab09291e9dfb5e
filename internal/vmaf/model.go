// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vmaf

import (
	"fmt"
)

// ModelKind tells which engine representation a model resolved to.
type ModelKind int

const (
	KindSingle ModelKind = iota
	KindCollection
)

func (k ModelKind) String() string {
	if k == KindCollection {
		return "collection"
	}
	return "single"
}

// LoadedModel is a resolved Model, either a singleton model or a model
// collection. The two variants are scored through different engine calls.
type LoadedModel interface {
	Model() Model
	Kind() ModelKind

	score(ctx Context, start, end int) (Score, error)
	close() error
}

type singleModel struct {
	model  Model
	handle ModelHandle
}

func (s *singleModel) Model() Model    { return s.model }
func (s *singleModel) Kind() ModelKind { return KindSingle }

func (s *singleModel) score(ctx Context, start, end int) (Score, error) {
	v, err := ctx.ScorePooled(s.handle, PoolMean, start, end)
	if err != nil {
		return Score{}, err
	}
	return Score{Model: s.model, Kind: KindSingle, Value: v}, nil
}

func (s *singleModel) close() error { return s.handle.Close() }

type modelCollection struct {
	model  Model
	handle CollectionHandle
}

func (c *modelCollection) Model() Model    { return c.model }
func (c *modelCollection) Kind() ModelKind { return KindCollection }

func (c *modelCollection) score(ctx Context, start, end int) (Score, error) {
	cs, err := ctx.ScorePooledModelCollection(c.handle, PoolMean, start, end)
	if err != nil {
		return Score{}, err
	}
	return Score{Model: c.model, Kind: KindCollection, Value: cs.Bagging, Collection: &cs}, nil
}

func (c *modelCollection) close() error { return c.handle.Close() }

// Score is the pooled mean of one LoadedModel over the whole stream.
type Score struct {
	Model Model
	Kind  ModelKind
	// Value is the model score, or the bagging score of a collection.
	Value      float64
	Collection *CollectionScore
}

// modelRegistry resolves models and features into a scoring context and
// keeps every loaded handle for teardown.
type modelRegistry struct {
	engine Engine
	ctx    Context
	loaded []LoadedModel
	chroma bool
	closed bool
}

// resolveModel tries a singleton load first and falls back to a model
// collection. Feature extractors of whichever succeeded are registered
// into the context.
func (r *modelRegistry) resolveModel(m Model) error {
	cfg := ModelConfig{Name: m.Name(), Flags: ModelFlagsDefault}

	h, err := r.engine.LoadModel(cfg, m.Version())
	if err == nil {
		r.loaded = append(r.loaded, &singleModel{model: m, handle: h})
		if err := r.ctx.UseFeaturesFromModel(h); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrModelFeatures, m.Version(), err)
		}
		return nil
	}

	c, cerr := r.engine.LoadModelCollection(cfg, m.Version())
	if cerr != nil {
		return fmt.Errorf("%w: %s: %w", ErrModelLoad, m.Version(), cerr)
	}
	r.loaded = append(r.loaded, &modelCollection{model: m, handle: c})
	if err := r.ctx.UseFeaturesFromModelCollection(c); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCollectionFeatures, m.Version(), err)
	}
	return nil
}

func (r *modelRegistry) resolveFeature(f Feature) error {
	if err := r.ctx.UseFeature(f.Name(), nil); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFeatureLoad, f.Name(), err)
	}
	if f.Chroma() {
		r.chroma = true
	}
	return nil
}

// release closes singleton models before collections.
func (r *modelRegistry) release() []error {
	if r.closed {
		return nil
	}
	r.closed = true
	var errs []error
	for _, kind := range []ModelKind{KindSingle, KindCollection} {
		for _, m := range r.loaded {
			if m.Kind() != kind {
				continue
			}
			if err := m.close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", m.Model().Version(), err))
			}
		}
	}
	return errs
}
