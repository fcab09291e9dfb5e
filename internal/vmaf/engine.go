// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vmaf

import (
	"fmt"

	"github.com/evolution-gaming/vmafscore/internal/metric"
)

// Engine is a VMAF scoring engine. Implementations wrap libvmaf or an
// equivalent backend, see internal/vqm for the ffmpeg based one and
// vmaftest for an in-memory fake.
type Engine interface {
	NewContext(cfg Configuration) (Context, error)
	// LoadModel loads a singleton model by version.
	LoadModel(cfg ModelConfig, version string) (ModelHandle, error)
	// LoadModelCollection loads a model collection by version.
	LoadModelCollection(cfg ModelConfig, version string) (CollectionHandle, error)
	// AllocPicture returns an engine owned picture, release it with Unref
	// unless ownership passed to Context.ReadPictures.
	AllocPicture(pf PixelFormat, bitDepth, width, height int) (*Picture, error)
}

// Context is a stateful scoring session. Pictures must be read in
// increasing index order, then Flush must be called exactly once before
// any pooled score is requested.
type Context interface {
	UseFeaturesFromModel(m ModelHandle) error
	UseFeaturesFromModelCollection(c CollectionHandle) error
	UseFeature(name string, opts map[string]string) error
	// ImportGPUState hands an accelerator state to the context.
	ImportGPUState(s GPUState) error
	// ReadPictures takes ownership of both pictures on success.
	ReadPictures(ref, dist *Picture, index int) error
	// Flush signals end of stream.
	Flush() error
	ScorePooled(m ModelHandle, method PoolMethod, start, end int) (float64, error)
	ScorePooledModelCollection(c CollectionHandle, method PoolMethod, start, end int) (CollectionScore, error)
	WriteOutput(path string, format OutputFormat) error
	Close() error
}

type ModelHandle interface {
	Name() string
	Close() error
}

type CollectionHandle interface {
	Name() string
	Close() error
}

// GPUState is an opaque accelerator state obtained outside of this package.
type GPUState interface {
	Device() string
}

// ModelFlags alters model evaluation.
type ModelFlags uint

const (
	ModelFlagsDefault         ModelFlags = 0
	ModelFlagDisableClip      ModelFlags = 1 << 0
	ModelFlagEnableTransform  ModelFlags = 1 << 1
	ModelFlagDisableTransform ModelFlags = 1 << 2
)

type ModelConfig struct {
	// Name is the key scores of this model are reported under.
	Name  string
	Flags ModelFlags
}

// LogLevel of the engine's own diagnostics.
type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarning
	LogLevelInfo
	LogLevelDebug
)

type Configuration struct {
	LogLevel LogLevel
	// Threads is a hint, the engine may parallelise internally.
	Threads int
	// Subsample of 1 scores every frame.
	Subsample int
}

// PoolMethod is shared with the metric collector.
type PoolMethod = metric.PoolMethod

const (
	PoolMin          = metric.PoolMin
	PoolMax          = metric.PoolMax
	PoolMean         = metric.PoolMean
	PoolHarmonicMean = metric.PoolHarmonicMean
)

// CollectionScore is the pooled result of a bootstrapped model collection.
type CollectionScore struct {
	Bagging float64
	StdDev  float64
	CILo    float64
	CIHi    float64
}

// OutputFormat of the engine's result log.
type OutputFormat int

const (
	OutputFormatNone OutputFormat = iota
	OutputFormatXML
	OutputFormatJSON
	OutputFormatCSV
	OutputFormatSUB
)

func (f OutputFormat) String() string {
	switch f {
	case OutputFormatNone:
		return "none"
	case OutputFormatXML:
		return "xml"
	case OutputFormatJSON:
		return "json"
	case OutputFormatCSV:
		return "csv"
	case OutputFormatSUB:
		return "sub"
	}
	return fmt.Sprintf("OutputFormat(%d)", int(f))
}
