// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vmaf

import (
	"errors"
	"fmt"
)

// Model enumerates the quality models a Filter can score.
type Model int

const (
	ModelVMAF Model = iota
	ModelVMAFNeg
	ModelVMAFBootstrap
	ModelVMAF4K
)

var models = [...]struct{ name, version string }{
	ModelVMAF:          {"vmaf", "vmaf_v0.6.1"},
	ModelVMAFNeg:       {"vmaf_neg", "vmaf_v0.6.1neg"},
	ModelVMAFBootstrap: {"vmaf_b", "vmaf_b_v0.6.3"},
	ModelVMAF4K:        {"vmaf_4k", "vmaf_4k_v0.6.1"},
}

// Models lists every known model in selector order.
func Models() []Model {
	ms := make([]Model, len(models))
	for i := range models {
		ms[i] = Model(i)
	}
	return ms
}

func (m Model) Valid() bool { return m >= 0 && int(m) < len(models) }

// Name is the key the model score is reported under.
func (m Model) Name() string {
	if !m.Valid() {
		return ""
	}
	return models[m].name
}

// Version is the identifier the engine loads the model by.
func (m Model) Version() string {
	if !m.Valid() {
		return ""
	}
	return models[m].version
}

func (m Model) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Model(%d)", int(m))
	}
	return m.Name()
}

// Feature enumerates auxiliary feature extractors.
type Feature int

const (
	FeaturePSNR Feature = iota
	FeaturePSNRHVS
	FeatureSSIM
	FeatureMSSSIM
	FeatureCIEDE
)

var features = [...]struct {
	name   string
	chroma bool
}{
	FeaturePSNR:    {"psnr", true},
	FeaturePSNRHVS: {"psnr_hvs", true},
	FeatureSSIM:    {"float_ssim", false},
	FeatureMSSSIM:  {"float_ms_ssim", false},
	FeatureCIEDE:   {"ciede", true},
}

// Features lists every known feature in selector order.
func Features() []Feature {
	fs := make([]Feature, len(features))
	for i := range features {
		fs[i] = Feature(i)
	}
	return fs
}

func (f Feature) Valid() bool { return f >= 0 && int(f) < len(features) }

// Name is the engine's feature extractor name.
func (f Feature) Name() string {
	if !f.Valid() {
		return ""
	}
	return features[f].name
}

// Chroma reports whether the extractor reads chroma planes.
func (f Feature) Chroma() bool {
	return f.Valid() && features[f].chroma
}

func (f Feature) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Feature(%d)", int(f))
	}
	return f.Name()
}

// LogFormatOutput maps a log format selector to the engine output format.
func LogFormatOutput(selector int) (OutputFormat, error) {
	if selector < 0 || selector > 3 {
		return OutputFormatNone, errLogFormat
	}
	return OutputFormat(selector + 1), nil
}

var (
	errLogFormat        = errors.New("log_format must be 0, 1, 2, or 3")
	errModelRange       = errors.New("model must be 0, 1, 2, or 3")
	errModelDuplicate   = errors.New("duplicate model specified")
	errFeatureRange     = errors.New("feature must be 0, 1, 2, 3, or 4")
	errFeatureDuplicate = errors.New("duplicate feature specified")
)

// parseModels validates raw model selectors. Range is checked before
// duplicates for every entry, in list order.
func parseModels(raw []int) ([]Model, error) {
	seen := make(map[Model]bool, len(raw))
	ms := make([]Model, 0, len(raw))
	for _, r := range raw {
		m := Model(r)
		if !m.Valid() {
			return nil, errModelRange
		}
		if seen[m] {
			return nil, errModelDuplicate
		}
		seen[m] = true
		ms = append(ms, m)
	}
	return ms, nil
}

func parseFeatures(raw []int) ([]Feature, error) {
	seen := make(map[Feature]bool, len(raw))
	fs := make([]Feature, 0, len(raw))
	for _, r := range raw {
		f := Feature(r)
		if !f.Valid() {
			return nil, errFeatureRange
		}
		if seen[f] {
			return nil, errFeatureDuplicate
		}
		seen[f] = true
		fs = append(fs, f)
	}
	return fs, nil
}
