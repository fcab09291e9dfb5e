// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vmaf

import (
	"errors"
	"fmt"
)

// Stage tells at which point of a Filter's life an error happened.
type Stage int

const (
	StageConfiguration Stage = iota
	StageFrame
	StageTeardown
)

func (s Stage) String() string {
	switch s {
	case StageConfiguration:
		return "configuration"
	case StageFrame:
		return "frame"
	case StageTeardown:
		return "teardown"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Kinds of per-frame and teardown failures, match them with errors.Is.
var (
	ErrFrameRequest       = errors.New("failed to get frames")
	ErrPictureAlloc       = errors.New("failed to allocate picture")
	ErrPictureRead        = errors.New("failed to read pictures")
	ErrStreamFailed       = errors.New("stream failed on an earlier frame")
	ErrFlush              = errors.New("failed to flush context")
	ErrPooledScore        = errors.New("failed to generate pooled VMAF score")
	ErrWriteOutput        = errors.New("failed to write VMAF stats")
	ErrReleaseEngine      = errors.New("failed to release engine resources")
	ErrContextState       = errors.New("scoring context in wrong state")
	ErrClosed             = errors.New("filter is closed")
	ErrModelLoad          = errors.New("failed to load model")
	ErrModelFeatures      = errors.New("failed to load feature extractors from model")
	ErrCollectionFeatures = errors.New("failed to load feature extractors from model collection")
	ErrFeatureLoad        = errors.New("failed to load feature extractor")
	errContextInit        = errors.New("failed to initialize VMAF context")
	errGPUImport          = errors.New("problem during GPU state import")
	errShapeMismatch      = errors.New("both clips must have the same format and dimensions")
	errFrameMismatch      = errors.New("both clips' number of frames do not match")
	errMissingLogPath     = errors.New("log_path is required")
)

// Error is returned by every Filter operation. Its message is scoped by the
// filter name, e.g. "VMAF: failed to allocate picture".
type Error struct {
	Filter string
	Stage  Stage
	// Frame index for StageFrame errors, -1 otherwise.
	Frame int
	// Kind is the failure reason, Err the underlying cause if any.
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := e.Filter + ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func configError(filter string, kind, cause error) *Error {
	return &Error{Filter: filter, Stage: StageConfiguration, Frame: -1, Kind: kind, Err: cause}
}

func frameError(filter string, n int, kind, cause error) *Error {
	return &Error{Filter: filter, Stage: StageFrame, Frame: n, Kind: kind, Err: cause}
}

func teardownError(filter string, kind, cause error) *Error {
	return &Error{Filter: filter, Stage: StageTeardown, Frame: -1, Kind: kind, Err: cause}
}
