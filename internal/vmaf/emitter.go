// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package vmaf

import (
	"errors"
	"fmt"

	"github.com/evolution-gaming/vmafscore/internal/logging"
)

// Close flushes the scoring context, pools every model over the whole
// stream, writes the result log and releases all engine resources. Every
// step runs even if an earlier one failed. Failures are logged and
// returned joined, each as a *Error with StageTeardown.
//
// Only the first call does any work, later calls return the same error.
func (f *Filter) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.closed = true
		f.closeErr = f.finalize()
	})
	return f.closeErr
}

func (f *Filter) finalize() error {
	var errs []error
	record := func(kind, cause error) {
		e := teardownError(f.name, kind, cause)
		logging.Error(e)
		errs = append(errs, e)
	}

	f.releaseSources()

	if err := f.sc.flush(); err != nil {
		record(ErrFlush, err)
	}

	end := f.desc.FrameCount - 1
	for _, kind := range []ModelKind{KindSingle, KindCollection} {
		for _, m := range f.registry.loaded {
			if m.Kind() != kind {
				continue
			}
			s, err := f.sc.extract(m, 0, end)
			if err != nil {
				record(ErrPooledScore, fmt.Errorf("%s: %w", m.Model().Version(), err))
				continue
			}
			logging.Infof("%s: %s (%s) pooled mean %.6f", f.name, m.Model().Name(), kind, s.Value)
			f.scores = append(f.scores, s)
		}
	}

	if err := f.sc.write(f.logPath, f.logFormat); err != nil {
		record(ErrWriteOutput, err)
	} else {
		logging.Debugf("%s: %s log written to %s", f.name, f.logFormat, f.logPath)
	}

	for _, err := range f.registry.release() {
		record(ErrReleaseEngine, err)
	}
	if err := f.sc.destroy(); err != nil {
		record(ErrReleaseEngine, err)
	}

	return errors.Join(errs...)
}

// Scores returns the pooled scores obtained by Close, singleton models
// first.
func (f *Filter) Scores() []Score {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Score(nil), f.scores...)
}
